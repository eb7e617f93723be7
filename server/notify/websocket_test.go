package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/tone"
)

type mockPoster struct {
	mock.Mock
}

func (m *mockPoster) PostAlert(a alert.Alert, channelID string) error {
	args := m.Called(a, channelID)
	return args.Error(0)
}

func TestWebSocketSinks_PlayTone(t *testing.T) {
	api := plugintest.NewAPI(t)
	api.On("PublishWebSocketEvent", EventTone, mock.MatchedBy(func(payload map[string]any) bool {
		pulses, ok := payload["pulses"].([]map[string]any)
		return ok &&
			payload["watcher_id"] == "w1" &&
			payload["frequency_hz"] == 880.0 &&
			payload["gain"] == 0.3 &&
			payload["url"] == "/plugins/sos/api/v1/tone.wav" &&
			len(pulses) == 2 &&
			pulses[1]["start_ms"] == int64(250) &&
			pulses[1]["duration_ms"] == int64(200)
	}), &model.WebsocketBroadcast{ChannelId: "channel1"}).Once()

	s := NewWebSocketSinks(api, "w1", "channel1", "/plugins/sos/api/v1/tone.wav", nil, nil, nopLogger{})
	assert.NoError(t, s.PlayTone(tone.NewAlert))
}

func TestWebSocketSinks_PlayToneInvalidPattern(t *testing.T) {
	api := plugintest.NewAPI(t)

	s := NewWebSocketSinks(api, "w1", "channel1", "", nil, nil, nopLogger{})
	assert.Error(t, s.PlayTone(tone.Pattern{}))
}

func TestWebSocketSinks_ToastPostsToChannel(t *testing.T) {
	a := alert.Alert{ID: "D2", Phone: "100", Status: alert.StatusOpen}

	api := plugintest.NewAPI(t)
	api.On("PublishWebSocketEvent", EventToast, mock.MatchedBy(func(payload map[string]any) bool {
		return payload["alert_id"] == "D2" && payload["message"] == "NEW SOS FROM: 100"
	}), &model.WebsocketBroadcast{ChannelId: "channel1"}).Once()

	poster := &mockPoster{}
	poster.On("PostAlert", a, "channel1").Return(nil).Once()

	lookup := func(id string) (alert.Alert, bool) { return a, id == "D2" }
	s := NewWebSocketSinks(api, "w1", "channel1", "", poster, lookup, nopLogger{})

	s.Toast(Toast{AlertID: "D2", Phone: "100", Message: ToastMessage("100"), OccurredAt: time.Now()})
	poster.AssertExpectations(t)
}

func TestWebSocketSinks_ToastPostFailureIsLogged(t *testing.T) {
	a := alert.Alert{ID: "D2", Phone: "100"}

	api := plugintest.NewAPI(t)
	api.On("PublishWebSocketEvent", EventToast, mock.Anything, mock.Anything).Once()

	poster := &mockPoster{}
	poster.On("PostAlert", a, "channel1").Return(errors.New("channel archived")).Once()

	lookup := func(string) (alert.Alert, bool) { return a, true }
	s := NewWebSocketSinks(api, "w1", "channel1", "", poster, lookup, nopLogger{})

	assert.NotPanics(t, func() {
		s.Toast(Toast{AlertID: "D2", Phone: "100", Message: ToastMessage("100")})
	})
	poster.AssertExpectations(t)
}

func TestWebSocketSinks_ToastWithoutChannelSkipsPost(t *testing.T) {
	api := plugintest.NewAPI(t)
	api.On("PublishWebSocketEvent", EventToast, mock.Anything, &model.WebsocketBroadcast{}).Once()

	poster := &mockPoster{}
	s := NewWebSocketSinks(api, "w1", "", "", poster, func(string) (alert.Alert, bool) { return alert.Alert{}, true }, nopLogger{})

	s.Toast(Toast{AlertID: "D2"})
	poster.AssertNotCalled(t, "PostAlert", mock.Anything, mock.Anything)
}

func TestWebSocketSinks_Focus(t *testing.T) {
	api := plugintest.NewAPI(t)
	api.On("PublishWebSocketEvent", EventFocus, map[string]any{
		"alert_id":   "D2",
		"lat":        17.385,
		"lng":        78.4867,
		"zoom":       16,
		"watcher_id": "w1",
	}, &model.WebsocketBroadcast{ChannelId: "channel1"}).Once()

	s := NewWebSocketSinks(api, "w1", "channel1", "", nil, nil, nopLogger{})
	s.Focus(Focus{AlertID: "D2", Coordinates: alert.Coordinates{Lat: 17.385, Lng: 78.4867}, Zoom: FocusZoom})
}
