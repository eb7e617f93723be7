package poster

import (
	"strings"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
)

func TestPostAlert_Success(t *testing.T) {
	api := &plugintest.API{}
	defer api.AssertExpectations(t)

	a := alert.Alert{
		ID:         "D1",
		Status:     alert.StatusOpen,
		Phone:      "100",
		OccurredAt: time.Now(),
	}

	api.On("CreatePost", mock.MatchedBy(func(post *model.Post) bool {
		assert.Equal(t, "bot-user-id", post.UserId)
		assert.Equal(t, "channel-id", post.ChannelId)
		assert.Equal(t, model.PostTypeSlackAttachment, post.Type)

		attachments, ok := post.Props["attachments"].([]*model.SlackAttachment)
		return ok && len(attachments) == 1 && strings.HasPrefix(attachments[0].Text, "#### NEW SOS FROM: 100\n")
	})).Return(&model.Post{Id: "post-id"}, nil).Once()

	p := New(api, "bot-user-id", "Console")
	require.NoError(t, p.PostAlert(a, "channel-id"))
}

func TestPostAlert_Failure(t *testing.T) {
	api := &plugintest.API{}
	defer api.AssertExpectations(t)

	api.On("CreatePost", mock.Anything).
		Return(nil, model.NewAppError("CreatePost", "app.post.save.error", nil, "channel archived", 400)).Once()

	p := New(api, "bot-user-id", "Console")
	err := p.PostAlert(alert.Alert{ID: "D1", Phone: "100"}, "channel-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel archived")
}
