package notify

import (
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/tone"
)

// Websocket event names, prefixed by the server with the plugin id.
const (
	EventTone         = "sos_tone"
	EventToast        = "sos_toast"
	EventFocus        = "sos_focus"
	EventConnectivity = "sos_connectivity"
	EventAlertsChange = "sos_alerts_changed"
	EventResolve      = "sos_resolve_result"
	EventDocuments    = "sos_documents_changed"
)

// AlertPoster posts a new alert to a channel.
type AlertPoster interface {
	PostAlert(a alert.Alert, channelID string) error
}

// WebSocketSinks delivers notifications to connected clients as plugin
// websocket events scoped to the watcher's channel.
type WebSocketSinks struct {
	api       plugin.API
	watcherID string
	channelID string
	toneURL   string
	poster    AlertPoster
	lookup    func(id string) (alert.Alert, bool)
	log       Logger
}

// NewWebSocketSinks creates sinks for one watcher. poster and lookup may be
// nil, in which case toasts are not posted to the channel.
func NewWebSocketSinks(api plugin.API, watcherID, channelID, toneURL string, poster AlertPoster, lookup func(id string) (alert.Alert, bool), log Logger) *WebSocketSinks {
	return &WebSocketSinks{
		api:       api,
		watcherID: watcherID,
		channelID: channelID,
		toneURL:   toneURL,
		poster:    poster,
		lookup:    lookup,
		log:       log,
	}
}

// Sinks returns s in every role.
func (s *WebSocketSinks) Sinks() Sinks {
	return Sinks{Tone: s, Toast: s, Focus: s}
}

func (s *WebSocketSinks) broadcast() *model.WebsocketBroadcast {
	return &model.WebsocketBroadcast{ChannelId: s.channelID}
}

// Publish sends an arbitrary event scoped to the watcher.
func (s *WebSocketSinks) Publish(event string, payload map[string]any) {
	payload["watcher_id"] = s.watcherID
	s.api.PublishWebSocketEvent(event, payload, s.broadcast())
}

func (s *WebSocketSinks) PlayTone(p tone.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}

	pulses := make([]map[string]any, 0, len(p.Pulses))
	for _, pulse := range p.Pulses {
		pulses = append(pulses, map[string]any{
			"start_ms":    pulse.Start.Milliseconds(),
			"duration_ms": pulse.Duration.Milliseconds(),
		})
	}

	s.Publish(EventTone, map[string]any{
		"frequency_hz": p.FrequencyHz,
		"gain":         p.Gain,
		"waveform":     "square",
		"pulses":       pulses,
		"url":          s.toneURL,
	})
	return nil
}

func (s *WebSocketSinks) Toast(t Toast) {
	s.Publish(EventToast, map[string]any{
		"alert_id":    t.AlertID,
		"phone":       t.Phone,
		"message":     t.Message,
		"occurred_at": t.OccurredAt.UnixMilli(),
		"is_test":     t.IsTest,
	})

	if s.poster == nil || s.lookup == nil || s.channelID == "" {
		return
	}
	a, ok := s.lookup(t.AlertID)
	if !ok {
		return
	}
	if err := s.poster.PostAlert(a, s.channelID); err != nil {
		s.log.Error("Failed to post alert to channel", "watcherId", s.watcherID, "alertId", t.AlertID, "error", err.Error())
	}
}

func (s *WebSocketSinks) Focus(f Focus) {
	s.Publish(EventFocus, map[string]any{
		"alert_id": f.AlertID,
		"lat":      f.Coordinates.Lat,
		"lng":      f.Coordinates.Lng,
		"zoom":     f.Zoom,
	})
}
