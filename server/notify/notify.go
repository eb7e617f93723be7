// Package notify fires the operator-facing effects for newly arrived alerts:
// an audible tone, a transient toast and a map focus request.
package notify

import (
	"fmt"
	"time"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/metrics"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/session"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/tone"
)

// FocusZoom is the map zoom level requested for a new alert.
const FocusZoom = 16

// Logger is the subset of pluginapi.LogService used by the dispatcher.
type Logger interface {
	Debug(message string, keyValuePairs ...any)
	Info(message string, keyValuePairs ...any)
	Warn(message string, keyValuePairs ...any)
	Error(message string, keyValuePairs ...any)
}

// Toast is a transient notice shown to operators.
type Toast struct {
	AlertID    string    `json:"alertId"`
	Phone      string    `json:"phone"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
	IsTest     bool      `json:"isTest,omitempty"`
}

// Focus asks operator maps to center on an alert.
type Focus struct {
	AlertID     string            `json:"alertId"`
	Coordinates alert.Coordinates `json:"coordinates"`
	Zoom        int               `json:"zoom"`
}

// ToneSink emits the audible cue. Errors mean audio is unavailable.
type ToneSink interface {
	PlayTone(p tone.Pattern) error
}

// ToastSink shows a transient notice.
type ToastSink interface {
	Toast(t Toast)
}

// FocusSink requests a map focus.
type FocusSink interface {
	Focus(f Focus)
}

// Leader reports whether this node should emit side effects.
type Leader interface {
	IsLeader() bool
}

// Sinks groups the effect targets of one watcher.
type Sinks struct {
	Tone  ToneSink
	Toast ToastSink
	Focus FocusSink
}

// ToastMessage is the text of the new-alert toast.
func ToastMessage(phone string) string {
	return fmt.Sprintf("NEW SOS FROM: %s", phone)
}

// Dispatcher fires notifications for novel alerts of one watcher.
type Dispatcher struct {
	watcherID string
	sinks     Sinks
	leader    Leader
	log       Logger
	metrics   *metrics.Metrics
}

// NewDispatcher creates a dispatcher. A nil leader means this node always emits.
func NewDispatcher(watcherID string, sinks Sinks, leader Leader, log Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		watcherID: watcherID,
		sinks:     sinks,
		leader:    leader,
		log:       log,
		metrics:   m,
	}
}

// Dispatch notifies each candidate whose key is not yet in notified, in order,
// and records it. Returns the number of notifications fired on this node.
func (d *Dispatcher) Dispatch(notified *session.NotifiedSet, candidates []session.Candidate) int {
	emit := d.leader == nil || d.leader.IsLeader()

	fired := 0
	for _, c := range candidates {
		if !notified.Record(c.Key) {
			d.log.Debug("Skipping already notified alert", "watcherId", d.watcherID, "alertId", c.Alert.ID)
			continue
		}

		if !emit {
			d.log.Debug("Not the leader, recording alert without notifying", "watcherId", d.watcherID, "alertId", c.Alert.ID)
			continue
		}

		d.fire(c.Alert)
		fired++
	}

	return fired
}

func (d *Dispatcher) fire(a alert.Alert) {
	if d.sinks.Tone != nil {
		if err := d.playTone(); err != nil {
			d.metrics.RecordAudioFailure()
			d.log.Warn("Audio unavailable", "watcherId", d.watcherID, "alertId", a.ID, "error", err.Error())
		}
	}

	if d.sinks.Toast != nil {
		d.sinks.Toast.Toast(Toast{
			AlertID:    a.ID,
			Phone:      a.Phone,
			Message:    ToastMessage(a.Phone),
			OccurredAt: a.OccurredAt,
			IsTest:     a.IsTest,
		})
	}

	if d.sinks.Focus != nil && a.Coordinates != nil {
		d.sinks.Focus.Focus(Focus{
			AlertID:     a.ID,
			Coordinates: *a.Coordinates,
			Zoom:        FocusZoom,
		})
	}

	d.metrics.RecordNotification(d.watcherID)
	d.log.Info("Notified new SOS", "watcherId", d.watcherID, "alertId", a.ID, "phone", a.Phone)
}

func (d *Dispatcher) playTone() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tone sink panicked: %v", r)
		}
	}()
	return d.sinks.Tone.PlayTone(tone.NewAlert)
}
