package sos

import (
	"strings"
	"time"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/coordinator"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/mirror"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/notify"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/session"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher"
)

// handle runs on the mirror goroutine, one delivery at a time.
func (w *Watcher) handle(r *run, d *mirror.Delivery) {
	res := r.session.Apply(d)
	if r.session.Closed() {
		return
	}

	w.deps.Metrics.RecordDelivery(w.config.ID)
	if res.Baseline {
		w.deps.Log.Info("Captured alert baseline", "id", w.config.ID, "alerts", r.session.BaselineSize())
	}

	fired := r.dispatcher.Dispatch(r.session.Notified(), res.Novel)
	if fired > 0 {
		w.deps.Log.Debug("Fired alert notifications", "id", w.config.ID, "count", fired, "seq", d.Seq)
	}

	for _, id := range res.Converged {
		r.sinks.Publish(notify.EventResolve, map[string]any{
			"alert_id": id,
			"state":    string(session.ResolveConfirmed),
			"message":  coordinator.ResolvedMessage,
		})
	}

	w.publishAlertsChanged(r, d.Seq)

	if r.elector.IsLeader() {
		if err := w.state.SaveLastDelivery(time.Now()); err != nil {
			w.deps.Log.Warn("Failed to save last delivery time", "id", w.config.ID, "error", err.Error())
		}
	}
}

func (w *Watcher) publishAlertsChanged(r *run, seq uint64) {
	active := len(r.session.Active(""))
	w.deps.Metrics.SetActiveAlerts(w.config.ID, active)

	payload := map[string]any{"active": active}
	if seq > 0 {
		payload["seq"] = int64(seq)
	}
	r.sinks.Publish(notify.EventAlertsChange, payload)
}

func (w *Watcher) onStatus(r *run, state mirror.Connectivity, err error) {
	w.deps.Metrics.SetOnline(w.config.ID, state == mirror.Online)

	payload := map[string]any{"state": string(state)}
	if err != nil {
		payload["error"] = err.Error()
		w.setLastError(err.Error())
		w.deps.Log.Error("Alert subscription failed", "id", w.config.ID, "error", err.Error())
	}
	r.sinks.Publish(notify.EventConnectivity, payload)
}

func (w *Watcher) onResult(r *run, o coordinator.Outcome) {
	payload := map[string]any{
		"alert_id": o.AlertID,
		"state":    string(o.State),
		"message":  o.Message,
	}
	if o.Kind != "" {
		payload["kind"] = string(o.Kind)
	}
	if o.Status != 0 {
		payload["status"] = int64(o.Status)
	}
	if o.Note != "" {
		payload["note"] = o.Note
	}
	r.sinks.Publish(notify.EventResolve, payload)
}

func (w *Watcher) setLastError(msg string) {
	w.errMu.Lock()
	w.lastError = msg
	w.errMu.Unlock()

	if err := w.state.SaveLastError(msg); err != nil {
		w.deps.Log.Warn("Failed to save last error", "id", w.config.ID, "error", err.Error())
	}
}

func listAlerts(sess *session.Session, view watcher.View, phoneQuery string) []watcher.AlertEntry {
	var alerts []alert.Alert
	switch view {
	case watcher.ViewAll:
		alerts = filterPhone(sess.Replica(), phoneQuery)
	case watcher.ViewInconsistent:
		for _, res := range sess.Resolutions(session.ResolveInconsistent) {
			a, ok := sess.Get(res.AlertID)
			if !ok {
				a = alert.Alert{ID: res.AlertID, Phone: alert.UnknownPhone}
			}
			alerts = append(alerts, a)
		}
		alerts = filterPhone(alerts, phoneQuery)
	default:
		alerts = sess.Active(phoneQuery)
	}

	entries := make([]watcher.AlertEntry, 0, len(alerts))
	for _, a := range alerts {
		entry := watcher.AlertEntry{Alert: a, Baseline: sess.IsBaseline(a.ID)}
		if res, ok := sess.Resolution(a.ID); ok {
			entry.Resolution = &res
		}
		entries = append(entries, entry)
	}
	return entries
}

func filterPhone(alerts []alert.Alert, phoneQuery string) []alert.Alert {
	q := strings.ToLower(strings.TrimSpace(phoneQuery))
	if q == "" {
		return alerts
	}

	out := make([]alert.Alert, 0, len(alerts))
	for _, a := range alerts {
		if strings.Contains(strings.ToLower(a.Phone), q) {
			out = append(out, a)
		}
	}
	return out
}
