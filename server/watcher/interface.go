package watcher

import (
	"context"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/session"
)

// Watcher defines the interface that all watcher implementations must satisfy.
// Each watcher keeps one live subscription to a remote collection between
// Start and Stop.
type Watcher interface {
	// Start subscribes to the collection and begins a new session.
	Start() error

	// Stop ends the session and releases the subscription.
	Stop() error

	// GetID returns the unique identifier for this watcher (UUID v4).
	GetID() string

	// GetName returns the display name for this watcher.
	GetName() string

	// GetType returns the watcher type.
	GetType() string

	// GetStatus returns the current operational status of the watcher.
	GetStatus() Status
}

// View selects which alerts an AlertSession lists.
type View string

const (
	// ViewActive lists session-new alerts that still need attention.
	ViewActive View = "active"
	// ViewAll lists the whole replica.
	ViewAll View = "all"
	// ViewInconsistent lists alerts whose resolve was rejected.
	ViewInconsistent View = "inconsistent"
)

// ParseView maps a query value to a View, defaulting to ViewActive.
func ParseView(s string) (View, bool) {
	switch View(s) {
	case "", ViewActive:
		return ViewActive, true
	case ViewAll:
		return ViewAll, true
	case ViewInconsistent:
		return ViewInconsistent, true
	default:
		return "", false
	}
}

// AlertEntry is an alert together with its local resolve state, if any.
type AlertEntry struct {
	alert.Alert
	Baseline   bool                `json:"baseline"`
	Resolution *session.Resolution `json:"resolution,omitempty"`
}

// AlertSession is implemented by watchers that run the live alert session.
type AlertSession interface {
	Alerts(view View, phoneQuery string) ([]AlertEntry, error)
	Acknowledge(ctx context.Context, alertID, identity string) error
	Resolve(alertID string) (session.Resolution, error)
	Simulate(ctx context.Context) (string, error)
}

// DocumentLister is implemented by watchers that mirror a plain list.
type DocumentLister interface {
	Documents() any
}
