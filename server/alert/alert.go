package alert

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an SOS alert as seen by operators.
// Transitions are open -> dispatched -> resolved.
type Status string

const (
	StatusOpen       Status = "open"
	StatusDispatched Status = "dispatched"
	StatusResolved   Status = "resolved"
)

// UnknownPhone is used when a raw record carries no reporting party identifier.
const UnknownPhone = "Unknown"

// ParseStatus maps a raw status value to a Status.
// Matching is case-insensitive; absent or unrecognised values map to StatusOpen.
func ParseStatus(raw any) Status {
	s, ok := raw.(string)
	if !ok {
		return StatusOpen
	}

	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusDispatched:
		return StatusDispatched
	case StatusResolved:
		return StatusResolved
	default:
		return StatusOpen
	}
}

// Coordinates is a finite latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Alert is the canonical SOS record derived from a raw remote document.
type Alert struct {
	// ID is assigned by the remote store and is the only join key between
	// remote and local state.
	ID string `json:"id"`

	Status Status `json:"status"`

	// Phone identifies the reporting party, UnknownPhone when absent.
	Phone string `json:"phone"`

	// Coordinates is nil when the raw record has no usable coordinate pair.
	Coordinates *Coordinates `json:"coordinates"`

	// OccurredAt falls back to ingestion time when no timestamp parses.
	OccurredAt time.Time `json:"occurredAt"`

	// IsTest marks synthetic documents inserted by the simulate action.
	IsTest bool `json:"isTest,omitempty"`

	// Raw holds the original field set untouched.
	Raw map[string]any `json:"raw,omitempty"`
}

// Active reports whether the alert still needs attention.
func (a Alert) Active() bool {
	return a.Status != StatusResolved
}
