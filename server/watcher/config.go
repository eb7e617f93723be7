package watcher

import "time"

// Watcher types.
const (
	TypeSOS       = "sos"
	TypeIncidents = "incidents"
	TypeZones     = "zones"
)

// Default collections and limits, per type.
const (
	DefaultSOSCollection       = "emergency_logs"
	DefaultIncidentsCollection = "live_incidents"
	DefaultZonesCollection     = "risk_zones"

	DefaultIncidentsLimit = 50
)

// Config represents the configuration for a watcher instance.
// Each watcher is uniquely identified by its ID (UUID v4).
type Config struct {
	// ID is the unique stable identifier for this watcher (UUID v4, immutable)
	ID string `json:"id"`

	// Name is the display name for this watcher (mutable, must be unique)
	Name string `json:"name"`

	// Type is one of "sos", "incidents" or "zones"
	Type string `json:"type"`

	// Enabled indicates whether this watcher should hold a live subscription
	Enabled bool `json:"enabled"`

	// Collection overrides the default collection for the type
	Collection string `json:"collection"`

	// ChannelID is the Mattermost channel that receives events and new alert posts
	ChannelID string `json:"channelId"`

	// Limit caps the number of mirrored documents, 0 uses the type default
	Limit int `json:"limit"`

	// RenotifyReopened notifies again when a session-new alert is reopened
	RenotifyReopened bool `json:"renotifyReopened"`
}

// EffectiveCollection returns the collection to subscribe to.
func (c Config) EffectiveCollection() string {
	if c.Collection != "" {
		return c.Collection
	}
	switch c.Type {
	case TypeSOS:
		return DefaultSOSCollection
	case TypeIncidents:
		return DefaultIncidentsCollection
	case TypeZones:
		return DefaultZonesCollection
	default:
		return ""
	}
}

// EffectiveLimit returns the document limit to subscribe with.
func (c Config) EffectiveLimit() int {
	if c.Limit > 0 {
		return c.Limit
	}
	if c.Type == TypeIncidents {
		return DefaultIncidentsLimit
	}
	return 0
}

// Status represents the current operational status of a watcher instance.
type Status struct {
	// Enabled indicates whether the watcher is enabled and running
	Enabled bool `json:"enabled"`

	// Connectivity is the subscription health: connecting, online, offline or stopped
	Connectivity string `json:"connectivity"`

	// Leader indicates whether this node emits notifications for the watcher
	Leader bool `json:"leader"`

	// Deliveries is the number of deliveries received in the current session
	Deliveries uint64 `json:"deliveries"`

	// LastDelivery is when the most recent delivery arrived
	LastDelivery time.Time `json:"lastDelivery"`

	// LastError contains the most recent subscription failure (empty if none)
	LastError string `json:"lastError"`

	// Documents is the size of the local replica
	Documents int `json:"documents"`

	// Baseline is the number of pre-existing alerts (sos watchers only)
	Baseline int `json:"baseline,omitempty"`

	// Active is the size of the operator-visible list (sos watchers only)
	Active int `json:"active,omitempty"`
}
