package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/coordinator"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/geocode"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/metrics"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/mirror"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/notify"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/store"
)

// Logger is the subset of pluginapi.LogService shared by all watchers.
type Logger interface {
	Debug(message string, keyValuePairs ...any)
	Info(message string, keyValuePairs ...any)
	Warn(message string, keyValuePairs ...any)
	Error(message string, keyValuePairs ...any)
}

// AlertStore is the write side of an alert collection.
type AlertStore interface {
	Acknowledge(ctx context.Context, alertID, identity string, at time.Time) error
	InsertTestAlert(ctx context.Context, sim store.SimulatedAlert) (string, error)
}

// Deps are the shared services handed to every watcher.
type Deps struct {
	API     plugin.API
	Log     Logger
	Source  mirror.Source
	Metrics *metrics.Metrics

	// Alerts returns the write side of a collection. Nil when no store is configured.
	Alerts func(collection string) AlertStore

	Resolver coordinator.Resolver
	Poster   notify.AlertPoster
	Geocoder geocode.Geocoder

	// Electors creates the leadership elector for a watcher. Nil means every
	// node emits.
	Electors func(watcherID string) (Elector, error)

	Timeout time.Duration
	ToneURL string
}

// Factory is a function type that creates a watcher instance.
type Factory func(config Config, deps Deps) (Watcher, error)

// factoryRegistry maps watcher types to their factory functions
var factoryRegistry = make(map[string]Factory)

// RegisterFactory registers a watcher factory for a given type.
func RegisterFactory(watcherType string, factory Factory) {
	factoryRegistry[watcherType] = factory
}

// Create creates a new watcher instance based on the provided configuration.
func Create(config Config, deps Deps) (Watcher, error) {
	if config.Type == "" {
		return nil, fmt.Errorf("watcher type is required")
	}

	factory, exists := factoryRegistry[config.Type]
	if !exists {
		return nil, fmt.Errorf("unknown watcher type: %s", config.Type)
	}

	if deps.Source == nil {
		return nil, fmt.Errorf("watcher '%s': no document source configured", config.Name)
	}

	return factory(config, deps)
}
