package main

import (
	"net/url"
	"reflect"
	"time"

	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/coordinator"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher"
)

// configuration captures the plugin's external configuration as exposed in the Mattermost server
// configuration, as well as values computed from the configuration. Any public fields will be
// deserialized from the Mattermost server configuration in OnConfigurationChange.
//
// As plugins are inherently concurrent (hooks being called asynchronously), and the plugin
// configuration can change at any time, access to the configuration must be synchronized. The
// strategy used in this plugin is to guard a pointer to the configuration, and clone the entire
// struct whenever it changes.
//
// If you add non-reference types to your configuration struct, be sure to rewrite Clone as a deep
// copy appropriate for your types.
type configuration struct {
	// FirebaseCredentials is the service account JSON, raw or base64 encoded.
	FirebaseCredentials string `json:"firebaseCredentials"`

	// FirebaseProjectID overrides the project from the credentials.
	FirebaseProjectID string `json:"firebaseProjectId"`

	// ResolveURL is the resolve authority endpoint. Resolving is disabled when empty.
	ResolveURL string `json:"resolveUrl"`

	// RequestTimeoutSeconds bounds acknowledge and resolve requests.
	RequestTimeoutSeconds int `json:"requestTimeoutSeconds"`

	// GoogleMapsAPIKey enables geocoding of zones without coordinates.
	GoogleMapsAPIKey string `json:"googleMapsApiKey"`

	BotUsername    string `json:"botUsername"`
	BotDisplayName string `json:"botDisplayName"`

	// Watchers is an array of watcher configurations.
	// Each watcher defines a separate collection subscription.
	Watchers []watcher.Config `json:"watchers"`
}

// Clone creates a deep copy of the configuration.
func (c *configuration) Clone() *configuration {
	clone := *c

	if c.Watchers != nil {
		clone.Watchers = make([]watcher.Config, len(c.Watchers))
		copy(clone.Watchers, c.Watchers)
	}

	return &clone
}

// RequestTimeout returns the configured mutation timeout.
func (c *configuration) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return coordinator.DefaultTimeout
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// servicesEqual reports whether both configurations produce the same shared
// services. Watchers must be restarted when they do not.
func (c *configuration) servicesEqual(other *configuration) bool {
	return c.FirebaseCredentials == other.FirebaseCredentials &&
		c.FirebaseProjectID == other.FirebaseProjectID &&
		c.ResolveURL == other.ResolveURL &&
		c.RequestTimeoutSeconds == other.RequestTimeoutSeconds &&
		c.GoogleMapsAPIKey == other.GoogleMapsAPIKey
}

// validate checks the fields outside the watcher list.
func (c *configuration) validate() error {
	if c.RequestTimeoutSeconds < 0 {
		return errors.Errorf("request timeout must not be negative (got %d)", c.RequestTimeoutSeconds)
	}

	if c.ResolveURL != "" {
		parsed, err := url.Parse(c.ResolveURL)
		if err != nil {
			return errors.Wrap(err, "invalid resolve url")
		}
		if parsed.Scheme != "https" && parsed.Scheme != "http" {
			return errors.Errorf("resolve url must use http or https (got %q)", parsed.Scheme)
		}
		if parsed.Host == "" {
			return errors.New("resolve url must include a hostname")
		}
	}

	return watcher.ValidateWatchers(c.Watchers)
}

// getConfiguration retrieves the active configuration under lock, making it safe to use
// concurrently. The active configuration may change underneath the client of this method, but
// the struct returned by this API call is considered immutable.
func (p *Plugin) getConfiguration() *configuration {
	p.configurationLock.RLock()
	defer p.configurationLock.RUnlock()

	if p.configuration == nil {
		return &configuration{}
	}

	return p.configuration
}

// setConfiguration replaces the active configuration under lock.
//
// Do not call setConfiguration while holding the configurationLock, as sync.Mutex is not
// reentrant. In particular, avoid using the plugin API entirely, as this may in turn trigger a
// hook back into the plugin. If that hook attempts to acquire this lock, a deadlock may occur.
//
// This method panics if setConfiguration is called with the existing configuration. This almost
// certainly means that the configuration was modified without being cloned and may result in
// an unsafe access.
func (p *Plugin) setConfiguration(configuration *configuration) {
	p.configurationLock.Lock()
	defer p.configurationLock.Unlock()

	if configuration != nil && p.configuration == configuration {
		if reflect.ValueOf(*configuration).NumField() == 0 {
			return
		}

		panic("setConfiguration called with the existing configuration")
	}

	p.configuration = configuration
}

// findWatcherConfigByID finds a watcher configuration by ID in a slice of configs.
func findWatcherConfigByID(configs []watcher.Config, id string) (watcher.Config, bool) {
	for _, cfg := range configs {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return watcher.Config{}, false
}

// unregisterWatcher unregisters a watcher from the registry and logs the result.
func unregisterWatcher(registry *watcher.Registry, api plugin.API, id string, reason string) {
	if err := registry.Unregister(id); err != nil {
		api.LogWarn("Failed to unregister watcher", "id", id, "reason", reason, "error", err.Error())
	} else {
		api.LogInfo("Unregistered watcher", "id", id, "reason", reason)
	}
}

// OnConfigurationChange is invoked when configuration changes may have been made.
func (p *Plugin) OnConfigurationChange() error {
	var newConfig = new(configuration)

	if err := p.API.LoadPluginConfiguration(newConfig); err != nil {
		return errors.Wrap(err, "failed to load plugin configuration")
	}

	if err := newConfig.validate(); err != nil {
		return errors.Wrap(err, "invalid plugin configuration")
	}

	oldConfig := p.getConfiguration()
	toAdd, toUpdate, toRemove := watcher.DiffWatcherConfigs(oldConfig.Watchers, newConfig.Watchers)

	p.setConfiguration(newConfig)

	// Before activation there is nothing to reconcile.
	if p.registry == nil {
		return nil
	}

	if !oldConfig.servicesEqual(newConfig) {
		p.API.LogInfo("Shared services changed, restarting all watchers")
		if err := p.registry.UnregisterAll(); err != nil {
			p.API.LogWarn("Failed to stop watchers", "error", err.Error())
		}
		p.replaceServices(newConfig)
		for _, cfg := range newConfig.Watchers {
			p.createAndStartWatcher(cfg)
		}
		return nil
	}

	for _, id := range toRemove {
		unregisterWatcher(p.registry, p.API, id, "watcher removed from configuration")
		if err := watcher.NewStateStore(p.API, id).ClearAll(); err != nil {
			p.API.LogWarn("Failed to clear watcher state", "id", id, "error", err.Error())
		}
	}

	for _, id := range toUpdate {
		unregisterWatcher(p.registry, p.API, id, "watcher configuration changed")
		if cfg, found := findWatcherConfigByID(newConfig.Watchers, id); found {
			p.createAndStartWatcher(cfg)
		}
	}

	for _, id := range toAdd {
		if cfg, found := findWatcherConfigByID(newConfig.Watchers, id); found {
			p.createAndStartWatcher(cfg)
		}
	}

	return nil
}
