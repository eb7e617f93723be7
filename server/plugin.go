package main

import (
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/mattermost/mattermost/server/public/pluginapi"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/metrics"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/notify"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/poster"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/tone"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher"
	_ "github.com/mattermost/mattermost-plugin-sosconsole/server/watcher/collection" // Register incidents and zones factories
	_ "github.com/mattermost/mattermost-plugin-sosconsole/server/watcher/sos"        // Register sos factory
)

const pluginID = "com.mattermost.plugin-sosconsole"

const (
	defaultBotUsername    = "sos-console"
	defaultBotDisplayName = "SOS Console"
)

// Plugin implements the interface expected by the Mattermost server to communicate between the server and plugin processes.
type Plugin struct {
	plugin.MattermostPlugin

	// client is the Mattermost server API client.
	client *pluginapi.Client

	// configurationLock synchronizes access to the configuration.
	configurationLock sync.RWMutex

	// configuration is the active plugin configuration. Consult getConfiguration and
	// setConfiguration for usage.
	configuration *configuration

	// servicesLock guards services.
	servicesLock sync.RWMutex

	// services are the clients shared by all watchers.
	services *services

	// registry manages all active watcher instances.
	registry *watcher.Registry

	// poster posts new alerts to Mattermost channels.
	poster notify.AlertPoster

	metrics *metrics.Metrics

	// toneWAV is the notification tone served to clients.
	toneWAV []byte
}

// OnActivate is invoked when the plugin is activated. If an error is returned, the plugin will be deactivated.
func (p *Plugin) OnActivate() error {
	p.client = pluginapi.NewClient(p.API, p.Driver)
	p.registry = watcher.NewRegistry()

	if !pluginapi.IsEnterpriseLicensedOrDevelopment(p.API.GetConfig(), p.API.GetLicense()) {
		err := errors.New("this plugin requires an Enterprise license")
		p.API.LogError("Cannot initialize plugin", "err", err)
		return err
	}

	m, err := metrics.New()
	if err != nil {
		return errors.Wrap(err, "failed to register metrics")
	}
	p.metrics = m

	wav, err := tone.WAV(tone.NewAlert)
	if err != nil {
		return errors.Wrap(err, "failed to synthesize notification tone")
	}
	p.toneWAV = wav

	config := p.getConfiguration()

	botUsername := config.BotUsername
	if botUsername == "" {
		botUsername = defaultBotUsername
	}
	botDisplayName := config.BotDisplayName
	if botDisplayName == "" {
		botDisplayName = defaultBotDisplayName
	}

	botID, err := p.API.EnsureBotUser(&model.Bot{
		Username:    botUsername,
		DisplayName: botDisplayName,
		Description: "Bot for posting new SOS alerts to Mattermost channels",
	})
	if err != nil {
		return errors.Wrap(err, "failed to ensure bot user")
	}

	p.API.LogInfo("Bot user initialized", "botID", botID, "username", botUsername)

	p.poster = poster.New(p.API, botID, botDisplayName)

	p.replaceServices(config)

	for _, watcherConfig := range config.Watchers {
		p.createAndStartWatcher(watcherConfig)
	}

	return nil
}

// OnDeactivate is invoked when the plugin is deactivated. Every session ends
// here; nothing about it is persisted.
func (p *Plugin) OnDeactivate() error {
	var firstErr error
	if p.registry != nil {
		if err := p.registry.UnregisterAll(); err != nil {
			p.API.LogError("Failed to unregister all watchers during deactivation", "error", err.Error())
			firstErr = err
		}
	}

	p.servicesLock.Lock()
	svc := p.services
	p.services = nil
	p.servicesLock.Unlock()

	if err := svc.close(); err != nil {
		p.API.LogWarn("Failed to close document store", "error", err.Error())
	}

	return firstErr
}

// createAndStartWatcher creates a watcher instance and registers it.
// If the watcher is enabled, it also starts it.
// Errors are logged and non-fatal for individual watchers.
func (p *Plugin) createAndStartWatcher(config watcher.Config) {
	w, err := watcher.Create(config, p.watcherDeps())
	if err != nil {
		p.API.LogError("Failed to create watcher", "id", config.ID, "name", config.Name, "error", err.Error())
		return
	}

	// Always register, even if disabled, so the status is visible.
	if err := p.registry.Register(w); err != nil {
		p.API.LogError("Failed to register watcher", "id", config.ID, "name", config.Name, "error", err.Error())
		return
	}

	if !config.Enabled {
		p.API.LogInfo("Watcher registered but not started (disabled)", "id", config.ID, "name", config.Name)
		return
	}

	if err := w.Start(); err != nil {
		p.API.LogError("Failed to start watcher", "id", config.ID, "name", config.Name, "error", err.Error())
		return
	}

	p.API.LogInfo("Watcher started", "id", config.ID, "name", config.Name, "type", config.Type)
}

// restartWatcher ends the current session of a watcher and starts a new one.
// The new session captures a fresh baseline.
func (p *Plugin) restartWatcher(id string) error {
	cfg, found := findWatcherConfigByID(p.getConfiguration().Watchers, id)
	if !found {
		return errors.Errorf("watcher with ID %s not found in configuration", id)
	}

	if p.registry.Get(id) != nil {
		unregisterWatcher(p.registry, p.API, id, "restart requested")
	}
	p.createAndStartWatcher(cfg)

	if p.registry.Get(id) == nil {
		return errors.Errorf("watcher %s could not be recreated", id)
	}
	return nil
}

// See https://developers.mattermost.com/extend/plugins/server/reference/
