// Package collection implements watchers that mirror a plain document list:
// recent incidents and risk zones.
package collection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/mirror"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/notify"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/zone"
)

// geocodeTimeout bounds zone geocoding for one delivery.
const geocodeTimeout = 15 * time.Second

func init() {
	factory := func(config watcher.Config, deps watcher.Deps) (watcher.Watcher, error) {
		return New(config, deps)
	}
	watcher.RegisterFactory(watcher.TypeIncidents, factory)
	watcher.RegisterFactory(watcher.TypeZones, factory)
}

// Incident is a recent incident document.
type Incident struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Watcher mirrors one collection and keeps its latest contents.
type Watcher struct {
	config   watcher.Config
	deps     watcher.Deps
	resolver *zone.Resolver

	mu        sync.RWMutex
	mirror    *mirror.Mirror
	sinks     *notify.WebSocketSinks
	incidents []Incident
	zones     []zone.Zone
	lastError string
}

// New creates a collection watcher for the incidents or zones type.
func New(config watcher.Config, deps watcher.Deps) (*Watcher, error) {
	if config.Type != watcher.TypeIncidents && config.Type != watcher.TypeZones {
		return nil, fmt.Errorf("invalid watcher type: %s (expected: incidents or zones)", config.Type)
	}
	if config.ID == "" {
		return nil, fmt.Errorf("watcher ID is required")
	}
	if deps.API == nil || deps.Source == nil {
		return nil, fmt.Errorf("plugin API and document source are required")
	}

	w := &Watcher{
		config: config,
		deps:   deps,
	}
	if config.Type == watcher.TypeZones {
		w.resolver = zone.NewResolver(deps.Geocoder, deps.Log)
	}
	return w, nil
}

// Start subscribes to the collection.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mirror != nil {
		return fmt.Errorf("watcher already running")
	}
	if !w.config.Enabled {
		return fmt.Errorf("watcher is disabled")
	}

	w.sinks = notify.NewWebSocketSinks(w.deps.API, w.config.ID, w.config.ChannelID, "", nil, nil, w.deps.Log)
	w.incidents, w.zones, w.lastError = nil, nil, ""

	m := mirror.New(
		w.deps.Source,
		mirror.Query{Collection: w.config.EffectiveCollection(), Limit: w.config.EffectiveLimit()},
		w.handle,
		w.onStatus,
		w.deps.Log,
	)
	if err := m.Start(); err != nil {
		return fmt.Errorf("failed to start mirror: %w", err)
	}
	w.mirror = m

	w.deps.Log.Info("Collection watcher started", "id", w.config.ID, "type", w.config.Type, "collection", w.config.EffectiveCollection())
	return nil
}

// Stop releases the subscription.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	m := w.mirror
	w.mirror = nil
	w.mu.Unlock()

	if m == nil {
		return nil
	}

	m.Stop()
	w.deps.Metrics.Forget(w.config.ID)
	w.deps.Log.Info("Collection watcher stopped", "id", w.config.ID, "type", w.config.Type)
	return nil
}

func (w *Watcher) GetID() string   { return w.config.ID }
func (w *Watcher) GetName() string { return w.config.Name }
func (w *Watcher) GetType() string { return w.config.Type }

// GetStatus returns the current operational status of the watcher
func (w *Watcher) GetStatus() watcher.Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := watcher.Status{
		Connectivity: string(mirror.Stopped),
		LastError:    w.lastError,
		Leader:       true,
	}
	if w.mirror == nil {
		return status
	}

	state, _ := w.mirror.Connectivity()
	deliveries, last := w.mirror.Stats()
	status.Enabled = true
	status.Connectivity = string(state)
	status.Deliveries = deliveries
	status.LastDelivery = last
	if w.config.Type == watcher.TypeZones {
		status.Documents = len(w.zones)
	} else {
		status.Documents = len(w.incidents)
	}
	return status
}

// Documents returns the latest incidents or zones.
func (w *Watcher) Documents() any {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.config.Type == watcher.TypeZones {
		out := make([]zone.Zone, len(w.zones))
		copy(out, w.zones)
		return out
	}
	out := make([]Incident, len(w.incidents))
	copy(out, w.incidents)
	return out
}

func (w *Watcher) handle(d *mirror.Delivery) {
	w.deps.Metrics.RecordDelivery(w.config.ID)

	var count int
	if w.config.Type == watcher.TypeZones {
		ctx, cancel := context.WithTimeout(context.Background(), geocodeTimeout)
		zones := w.resolver.Resolve(ctx, d.Documents)
		cancel()

		w.mu.Lock()
		w.zones = zones
		w.mu.Unlock()
		count = len(zones)
	} else {
		incidents := make([]Incident, 0, len(d.Documents))
		for _, doc := range d.Documents {
			incidents = append(incidents, Incident{ID: doc.ID, Data: doc.Data})
		}

		w.mu.Lock()
		w.incidents = incidents
		w.mu.Unlock()
		count = len(incidents)
	}

	w.publish(notify.EventDocuments, map[string]any{
		"type":  w.config.Type,
		"count": count,
		"seq":   int64(d.Seq),
	})
}

func (w *Watcher) onStatus(state mirror.Connectivity, err error) {
	w.deps.Metrics.SetOnline(w.config.ID, state == mirror.Online)

	payload := map[string]any{"state": string(state)}
	if err != nil {
		payload["error"] = err.Error()

		w.mu.Lock()
		w.lastError = err.Error()
		w.mu.Unlock()
	}
	w.publish(notify.EventConnectivity, payload)
}

// sinks is assigned before the mirror starts and only read afterwards.
func (w *Watcher) publish(event string, payload map[string]any) {
	w.sinks.Publish(event, payload)
}
