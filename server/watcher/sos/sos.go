// Package sos implements the live alert watcher: a mirrored alert collection,
// the session that decides what is new, the notification dispatcher and the
// mutation coordinator.
package sos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/coordinator"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/mirror"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/notify"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/session"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/store"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher"
)

var (
	// ErrNoStore is returned for writes when no document store is configured.
	ErrNoStore = errors.New("no document store configured")

	// ErrNoResolver is returned when no resolve endpoint is configured.
	ErrNoResolver = errors.New("no resolve endpoint configured")
)

func init() {
	watcher.RegisterFactory(watcher.TypeSOS, func(config watcher.Config, deps watcher.Deps) (watcher.Watcher, error) {
		return New(config, deps)
	})
}

// run holds everything that lives for exactly one session.
type run struct {
	session    *session.Session
	mirror     *mirror.Mirror
	dispatcher *notify.Dispatcher
	coord      *coordinator.Coordinator
	sinks      *notify.WebSocketSinks
	elector    watcher.Elector
}

// Watcher implements watcher.Watcher and watcher.AlertSession.
type Watcher struct {
	config watcher.Config
	deps   watcher.Deps
	state  *watcher.StateStore

	mu      sync.RWMutex
	current *run

	errMu     sync.Mutex
	lastError string
}

// New creates an sos watcher. Nothing is subscribed until Start.
func New(config watcher.Config, deps watcher.Deps) (*Watcher, error) {
	if config.Type != watcher.TypeSOS {
		return nil, fmt.Errorf("invalid watcher type: %s (expected: %s)", config.Type, watcher.TypeSOS)
	}
	if config.ID == "" {
		return nil, fmt.Errorf("watcher ID is required")
	}
	if config.ChannelID == "" {
		return nil, fmt.Errorf("channel ID is required")
	}
	if deps.API == nil || deps.Source == nil {
		return nil, fmt.Errorf("plugin API and document source are required")
	}

	return &Watcher{
		config: config,
		deps:   deps,
		state:  watcher.NewStateStore(deps.API, config.ID),
	}, nil
}

// Start opens a new session: an empty baseline, an empty notified set and a
// fresh subscription.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != nil {
		return fmt.Errorf("watcher already running")
	}
	if !w.config.Enabled {
		return fmt.Errorf("watcher is disabled")
	}

	elector, err := watcher.NewElector(w.deps.Electors, w.config.ID)
	if err != nil {
		return fmt.Errorf("failed to create elector: %w", err)
	}

	r := &run{
		session: session.New(session.Options{RenotifyReopened: w.config.RenotifyReopened}),
		elector: elector,
	}
	r.sinks = notify.NewWebSocketSinks(w.deps.API, w.config.ID, w.config.ChannelID, w.deps.ToneURL, w.deps.Poster, r.session.Get, w.deps.Log)
	r.dispatcher = notify.NewDispatcher(w.config.ID, r.sinks.Sinks(), elector, w.deps.Log, w.deps.Metrics)
	r.coord = coordinator.New(r.session, w.writer(), w.deps.Resolver, w.deps.Log, coordinator.Options{
		Timeout:  w.deps.Timeout,
		Metrics:  w.deps.Metrics,
		OnResult: func(o coordinator.Outcome) { w.onResult(r, o) },
	})
	r.mirror = mirror.New(
		w.deps.Source,
		mirror.Query{Collection: w.config.EffectiveCollection(), Limit: w.config.EffectiveLimit()},
		func(d *mirror.Delivery) { w.handle(r, d) },
		func(state mirror.Connectivity, err error) { w.onStatus(r, state, err) },
		w.deps.Log,
	)

	w.setLastError("")
	elector.Start()
	if err := r.mirror.Start(); err != nil {
		elector.Stop()
		return fmt.Errorf("failed to start mirror: %w", err)
	}

	w.current = r
	if err := w.state.SaveSessionStart(time.Now()); err != nil {
		w.deps.Log.Warn("Failed to save session start", "id", w.config.ID, "error", err.Error())
	}

	w.deps.Log.Info("SOS watcher started", "id", w.config.ID, "name", w.config.Name, "collection", w.config.EffectiveCollection())
	return nil
}

// Stop ends the session. Pending resolves are abandoned and their results
// discarded.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	r := w.current
	w.current = nil
	w.mu.Unlock()

	if r == nil {
		return nil
	}

	r.session.Close()
	r.mirror.Stop()
	r.coord.Close()
	r.elector.Stop()
	w.deps.Metrics.Forget(w.config.ID)

	w.deps.Log.Info("SOS watcher stopped", "id", w.config.ID, "name", w.config.Name)
	return nil
}

// GetID returns the unique identifier for this watcher
func (w *Watcher) GetID() string {
	return w.config.ID
}

// GetName returns the display name for this watcher
func (w *Watcher) GetName() string {
	return w.config.Name
}

// GetType returns the watcher type
func (w *Watcher) GetType() string {
	return w.config.Type
}

// GetStatus returns the current operational status of the watcher
func (w *Watcher) GetStatus() watcher.Status {
	w.mu.RLock()
	r := w.current
	w.mu.RUnlock()

	w.errMu.Lock()
	lastError := w.lastError
	w.errMu.Unlock()

	status := watcher.Status{
		Connectivity: string(mirror.Stopped),
		LastError:    lastError,
	}

	if r != nil {
		state, _ := r.mirror.Connectivity()
		deliveries, last := r.mirror.Stats()

		status.Enabled = true
		status.Connectivity = string(state)
		status.Leader = r.elector.IsLeader()
		status.Deliveries = deliveries
		status.LastDelivery = last
		status.Documents = len(r.session.Replica())
		status.Baseline = r.session.BaselineSize()
		status.Active = len(r.session.Active(""))
	}

	if status.LastDelivery.IsZero() {
		if last, err := w.state.GetLastDelivery(); err != nil {
			w.deps.Log.Warn("Failed to get last delivery time", "id", w.config.ID, "error", err.Error())
		} else {
			status.LastDelivery = last
		}
	}
	if status.LastError == "" {
		if msg, err := w.state.GetLastError(); err != nil {
			w.deps.Log.Warn("Failed to get last error", "id", w.config.ID, "error", err.Error())
		} else {
			status.LastError = msg
		}
	}

	return status
}

func (w *Watcher) running() (*run, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.current == nil {
		return nil, session.ErrClosed
	}
	return w.current, nil
}

// Alerts lists alerts of the current session.
func (w *Watcher) Alerts(view watcher.View, phoneQuery string) ([]watcher.AlertEntry, error) {
	r, err := w.running()
	if err != nil {
		return nil, err
	}
	return listAlerts(r.session, view, phoneQuery), nil
}

// Acknowledge marks an alert dispatched by identity.
func (w *Watcher) Acknowledge(ctx context.Context, alertID, identity string) error {
	r, err := w.running()
	if err != nil {
		return err
	}
	return r.coord.Acknowledge(ctx, alertID, identity)
}

// Resolve removes an alert from the active list and asks the authority to
// resolve it. The outcome arrives as a websocket event.
func (w *Watcher) Resolve(alertID string) (session.Resolution, error) {
	r, err := w.running()
	if err != nil {
		return session.Resolution{}, err
	}
	if w.deps.Resolver == nil {
		return session.Resolution{}, ErrNoResolver
	}

	res, err := r.coord.Resolve(alertID)
	if err != nil {
		return res, err
	}
	w.publishAlertsChanged(r, 0)
	return res, nil
}

// Simulate writes a synthetic test alert to the watched collection.
func (w *Watcher) Simulate(ctx context.Context) (string, error) {
	if w.deps.Alerts == nil {
		return "", ErrNoStore
	}

	sim := store.NewSimulatedAlert(nil, store.DefaultCenter, store.DefaultSpread)
	id, err := w.deps.Alerts(w.config.EffectiveCollection()).InsertTestAlert(ctx, sim)
	if err != nil {
		return "", err
	}

	w.deps.Log.Info("Inserted simulated alert", "id", w.config.ID, "alertId", id, "phone", sim.Phone)
	return id, nil
}

func (w *Watcher) writer() coordinator.AlertWriter {
	if w.deps.Alerts == nil {
		return noStore{}
	}
	return w.deps.Alerts(w.config.EffectiveCollection())
}

type noStore struct{}

func (noStore) Acknowledge(context.Context, string, string, time.Time) error {
	return ErrNoStore
}
