package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger is the subset of pluginapi.LogService used by the mirror.
type Logger interface {
	Debug(message string, keyValuePairs ...any)
	Info(message string, keyValuePairs ...any)
	Warn(message string, keyValuePairs ...any)
	Error(message string, keyValuePairs ...any)
}

// Handler processes one delivery. It runs on the mirror goroutine, so the next
// delivery is not read until it returns.
type Handler func(d *Delivery)

// StatusFunc is notified whenever connectivity changes.
type StatusFunc func(state Connectivity, err error)

// Mirror keeps a long-lived subscription to one collection and feeds every
// delivery, strictly in order, to its handler.
type Mirror struct {
	source   Source
	query    Query
	handler  Handler
	onStatus StatusFunc
	log      Logger

	mu           sync.RWMutex
	state        Connectivity
	lastErr      error
	deliveries   uint64
	lastDelivery time.Time
	stream       Stream
	cancel       context.CancelFunc
	done         chan struct{}
}

// New creates a mirror. onStatus may be nil.
func New(source Source, query Query, handler Handler, onStatus StatusFunc, log Logger) *Mirror {
	return &Mirror{
		source:   source,
		query:    query,
		handler:  handler,
		onStatus: onStatus,
		log:      log,
		state:    Stopped,
	}
}

// Start subscribes in the background. A mirror can be started once.
func (m *Mirror) Start() error {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return fmt.Errorf("mirror for %s already started", m.query.Collection)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state = Connecting
	m.mu.Unlock()

	m.notify(Connecting, nil)

	go m.run(ctx)
	return nil
}

// Stop cancels the subscription and waits for the delivery goroutine to exit.
func (m *Mirror) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	stream := m.stream
	done := m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	if stream != nil {
		stream.Stop()
	}
	<-done
}

// Connectivity returns the current state and the terminal error, if any.
func (m *Mirror) Connectivity() (Connectivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.lastErr
}

// Stats returns the number of deliveries processed and when the last one arrived.
func (m *Mirror) Stats() (uint64, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveries, m.lastDelivery
}

func (m *Mirror) run(ctx context.Context) {
	defer close(m.done)

	stream, err := m.source.Subscribe(ctx, m.query)
	if err != nil {
		m.finish(ctx, err)
		return
	}
	defer stream.Stop()

	m.mu.Lock()
	m.stream = stream
	m.mu.Unlock()

	var seq uint64
	for {
		d, err := stream.Next()
		if err != nil {
			m.finish(ctx, err)
			return
		}
		if ctx.Err() != nil {
			m.finish(ctx, ctx.Err())
			return
		}

		seq++
		d.Seq = seq

		m.mu.Lock()
		wasOnline := m.state == Online
		m.state = Online
		m.deliveries = seq
		m.lastDelivery = time.Now()
		m.mu.Unlock()

		if !wasOnline {
			m.notify(Online, nil)
		}

		m.log.Debug("Delivery received",
			"collection", m.query.Collection,
			"seq", seq,
			"documents", len(d.Documents),
			"changes", len(d.Changes))

		m.handler(d)
	}
}

// finish records why the delivery loop ended. Cancellation is a clean stop;
// anything else leaves the mirror offline.
func (m *Mirror) finish(ctx context.Context, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		m.mu.Lock()
		m.state = Stopped
		m.mu.Unlock()
		m.log.Info("Subscription stopped", "collection", m.query.Collection)
		return
	}

	connErr := &ConnectivityError{Collection: m.query.Collection, Err: err}

	m.mu.Lock()
	m.state = Offline
	m.lastErr = connErr
	m.mu.Unlock()

	m.log.Error("Subscription failed", "collection", m.query.Collection, "error", err.Error())
	m.notify(Offline, connErr)
}

func (m *Mirror) notify(state Connectivity, err error) {
	if m.onStatus != nil {
		m.onStatus(state, err)
	}
}
