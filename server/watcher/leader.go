package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattermost/mattermost/server/public/pluginapi/cluster"
)

// Elector decides which node emits notifications for a watcher. Every node
// mirrors the collection; only the leader plays tones and posts.
type Elector interface {
	Start()
	Stop()
	IsLeader() bool
}

// DefaultAcquireWait is how long Start waits for an uncontended lock.
const DefaultAcquireWait = 2 * time.Second

// ClusterLeader holds a cluster-wide mutex for as long as it runs.
type ClusterLeader struct {
	mutex *cluster.Mutex
	log   Logger

	// acquireWait bounds how long Start blocks for the first acquisition.
	acquireWait time.Duration

	leading atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClusterLeader creates an elector keyed by the watcher ID.
func NewClusterLeader(api cluster.MutexPluginAPI, watcherID string, log Logger) (*ClusterLeader, error) {
	m, err := cluster.NewMutex(api, "watcher_leader_"+watcherID)
	if err != nil {
		return nil, err
	}
	return &ClusterLeader{mutex: m, log: log, acquireWait: DefaultAcquireWait}, nil
}

// Start begins contending for leadership. It returns once the lock is held
// or after acquireWait, leaving the contention running in the background.
func (l *ClusterLeader) Start() {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	done := make(chan struct{})
	acquired := make(chan struct{})
	l.done = done
	l.mu.Unlock()

	go l.run(ctx, acquired, done)

	select {
	case <-acquired:
	case <-done:
	case <-time.After(l.acquireWait):
		l.log.Debug("Watcher leadership held elsewhere, contending in background")
	}
}

func (l *ClusterLeader) run(ctx context.Context, acquired, done chan struct{}) {
	defer close(done)

	if err := l.mutex.LockWithContext(ctx); err != nil {
		return
	}

	l.leading.Store(true)
	close(acquired)
	l.log.Debug("Acquired watcher leadership")

	<-ctx.Done()

	l.leading.Store(false)
	l.mutex.Unlock()
}

// Stop gives up leadership and waits for the lock to be released.
func (l *ClusterLeader) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsLeader reports whether this node currently holds the lock.
func (l *ClusterLeader) IsLeader() bool {
	return l.leading.Load()
}

// alwaysLeader is used when no elector is configured.
type alwaysLeader struct{}

func (alwaysLeader) Start()         {}
func (alwaysLeader) Stop()          {}
func (alwaysLeader) IsLeader() bool { return true }

// NewElector returns the elector from newElector, or one that always leads
// when newElector is nil.
func NewElector(newElector func(watcherID string) (Elector, error), watcherID string) (Elector, error) {
	if newElector == nil {
		return alwaysLeader{}, nil
	}
	return newElector(watcherID)
}
