package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/mirror"
)

var (
	// ErrClosed is returned for operations on a session that has ended.
	ErrClosed = errors.New("session has ended")

	// ErrUnknownAlert is returned when an id is not in the replica.
	ErrUnknownAlert = errors.New("alert not found in session")
)

// Options tune a session.
type Options struct {
	// RenotifyReopened makes a session-new alert eligible for another
	// notification after it is observed going from resolved back to active.
	// Baseline alerts are never eligible.
	RenotifyReopened bool

	// Now returns the ingestion time used by the normalizer. Defaults to time.Now.
	Now func() time.Time
}

// Candidate is a session-new, active alert that has not been notified yet.
type Candidate struct {
	Alert alert.Alert
	// Key is the notification key to record once the notification fires.
	Key string
}

// Result describes what one delivery changed.
type Result struct {
	Seq uint64

	// Baseline is true for the delivery that established the baseline.
	Baseline bool

	// Novel lists notification-eligible alerts in delivery order.
	Novel []Candidate

	// Converged lists ids whose local resolve converged to confirmed because
	// the remote document now reads resolved.
	Converged []string
}

// Session is the state of one live subscription: the baseline captured from
// the first delivery, the replica of the latest delivery, the notification
// keys already fired and the local resolve operations.
type Session struct {
	opts Options

	mu         sync.Mutex
	baselined  bool
	baseline   map[string]struct{}
	order      []string
	replica    map[string]alert.Alert
	generation map[string]int
	pending    map[string]*Resolution
	closed     bool

	notified *NotifiedSet
}

// New creates an empty session.
func New(opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Session{
		opts:       opts,
		baseline:   make(map[string]struct{}),
		replica:    make(map[string]alert.Alert),
		generation: make(map[string]int),
		pending:    make(map[string]*Resolution),
		notified:   NewNotifiedSet(),
	}
}

// Notified exposes the session's notification keys.
func (s *Session) Notified() *NotifiedSet {
	return s.notified
}

// Apply folds one delivery into the session and reports the novelty it carries.
func (s *Session) Apply(d *mirror.Delivery) Result {
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	result := Result{Seq: d.Seq}
	if s.closed {
		return result
	}

	previous := s.replica
	s.replica = make(map[string]alert.Alert, len(d.Documents))
	s.order = make([]string, 0, len(d.Documents))
	for _, doc := range d.Documents {
		if _, dup := s.replica[doc.ID]; !dup {
			s.order = append(s.order, doc.ID)
		}
		s.replica[doc.ID] = alert.Normalize(doc.ID, doc.Data, now)
	}

	s.reopen(previous)
	s.converge(&result)

	if !s.baselined {
		for _, doc := range d.Documents {
			s.baseline[doc.ID] = struct{}{}
		}
		s.baselined = true
		result.Baseline = true
		return result
	}

	queued := make(map[string]struct{})
	for _, change := range d.Changes {
		id := change.Doc.ID
		if _, isBaseline := s.baseline[id]; isBaseline {
			continue
		}

		current, ok := s.replica[id]
		if !ok {
			current = alert.Normalize(id, change.Doc.Data, now)
		}
		if !current.Active() {
			continue
		}

		switch change.Kind {
		case mirror.ChangeAdded:
		case mirror.ChangeModified:
			prev, seen := previous[id]
			if !s.opts.RenotifyReopened || !seen || prev.Active() {
				continue
			}
			s.generation[id]++
		default:
			continue
		}

		key := s.keyLocked(id)
		if _, dup := queued[key]; dup || s.notified.Has(key) {
			continue
		}
		queued[key] = struct{}{}
		result.Novel = append(result.Novel, Candidate{Alert: current, Key: key})
	}

	return result
}

// reopen forgets confirmed resolutions of alerts the remote document moved
// from resolved back to active, so they show in Active again. Pending and
// inconsistent resolutions stay.
func (s *Session) reopen(previous map[string]alert.Alert) {
	for id, r := range s.pending {
		if r.State != ResolveConfirmed {
			continue
		}
		prev, seen := previous[id]
		current, ok := s.replica[id]
		if seen && ok && !prev.Active() && current.Active() {
			delete(s.pending, id)
		}
	}
}

// converge confirms local resolutions the remote document already reflects.
func (s *Session) converge(result *Result) {
	for id, r := range s.pending {
		if r.State == ResolveConfirmed {
			continue
		}
		if a, ok := s.replica[id]; ok && a.Status == alert.StatusResolved {
			r.State = ResolveConfirmed
			r.FinishedAt = s.opts.Now()
			result.Converged = append(result.Converged, id)
		}
	}
}

func (s *Session) keyLocked(id string) string {
	if gen := s.generation[id]; gen > 0 {
		return fmt.Sprintf("%s#%d", id, gen)
	}
	return id
}

// IsBaseline reports whether id existed when the session started observing.
func (s *Session) IsBaseline(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.baseline[id]
	return ok
}

// BaselineSize returns the number of pre-existing ids.
func (s *Session) BaselineSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.baseline)
}

// Get returns the current replica entry for id.
func (s *Session) Get(id string) (alert.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.replica[id]
	return a, ok
}

// Replica returns every replica entry in delivery order.
func (s *Session) Replica() []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]alert.Alert, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.replica[id])
	}
	return out
}

// Active returns the operator-visible list: session-new alerts that are not
// resolved remotely or locally. A non-empty phoneQuery keeps only alerts whose
// phone contains it.
func (s *Session) Active(phoneQuery string) []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	phoneQuery = strings.ToLower(strings.TrimSpace(phoneQuery))

	out := make([]alert.Alert, 0)
	for _, id := range s.order {
		if _, isBaseline := s.baseline[id]; isBaseline {
			continue
		}
		if _, resolving := s.pending[id]; resolving {
			continue
		}
		a := s.replica[id]
		if !a.Active() {
			continue
		}
		if phoneQuery != "" && !strings.Contains(strings.ToLower(a.Phone), phoneQuery) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Close ends the session. Later results are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
