package session

import (
	"sort"
	"time"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
)

// ResolveState is the local phase of a resolve operation.
type ResolveState string

const (
	// ResolvePending means the alert was removed locally and the authority has
	// not answered yet.
	ResolvePending ResolveState = "pending"

	// ResolveConfirmed means the authority or the remote document confirmed it.
	ResolveConfirmed ResolveState = "confirmed"

	// ResolveInconsistent means the authority rejected the request. The alert
	// stays out of the active list and the local view may disagree with the
	// remote state.
	ResolveInconsistent ResolveState = "inconsistent"
)

// Resolution is the local record of one resolve operation.
type Resolution struct {
	AlertID    string       `json:"alertId"`
	State      ResolveState `json:"state"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt,omitempty"`
	Attempts   int          `json:"attempts"`
	Error      string       `json:"error,omitempty"`
}

// BeginResolve moves id into the pending phase, which removes it from Active
// immediately. started is false when no new request should be sent: a request
// is already in flight or the alert is already resolved.
func (s *Session) BeginResolve(id string) (r Resolution, started bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Resolution{}, false, ErrClosed
	}

	if existing, ok := s.pending[id]; ok {
		if existing.State != ResolveInconsistent {
			return *existing, false, nil
		}
		existing.State = ResolvePending
		existing.StartedAt = s.opts.Now()
		existing.FinishedAt = time.Time{}
		existing.Error = ""
		existing.Attempts++
		return *existing, true, nil
	}

	a, ok := s.replica[id]
	if !ok {
		return Resolution{}, false, ErrUnknownAlert
	}

	now := s.opts.Now()
	if a.Status == alert.StatusResolved {
		confirmed := &Resolution{AlertID: id, State: ResolveConfirmed, StartedAt: now, FinishedAt: now}
		s.pending[id] = confirmed
		return *confirmed, false, nil
	}

	pending := &Resolution{AlertID: id, State: ResolvePending, StartedAt: now, Attempts: 1}
	s.pending[id] = pending
	return *pending, true, nil
}

// ConfirmResolve records a successful authority response. It returns false
// when the session has ended and the result was discarded.
func (s *Session) ConfirmResolve(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	r, ok := s.pending[id]
	if !ok {
		return false
	}
	r.State = ResolveConfirmed
	r.FinishedAt = s.opts.Now()
	r.Error = ""
	return true
}

// FailResolve records a rejected or failed authority response. The alert is
// not restored to the active list. It returns false when the result was
// discarded because the session ended or the resolution already converged.
func (s *Session) FailResolve(id string, cause string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	r, ok := s.pending[id]
	if !ok || r.State != ResolvePending {
		return false
	}
	r.State = ResolveInconsistent
	r.FinishedAt = s.opts.Now()
	r.Error = cause
	return true
}

// Resolution returns the local resolve record for id.
func (s *Session) Resolution(id string) (Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.pending[id]
	if !ok {
		return Resolution{}, false
	}
	return *r, true
}

// Resolutions returns local resolve records in the given state, oldest first.
// An empty state returns all of them.
func (s *Session) Resolutions(state ResolveState) []Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Resolution, 0, len(s.pending))
	for _, r := range s.pending {
		if state != "" && r.State != state {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
