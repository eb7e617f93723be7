package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/mirror"
)

func liveSession(t *testing.T, ids ...string) *Session {
	t.Helper()
	s := New(Options{})
	s.Apply(delivery(1, nil))

	docs := make([]mirror.Document, 0, len(ids))
	changes := make([]mirror.Change, 0, len(ids))
	for _, id := range ids {
		d := doc(id, open("phone-"+id))
		docs = append(docs, d)
		changes = append(changes, added(d))
	}
	s.Apply(delivery(2, docs, changes...))
	return s
}

func TestResolve_OptimisticRemoval(t *testing.T) {
	s := liveSession(t, "A1", "A2")
	require.Equal(t, []string{"A1", "A2"}, activeIDs(s.Active("")))

	r, started, err := s.BeginResolve("A1")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, ResolvePending, r.State)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, []string{"A2"}, activeIDs(s.Active("")), "removed before any response")
}

func TestResolve_Confirm(t *testing.T) {
	s := liveSession(t, "A1")

	_, _, err := s.BeginResolve("A1")
	require.NoError(t, err)
	assert.True(t, s.ConfirmResolve("A1"))

	r, ok := s.Resolution("A1")
	require.True(t, ok)
	assert.Equal(t, ResolveConfirmed, r.State)
	assert.False(t, r.FinishedAt.IsZero())
	assert.Empty(t, s.Active(""))
}

func TestResolve_FailureIsNotRestored(t *testing.T) {
	s := liveSession(t, "A1")

	_, _, err := s.BeginResolve("A1")
	require.NoError(t, err)
	assert.True(t, s.FailResolve("A1", "not found"))

	r, ok := s.Resolution("A1")
	require.True(t, ok)
	assert.Equal(t, ResolveInconsistent, r.State)
	assert.Equal(t, "not found", r.Error)
	assert.Empty(t, s.Active(""), "a failed resolve must not silently restore the alert")

	inconsistent := s.Resolutions(ResolveInconsistent)
	require.Len(t, inconsistent, 1)
	assert.Equal(t, "A1", inconsistent[0].AlertID)

	// A later delivery still showing the alert open keeps it out of the list.
	d := doc("A1", open("phone-A1"))
	s.Apply(delivery(3, []mirror.Document{d}, modified(d)))
	assert.Empty(t, s.Active(""))
}

func TestResolve_Idempotent(t *testing.T) {
	s := liveSession(t, "A1")

	_, started, err := s.BeginResolve("A1")
	require.NoError(t, err)
	require.True(t, started)

	r, started, err := s.BeginResolve("A1")
	require.NoError(t, err)
	assert.False(t, started, "no second request while one is in flight")
	assert.Equal(t, ResolvePending, r.State)

	s.ConfirmResolve("A1")
	r, started, err = s.BeginResolve("A1")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, ResolveConfirmed, r.State)
}

func TestResolve_RetryAfterFailure(t *testing.T) {
	s := liveSession(t, "A1")

	_, _, err := s.BeginResolve("A1")
	require.NoError(t, err)
	s.FailResolve("A1", "timeout")

	r, started, err := s.BeginResolve("A1")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, ResolvePending, r.State)
	assert.Equal(t, 2, r.Attempts)
	assert.Empty(t, r.Error)
}

func TestResolve_AlreadyResolvedRemotely(t *testing.T) {
	s := New(Options{})
	s.Apply(delivery(1, nil))
	d := doc("A1", resolved("100"))
	s.Apply(delivery(2, []mirror.Document{d}, added(d)))

	r, started, err := s.BeginResolve("A1")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, ResolveConfirmed, r.State)
}

func TestResolve_UnknownAlert(t *testing.T) {
	s := liveSession(t)

	_, _, err := s.BeginResolve("missing")
	assert.ErrorIs(t, err, ErrUnknownAlert)
}

func TestResolve_ConvergesFromSnapshot(t *testing.T) {
	s := liveSession(t, "A1")

	_, _, err := s.BeginResolve("A1")
	require.NoError(t, err)
	s.FailResolve("A1", "gateway timeout")

	d := doc("A1", resolved("phone-A1"))
	result := s.Apply(delivery(3, []mirror.Document{d}, modified(d)))
	assert.Equal(t, []string{"A1"}, result.Converged)

	r, _ := s.Resolution("A1")
	assert.Equal(t, ResolveConfirmed, r.State)

	// A late failure cannot undo a converged resolution.
	assert.False(t, s.FailResolve("A1", "late"))
}

func TestResolve_ReopenedRemotelyReturnsToActive(t *testing.T) {
	for _, renotify := range []bool{false, true} {
		s := New(Options{RenotifyReopened: renotify})
		s.Apply(delivery(1, nil))

		d2 := doc("D2", open("200"))
		d2r := doc("D2", resolved("200"))
		markAll(s, s.Apply(delivery(2, []mirror.Document{d2}, added(d2))))

		_, _, err := s.BeginResolve("D2")
		require.NoError(t, err)
		require.True(t, s.ConfirmResolve("D2"))
		markAll(s, s.Apply(delivery(3, []mirror.Document{d2r}, modified(d2r))))
		assert.Empty(t, activeIDs(s.Active("")))

		result := s.Apply(delivery(4, []mirror.Document{d2}, modified(d2)))
		if renotify {
			assert.Equal(t, []string{"D2"}, novelIDs(result))
		} else {
			assert.Empty(t, result.Novel)
		}
		assert.Equal(t, []string{"D2"}, activeIDs(s.Active("")), "renotify=%v", renotify)
		_, ok := s.Resolution("D2")
		assert.False(t, ok)
	}
}

func TestResolve_ConfirmedBeforeSnapshotStaysHidden(t *testing.T) {
	s := liveSession(t, "A1")

	_, _, err := s.BeginResolve("A1")
	require.NoError(t, err)
	require.True(t, s.ConfirmResolve("A1"))

	// The remote document has not caught up yet; this is not a reopen.
	d := doc("A1", open("phone-A1"))
	s.Apply(delivery(3, []mirror.Document{d}, modified(d)))
	assert.Empty(t, activeIDs(s.Active("")))
}

func TestResolve_PendingAndInconsistentStayHidden(t *testing.T) {
	s := liveSession(t, "A1", "A2")
	_, _, err := s.BeginResolve("A1")
	require.NoError(t, err)
	_, _, err = s.BeginResolve("A2")
	require.NoError(t, err)
	require.True(t, s.FailResolve("A2", "rejected"))

	a1, a2 := doc("A1", open("phone-A1")), doc("A2", open("phone-A2"))
	s.Apply(delivery(3, []mirror.Document{a1, a2}, modified(a1), modified(a2)))

	assert.Empty(t, activeIDs(s.Active("")))
	r1, _ := s.Resolution("A1")
	r2, _ := s.Resolution("A2")
	assert.Equal(t, ResolvePending, r1.State)
	assert.Equal(t, ResolveInconsistent, r2.State)
}

func TestResolve_ResultsDiscardedAfterClose(t *testing.T) {
	s := liveSession(t, "A1", "A2")

	_, _, err := s.BeginResolve("A1")
	require.NoError(t, err)
	_, _, err = s.BeginResolve("A2")
	require.NoError(t, err)

	s.Close()

	assert.False(t, s.ConfirmResolve("A1"))
	assert.False(t, s.FailResolve("A2", "boom"))

	r, _ := s.Resolution("A1")
	assert.Equal(t, ResolvePending, r.State)

	_, _, err = s.BeginResolve("A1")
	assert.ErrorIs(t, err, ErrClosed)
}
