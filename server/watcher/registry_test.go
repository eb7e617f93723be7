package watcher

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWatcher is a minimal Watcher for registry and factory tests.
type mockWatcher struct {
	id      string
	name    string
	typ     string
	started bool
	stopped bool
	mu      sync.Mutex

	stopErr  error
	startErr error
}

func newMockWatcher(id, name, typ string) *mockWatcher {
	return &mockWatcher{id: id, name: name, typ: typ}
}

func (m *mockWatcher) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return m.startErr
}

func (m *mockWatcher) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return m.stopErr
}

func (m *mockWatcher) GetID() string   { return m.id }
func (m *mockWatcher) GetName() string { return m.name }
func (m *mockWatcher) GetType() string { return m.typ }

func (m *mockWatcher) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Enabled: m.started && !m.stopped}
}

func (m *mockWatcher) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()
	w := newMockWatcher("w1", "Main Console", TypeSOS)

	require.NoError(t, registry.Register(w))
	assert.Equal(t, 1, registry.Count())
	assert.Equal(t, w, registry.Get("w1"))
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot register nil watcher")

	err = registry.Register(newMockWatcher("", "No ID", TypeSOS))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watcher ID cannot be empty")

	assert.Equal(t, 0, registry.Count())
}

func TestRegistry_RegisterDuplicateID(t *testing.T) {
	registry := NewRegistry()
	first := newMockWatcher("w1", "First", TypeSOS)

	require.NoError(t, registry.Register(first))

	err := registry.Register(newMockWatcher("w1", "Second", TypeZones))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, first, registry.Get("w1"))
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()
	w := newMockWatcher("w1", "Main Console", TypeSOS)
	require.NoError(t, registry.Register(w))

	require.NoError(t, registry.Unregister("w1"))
	assert.Equal(t, 0, registry.Count())
	assert.True(t, w.isStopped())
	assert.Nil(t, registry.Get("w1"))

	err := registry.Unregister("w1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistry_UnregisterStopError(t *testing.T) {
	registry := NewRegistry()
	w := newMockWatcher("w1", "Main Console", TypeSOS)
	w.stopErr = fmt.Errorf("stop failed")
	require.NoError(t, registry.Register(w))

	err := registry.Unregister("w1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stop watcher")
	assert.Contains(t, err.Error(), "stop failed")

	// Removed even though Stop failed
	assert.Equal(t, 0, registry.Count())
}

func TestRegistry_ListSortedByName(t *testing.T) {
	registry := NewRegistry()
	assert.Empty(t, registry.List())

	require.NoError(t, registry.Register(newMockWatcher("w3", "Zones", TypeZones)))
	require.NoError(t, registry.Register(newMockWatcher("w1", "Alerts", TypeSOS)))
	require.NoError(t, registry.Register(newMockWatcher("w2", "Incidents", TypeIncidents)))

	var names []string
	for _, w := range registry.List() {
		names = append(names, w.GetName())
	}
	assert.Equal(t, []string{"Alerts", "Incidents", "Zones"}, names)
}

func TestRegistry_UnregisterAll(t *testing.T) {
	registry := NewRegistry()

	w1 := newMockWatcher("w1", "One", TypeSOS)
	w2 := newMockWatcher("w2", "Two", TypeSOS)
	w2.stopErr = fmt.Errorf("w2 stop failed")
	w3 := newMockWatcher("w3", "Three", TypeSOS)

	require.NoError(t, registry.Register(w1))
	require.NoError(t, registry.Register(w2))
	require.NoError(t, registry.Register(w3))

	err := registry.UnregisterAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "w2 stop failed")

	assert.Equal(t, 0, registry.Count())
	assert.True(t, w1.isStopped())
	assert.True(t, w3.isStopped())
}
