package watcher

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages all active watcher instances.
type Registry struct {
	mu       sync.RWMutex
	watchers map[string]Watcher
}

// NewRegistry creates a new watcher registry.
func NewRegistry() *Registry {
	return &Registry{
		watchers: make(map[string]Watcher),
	}
}

// Register adds a watcher to the registry.
// Returns an error if a watcher with the same ID already exists.
func (r *Registry) Register(w Watcher) error {
	if w == nil {
		return fmt.Errorf("cannot register nil watcher")
	}

	id := w.GetID()
	if id == "" {
		return fmt.Errorf("watcher ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.watchers[id]; exists {
		return fmt.Errorf("watcher with ID %s already registered", id)
	}

	r.watchers[id] = w
	return nil
}

// Unregister removes a watcher from the registry and stops it.
// The watcher is always removed, even if Stop fails.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	w, exists := r.watchers[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("watcher with ID %s not found", id)
	}
	delete(r.watchers, id)
	r.mu.Unlock()

	// Stop blocks until in-flight deliveries finish, so it runs unlocked.
	if err := w.Stop(); err != nil {
		return fmt.Errorf("failed to stop watcher %s: %w", id, err)
	}

	return nil
}

// Get retrieves a watcher by its ID, or nil.
func (r *Registry) Get(id string) Watcher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.watchers[id]
}

// List returns all registered watchers ordered by name.
func (r *Registry) List() []Watcher {
	r.mu.RLock()
	watchers := make([]Watcher, 0, len(r.watchers))
	for _, w := range r.watchers {
		watchers = append(watchers, w)
	}
	r.mu.RUnlock()

	sort.Slice(watchers, func(i, j int) bool {
		return watchers[i].GetName() < watchers[j].GetName()
	})
	return watchers
}

// UnregisterAll unregisters and stops all registered watchers.
// Returns the first error encountered, but continues stopping the rest.
func (r *Registry) UnregisterAll() error {
	r.mu.Lock()
	watchers := make([]Watcher, 0, len(r.watchers))
	for id, w := range r.watchers {
		watchers = append(watchers, w)
		delete(r.watchers, id)
	}
	r.mu.Unlock()

	var firstError error
	for _, w := range watchers {
		if err := w.Stop(); err != nil && firstError == nil {
			firstError = fmt.Errorf("failed to stop watcher %s: %w", w.GetID(), err)
		}
	}

	return firstError
}

// Count returns the number of registered watchers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.watchers)
}
