package session

import (
	"sync"
	"time"
)

// NotifiedSet tracks notification keys that have already fired in a session.
// Entries are never removed for the life of the session.
type NotifiedSet struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewNotifiedSet creates an empty set.
func NewNotifiedSet() *NotifiedSet {
	return &NotifiedSet{
		seen: make(map[string]time.Time),
	}
}

// Record atomically checks whether key is new and marks it as seen if so.
// Returns true if this call recorded the key, false if it was already present.
func (n *NotifiedSet) Record(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.seen[key]; exists {
		return false
	}

	n.seen[key] = time.Now()
	return true
}

// Has reports whether key has been recorded.
func (n *NotifiedSet) Has(key string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	_, exists := n.seen[key]
	return exists
}

// Len returns the number of recorded keys.
func (n *NotifiedSet) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.seen)
}
