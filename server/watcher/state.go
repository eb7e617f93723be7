package watcher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattermost/mattermost/server/public/plugin"
)

// StateStore persists watcher health in the Mattermost KV store so it
// survives restarts and is visible from every node. All keys are scoped to
// the watcher ID.
type StateStore struct {
	api       plugin.API
	watcherID string
}

// NewStateStore creates a new state store for a specific watcher
func NewStateStore(api plugin.API, watcherID string) *StateStore {
	return &StateStore{
		api:       api,
		watcherID: watcherID,
	}
}

func (s *StateStore) key(name string) string {
	return fmt.Sprintf("watcher_%s_%s", s.watcherID, name)
}

// SaveLastDelivery stores the time of the most recent delivery
func (s *StateStore) SaveLastDelivery(t time.Time) error {
	return s.saveTime("last_delivery", t)
}

// GetLastDelivery returns the stored delivery time, or zero time
func (s *StateStore) GetLastDelivery() (time.Time, error) {
	return s.getTime("last_delivery")
}

// SaveSessionStart stores when the current session began
func (s *StateStore) SaveSessionStart(t time.Time) error {
	return s.saveTime("session_start", t)
}

// GetSessionStart returns when the current session began, or zero time
func (s *StateStore) GetSessionStart() (time.Time, error) {
	return s.getTime("session_start")
}

// SaveLastError stores the most recent subscription failure. An empty
// message clears it.
func (s *StateStore) SaveLastError(errMsg string) error {
	if err := s.api.KVSet(s.key("last_error"), []byte(errMsg)); err != nil {
		return fmt.Errorf("failed to save last error: %w", err)
	}
	return nil
}

// GetLastError returns the most recent subscription failure
func (s *StateStore) GetLastError() (string, error) {
	data, err := s.api.KVGet(s.key("last_error"))
	if err != nil {
		return "", fmt.Errorf("failed to get last error: %w", err)
	}
	return string(data), nil
}

// ClearAll removes all state for this watcher from the KV store
func (s *StateStore) ClearAll() error {
	for _, name := range []string{"last_delivery", "session_start", "last_error"} {
		if err := s.api.KVDelete(s.key(name)); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", s.key(name), err)
		}
	}
	return nil
}

func (s *StateStore) saveTime(name string, t time.Time) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	if err := s.api.KVSet(s.key(name), data); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

func (s *StateStore) getTime(name string) (time.Time, error) {
	data, err := s.api.KVGet(s.key(name))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get %s: %w", name, err)
	}

	if data == nil {
		return time.Time{}, nil
	}

	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return t, nil
}
