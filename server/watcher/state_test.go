package watcher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStateStore_LastDelivery(t *testing.T) {
	t.Run("save and retrieve", func(t *testing.T) {
		api := &plugintest.API{}
		store := NewStateStore(api, "w-123")

		at := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
		expected, _ := json.Marshal(at)

		api.On("KVSet", "watcher_w-123_last_delivery", expected).Return(nil)
		require.NoError(t, store.SaveLastDelivery(at))

		api.On("KVGet", "watcher_w-123_last_delivery").Return(expected, nil)
		got, err := store.GetLastDelivery()
		require.NoError(t, err)
		assert.Equal(t, at, got)
		api.AssertExpectations(t)
	})

	t.Run("none stored", func(t *testing.T) {
		api := &plugintest.API{}
		store := NewStateStore(api, "w-123")

		api.On("KVGet", "watcher_w-123_session_start").Return(nil, nil)
		got, err := store.GetSessionStart()
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("corrupted data", func(t *testing.T) {
		api := &plugintest.API{}
		store := NewStateStore(api, "w-123")

		api.On("KVGet", "watcher_w-123_last_delivery").Return([]byte("{bad"), nil)
		_, err := store.GetLastDelivery()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal")
	})

	t.Run("kv failure", func(t *testing.T) {
		api := &plugintest.API{}
		store := NewStateStore(api, "w-123")

		api.On("KVSet", "watcher_w-123_session_start", mock.Anything).Return(model.NewAppError("KVSet", "kv.error", nil, "down", 500))
		err := store.SaveSessionStart(time.Now())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save session_start")
	})
}

func TestStateStore_LastError(t *testing.T) {
	api := &plugintest.API{}
	store := NewStateStore(api, "w-123")

	api.On("KVSet", "watcher_w-123_last_error", []byte("permission denied")).Return(nil)
	require.NoError(t, store.SaveLastError("permission denied"))

	api.On("KVGet", "watcher_w-123_last_error").Return([]byte("permission denied"), nil)
	msg, err := store.GetLastError()
	require.NoError(t, err)
	assert.Equal(t, "permission denied", msg)
	api.AssertExpectations(t)
}

func TestStateStore_ClearAll(t *testing.T) {
	api := &plugintest.API{}
	store := NewStateStore(api, "w-123")

	api.On("KVDelete", "watcher_w-123_last_delivery").Return(nil)
	api.On("KVDelete", "watcher_w-123_session_start").Return(nil)
	api.On("KVDelete", "watcher_w-123_last_error").Return(nil)

	require.NoError(t, store.ClearAll())
	api.AssertExpectations(t)
}
