package watcher

import (
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func TestClusterLeader(t *testing.T) {
	api := &plugintest.API{}
	api.On("KVSetWithOptions", mock.AnythingOfType("string"), mock.Anything, mock.Anything).Return(true, nil)

	leader, err := NewClusterLeader(api, "w-123", nopLogger{})
	require.NoError(t, err)
	assert.False(t, leader.IsLeader())

	leader.Start()
	assert.True(t, leader.IsLeader(), "an uncontended lock is held when Start returns")
	leader.Start()

	leader.Stop()
	assert.False(t, leader.IsLeader())

	// Stopping twice is a no-op.
	leader.Stop()
}

func TestClusterLeader_Contended(t *testing.T) {
	api := &plugintest.API{}
	api.On("KVSetWithOptions", mock.AnythingOfType("string"), mock.Anything, mock.Anything).Return(false, nil)

	leader, err := NewClusterLeader(api, "w-123", nopLogger{})
	require.NoError(t, err)
	leader.acquireWait = 50 * time.Millisecond

	start := time.Now()
	leader.Start()
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.False(t, leader.IsLeader())

	leader.Stop()
	assert.False(t, leader.IsLeader())
}

func TestNewElector_Default(t *testing.T) {
	e, err := NewElector(nil, "w-123")
	require.NoError(t, err)
	e.Start()
	assert.True(t, e.IsLeader())
	e.Stop()
}
