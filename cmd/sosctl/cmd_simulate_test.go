package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/store"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher"
)

func TestSimulateOptions_Validate(t *testing.T) {
	valid := simulateOptions{count: 1, centerLat: 17.385, centerLng: 78.4867, spread: 0.05}
	assert.NoError(t, valid.validate())

	tests := []struct {
		name   string
		modify func(*simulateOptions)
	}{
		{"zero count", func(o *simulateOptions) { o.count = 0 }},
		{"negative spread", func(o *simulateOptions) { o.spread = -1 }},
		{"latitude", func(o *simulateOptions) { o.centerLat = 91 }},
		{"longitude", func(o *simulateOptions) { o.centerLng = -181 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.modify(&opts)
			assert.Error(t, opts.validate())
		})
	}
}

func TestSimulateCmd_Defaults(t *testing.T) {
	cmd := newSimulateCmd()

	collection, err := cmd.Flags().GetString("collection")
	assert.NoError(t, err)
	assert.Equal(t, watcher.DefaultSOSCollection, collection)

	spread, err := cmd.Flags().GetFloat64("spread")
	assert.NoError(t, err)
	assert.Equal(t, store.DefaultSpread, spread)
}
