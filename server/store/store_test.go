package store

import (
	"context"
	"encoding/base64"
	"errors"
	"math/rand/v2"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/coordinator"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/mirror"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

func TestDecodeCredentials(t *testing.T) {
	raw := `{"type":"service_account","project_id":"sos"}`

	t.Run("raw json", func(t *testing.T) {
		got, err := DecodeCredentials("  " + raw + "\n")
		require.NoError(t, err)
		assert.Equal(t, raw, string(got))
	})

	t.Run("base64", func(t *testing.T) {
		got, err := DecodeCredentials(base64.StdEncoding.EncodeToString([]byte(raw)))
		require.NoError(t, err)
		assert.Equal(t, raw, string(got))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeCredentials("   ")
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeCredentials("not base64 !!")
		assert.Error(t, err)
	})
}

func TestChangeKind(t *testing.T) {
	tests := []struct {
		in   firestore.DocumentChangeKind
		want mirror.ChangeKind
	}{
		{firestore.DocumentAdded, mirror.ChangeAdded},
		{firestore.DocumentModified, mirror.ChangeModified},
		{firestore.DocumentRemoved, mirror.ChangeRemoved},
	}
	for _, tt := range tests {
		got, ok := changeKind(tt.in)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got)
	}

	_, ok := changeKind(firestore.DocumentChangeKind(42))
	assert.False(t, ok)
}

func TestPlainValues_GeoPoint(t *testing.T) {
	data := plainValues(map[string]any{
		"phone":    "100",
		"location": &latlng.LatLng{Latitude: 17.4, Longitude: 78.5},
		"nested":   map[string]any{"point": &latlng.LatLng{Latitude: 1, Longitude: 2}},
		"list":     []any{&latlng.LatLng{Latitude: 3, Longitude: 4}, "x"},
	})

	assert.Equal(t, map[string]any{"lat": 17.4, "lng": 78.5}, data["location"])
	assert.Equal(t, map[string]any{"point": map[string]any{"lat": 1.0, "lng": 2.0}}, data["nested"])
	assert.Equal(t, []any{map[string]any{"lat": 3.0, "lng": 4.0}, "x"}, data["list"])

	a := alert.Normalize("D1", data, time.Now())
	require.NotNil(t, a.Coordinates)
	assert.Equal(t, alert.Coordinates{Lat: 17.4, Lng: 78.5}, *a.Coordinates)

	assert.Nil(t, plainValues(nil))
}

func TestMutationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want coordinator.Kind
	}{
		{"not found", status.Error(codes.NotFound, "no document"), coordinator.KindNotFound},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), coordinator.KindTimeout},
		{"context deadline", context.DeadlineExceeded, coordinator.KindTimeout},
		{"permission", status.Error(codes.PermissionDenied, "rules"), coordinator.KindRejected},
		{"unavailable", status.Error(codes.Unavailable, "down"), coordinator.KindTransport},
		{"plain", errors.New("boom"), coordinator.KindTransport},
		{"already resolved", coordinator.ErrAlreadyResolved, coordinator.KindRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mErr := mutationError(coordinator.OpAcknowledge, "A1", tt.err)
			assert.Equal(t, tt.want, mErr.Kind)
			assert.Equal(t, "A1", mErr.AlertID)
			assert.ErrorIs(t, mErr, tt.err)
		})
	}
}

func TestSimulatedAlert(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 100; i++ {
		sim := NewSimulatedAlert(r, DefaultCenter, DefaultSpread)
		assert.Regexp(t, `^TEST-\d{4}$`, sim.Phone)
		assert.InDelta(t, DefaultCenter[0], sim.Lat, DefaultSpread)
		assert.InDelta(t, DefaultCenter[1], sim.Lng, DefaultSpread)
		_, err := uuid.Parse(sim.TestRun)
		assert.NoError(t, err)
	}

	fields := NewSimulatedAlert(r, DefaultCenter, DefaultSpread).Fields()
	assert.Equal(t, "OPEN", fields["status"])
	assert.Equal(t, true, fields["is_test"])
	assert.Equal(t, firestore.ServerTimestamp, fields["timestamp"])

	// The synthetic document normalizes to an open test alert with coordinates.
	delete(fields, "timestamp")
	a := alert.Normalize("T1", fields, time.Now())
	assert.Equal(t, alert.StatusOpen, a.Status)
	assert.True(t, a.IsTest)
	assert.NotNil(t, a.Coordinates)
}

// TestStore_Emulator runs against a Firestore emulator when one is configured.
func TestStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "sos-test")
	require.NoError(t, err)
	s := New(client, nopLogger{})
	defer s.Close()

	collection := "emergency_logs_" + uuid.NewString()
	alerts := s.Alerts(collection)

	existing, err := alerts.InsertTestAlert(ctx, NewSimulatedAlert(nil, DefaultCenter, DefaultSpread))
	require.NoError(t, err)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := s.Subscribe(subCtx, mirror.Query{Collection: collection})
	require.NoError(t, err)
	defer stream.Stop()

	first, err := stream.Next()
	require.NoError(t, err)
	require.Len(t, first.Documents, 1)
	assert.Equal(t, existing, first.Documents[0].ID)

	require.NoError(t, alerts.Acknowledge(ctx, existing, "officer.jane", time.Now()))
	next, err := stream.Next()
	require.NoError(t, err)
	require.Len(t, next.Changes, 1)
	assert.Equal(t, mirror.ChangeModified, next.Changes[0].Kind)
	assert.Equal(t, "dispatched", next.Changes[0].Doc.Data["status"])

	err = alerts.Acknowledge(ctx, "missing", "officer.jane", time.Now())
	var mErr *coordinator.MutationError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, coordinator.KindNotFound, mErr.Kind)

	_, err = client.Collection(collection).Doc(existing).Update(ctx, []firestore.Update{{Path: "status", Value: "resolved"}})
	require.NoError(t, err)
	err = alerts.Acknowledge(ctx, existing, "officer.jane", time.Now())
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, coordinator.KindRejected, mErr.Kind)
	assert.ErrorIs(t, err, coordinator.ErrAlreadyResolved)

	snap, err := client.Collection(collection).Doc(existing).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "resolved", snap.Data()["status"])
}
