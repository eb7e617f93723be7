package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

func newTestGeocoder(t *testing.T, handler http.HandlerFunc) *MapsGeocoder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g, err := New("test-key", maps.WithBaseURL(server.URL))
	require.NoError(t, err)
	return g
}

func TestLocate(t *testing.T) {
	var calls atomic.Int32
	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		assert.Equal(t, "Banjara Hills", r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"formatted_address": "Banjara Hills, Hyderabad, Telangana, India",
				"geometry": {"location": {"lat": 17.4126, "lng": 78.4482}}
			}]
		}`))
	})

	p, err := g.Locate(context.Background(), "Banjara Hills")
	require.NoError(t, err)
	assert.Equal(t, 17.4126, p.Lat)
	assert.Equal(t, 78.4482, p.Lng)
	assert.Contains(t, p.FormattedAddress, "Hyderabad")

	// Second lookup is served from the cache, case-insensitively.
	_, err = g.Locate(context.Background(), "  banjara hills ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLocate_NoResults(t *testing.T) {
	var calls atomic.Int32
	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	})

	_, err := g.Locate(context.Background(), "Nowhere")
	assert.ErrorIs(t, err, ErrNoResults)
	_, err = g.Locate(context.Background(), "Nowhere")
	assert.ErrorIs(t, err, ErrNoResults)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLocate_Empty(t *testing.T) {
	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := g.Locate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestLocate_ServiceErrorIsNotCached(t *testing.T) {
	var calls atomic.Int32
	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "bad key", "results": []}`))
	})

	_, err := g.Locate(context.Background(), "Charminar")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResults)
	_, _ = g.Locate(context.Background(), "Charminar")
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
