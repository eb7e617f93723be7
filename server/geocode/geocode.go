// Package geocode resolves place names to coordinates through the Google Maps
// Geocoding API.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"googlemaps.github.io/maps"
)

// ErrNoResults is returned when the address matched nothing.
var ErrNoResults = errors.New("no geocoding results")

// Point is a geocoded location.
type Point struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
}

// Geocoder resolves an address to a point.
type Geocoder interface {
	Locate(ctx context.Context, address string) (Point, error)
}

// MapsGeocoder is a caching Geocoder backed by the Maps client. Both hits and
// misses are cached for the life of the geocoder.
type MapsGeocoder struct {
	client *maps.Client

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	point Point
	err   error
}

// New creates a geocoder. Extra options are passed to maps.NewClient.
func New(apiKey string, opts ...maps.ClientOption) (*MapsGeocoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("maps API key is required")
	}

	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}

	return &MapsGeocoder{
		client: client,
		cache:  make(map[string]cached),
	}, nil
}

// Locate forward geocodes address and returns the first result.
func (g *MapsGeocoder) Locate(ctx context.Context, address string) (Point, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return Point{}, ErrNoResults
	}

	g.mu.Lock()
	if c, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return c.point, c.err
	}
	g.mu.Unlock()

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		// Transport errors are not cached so a later refresh can retry.
		return Point{}, fmt.Errorf("failed to geocode %q: %w", address, err)
	}

	var c cached
	if len(results) == 0 {
		c.err = ErrNoResults
	} else {
		loc := results[0].Geometry.Location
		c.point = Point{Lat: loc.Lat, Lng: loc.Lng, FormattedAddress: results[0].FormattedAddress}
	}

	g.mu.Lock()
	g.cache[key] = c
	g.mu.Unlock()

	return c.point, c.err
}
