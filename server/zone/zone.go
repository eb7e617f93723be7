// Package zone normalizes risk zone documents.
package zone

import (
	"context"
	"errors"
	"strings"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/geocode"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/mirror"
)

const (
	DefaultRadiusKm  = 2.0
	DefaultRiskLevel = "HIGH"
	UnknownName      = "Unknown Zone"
)

// Zone is a circular area flagged as risky.
type Zone struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Coordinates *alert.Coordinates `json:"coordinates"`
	RadiusKm    float64            `json:"radiusKm"`
	RiskLevel   string             `json:"riskLevel"`
	Geocoded    bool               `json:"geocoded,omitempty"`
	Raw         map[string]any     `json:"raw,omitempty"`
}

// Logger is the subset of pluginapi.LogService used by the resolver.
type Logger interface {
	Debug(message string, keyValuePairs ...any)
}

// Normalize converts a raw zone document, applying defaults. Coordinates are
// nil when the document carries none.
func Normalize(doc mirror.Document) Zone {
	z := Zone{
		ID:          doc.ID,
		Name:        PlaceName(doc.Data),
		Coordinates: alert.ExtractCoordinates(doc.Data),
		RadiusKm:    DefaultRadiusKm,
		RiskLevel:   DefaultRiskLevel,
		Raw:         doc.Data,
	}

	if r, ok := doc.Data["radius_km"].(float64); ok && r > 0 {
		z.RadiusKm = r
	} else if r, ok := doc.Data["radius_km"].(int64); ok && r > 0 {
		z.RadiusKm = float64(r)
	}
	if level, ok := doc.Data["risk_level"].(string); ok && strings.TrimSpace(level) != "" {
		z.RiskLevel = strings.TrimSpace(level)
	}
	if z.Name == "" {
		z.Name = UnknownName
	}

	return z
}

// PlaceName returns the first non-empty naming field of a zone document.
func PlaceName(data map[string]any) string {
	for _, key := range []string{"name", "area_name", "area_name2"} {
		if s, ok := data[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Resolver fills in missing zone coordinates by geocoding the zone name.
type Resolver struct {
	geocoder geocode.Geocoder
	log      Logger
}

// NewResolver creates a resolver. A nil geocoder leaves coordinates missing.
func NewResolver(g geocode.Geocoder, log Logger) *Resolver {
	return &Resolver{geocoder: g, log: log}
}

// Resolve normalizes every document and geocodes those lacking coordinates.
// Geocoding failures leave the zone without coordinates.
func (r *Resolver) Resolve(ctx context.Context, docs []mirror.Document) []Zone {
	zones := make([]Zone, 0, len(docs))
	for _, doc := range docs {
		z := Normalize(doc)
		if z.Coordinates == nil && r.geocoder != nil {
			if name := lookupName(doc.Data); name != "" {
				r.locate(ctx, &z, name)
			}
		}
		zones = append(zones, z)
	}
	return zones
}

func (r *Resolver) locate(ctx context.Context, z *Zone, name string) {
	p, err := r.geocoder.Locate(ctx, name)
	if err != nil {
		if !errors.Is(err, geocode.ErrNoResults) {
			r.log.Debug("Failed to geocode zone", "zoneId", z.ID, "name", name, "error", err.Error())
		}
		return
	}

	z.Coordinates = &alert.Coordinates{Lat: p.Lat, Lng: p.Lng}
	z.Name = name
	z.Geocoded = true
}

// lookupName prefers the area names over the display name for geocoding.
func lookupName(data map[string]any) string {
	for _, key := range []string{"area_name", "area_name2", "name"} {
		if s, ok := data[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
