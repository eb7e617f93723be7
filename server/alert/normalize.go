package alert

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// Raw field names understood by Normalize.
const (
	FieldStatus    = "status"
	FieldPhone     = "phone"
	FieldUserPhone = "user_phone"
	FieldLat       = "lat"
	FieldLng       = "lng"
	FieldLocation  = "location"
	FieldTimestamp = "timestamp"
	FieldIsTest    = "is_test"
)

// timeLayouts are the calendar formats accepted for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize converts a raw document into an Alert. It never fails: malformed
// fields degrade to their defaults.
func Normalize(id string, raw map[string]any, now time.Time) Alert {
	a := Alert{
		ID:     id,
		Status: ParseStatus(raw[FieldStatus]),
		Phone:  ExtractPhone(raw),
		Raw:    raw,
	}

	a.Coordinates = ExtractCoordinates(raw)
	a.OccurredAt = ExtractTime(raw[FieldTimestamp], now)

	if isTest, ok := raw[FieldIsTest].(bool); ok {
		a.IsTest = isTest
	}

	return a
}

// ExtractPhone returns the primary phone field, then the fallback field, then UnknownPhone.
func ExtractPhone(raw map[string]any) string {
	for _, key := range []string{FieldPhone, FieldUserPhone} {
		if s := stringValue(raw[key]); s != "" {
			return s
		}
	}
	return UnknownPhone
}

// ExtractCoordinates tries the flat lat/lng pair, then location.lat/location.lng.
// The first pair where both values are finite numbers wins.
func ExtractCoordinates(raw map[string]any) *Coordinates {
	if c, ok := coordinatePair(raw[FieldLat], raw[FieldLng]); ok {
		return c
	}

	if loc, ok := raw[FieldLocation].(map[string]any); ok {
		if c, ok := coordinatePair(loc[FieldLat], loc[FieldLng]); ok {
			return c
		}
	}

	return nil
}

func coordinatePair(latRaw, lngRaw any) (*Coordinates, bool) {
	lat, ok := toFloat(latRaw)
	if !ok {
		return nil, false
	}
	lng, ok := toFloat(lngRaw)
	if !ok {
		return nil, false
	}
	return &Coordinates{Lat: lat, Lng: lng}, true
}

// ExtractTime converts a raw timestamp value. It tries a store-native timestamp,
// then a calendar string, then epoch seconds, and returns now when none succeed.
func ExtractTime(v any, now time.Time) (t time.Time) {
	defer func() {
		if recover() != nil {
			t = now
		}
	}()

	if native, ok := nativeTime(v); ok && validTime(native) {
		return native
	}

	if s, ok := v.(string); ok {
		if parsed, ok := parseTimeString(s); ok {
			return parsed
		}
		return now
	}

	if epoch, ok := epochSeconds(v); ok && validTime(epoch) {
		return epoch
	}

	return now
}

type asTimer interface {
	AsTime() time.Time
}

func nativeTime(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		return ts, true
	case *time.Time:
		if ts == nil {
			return time.Time{}, false
		}
		return *ts, true
	case *timestamppb.Timestamp:
		if ts == nil || ts.CheckValid() != nil {
			return time.Time{}, false
		}
		return ts.AsTime(), true
	case asTimer:
		return ts.AsTime(), true
	}
	return time.Time{}, false
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil && validTime(t) {
			return t, true
		}
	}
	return time.Time{}, false
}

func epochSeconds(v any) (time.Time, bool) {
	if m, ok := v.(map[string]any); ok {
		for _, key := range []string{"seconds", "_seconds"} {
			secs, ok := toFloat(m[key])
			if !ok {
				continue
			}
			nanos := 0.0
			for _, nkey := range []string{"nanoseconds", "_nanoseconds", "nanos"} {
				if n, ok := toFloat(m[nkey]); ok {
					nanos = n
					break
				}
			}
			return time.Unix(int64(secs), int64(nanos)).UTC(), true
		}
		return time.Time{}, false
	}

	secs, ok := toFloat(v)
	if !ok {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}

func validTime(t time.Time) bool {
	return !t.IsZero() && t.Unix() > 0
}

// toFloat accepts the numeric encodings seen in raw documents.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}
