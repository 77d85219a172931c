package repository

import (
	"fmt"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// formatTimePtr returns nil for absent times so the property is removed
// rather than stored as an empty string.
func formatTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func toInt(val any) int {
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func toTimePtr(val any) *time.Time {
	switch v := val.(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		t := v.UTC()
		return &t
	case string:
		if v == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, v); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

func toTime(val any) time.Time {
	if t := toTimePtr(val); t != nil {
		return *t
	}
	return time.Time{}
}

// toCoordinate returns nil unless both latitude and longitude are numbers.
func toCoordinate(lat, lng any) *domain.Coordinate {
	la, okLat := toFloat64(lat)
	lo, okLng := toFloat64(lng)
	if !okLat || !okLng {
		return nil
	}
	return &domain.Coordinate{Latitude: la, Longitude: lo}
}

func coordinateProps(props map[string]any, loc *domain.Coordinate) {
	if loc == nil {
		props["latitude"] = nil
		props["longitude"] = nil
		return
	}
	props["latitude"] = loc.Latitude
	props["longitude"] = loc.Longitude
}
