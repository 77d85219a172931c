package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// sanitizeString collapses whitespace and trims the result.
func sanitizeString(value string) string {
	value = whitespaceRegex.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// normalizeID trims identifiers; IDs are otherwise opaque.
func normalizeID(value string) string {
	return strings.TrimSpace(value)
}

func normalizeLocation(field string, loc *LocationInput) (*domain.Coordinate, error) {
	if loc == nil {
		return nil, nil
	}
	c := domain.Coordinate{Latitude: loc.Latitude, Longitude: loc.Longitude}
	if !c.Valid() {
		return nil, validationErrorf("%s: coordinate (%g, %g) out of range", field, loc.Latitude, loc.Longitude)
	}
	return &c, nil
}

// normalizeAvailability treats an empty value as available: a donor who
// registers is opting in.
func normalizeAvailability(raw string) (domain.Availability, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.Available, nil
	}
	a, err := domain.ParseAvailability(raw)
	if err != nil {
		return "", &ValidationError{Reason: err.Error()}
	}
	return a, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

// ValidationError reports a malformed inbound payload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
