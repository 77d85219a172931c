package matching

import (
	"errors"
	"fmt"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

// ErrInvalidRadius is returned when the search radius is negative or NaN.
var ErrInvalidRadius = errors.New("max distance must be a non-negative number of kilometres")

// ConfigurationError reports a compatibility table that fails its self-check.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "compatibility table: " + e.Reason
}

// MissingLocationError marks a candidate excluded because it has no usable
// coordinate. The request origin is checked with the same error.
type MissingLocationError struct {
	ID      string
	Invalid bool
}

func (e *MissingLocationError) Error() string {
	if e.Invalid {
		return fmt.Sprintf("%s: coordinate out of range", e.ID)
	}
	return fmt.Sprintf("%s: location missing", e.ID)
}

// CandidateError wraps the reason a single candidate was excluded.
type CandidateError struct {
	CandidateID string
	Err         error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("candidate %s: %v", e.CandidateID, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}

// ExclusionReason labels why a candidate was dropped, for logs and metrics.
func ExclusionReason(err error) string {
	var (
		missing   *MissingLocationError
		bloodType *domain.InvalidBloodTypeError
	)
	switch {
	case errors.As(err, &missing):
		return "missing_location"
	case errors.As(err, &bloodType):
		return "invalid_blood_type"
	default:
		return "unknown"
	}
}
