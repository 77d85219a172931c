package domain

import (
	"fmt"
	"strings"
	"time"
)

// Urgency orders requests for dispatch. Higher values are more urgent.
type Urgency int

const (
	UrgencyLow Urgency = iota + 1
	UrgencyMedium
	UrgencyHigh
	UrgencyCritical
)

var urgencyNames = map[Urgency]string{
	UrgencyLow:      "low",
	UrgencyMedium:   "medium",
	UrgencyHigh:     "high",
	UrgencyCritical: "critical",
}

func (u Urgency) String() string {
	if name, ok := urgencyNames[u]; ok {
		return name
	}
	return fmt.Sprintf("urgency(%d)", int(u))
}

// Valid reports whether u is one of the four defined levels.
func (u Urgency) Valid() bool {
	return u >= UrgencyLow && u <= UrgencyCritical
}

// ParseUrgency accepts the stored enum plus the "urgent" and "emergency"
// labels used by the receiver forms.
func ParseUrgency(raw string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return UrgencyLow, nil
	case "medium", "":
		return UrgencyMedium, nil
	case "high", "urgent":
		return UrgencyHigh, nil
	case "critical", "emergency":
		return UrgencyCritical, nil
	default:
		return 0, fmt.Errorf("invalid urgency %q", raw)
	}
}

// RequestStatus tracks a BloodRequest through its lifecycle.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusMatched   RequestStatus = "matched"
	StatusFulfilled RequestStatus = "fulfilled"
	StatusCancelled RequestStatus = "cancelled"
)

// ParseRequestStatus validates a stored status value.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	status := RequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusMatched, StatusFulfilled, StatusCancelled:
		return status, nil
	case "":
		return StatusPending, nil
	default:
		return "", fmt.Errorf("invalid request status %q", raw)
	}
}

// Terminal reports whether no further transitions are allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusFulfilled || s == StatusCancelled
}

// CanTransitionTo reports whether s -> next is a legal lifecycle step.
// A matched request may be matched again when the donor pool is re-queried.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusMatched:
		return s == StatusPending || s == StatusMatched
	case StatusFulfilled:
		return s == StatusMatched
	case StatusCancelled:
		return true
	default:
		return false
	}
}

// BloodRequest is a recipient's request for units of a blood type.
type BloodRequest struct {
	ID           string
	RequesterID  string
	BloodType    BloodType
	Units        int
	Urgency      Urgency
	Location     *Coordinate
	HospitalName string
	Status       RequestStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    *time.Time
}

// ExpiredAt reports whether the request has passed its expiry at asOf.
func (r BloodRequest) ExpiredAt(asOf time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.IsZero() && !asOf.Before(*r.ExpiresAt)
}

// Open reports whether the request still awaits fulfilment.
func (r BloodRequest) Open() bool {
	return r.Status == StatusPending || r.Status == StatusMatched
}
