package domain

import (
	"fmt"
	"strings"
	"time"
)

// CandidateKind distinguishes donor candidates from bank inventory.
type CandidateKind string

const (
	CandidateDonor     CandidateKind = "donor"
	CandidateInventory CandidateKind = "inventory"
)

// MatchCandidate pairs a donor or inventory line with its computed fit for a
// request. It is derived per query and never persisted as-is.
type MatchCandidate struct {
	Kind       CandidateKind
	Donor      *Donor
	Inventory  *InventoryLine
	BloodType  BloodType
	Compatible bool
	DistanceKm float64
}

// CandidateID returns the donor ID or the inventory line ID.
func (c MatchCandidate) CandidateID() string {
	switch {
	case c.Donor != nil:
		return c.Donor.ID
	case c.Inventory != nil:
		return c.Inventory.ID
	default:
		return ""
	}
}

// MatchResponse is a donor's answer to being matched. The zero value means
// the donor has not answered yet.
type MatchResponse string

const (
	ResponseAccepted MatchResponse = "accepted"
	ResponseDeclined MatchResponse = "declined"
)

// ParseMatchResponse accepts "accept"/"accepted" and "decline"/"declined".
func ParseMatchResponse(raw string) (MatchResponse, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accept", "accepted":
		return ResponseAccepted, nil
	case "decline", "declined":
		return ResponseDeclined, nil
	default:
		return "", fmt.Errorf("invalid match response %q", raw)
	}
}

// MatchRecord is a persisted match between a request and a candidate.
type MatchRecord struct {
	RequestID   string
	CandidateID string
	Kind        CandidateKind
	Rank        int
	DistanceKm  float64
	Units       int
	MatchedAt   time.Time
	Response    MatchResponse
	RespondedAt *time.Time
}
