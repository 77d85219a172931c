package service

import (
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

// LocationInput is an optional WGS84 point supplied by callers.
type LocationInput struct {
	Latitude  float64
	Longitude float64
}

// DonorInput is the inbound payload for registering or refreshing a donor.
type DonorInput struct {
	ID             string
	Name           string
	BloodType      string
	Location       *LocationInput
	Availability   string
	LastDonationAt *time.Time
	TotalDonations int
}

// InventoryInput describes one blood type held by a bank.
type InventoryInput struct {
	ID        string
	BloodType string
	Units     int
	ExpiresAt *time.Time
}

// BloodBankInput is the inbound payload for a bank and its stock.
type BloodBankInput struct {
	ID            string
	Name          string
	LicenseNumber string
	Location      *LocationInput
	Inventory     []InventoryInput
}

// RequestInput is the inbound payload for a new blood request.
type RequestInput struct {
	ID           string
	RequesterID  string
	BloodType    string
	Units        int
	Urgency      string
	Location     *LocationInput
	HospitalName string
	ExpiresAt    *time.Time
}

// MatchParams tunes a single match run. A nil MaxDistanceKm uses the
// configured default radius; a zero Limit reserves as many donors as the
// request needs units.
type MatchParams struct {
	MaxDistanceKm *float64
	Limit         int
}

// Exclusion names a candidate that was skipped because its record is bad.
type Exclusion struct {
	CandidateID string
	Reason      string
	Detail      string
}

// MatchOutcome is the result of matching one request.
type MatchOutcome struct {
	Request   domain.BloodRequest
	RadiusKm  float64
	Donors    []domain.MatchCandidate
	Inventory []domain.MatchCandidate
	// Allocated holds the units taken from each entry of Inventory.
	Allocated []int
	Excluded  []Exclusion
	// Contended counts compatible donors skipped because another request
	// already holds them.
	Contended int
}

// Matched reports whether any donor or inventory was found.
func (o MatchOutcome) Matched() bool {
	return len(o.Donors) > 0 || len(o.Inventory) > 0
}
