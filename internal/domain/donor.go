package domain

import (
	"fmt"
	"strings"
	"time"
)

// Availability is owned by the donor and toggled independently of matching.
type Availability string

const (
	Available   Availability = "available"
	Unavailable Availability = "unavailable"
)

// ParseAvailability maps the stored enum (and a few boolean spellings) onto Availability.
func ParseAvailability(raw string) (Availability, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "available", "true", "yes":
		return Available, nil
	case "unavailable", "false", "no", "":
		return Unavailable, nil
	default:
		return "", fmt.Errorf("invalid availability %q", raw)
	}
}

// WholeBloodDeferral is the minimum interval between two whole-blood donations.
const WholeBloodDeferral = 56 * 24 * time.Hour

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Donor is a candidate donor record as read from a snapshot.
type Donor struct {
	ID             string
	Name           string
	BloodType      BloodType
	Location       *Coordinate
	Availability   Availability
	LastDonationAt *time.Time
	NextEligibleAt *time.Time
	TotalDonations int
	UpdatedAt      time.Time
}

// IsAvailable reports whether the donor has flagged themselves available.
func (d Donor) IsAvailable() bool {
	return d.Availability == Available
}

// NextEligibleDate derives the earliest date the donor may donate again.
// Donors with no recorded donation have no deferral.
func NextEligibleDate(lastDonation *time.Time) *time.Time {
	if lastDonation == nil || lastDonation.IsZero() {
		return nil
	}
	next := lastDonation.UTC().Add(WholeBloodDeferral)
	return &next
}

// EligibleAt reports whether the donor is past their deferral window at asOf.
func (d Donor) EligibleAt(asOf time.Time) bool {
	next := d.NextEligibleAt
	if next == nil {
		next = NextEligibleDate(d.LastDonationAt)
	}
	if next == nil {
		return true
	}
	return !asOf.Before(*next)
}
