package domain

import "time"

// BloodBank is a facility holding inventory.
type BloodBank struct {
	ID            string
	Name          string
	LicenseNumber string
	Location      *Coordinate
	Inventory     []InventoryLine
	UpdatedAt     time.Time
}

// InventoryLine is the stock of one blood type at one bank. Bank fields are
// denormalized so a line can be matched without loading its bank.
type InventoryLine struct {
	ID           string
	BankID       string
	BankName     string
	BankLocation *Coordinate
	BloodType    BloodType
	Units        int
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// UsableAt reports whether the line has stock that has not expired at asOf.
func (l InventoryLine) UsableAt(asOf time.Time) bool {
	if l.Units <= 0 {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.IsZero() || asOf.Before(*l.ExpiresAt)
}
