package domain

import (
	"fmt"
	"strings"
)

// BloodType is one of the eight ABO/Rh groups.
type BloodType string

const (
	APositive  BloodType = "A+"
	ANegative  BloodType = "A-"
	BPositive  BloodType = "B+"
	BNegative  BloodType = "B-"
	ABPositive BloodType = "AB+"
	ABNegative BloodType = "AB-"
	OPositive  BloodType = "O+"
	ONegative  BloodType = "O-"
)

// AllBloodTypes lists the closed set in canonical order.
var AllBloodTypes = []BloodType{
	APositive, ANegative,
	BPositive, BNegative,
	ABPositive, ABNegative,
	OPositive, ONegative,
}

// InvalidBloodTypeError reports a value outside the closed blood type set.
type InvalidBloodTypeError struct {
	Value string
}

func (e *InvalidBloodTypeError) Error() string {
	return fmt.Sprintf("invalid blood type %q", e.Value)
}

// ParseBloodType accepts the canonical spelling with optional surrounding
// whitespace and lower-case letters ("ab+" -> AB+).
func ParseBloodType(raw string) (BloodType, error) {
	candidate := BloodType(strings.ToUpper(strings.TrimSpace(raw)))
	if !candidate.Valid() {
		return "", &InvalidBloodTypeError{Value: raw}
	}
	return candidate, nil
}

// Valid reports whether t belongs to the closed set.
func (t BloodType) Valid() bool {
	return t.index() >= 0
}

// Index returns the canonical position of t, or -1 when t is not valid.
func (t BloodType) Index() int {
	return t.index()
}

func (t BloodType) index() int {
	for i, bt := range AllBloodTypes {
		if bt == t {
			return i
		}
	}
	return -1
}

func (t BloodType) String() string {
	return string(t)
}

// Antigens returns which red-cell antigens the type carries.
func (t BloodType) Antigens() (a, b, rh bool) {
	s := string(t)
	rh = strings.HasSuffix(s, "+")
	group := strings.TrimRight(s, "+-")
	a = strings.Contains(group, "A")
	b = strings.Contains(group, "B")
	return a, b, rh
}
