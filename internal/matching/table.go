package matching

import (
	"fmt"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

// Table is a validated donor -> recipient compatibility relation with both
// directions precomputed. It is immutable after construction.
type Table struct {
	recipients [8]BloodTypeSet // indexed by donor
	donors     [8]BloodTypeSet // indexed by recipient
}

// DefaultDefinition is the red-cell transfusion relation keyed by donor.
func DefaultDefinition() map[domain.BloodType][]domain.BloodType {
	return map[domain.BloodType][]domain.BloodType{
		domain.ONegative:  {domain.APositive, domain.ANegative, domain.BPositive, domain.BNegative, domain.ABPositive, domain.ABNegative, domain.OPositive, domain.ONegative},
		domain.OPositive:  {domain.APositive, domain.BPositive, domain.ABPositive, domain.OPositive},
		domain.ANegative:  {domain.APositive, domain.ANegative, domain.ABPositive, domain.ABNegative},
		domain.APositive:  {domain.APositive, domain.ABPositive},
		domain.BNegative:  {domain.BPositive, domain.BNegative, domain.ABPositive, domain.ABNegative},
		domain.BPositive:  {domain.BPositive, domain.ABPositive},
		domain.ABNegative: {domain.ABPositive, domain.ABNegative},
		domain.ABPositive: {domain.ABPositive},
	}
}

var defaultTable = mustTable(DefaultDefinition())

// DefaultTable returns the standard table. It is validated once at package init.
func DefaultTable() *Table {
	return defaultTable
}

func mustTable(def map[domain.BloodType][]domain.BloodType) *Table {
	t, err := NewTable(def)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable validates def and builds a Table. The definition must list every
// blood type as a donor, be reflexive, and never allow a transfusion that
// introduces an antigen the recipient lacks. A stricter relation than the
// default is accepted.
func NewTable(def map[domain.BloodType][]domain.BloodType) (*Table, error) {
	var t Table
	for donor, recipients := range def {
		if !donor.Valid() {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown donor type %q", donor)}
		}
		for _, recipient := range recipients {
			if !recipient.Valid() {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("donor %s lists unknown recipient %q", donor, recipient)}
			}
			if !antigenSafe(donor, recipient) {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("%s -> %s contradicts ABO/Rh rules", donor, recipient)}
			}
			t.recipients[donor.Index()] = t.recipients[donor.Index()].With(recipient)
			t.donors[recipient.Index()] = t.donors[recipient.Index()].With(donor)
		}
	}

	for _, bt := range domain.AllBloodTypes {
		if _, ok := def[bt]; !ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("donor type %s missing", bt)}
		}
		if !t.recipients[bt.Index()].Contains(bt) {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("%s is not compatible with itself", bt)}
		}
	}
	return &t, nil
}

// antigenSafe reports whether every antigen on donor cells is also present on
// recipient cells.
func antigenSafe(donor, recipient domain.BloodType) bool {
	da, db, drh := donor.Antigens()
	ra, rb, rrh := recipient.Antigens()
	return (!da || ra) && (!db || rb) && (!drh || rrh)
}

// CompatibleDonorsFor returns donor types whose blood a recipient may receive.
func (t *Table) CompatibleDonorsFor(recipient domain.BloodType) (BloodTypeSet, error) {
	if !recipient.Valid() {
		return 0, &domain.InvalidBloodTypeError{Value: string(recipient)}
	}
	return t.donors[recipient.Index()], nil
}

// CompatibleRecipientsFor returns recipient types a donor may give to.
func (t *Table) CompatibleRecipientsFor(donor domain.BloodType) (BloodTypeSet, error) {
	if !donor.Valid() {
		return 0, &domain.InvalidBloodTypeError{Value: string(donor)}
	}
	return t.recipients[donor.Index()], nil
}

// Compatible reports whether donor blood may be given to recipient. Invalid
// types are never compatible.
func (t *Table) Compatible(donor, recipient domain.BloodType) bool {
	if !donor.Valid() || !recipient.Valid() {
		return false
	}
	return t.recipients[donor.Index()].Contains(recipient)
}

// Definition returns the relation keyed by donor, suitable for round-tripping.
func (t *Table) Definition() map[domain.BloodType][]domain.BloodType {
	def := make(map[domain.BloodType][]domain.BloodType, len(domain.AllBloodTypes))
	for _, bt := range domain.AllBloodTypes {
		def[bt] = t.recipients[bt.Index()].Types()
	}
	return def
}
