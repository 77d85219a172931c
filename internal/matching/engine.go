package matching

import (
	"math"
	"sort"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

// Engine matches requests against candidate snapshots. It holds only the
// immutable table, so one Engine may serve concurrent callers.
type Engine struct {
	table *Table
}

// NewEngine returns an Engine over table, or over DefaultTable when nil.
func NewEngine(table *Table) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	return &Engine{table: table}
}

// Table exposes the compatibility table in use.
func (e *Engine) Table() *Table {
	return e.table
}

// CompatibleDonorsFor returns donor types a recipient may receive from.
func (e *Engine) CompatibleDonorsFor(recipient domain.BloodType) (BloodTypeSet, error) {
	return e.table.CompatibleDonorsFor(recipient)
}

// CompatibleRecipientsFor returns recipient types a donor may give to.
func (e *Engine) CompatibleRecipientsFor(donor domain.BloodType) (BloodTypeSet, error) {
	return e.table.CompatibleRecipientsFor(donor)
}

// Result carries ordered candidates and the per-candidate errors for records
// that were excluded rather than matched.
type Result struct {
	Candidates []domain.MatchCandidate
	Excluded   []error
}

// FindMatches returns available, compatible donors within maxDistanceKm of
// the request, nearest first. Donors with a missing location are dropped.
func (e *Engine) FindMatches(req domain.BloodRequest, donors []domain.Donor, maxDistanceKm float64) ([]domain.MatchCandidate, error) {
	res, err := e.MatchDonors(req, donors, maxDistanceKm)
	if err != nil {
		return nil, err
	}
	return res.Candidates, nil
}

// MatchDonors is FindMatches with exclusions reported.
//
// Ordering: distance ascending, then longest rest since last donation (never
// donated first), then donor ID.
func (e *Engine) MatchDonors(req domain.BloodRequest, donors []domain.Donor, maxDistanceKm float64) (Result, error) {
	compatible, err := e.prepare(req, maxDistanceKm)
	if err != nil {
		return Result{}, err
	}

	res := Result{Candidates: []domain.MatchCandidate{}}
	for i := range donors {
		donor := donors[i]
		if !donor.BloodType.Valid() {
			res.Excluded = append(res.Excluded, &CandidateError{
				CandidateID: donor.ID,
				Err:         &domain.InvalidBloodTypeError{Value: string(donor.BloodType)},
			})
			continue
		}
		if !compatible.Contains(donor.BloodType) || !donor.IsAvailable() {
			continue
		}
		if err := checkLocation(donor.ID, donor.Location); err != nil {
			res.Excluded = append(res.Excluded, err)
			continue
		}
		distance := HaversineKm(*req.Location, *donor.Location)
		if distance > maxDistanceKm {
			continue
		}
		res.Candidates = append(res.Candidates, domain.MatchCandidate{
			Kind:       domain.CandidateDonor,
			Donor:      &donor,
			BloodType:  donor.BloodType,
			Compatible: true,
			DistanceKm: distance,
		})
	}

	sort.SliceStable(res.Candidates, func(i, j int) bool {
		return donorLess(res.Candidates[i], res.Candidates[j])
	})
	return res, nil
}

// FindInventoryMatches returns usable, compatible bank inventory within
// maxDistanceKm of the request.
func (e *Engine) FindInventoryMatches(req domain.BloodRequest, lines []domain.InventoryLine, maxDistanceKm float64, asOf time.Time) ([]domain.MatchCandidate, error) {
	res, err := e.MatchInventory(req, lines, maxDistanceKm, asOf)
	if err != nil {
		return nil, err
	}
	return res.Candidates, nil
}

// MatchInventory is FindInventoryMatches with exclusions reported.
//
// Ordering: distance ascending, then more units first, then soonest expiry,
// then bank ID and line ID.
func (e *Engine) MatchInventory(req domain.BloodRequest, lines []domain.InventoryLine, maxDistanceKm float64, asOf time.Time) (Result, error) {
	compatible, err := e.prepare(req, maxDistanceKm)
	if err != nil {
		return Result{}, err
	}

	res := Result{Candidates: []domain.MatchCandidate{}}
	for i := range lines {
		line := lines[i]
		if !line.BloodType.Valid() {
			res.Excluded = append(res.Excluded, &CandidateError{
				CandidateID: line.ID,
				Err:         &domain.InvalidBloodTypeError{Value: string(line.BloodType)},
			})
			continue
		}
		if !compatible.Contains(line.BloodType) || !line.UsableAt(asOf) {
			continue
		}
		if err := checkLocation(line.ID, line.BankLocation); err != nil {
			res.Excluded = append(res.Excluded, err)
			continue
		}
		distance := HaversineKm(*req.Location, *line.BankLocation)
		if distance > maxDistanceKm {
			continue
		}
		res.Candidates = append(res.Candidates, domain.MatchCandidate{
			Kind:       domain.CandidateInventory,
			Inventory:  &line,
			BloodType:  line.BloodType,
			Compatible: true,
			DistanceKm: distance,
		})
	}

	sort.SliceStable(res.Candidates, func(i, j int) bool {
		return inventoryLess(res.Candidates[i], res.Candidates[j])
	})
	return res, nil
}

func (e *Engine) prepare(req domain.BloodRequest, maxDistanceKm float64) (BloodTypeSet, error) {
	if math.IsNaN(maxDistanceKm) || maxDistanceKm < 0 {
		return 0, ErrInvalidRadius
	}
	compatible, err := e.table.CompatibleDonorsFor(req.BloodType)
	if err != nil {
		return 0, err
	}
	if err := checkLocation("request "+req.ID, req.Location); err != nil {
		return 0, err
	}
	return compatible, nil
}

func donorLess(a, b domain.MatchCandidate) bool {
	if a.DistanceKm != b.DistanceKm {
		return a.DistanceKm < b.DistanceKm
	}
	al, bl := a.Donor.LastDonationAt, b.Donor.LastDonationAt
	switch {
	case al == nil && bl != nil:
		return true
	case al != nil && bl == nil:
		return false
	case al != nil && bl != nil && !al.Equal(*bl):
		return al.Before(*bl)
	}
	return a.Donor.ID < b.Donor.ID
}

func inventoryLess(a, b domain.MatchCandidate) bool {
	if a.DistanceKm != b.DistanceKm {
		return a.DistanceKm < b.DistanceKm
	}
	ai, bi := a.Inventory, b.Inventory
	if ai.Units != bi.Units {
		return ai.Units > bi.Units
	}
	switch {
	case ai.ExpiresAt != nil && bi.ExpiresAt == nil:
		return true
	case ai.ExpiresAt == nil && bi.ExpiresAt != nil:
		return false
	case ai.ExpiresAt != nil && bi.ExpiresAt != nil && !ai.ExpiresAt.Equal(*bi.ExpiresAt):
		return ai.ExpiresAt.Before(*bi.ExpiresAt)
	}
	if ai.BankID != bi.BankID {
		return ai.BankID < bi.BankID
	}
	return ai.ID < bi.ID
}
