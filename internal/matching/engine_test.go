package matching

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

var origin = domain.Coordinate{Latitude: 12.9716, Longitude: 77.5946}

// kmNorth returns a point distKm due north of origin.
func kmNorth(distKm float64) *domain.Coordinate {
	return &domain.Coordinate{
		Latitude:  origin.Latitude + distKm/(earthRadiusKm*math.Pi/180),
		Longitude: origin.Longitude,
	}
}

func donor(id string, bt domain.BloodType, distKm float64) domain.Donor {
	return domain.Donor{
		ID:           id,
		BloodType:    bt,
		Location:     kmNorth(distKm),
		Availability: domain.Available,
	}
}

func request(bt domain.BloodType) domain.BloodRequest {
	loc := origin
	return domain.BloodRequest{
		ID:        "REQ-1",
		BloodType: bt,
		Units:     1,
		Urgency:   domain.UrgencyHigh,
		Location:  &loc,
		Status:    domain.StatusPending,
	}
}

func candidateIDs(cands []domain.MatchCandidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.CandidateID()
	}
	return ids
}

func TestHaversineKm(t *testing.T) {
	london := domain.Coordinate{Latitude: 51.5074, Longitude: -0.1278}
	paris := domain.Coordinate{Latitude: 48.8566, Longitude: 2.3522}
	assert.InDelta(t, 343.5, HaversineKm(london, paris), 1.0)
	assert.Equal(t, 0.0, HaversineKm(paris, paris))
	assert.InDelta(t, 5.0, HaversineKm(origin, *kmNorth(5)), 1e-6)
}

func TestFindMatches_IncompatibleTypeExcluded(t *testing.T) {
	engine := NewEngine(nil)
	donors := []domain.Donor{
		donor("X", domain.ONegative, 1),
		donor("Y", domain.APositive, 2),
	}

	got, err := engine.FindMatches(request(domain.ANegative), donors, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, candidateIDs(got))
	assert.True(t, got[0].Compatible)
	assert.InDelta(t, 1.0, got[0].DistanceKm, 1e-6)
}

func TestFindMatches_UniversalRecipientOrderedByDistance(t *testing.T) {
	engine := NewEngine(nil)
	var donors []domain.Donor
	// Insert in reverse distance order so sorting is exercised.
	for i := len(domain.AllBloodTypes) - 1; i >= 0; i-- {
		bt := domain.AllBloodTypes[i]
		donors = append(donors, donor("D-"+bt.String(), bt, float64(i+1)))
	}

	got, err := engine.FindMatches(request(domain.ABPositive), donors, 50)
	require.NoError(t, err)
	require.Len(t, got, 8)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].DistanceKm, got[i].DistanceKm)
	}
	assert.Equal(t, "D-A+", got[0].CandidateID())
	assert.Equal(t, "D-O-", got[7].CandidateID())
}

func TestFindMatches_FiltersAvailabilityAndDistance(t *testing.T) {
	engine := NewEngine(nil)
	away := donor("AWAY", domain.ONegative, 1)
	away.Availability = domain.Unavailable
	donors := []domain.Donor{
		away,
		donor("FAR", domain.ONegative, 25),
		donor("EDGE", domain.ONegative, 19.5),
		donor("NEAR", domain.OPositive, 3),
	}

	got, err := engine.FindMatches(request(domain.OPositive), donors, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"NEAR", "EDGE"}, candidateIDs(got))
	for _, c := range got {
		assert.True(t, c.Donor.IsAvailable())
		assert.LessOrEqual(t, c.DistanceKm, 20.0)
	}
}

func TestFindMatches_TieBreaks(t *testing.T) {
	engine := NewEngine(nil)
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	recent := donor("A-recent", domain.ONegative, 4)
	recent.LastDonationAt = &newer
	rested := donor("B-rested", domain.ONegative, 4)
	rested.LastDonationAt = &older
	never := donor("C-never", domain.ONegative, 4)
	sameAsRested := donor("A-rested", domain.ONegative, 4)
	sameAsRested.LastDonationAt = &older

	got, err := engine.FindMatches(request(domain.ONegative), []domain.Donor{recent, rested, never, sameAsRested}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"C-never", "A-rested", "B-rested", "A-recent"}, candidateIDs(got))
}

func TestFindMatches_Idempotent(t *testing.T) {
	engine := NewEngine(nil)
	donors := []domain.Donor{
		donor("1", domain.ONegative, 3),
		donor("2", domain.BNegative, 3),
		donor("3", domain.BPositive, 1),
		donor("4", domain.ABNegative, 7),
	}
	snapshot := append([]domain.Donor(nil), donors...)

	first, err := engine.FindMatches(request(domain.ABPositive), donors, 10)
	require.NoError(t, err)
	second, err := engine.FindMatches(request(domain.ABPositive), donors, 10)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated match differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(snapshot, donors); diff != "" {
		t.Fatalf("input mutated (-before +after):\n%s", diff)
	}
}

func TestFindMatches_MissingLocationExcluded(t *testing.T) {
	engine := NewEngine(nil)
	lost := donor("LOST", domain.ONegative, 0)
	lost.Location = nil
	broken := donor("BROKEN", domain.ONegative, 0)
	broken.Location = &domain.Coordinate{Latitude: 123, Longitude: 0}
	weird := donor("WEIRD", "X+", 1)

	res, err := engine.MatchDonors(request(domain.ABPositive), []domain.Donor{lost, donor("OK", domain.APositive, 2), broken, weird}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, candidateIDs(res.Candidates))
	require.Len(t, res.Excluded, 3)

	var missing *MissingLocationError
	require.True(t, errors.As(res.Excluded[0], &missing))
	assert.Equal(t, "LOST", missing.ID)
	assert.False(t, missing.Invalid)
	require.True(t, errors.As(res.Excluded[1], &missing))
	assert.True(t, missing.Invalid)
	assert.Equal(t, "missing_location", ExclusionReason(res.Excluded[0]))
	assert.Equal(t, "invalid_blood_type", ExclusionReason(res.Excluded[2]))
}

func TestFindMatches_EmptyIsNotAnError(t *testing.T) {
	got, err := NewEngine(nil).FindMatches(request(domain.ONegative), []domain.Donor{donor("A", domain.APositive, 1)}, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindMatches_BoundaryErrors(t *testing.T) {
	engine := NewEngine(nil)

	_, err := engine.FindMatches(request("Z-"), nil, 10)
	var invalid *domain.InvalidBloodTypeError
	assert.True(t, errors.As(err, &invalid))

	noLoc := request(domain.APositive)
	noLoc.Location = nil
	_, err = engine.FindMatches(noLoc, nil, 10)
	var missing *MissingLocationError
	assert.True(t, errors.As(err, &missing))

	_, err = engine.FindMatches(request(domain.APositive), nil, -1)
	assert.ErrorIs(t, err, ErrInvalidRadius)
	_, err = engine.FindMatches(request(domain.APositive), nil, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidRadius)
}

func TestFindMatches_ConcurrentCallers(t *testing.T) {
	engine := NewEngine(nil)
	donors := []domain.Donor{
		donor("1", domain.ONegative, 2),
		donor("2", domain.OPositive, 1),
	}
	want, err := engine.FindMatches(request(domain.OPositive), donors, 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := engine.FindMatches(request(domain.OPositive), donors, 10)
			assert.NoError(t, err)
			assert.Equal(t, candidateIDs(want), candidateIDs(got))
		}()
	}
	wg.Wait()
}

func TestFindInventoryMatches(t *testing.T) {
	engine := NewEngine(nil)
	asOf := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	soon := asOf.Add(48 * time.Hour)
	later := asOf.Add(240 * time.Hour)
	past := asOf.Add(-time.Hour)

	lines := []domain.InventoryLine{
		{ID: "L1", BankID: "B1", BloodType: domain.ONegative, Units: 4, ExpiresAt: &later, BankLocation: kmNorth(2)},
		{ID: "L2", BankID: "B2", BloodType: domain.ONegative, Units: 4, ExpiresAt: &soon, BankLocation: kmNorth(2)},
		{ID: "L3", BankID: "B3", BloodType: domain.ANegative, Units: 9, BankLocation: kmNorth(2)},
		{ID: "L4", BankID: "B4", BloodType: domain.ONegative, Units: 0, BankLocation: kmNorth(1)},
		{ID: "L5", BankID: "B5", BloodType: domain.ONegative, Units: 3, ExpiresAt: &past, BankLocation: kmNorth(1)},
		{ID: "L6", BankID: "B6", BloodType: domain.APositive, Units: 10, BankLocation: kmNorth(1)},
		{ID: "L7", BankID: "B7", BloodType: domain.ONegative, Units: 1, BankLocation: kmNorth(30)},
		{ID: "L8", BankID: "B8", BloodType: domain.ONegative, Units: 1},
		{ID: "L9", BankID: "B9", BloodType: domain.ANegative, Units: 1, BankLocation: kmNorth(0.5)},
	}

	res, err := engine.MatchInventory(request(domain.ANegative), lines, 20, asOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"L9", "L3", "L2", "L1"}, candidateIDs(res.Candidates))
	require.Len(t, res.Excluded, 1)
	for _, c := range res.Candidates {
		assert.Equal(t, domain.CandidateInventory, c.Kind)
		assert.NotNil(t, c.Inventory)
	}
}

func TestRankUrgency(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }
	requests := []domain.BloodRequest{
		{ID: "req1", Urgency: domain.UrgencyMedium, CreatedAt: at(10)},
		{ID: "req2", Urgency: domain.UrgencyCritical, CreatedAt: at(5)},
		{ID: "req3", Urgency: domain.UrgencyCritical, CreatedAt: at(1)},
	}

	ranked := RankUrgency(requests)
	ids := []string{ranked[0].ID, ranked[1].ID, ranked[2].ID}
	assert.Equal(t, []string{"req3", "req2", "req1"}, ids)
	assert.Equal(t, "req1", requests[0].ID, "input order must be preserved")
}

func TestRankUrgency_StableOnFullTies(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	requests := []domain.BloodRequest{
		{ID: "a", Urgency: domain.UrgencyLow, CreatedAt: ts},
		{ID: "b", Urgency: domain.UrgencyHigh, CreatedAt: ts},
		{ID: "c", Urgency: domain.UrgencyLow, CreatedAt: ts},
		{ID: "d", Urgency: domain.UrgencyHigh, CreatedAt: ts},
	}
	ranked := RankUrgency(requests)
	var ids []string
	for _, r := range ranked {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
	assert.Empty(t, RankUrgency(nil))
}
