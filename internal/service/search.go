package service

import (
	"context"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

// searchRequestID names the synthetic request a search ranks against in logs
// and exclusion reports.
const searchRequestID = "search"

// SearchParams describes a lookup around a point. A nil RadiusKm uses the
// configured default radius; a zero Limit returns every candidate.
type SearchParams struct {
	BloodType string
	Location  *LocationInput
	RadiusKm  *float64
	Limit     int
}

// SearchResult lists the candidates found by a search, best first.
type SearchResult struct {
	BloodType  domain.BloodType
	RadiusKm   float64
	Candidates []domain.MatchCandidate
	Excluded   []Exclusion
}

// SearchDonors ranks available donors who can give to the blood type within
// the radius, the same way a match would. Nothing is reserved or recorded.
func (s *MatchingService) SearchDonors(ctx context.Context, params SearchParams) (SearchResult, error) {
	target, result, err := s.prepareSearch(params)
	if err != nil {
		return SearchResult{}, err
	}
	compatible, err := s.engine.CompatibleDonorsFor(target.BloodType)
	if err != nil {
		return SearchResult{}, err
	}
	donors, err := s.candidates.FetchDonors(ctx, compatible.Types(), true)
	if err != nil {
		return SearchResult{}, err
	}
	res, err := s.engine.MatchDonors(target, donors, result.RadiusKm)
	if err != nil {
		return SearchResult{}, err
	}
	candidates := res.Candidates
	if s.cfg.EnforceEligibility {
		candidates = filterEligible(candidates, s.now())
	}
	result.Candidates = truncate(candidates, params.Limit)
	result.Excluded = s.reportExclusions(searchRequestID, res.Excluded)
	return result, nil
}

// SearchInventory ranks usable bank inventory that can serve the blood type
// within the radius.
func (s *MatchingService) SearchInventory(ctx context.Context, params SearchParams) (SearchResult, error) {
	target, result, err := s.prepareSearch(params)
	if err != nil {
		return SearchResult{}, err
	}
	compatible, err := s.engine.CompatibleDonorsFor(target.BloodType)
	if err != nil {
		return SearchResult{}, err
	}
	lines, err := s.candidates.FetchInventory(ctx, compatible.Types())
	if err != nil {
		return SearchResult{}, err
	}
	res, err := s.engine.MatchInventory(target, lines, result.RadiusKm, s.now())
	if err != nil {
		return SearchResult{}, err
	}
	result.Candidates = truncate(res.Candidates, params.Limit)
	result.Excluded = s.reportExclusions(searchRequestID, res.Excluded)
	return result, nil
}

func (s *MatchingService) prepareSearch(params SearchParams) (domain.BloodRequest, SearchResult, error) {
	bt, err := domain.ParseBloodType(params.BloodType)
	if err != nil {
		return domain.BloodRequest{}, SearchResult{}, err
	}
	if params.Location == nil {
		return domain.BloodRequest{}, SearchResult{}, &ValidationError{Reason: "location is required"}
	}
	loc, err := normalizeLocation("location", params.Location)
	if err != nil {
		return domain.BloodRequest{}, SearchResult{}, err
	}
	if params.Limit < 0 {
		return domain.BloodRequest{}, SearchResult{}, &ValidationError{Reason: "limit must not be negative"}
	}
	radius := s.cfg.DefaultRadiusKm
	if params.RadiusKm != nil {
		radius = *params.RadiusKm
	}
	target := domain.BloodRequest{
		ID:        searchRequestID,
		BloodType: bt,
		Units:     1,
		Location:  loc,
		Status:    domain.StatusPending,
	}
	return target, SearchResult{BloodType: bt, RadiusKm: radius}, nil
}

func truncate(candidates []domain.MatchCandidate, limit int) []domain.MatchCandidate {
	if limit > 0 && limit < len(candidates) {
		return candidates[:limit]
	}
	return candidates
}
