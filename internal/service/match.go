package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/matching"
	"github.com/vanshika/reddrop/backend/internal/repository"
)

// MatchRequest ranks donors and bank inventory for an open request, reserves
// donors for it and records the result. A request with candidates ends up
// matched and one without ends up pending, so a matched request whose donors
// are gone falls back to pending. When the run fails after donors were
// reserved, the reservations and recorded matches of the run are undone.
func (s *MatchingService) MatchRequest(ctx context.Context, requestID string, params MatchParams) (MatchOutcome, error) {
	req, err := s.repo.GetRequest(ctx, normalizeID(requestID))
	if err != nil {
		return MatchOutcome{}, err
	}
	now := s.now()
	if !req.Status.CanTransitionTo(domain.StatusMatched) {
		return MatchOutcome{}, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, ErrInvalidTransition)
	}
	if req.ExpiredAt(now) {
		return MatchOutcome{}, fmt.Errorf("request %s: %w", req.ID, ErrRequestExpired)
	}

	radius := s.cfg.DefaultRadiusKm
	if params.MaxDistanceKm != nil {
		radius = *params.MaxDistanceKm
	}
	compatible, err := s.engine.CompatibleDonorsFor(req.BloodType)
	if err != nil {
		return MatchOutcome{}, err
	}

	donors, lines, err := s.snapshot(ctx, compatible.Types())
	if err != nil {
		return MatchOutcome{}, err
	}

	started := time.Now()
	donorRes, err := s.engine.MatchDonors(req, donors, radius)
	if err != nil {
		s.metrics.ObserveMatch(string(domain.CandidateDonor), "error", 0, time.Since(started))
		return MatchOutcome{}, err
	}
	s.metrics.ObserveMatch(string(domain.CandidateDonor), "ok", len(donorRes.Candidates), time.Since(started))

	started = time.Now()
	invRes, err := s.engine.MatchInventory(req, lines, radius, now)
	if err != nil {
		s.metrics.ObserveMatch(string(domain.CandidateInventory), "error", 0, time.Since(started))
		return MatchOutcome{}, err
	}
	s.metrics.ObserveMatch(string(domain.CandidateInventory), "ok", len(invRes.Candidates), time.Since(started))

	outcome := MatchOutcome{Request: req, RadiusKm: radius}
	outcome.Excluded = s.reportExclusions(req.ID, append(donorRes.Excluded, invRes.Excluded...))

	eligible := donorRes.Candidates
	if s.cfg.EnforceEligibility {
		eligible = filterEligible(eligible, now)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = req.Units
	}
	previous, err := s.repo.ListMatches(ctx, req.ID)
	if err != nil {
		return MatchOutcome{}, err
	}
	// Claims from an earlier run of this request are re-acquired below in
	// the new ranking order.
	if err := s.reserver.ReleaseRequest(ctx, req.ID); err != nil {
		return MatchOutcome{}, fmt.Errorf("release previous reservations for %s: %w", req.ID, err)
	}
	outcome.Donors, outcome.Contended, err = s.reserveDonors(ctx, req.ID, eligible, limit)
	if err != nil {
		s.abandonMatch(ctx, req.ID, err)
		return MatchOutcome{}, err
	}
	outcome.Inventory, outcome.Allocated = allocateInventory(invRes.Candidates, req.Units)

	records := matchRecords(outcome, now)
	carryResponses(records, previous)
	if err := s.repo.RecordMatches(ctx, req.ID, records, now); err != nil {
		s.abandonMatch(ctx, req.ID, err)
		return MatchOutcome{}, err
	}

	// The status write is a compare-and-set even when the status does not
	// change, so a request cancelled during the run is detected here.
	target := domain.StatusPending
	if outcome.Matched() {
		target = domain.StatusMatched
	}
	if err := s.repo.UpdateRequestStatus(ctx, req.ID, req.Status, target, now); err != nil {
		s.abandonMatch(ctx, req.ID, err)
		return MatchOutcome{}, err
	}
	if target != req.Status {
		s.metrics.ObserveTransition(string(target))
	}
	outcome.Request.Status = target
	outcome.Request.UpdatedAt = now

	s.logger.Info("request matched",
		"request_id", req.ID,
		"blood_type", req.BloodType.String(),
		"radius_km", radius,
		"donors", len(outcome.Donors),
		"inventory_lines", len(outcome.Inventory),
		"excluded", len(outcome.Excluded),
		"contended", outcome.Contended,
	)
	return outcome, nil
}

// abandonMatch undoes the reservations and recorded matches of a failed run.
// When the run lost a status race to a concurrent match of the same request,
// the winner owns the reservations and nothing is undone.
func (s *MatchingService) abandonMatch(ctx context.Context, requestID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if errors.Is(cause, repository.ErrStatusConflict) {
		current, err := s.repo.GetRequest(ctx, requestID)
		if err == nil && current.Open() {
			return
		}
	}
	if err := s.reserver.ReleaseRequest(ctx, requestID); err != nil {
		s.logger.Warn("failed to release reservations of abandoned match", "request_id", requestID, "error", err)
	}
	if err := s.repo.RecordMatches(ctx, requestID, nil, s.now()); err != nil {
		s.logger.Warn("failed to clear matches of abandoned match", "request_id", requestID, "error", err)
	}
	s.logger.Warn("match abandoned", "request_id", requestID, "error", cause)
}

// carryResponses keeps the answers donors already gave when a request is
// matched again.
func carryResponses(records, previous []domain.MatchRecord) {
	answered := make(map[string]domain.MatchRecord, len(previous))
	for _, p := range previous {
		if p.Kind == domain.CandidateDonor && p.Response != "" {
			answered[p.CandidateID] = p
		}
	}
	for i := range records {
		if p, ok := answered[records[i].CandidateID]; ok && records[i].Kind == domain.CandidateDonor {
			records[i].Response = p.Response
			records[i].RespondedAt = p.RespondedAt
		}
	}
}

// DispatchOpenRequests matches every open request in urgency order so that
// the most urgent requests claim donors first. Failures of individual
// requests are collected; the remaining requests are still processed.
func (s *MatchingService) DispatchOpenRequests(ctx context.Context, params MatchParams) ([]MatchOutcome, error) {
	requests, err := s.ListOpenRequests(ctx)
	if err != nil {
		return nil, err
	}
	outcomes := make([]MatchOutcome, 0, len(requests))
	var taskErr TaskError
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcome, err := s.MatchRequest(ctx, req.ID, params)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return outcomes, err
			}
			taskErr.append(fmt.Errorf("request %s: %w", req.ID, err))
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, taskErr.asError()
}

// snapshot loads donors and inventory of the given types concurrently.
func (s *MatchingService) snapshot(ctx context.Context, types []domain.BloodType) ([]domain.Donor, []domain.InventoryLine, error) {
	var (
		donors []domain.Donor
		lines  []domain.InventoryLine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		donors, err = s.candidates.FetchDonors(gctx, types, true)
		if err != nil {
			return fmt.Errorf("donor snapshot: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		lines, err = s.candidates.FetchInventory(gctx, types)
		if err != nil {
			return fmt.Errorf("inventory snapshot: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return donors, lines, nil
}

func (s *MatchingService) reserveDonors(ctx context.Context, requestID string, candidates []domain.MatchCandidate, limit int) ([]domain.MatchCandidate, int, error) {
	reserved := make([]domain.MatchCandidate, 0, min(limit, len(candidates)))
	contended := 0
	for _, c := range candidates {
		if len(reserved) >= limit {
			break
		}
		ok, err := s.reserver.Reserve(ctx, c.Donor.ID, requestID, s.cfg.ReservationTTL)
		if err != nil {
			s.metrics.ObserveReservation("error")
			return nil, 0, fmt.Errorf("reserve donor %s: %w", c.Donor.ID, err)
		}
		if !ok {
			s.metrics.ObserveReservation("conflict")
			contended++
			continue
		}
		s.metrics.ObserveReservation("reserved")
		reserved = append(reserved, c)
	}
	return reserved, contended, nil
}

func (s *MatchingService) reportExclusions(requestID string, errs []error) []Exclusion {
	out := make([]Exclusion, 0, len(errs))
	for _, err := range errs {
		reason := matching.ExclusionReason(err)
		ex := Exclusion{
			CandidateID: excludedID(err),
			Reason:      reason,
			Detail:      err.Error(),
		}
		s.metrics.ObserveExcluded(reason)
		s.logger.Warn("candidate excluded from match",
			"request_id", requestID,
			"candidate_id", ex.CandidateID,
			"reason", reason,
		)
		out = append(out, ex)
	}
	return out
}

func excludedID(err error) string {
	var candErr *matching.CandidateError
	if errors.As(err, &candErr) {
		return candErr.CandidateID
	}
	var locErr *matching.MissingLocationError
	if errors.As(err, &locErr) {
		return locErr.ID
	}
	return ""
}

func filterEligible(candidates []domain.MatchCandidate, asOf time.Time) []domain.MatchCandidate {
	out := make([]domain.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Donor != nil && c.Donor.EligibleAt(asOf) {
			out = append(out, c)
		}
	}
	return out
}

// allocateInventory walks the ranked lines and takes units until the request
// is covered.
func allocateInventory(candidates []domain.MatchCandidate, units int) ([]domain.MatchCandidate, []int) {
	var (
		lines     []domain.MatchCandidate
		allocated []int
	)
	remaining := units
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		take := min(c.Inventory.Units, remaining)
		lines = append(lines, c)
		allocated = append(allocated, take)
		remaining -= take
	}
	return lines, allocated
}

func matchRecords(outcome MatchOutcome, matchedAt time.Time) []domain.MatchRecord {
	records := make([]domain.MatchRecord, 0, len(outcome.Donors)+len(outcome.Inventory))
	rank := 0
	for _, c := range outcome.Donors {
		rank++
		records = append(records, domain.MatchRecord{
			RequestID:   outcome.Request.ID,
			CandidateID: c.CandidateID(),
			Kind:        c.Kind,
			Rank:        rank,
			DistanceKm:  c.DistanceKm,
			Units:       1,
			MatchedAt:   matchedAt,
		})
	}
	for i, c := range outcome.Inventory {
		rank++
		records = append(records, domain.MatchRecord{
			RequestID:   outcome.Request.ID,
			CandidateID: c.CandidateID(),
			Kind:        c.Kind,
			Rank:        rank,
			DistanceKm:  c.DistanceKm,
			Units:       outcome.Allocated[i],
			MatchedAt:   matchedAt,
		})
	}
	return records
}
