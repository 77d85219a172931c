package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/repository"
)

// RespondToMatch records a donor's answer to a matched request. Accepting
// refreshes the donor's reservation for another TTL. Declining releases it
// and drops the match; a request left without any match falls back to
// pending so the next dispatch looks for other donors.
func (s *MatchingService) RespondToMatch(ctx context.Context, requestID, donorID, rawResponse string) (domain.MatchRecord, error) {
	response, err := domain.ParseMatchResponse(rawResponse)
	if err != nil {
		return domain.MatchRecord{}, &ValidationError{Reason: err.Error()}
	}
	donorID = normalizeID(donorID)
	if donorID == "" {
		return domain.MatchRecord{}, &ValidationError{Reason: "donor id is required"}
	}

	req, err := s.repo.GetRequest(ctx, normalizeID(requestID))
	if err != nil {
		return domain.MatchRecord{}, err
	}
	now := s.now()
	if req.Status != domain.StatusMatched {
		return domain.MatchRecord{}, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, ErrInvalidTransition)
	}
	if req.ExpiredAt(now) {
		return domain.MatchRecord{}, fmt.Errorf("request %s: %w", req.ID, ErrRequestExpired)
	}

	matches, err := s.repo.ListMatches(ctx, req.ID)
	if err != nil {
		return domain.MatchRecord{}, err
	}
	idx := -1
	for i, m := range matches {
		if m.Kind == domain.CandidateDonor && m.CandidateID == donorID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.MatchRecord{}, fmt.Errorf("donor %s is not matched to request %s: %w", donorID, req.ID, repository.ErrNotFound)
	}
	record := matches[idx]

	if response == domain.ResponseAccepted {
		ok, err := s.reserver.Reserve(ctx, donorID, req.ID, s.cfg.ReservationTTL)
		if err != nil {
			s.metrics.ObserveReservation("error")
			return domain.MatchRecord{}, fmt.Errorf("reserve donor %s: %w", donorID, err)
		}
		if !ok {
			s.metrics.ObserveReservation("conflict")
			return domain.MatchRecord{}, fmt.Errorf("donor %s for request %s: %w", donorID, req.ID, ErrReservationLost)
		}
		s.metrics.ObserveReservation("reserved")
	}

	if err := s.repo.SetMatchResponse(ctx, req.ID, donorID, response, now); err != nil {
		return domain.MatchRecord{}, err
	}
	record.Response = response
	record.RespondedAt = &now
	s.metrics.ObserveResponse(string(response))

	if response == domain.ResponseDeclined {
		if err := s.reserver.Release(ctx, donorID, req.ID); err != nil {
			s.logger.Warn("failed to release declined donor", "request_id", req.ID, "donor_id", donorID, "error", err)
		}
		if len(matches) == 1 {
			s.reopen(ctx, req.ID, now)
		}
	}

	s.logger.Info("donor responded to match",
		"request_id", req.ID,
		"donor_id", donorID,
		"response", string(response),
	)
	return record, nil
}

// reopen moves a matched request that lost its last match back to pending.
func (s *MatchingService) reopen(ctx context.Context, requestID string, now time.Time) {
	err := s.repo.UpdateRequestStatus(ctx, requestID, domain.StatusMatched, domain.StatusPending, now)
	switch {
	case err == nil:
		s.metrics.ObserveTransition(string(domain.StatusPending))
	case errors.Is(err, repository.ErrStatusConflict):
		// Cancelled or fulfilled in the meantime.
	default:
		s.logger.Warn("failed to reopen request", "request_id", requestID, "error", err)
	}
}
