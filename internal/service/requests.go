package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/matching"
)

func newRequestID() string {
	return "REQ-" + uuid.NewString()
}

// CreateRequest validates and stores a new pending request. A caller-chosen
// id that is already stored, in any status, is rejected with
// repository.ErrAlreadyExists.
func (s *MatchingService) CreateRequest(ctx context.Context, input RequestInput) (domain.BloodRequest, error) {
	bt, err := domain.ParseBloodType(input.BloodType)
	if err != nil {
		return domain.BloodRequest{}, err
	}
	if input.Units <= 0 {
		return domain.BloodRequest{}, &ValidationError{Reason: "units must be positive"}
	}
	urgency, err := domain.ParseUrgency(input.Urgency)
	if err != nil {
		return domain.BloodRequest{}, &ValidationError{Reason: err.Error()}
	}
	loc, err := normalizeLocation("location", input.Location)
	if err != nil {
		return domain.BloodRequest{}, err
	}

	now := s.now()
	expires := utcPtr(input.ExpiresAt)
	if expires != nil && !expires.After(now) {
		return domain.BloodRequest{}, &ValidationError{Reason: "expiresAt must be in the future"}
	}
	id := normalizeID(input.ID)
	if id == "" {
		id = s.newID()
	}

	req := domain.BloodRequest{
		ID:           id,
		RequesterID:  normalizeID(input.RequesterID),
		BloodType:    bt,
		Units:        input.Units,
		Urgency:      urgency,
		Location:     loc,
		HospitalName: sanitizeString(input.HospitalName),
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    expires,
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return domain.BloodRequest{}, err
	}
	s.metrics.ObserveTransition(string(domain.StatusPending))
	s.logger.Info("blood request created",
		"request_id", req.ID,
		"blood_type", req.BloodType.String(),
		"urgency", req.Urgency.String(),
		"units", req.Units,
	)
	return req, nil
}

// GetRequest loads one request.
func (s *MatchingService) GetRequest(ctx context.Context, requestID string) (domain.BloodRequest, error) {
	return s.repo.GetRequest(ctx, normalizeID(requestID))
}

// ListMatches returns the stored matches of a request.
func (s *MatchingService) ListMatches(ctx context.Context, requestID string) ([]domain.MatchRecord, error) {
	return s.repo.ListMatches(ctx, normalizeID(requestID))
}

// ListOpenRequests returns unexpired pending and matched requests, most
// urgent first and oldest first within an urgency level.
func (s *MatchingService) ListOpenRequests(ctx context.Context) ([]domain.BloodRequest, error) {
	requests, err := s.repo.ListRequests(ctx, []domain.RequestStatus{domain.StatusPending, domain.StatusMatched})
	if err != nil {
		return nil, err
	}
	now := s.now()
	open := make([]domain.BloodRequest, 0, len(requests))
	for _, req := range requests {
		if req.Open() && !req.ExpiredAt(now) {
			open = append(open, req)
		}
	}
	return matching.RankUrgency(open), nil
}

// CancelRequest moves a non-terminal request to cancelled and releases its
// donor reservations.
func (s *MatchingService) CancelRequest(ctx context.Context, requestID string) (domain.BloodRequest, error) {
	return s.transition(ctx, requestID, domain.StatusCancelled)
}

// FulfillRequest moves a matched request to fulfilled and releases its donor
// reservations.
func (s *MatchingService) FulfillRequest(ctx context.Context, requestID string) (domain.BloodRequest, error) {
	return s.transition(ctx, requestID, domain.StatusFulfilled)
}

func (s *MatchingService) transition(ctx context.Context, requestID string, target domain.RequestStatus) (domain.BloodRequest, error) {
	req, err := s.repo.GetRequest(ctx, normalizeID(requestID))
	if err != nil {
		return domain.BloodRequest{}, err
	}
	if !req.Status.CanTransitionTo(target) {
		return domain.BloodRequest{}, fmt.Errorf("request %s: %s -> %s: %w", req.ID, req.Status, target, ErrInvalidTransition)
	}

	now := s.now()
	if err := s.repo.UpdateRequestStatus(ctx, req.ID, req.Status, target, now); err != nil {
		return domain.BloodRequest{}, err
	}
	previous := req.Status
	req.Status = target
	req.UpdatedAt = now
	s.metrics.ObserveTransition(string(target))

	if target.Terminal() {
		if err := s.reserver.ReleaseRequest(ctx, req.ID); err != nil {
			// The status change is already durable; stale claims lapse on their TTL.
			s.logger.Warn("failed to release reservations", "request_id", req.ID, "error", err)
		}
	}
	s.logger.Info("blood request status changed", "request_id", req.ID, "from", string(previous), "to", string(target))
	return req, nil
}
