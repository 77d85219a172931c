package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/graph"
)

// CreateRequest stores a new blood request node. It returns ErrAlreadyExists
// when a request with the same id is already stored, whatever its status.
func (r *Repository) CreateRequest(ctx context.Context, req domain.BloodRequest) error {
	if req.ID == "" {
		return errors.New("request id is required")
	}
	props := map[string]any{
		"requesterId":  req.RequesterID,
		"bloodType":    string(req.BloodType),
		"units":        req.Units,
		"urgency":      req.Urgency.String(),
		"hospitalName": req.HospitalName,
		"status":       string(req.Status),
		"createdAt":    formatTime(req.CreatedAt),
		"updatedAt":    formatTime(req.UpdatedAt),
		"expiresAt":    formatTimePtr(req.ExpiresAt),
	}
	coordinateProps(props, req.Location)

	params := map[string]any{
		"requestId": req.ID,
		"props":     props,
	}
	res, err := r.client.ExecuteWrite(ctx, createRequestCypher, params)
	if err != nil {
		if errors.Is(err, graph.ErrConstraintViolation) {
			return fmt.Errorf("request %s: %w", req.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("create request %s: %w", req.ID, err)
	}
	if res.First() == nil {
		return fmt.Errorf("request %s: %w", req.ID, ErrAlreadyExists)
	}
	return nil
}

// GetRequest loads one request.
func (r *Repository) GetRequest(ctx context.Context, requestID string) (domain.BloodRequest, error) {
	res, err := r.client.ExecuteRead(ctx, getRequestCypher, map[string]any{"requestId": requestID})
	if err != nil {
		return domain.BloodRequest{}, fmt.Errorf("get request %s: %w", requestID, err)
	}
	rec := res.First()
	if rec == nil {
		return domain.BloodRequest{}, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	return decodeRequest(rec)
}

// ListRequests returns requests whose status is one of statuses, oldest first.
func (r *Repository) ListRequests(ctx context.Context, statuses []domain.RequestStatus) ([]domain.BloodRequest, error) {
	params := make([]string, len(statuses))
	for i, s := range statuses {
		params[i] = string(s)
	}
	res, err := r.client.ExecuteRead(ctx, listRequestsCypher, map[string]any{"statuses": params})
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	requests := make([]domain.BloodRequest, 0, len(res.Records))
	for _, rec := range res.Records {
		req, err := decodeRequest(rec)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// UpdateRequestStatus moves a request from expected to status atomically.
func (r *Repository) UpdateRequestStatus(ctx context.Context, requestID string, expected, status domain.RequestStatus, updatedAt time.Time) error {
	params := map[string]any{
		"requestId": requestID,
		"expected":  string(expected),
		"status":    string(status),
		"updatedAt": formatTime(updatedAt),
	}
	res, err := r.client.ExecuteWrite(ctx, updateRequestStatusCypher, params)
	if err != nil {
		return fmt.Errorf("update request %s status: %w", requestID, err)
	}
	rec := res.First()
	if rec == nil {
		return fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	if applied, _ := rec["applicable"].(bool); !applied {
		return fmt.Errorf("request %s (expected %s): %w", requestID, expected, ErrStatusConflict)
	}
	return nil
}

// RecordMatches replaces the stored matches of a request with records. An
// empty records clears them.
func (r *Repository) RecordMatches(ctx context.Context, requestID string, records []domain.MatchRecord, matchedAt time.Time) error {
	matches := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		var response any
		if rec.Response != "" {
			response = string(rec.Response)
		}
		matches = append(matches, map[string]any{
			"candidateId": rec.CandidateID,
			"kind":        string(rec.Kind),
			"rank":        rec.Rank,
			"distanceKm":  rec.DistanceKm,
			"units":       rec.Units,
			"response":    response,
			"respondedAt": formatTimePtr(rec.RespondedAt),
		})
	}
	params := map[string]any{
		"requestId": requestID,
		"matches":   matches,
		"matchedAt": formatTime(matchedAt),
	}
	if _, err := r.client.ExecuteWrite(ctx, recordMatchesCypher, params); err != nil {
		return fmt.Errorf("record matches for request %s: %w", requestID, err)
	}
	return nil
}

// ListMatches returns the stored matches of a request ordered by rank.
func (r *Repository) ListMatches(ctx context.Context, requestID string) ([]domain.MatchRecord, error) {
	res, err := r.client.ExecuteRead(ctx, listMatchesCypher, map[string]any{"requestId": requestID})
	if err != nil {
		return nil, fmt.Errorf("list matches for request %s: %w", requestID, err)
	}
	records := make([]domain.MatchRecord, 0, len(res.Records))
	for _, rec := range res.Records {
		kind := domain.CandidateDonor
		if toString(rec["relType"]) == "ALLOCATED_FROM" {
			kind = domain.CandidateInventory
		}
		distance, _ := toFloat64(rec["distanceKm"])
		records = append(records, domain.MatchRecord{
			RequestID:   requestID,
			CandidateID: toString(rec["candidateId"]),
			Kind:        kind,
			Rank:        toInt(rec["rank"]),
			DistanceKm:  distance,
			Units:       toInt(rec["units"]),
			MatchedAt:   toTime(rec["matchedAt"]),
			Response:    domain.MatchResponse(toString(rec["response"])),
			RespondedAt: toTimePtr(rec["respondedAt"]),
		})
	}
	return records, nil
}

// SetMatchResponse stores a donor's answer to a match. Accepting marks the
// MATCHED relationship; declining removes it. ErrNotFound is returned when
// the donor is not matched to the request.
func (r *Repository) SetMatchResponse(ctx context.Context, requestID, donorID string, response domain.MatchResponse, respondedAt time.Time) error {
	cypher := acceptMatchCypher
	switch response {
	case domain.ResponseAccepted:
	case domain.ResponseDeclined:
		cypher = declineMatchCypher
	default:
		return fmt.Errorf("unsupported match response %q", response)
	}
	params := map[string]any{
		"requestId":   requestID,
		"donorId":     donorID,
		"response":    string(response),
		"respondedAt": formatTime(respondedAt),
	}
	res, err := r.client.ExecuteWrite(ctx, cypher, params)
	if err != nil {
		return fmt.Errorf("record %s response of donor %s to request %s: %w", response, donorID, requestID, err)
	}
	if res.First() == nil {
		return fmt.Errorf("donor %s is not matched to request %s: %w", donorID, requestID, ErrNotFound)
	}
	return nil
}

func decodeRequest(rec graph.Record) (domain.BloodRequest, error) {
	id := toString(rec["requestId"])
	urgency, err := domain.ParseUrgency(toString(rec["urgency"]))
	if err != nil {
		return domain.BloodRequest{}, fmt.Errorf("request %s: %w", id, err)
	}
	status, err := domain.ParseRequestStatus(toString(rec["status"]))
	if err != nil {
		return domain.BloodRequest{}, fmt.Errorf("request %s: %w", id, err)
	}
	return domain.BloodRequest{
		ID:           id,
		RequesterID:  toString(rec["requesterId"]),
		BloodType:    domain.BloodType(toString(rec["bloodType"])),
		Units:        toInt(rec["units"]),
		Urgency:      urgency,
		Location:     toCoordinate(rec["latitude"], rec["longitude"]),
		HospitalName: toString(rec["hospitalName"]),
		Status:       status,
		CreatedAt:    toTime(rec["createdAt"]),
		UpdatedAt:    toTime(rec["updatedAt"]),
		ExpiresAt:    toTimePtr(rec["expiresAt"]),
	}, nil
}
