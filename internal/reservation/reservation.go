// Package reservation holds short-lived claims on donors so that a donor is
// offered to at most one open request at a time.
package reservation

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidArgument is returned when an identifier is empty or the TTL is
// not positive.
var ErrInvalidArgument = errors.New("reservation: donor id, request id and positive ttl are required")

// Reserver claims donors on behalf of requests.
type Reserver interface {
	// Reserve claims donorID for requestID for ttl. It reports false when the
	// donor is held by a different request. Re-reserving for the same request
	// refreshes the TTL.
	Reserve(ctx context.Context, donorID, requestID string, ttl time.Duration) (bool, error)
	// Holder returns the request currently holding donorID.
	Holder(ctx context.Context, donorID string) (string, bool, error)
	// Release drops the claim on donorID if requestID holds it.
	Release(ctx context.Context, donorID, requestID string) error
	// ReleaseRequest drops every claim held by requestID.
	ReleaseRequest(ctx context.Context, requestID string) error
}

func validate(donorID, requestID string, ttl time.Duration) error {
	if donorID == "" || requestID == "" || ttl <= 0 {
		return ErrInvalidArgument
	}
	return nil
}
