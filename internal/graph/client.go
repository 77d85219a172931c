package graph

import (
	"context"
	"errors"
)

// Client is the narrow contract the repository needs from the graph store.
// Statements are Cypher with named parameters.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Result holds every record returned by a statement.
type Result struct {
	Records []Record
}

// Record maps return aliases to values.
type Record map[string]any

// First returns the first record, or nil when the result is empty.
func (r Result) First() Record {
	if len(r.Records) == 0 {
		return nil
	}
	return r.Records[0]
}

// Options configures the Bolt connection.
type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

var (
	// ErrMissingURI indicates GRAPH_URI was not set.
	ErrMissingURI = errors.New("graph URI is required")
	// ErrConstraintViolation is returned when a write breaks a uniqueness
	// constraint.
	ErrConstraintViolation = errors.New("graph constraint violated")
)
