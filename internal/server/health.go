package server

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vanshika/reddrop/backend/internal/graph"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// GraphHealthService verifies graph connectivity as part of health checks.
type GraphHealthService struct {
	Client graph.Client
}

// Probe implements the HealthService interface.
func (s GraphHealthService) Probe(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	return s.Client.VerifyConnectivity(ctx)
}

// ProbeFunc adapts a plain function to HealthService.
type ProbeFunc func(ctx context.Context) error

// Probe implements the HealthService interface.
func (f ProbeFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// CompositeHealth probes every named dependency and reports all failures.
type CompositeHealth map[string]HealthService

// Probe implements the HealthService interface.
func (c CompositeHealth) Probe(ctx context.Context) error {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if c[name] == nil {
			continue
		}
		if err := c[name].Probe(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
