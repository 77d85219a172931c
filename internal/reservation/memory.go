package reservation

import (
	"context"
	"sync"
	"time"
)

type claim struct {
	requestID string
	expiresAt time.Time
}

// MemoryReserver is an in-process Reserver for single-instance deployments
// and tests.
type MemoryReserver struct {
	mu     sync.Mutex
	claims map[string]claim
	now    func() time.Time
}

// NewMemoryReserver returns an empty MemoryReserver.
func NewMemoryReserver() *MemoryReserver {
	return &MemoryReserver{claims: make(map[string]claim), now: time.Now}
}

// WithClock overrides the clock used for expiry.
func (m *MemoryReserver) WithClock(now func() time.Time) *MemoryReserver {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *MemoryReserver) Reserve(_ context.Context, donorID, requestID string, ttl time.Duration) (bool, error) {
	if err := validate(donorID, requestID, ttl); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if c, ok := m.claims[donorID]; ok && now.Before(c.expiresAt) && c.requestID != requestID {
		return false, nil
	}
	m.claims[donorID] = claim{requestID: requestID, expiresAt: now.Add(ttl)}
	return true, nil
}

func (m *MemoryReserver) Holder(_ context.Context, donorID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[donorID]
	if !ok || !m.now().Before(c.expiresAt) {
		return "", false, nil
	}
	return c.requestID, true, nil
}

func (m *MemoryReserver) Release(_ context.Context, donorID, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.claims[donorID]; ok && c.requestID == requestID {
		delete(m.claims, donorID)
	}
	return nil
}

// ReleaseRequest drops the claims of requestID and sweeps every expired
// claim while it walks the table.
func (m *MemoryReserver) ReleaseRequest(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for donorID, c := range m.claims {
		if c.requestID == requestID || !now.Before(c.expiresAt) {
			delete(m.claims, donorID)
		}
	}
	return nil
}

// Len reports how many claims are stored, expired or not.
func (m *MemoryReserver) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.claims)
}
