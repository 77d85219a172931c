package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/metrics"
	"github.com/vanshika/reddrop/backend/internal/repository"
	"github.com/vanshika/reddrop/backend/internal/service"
)

var testNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type apiStubStore struct {
	mu       sync.Mutex
	donors   map[string]domain.Donor
	banks    map[string]domain.BloodBank
	requests map[string]domain.BloodRequest
	matches  map[string][]domain.MatchRecord
}

func newAPIStubStore() *apiStubStore {
	return &apiStubStore{
		donors:   map[string]domain.Donor{},
		banks:    map[string]domain.BloodBank{},
		requests: map[string]domain.BloodRequest{},
		matches:  map[string][]domain.MatchRecord{},
	}
}

func (a *apiStubStore) UpsertDonor(ctx context.Context, donor domain.Donor) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.donors[donor.ID] = donor
	return nil
}

func (a *apiStubStore) SetDonorAvailability(ctx context.Context, donorID string, availability domain.Availability, updatedAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.donors[donorID]
	if !ok {
		return fmt.Errorf("donor %s: %w", donorID, repository.ErrNotFound)
	}
	d.Availability = availability
	d.UpdatedAt = updatedAt
	a.donors[donorID] = d
	return nil
}

func (a *apiStubStore) GetDonor(ctx context.Context, donorID string) (domain.Donor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.donors[donorID]
	if !ok {
		return domain.Donor{}, fmt.Errorf("donor %s: %w", donorID, repository.ErrNotFound)
	}
	return d, nil
}

func (a *apiStubStore) UpsertBloodBank(ctx context.Context, bank domain.BloodBank) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.banks[bank.ID] = bank
	return nil
}

func (a *apiStubStore) CreateRequest(ctx context.Context, req domain.BloodRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.requests[req.ID]; ok {
		return fmt.Errorf("request %s: %w", req.ID, repository.ErrAlreadyExists)
	}
	a.requests[req.ID] = req
	return nil
}

func (a *apiStubStore) GetRequest(ctx context.Context, requestID string) (domain.BloodRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.requests[requestID]
	if !ok {
		return domain.BloodRequest{}, fmt.Errorf("request %s: %w", requestID, repository.ErrNotFound)
	}
	return req, nil
}

func (a *apiStubStore) ListRequests(ctx context.Context, statuses []domain.RequestStatus) ([]domain.BloodRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.BloodRequest
	for _, req := range a.requests {
		for _, s := range statuses {
			if req.Status == s {
				out = append(out, req)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *apiStubStore) UpdateRequestStatus(ctx context.Context, requestID string, expected, status domain.RequestStatus, updatedAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != expected {
		return repository.ErrStatusConflict
	}
	req.Status = status
	req.UpdatedAt = updatedAt
	a.requests[requestID] = req
	return nil
}

func (a *apiStubStore) RecordMatches(ctx context.Context, requestID string, records []domain.MatchRecord, matchedAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.matches[requestID] = records
	return nil
}

func (a *apiStubStore) ListMatches(ctx context.Context, requestID string) ([]domain.MatchRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.MatchRecord(nil), a.matches[requestID]...), nil
}

func (a *apiStubStore) SetMatchResponse(ctx context.Context, requestID, donorID string, response domain.MatchResponse, respondedAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	records := a.matches[requestID]
	for i, rec := range records {
		if rec.Kind != domain.CandidateDonor || rec.CandidateID != donorID {
			continue
		}
		if response == domain.ResponseDeclined {
			a.matches[requestID] = append(records[:i:i], records[i+1:]...)
			return nil
		}
		records[i].Response = response
		records[i].RespondedAt = &respondedAt
		return nil
	}
	return fmt.Errorf("donor %s: %w", donorID, repository.ErrNotFound)
}

func (a *apiStubStore) FetchDonors(ctx context.Context, types []domain.BloodType, availableOnly bool) ([]domain.Donor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.Donor
	for _, d := range a.donors {
		if availableOnly && !d.IsAvailable() {
			continue
		}
		for _, t := range types {
			if d.BloodType == t {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

func (a *apiStubStore) FetchInventory(ctx context.Context, types []domain.BloodType) ([]domain.InventoryLine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.InventoryLine
	for _, bank := range a.banks {
		for _, line := range bank.Inventory {
			for _, t := range types {
				if line.BloodType == t && line.Units > 0 {
					line.BankID = bank.ID
					line.BankName = bank.Name
					line.BankLocation = bank.Location
					out = append(out, line)
					break
				}
			}
		}
	}
	return out, nil
}

type apiFixture struct {
	store   *apiStubStore
	metrics *metrics.Metrics
	handler http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newAPIStubStore()
	m := metrics.New()

	svc := service.NewMatchingService(store, store, nil, nil, service.DefaultConfig())
	svc.WithClock(func() time.Time { return testNow })
	svc.WithLogger(logger)
	svc.WithMetrics(m)

	handler := NewRouter(logger, RouterDependencies{
		API:     NewAPIHandlers(logger, svc),
		Metrics: m,
	})
	return &apiFixture{store: store, metrics: m, handler: handler}
}

func (f *apiFixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func floatPtr(v float64) *float64 { return &v }

func TestCompatibilityEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/compatibility/o-", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payload := decodeBody[compatibilityResponse](t, rec)
	assert.Equal(t, "O-", payload.BloodType)
	assert.Equal(t, []string{"O-"}, payload.Donors)
	assert.Len(t, payload.Recipients, 8)

	rec = f.do(t, http.MethodGet, "/compatibility/AB%2B", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payload = decodeBody[compatibilityResponse](t, rec)
	assert.Len(t, payload.Donors, 8)
	assert.Equal(t, []string{"AB+"}, payload.Recipients)

	rec = f.do(t, http.MethodGet, "/compatibility/C+", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/compatibility/O-", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestDonorLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/donors", donorRequest{
		DonorID:   "DNR-1",
		Name:      "  Asha   Rao ",
		BloodType: "o-",
		Latitude:  floatPtr(12.97),
		Longitude: floatPtr(77.59),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[donorResponse](t, rec)
	assert.Equal(t, "DNR-1", created.DonorID)
	assert.Equal(t, "Asha Rao", created.Name)
	assert.Equal(t, "O-", created.BloodType)
	assert.Equal(t, "available", created.Availability)

	rec = f.do(t, http.MethodPatch, "/donors/DNR-1/availability", map[string]any{"available": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/donors/DNR-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unavailable", decodeBody[donorResponse](t, rec).Availability)

	rec = f.do(t, http.MethodGet, "/donors/DNR-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/donors/DNR-404/availability", map[string]any{"available": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/donors/DNR-1/availability", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDonorValidation(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name string
		body any
	}{
		{"invalid blood type", donorRequest{DonorID: "D1", BloodType: "Q+"}},
		{"half a location", donorRequest{DonorID: "D1", BloodType: "A+", Latitude: floatPtr(1)}},
		{"bad timestamp", donorRequest{DonorID: "D1", BloodType: "A+", LastDonationAt: "yesterday"}},
		{"unknown field", map[string]any{"donorId": "D1", "bloodType": "A+", "shoeSize": 42}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/donors", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestRequestMatchAndTransitions(t *testing.T) {
	f := newAPIFixture(t)

	for _, d := range []donorRequest{
		{DonorID: "DNR-NEAR", BloodType: "O-", Latitude: floatPtr(0.01), Longitude: floatPtr(0)},
		{DonorID: "DNR-MID", BloodType: "A+", Latitude: floatPtr(0.03), Longitude: floatPtr(0)},
		{DonorID: "DNR-FAR", BloodType: "A+", Latitude: floatPtr(5), Longitude: floatPtr(0)},
		{DonorID: "DNR-B", BloodType: "B+", Latitude: floatPtr(0.01), Longitude: floatPtr(0)},
	} {
		rec := f.do(t, http.MethodPost, "/donors", d)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodPost, "/requests", bloodRequestPayload{
		RequestID: "REQ-1",
		BloodType: "A+",
		Units:     2,
		Urgency:   "critical",
		Latitude:  floatPtr(0),
		Longitude: floatPtr(0),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[requestResponse](t, rec)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "critical", created.Urgency)

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/match?maxDistanceKm=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	outcome := decodeBody[matchResponse](t, rec)
	assert.Equal(t, "matched", outcome.Request.Status)
	require.NotNil(t, outcome.RadiusKm)
	assert.Equal(t, 10.0, *outcome.RadiusKm)
	ids := make([]string, 0, len(outcome.Donors))
	for _, d := range outcome.Donors {
		ids = append(ids, d.DonorID)
	}
	assert.ElementsMatch(t, []string{"DNR-NEAR", "DNR-MID"}, ids)

	rec = f.do(t, http.MethodGet, "/requests/REQ-1/matches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.store.matches["REQ-1"], 2)

	rec = f.do(t, http.MethodGet, "/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[requestListResponse](t, rec).Items, 1)

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/fulfill", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "fulfilled", decodeBody[requestResponse](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/match", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateRequestDuplicateID(t *testing.T) {
	f := newAPIFixture(t)
	payload := bloodRequestPayload{RequestID: "REQ-1", BloodType: "A+", Units: 1, Latitude: floatPtr(0), Longitude: floatPtr(0)}

	rec := f.do(t, http.MethodPost, "/requests", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/requests/REQ-1/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	payload.Urgency = "critical"
	rec = f.do(t, http.MethodPost, "/requests", payload)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/requests/REQ-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decodeBody[requestResponse](t, rec)
	assert.Equal(t, "cancelled", stored.Status)
	assert.Equal(t, "medium", stored.Urgency)
}

func TestDonorResponsesEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	for _, d := range []donorRequest{
		{DonorID: "DNR-1", BloodType: "B+", Latitude: floatPtr(0.01), Longitude: floatPtr(0)},
		{DonorID: "DNR-2", BloodType: "O+", Latitude: floatPtr(0.02), Longitude: floatPtr(0)},
	} {
		rec := f.do(t, http.MethodPost, "/donors", d)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := f.do(t, http.MethodPost, "/requests", bloodRequestPayload{RequestID: "REQ-1", BloodType: "B+", Units: 2, Latitude: floatPtr(0), Longitude: floatPtr(0)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/responses", donorResponsePayload{DonorID: "DNR-1", Response: "accept"})
	assert.Equal(t, http.StatusConflict, rec.Code, "pending requests take no responses")

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/match", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/responses", donorResponsePayload{DonorID: "DNR-1", Response: "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decodeBody[matchRecordResponse](t, rec)
	assert.Equal(t, "DNR-1", accepted.CandidateID)
	assert.Equal(t, "accepted", accepted.Response)
	assert.Equal(t, formatTime(testNow), accepted.RespondedAt)

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/responses", donorResponsePayload{DonorID: "DNR-2", Response: "decline"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/requests/REQ-1/matches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[struct {
		Matches []matchRecordResponse `json:"matches"`
	}](t, rec)
	require.Len(t, listed.Matches, 1)
	assert.Equal(t, "accepted", listed.Matches[0].Response)

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/responses", donorResponsePayload{DonorID: "DNR-2", Response: "accept"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "a declined donor is no longer matched")

	rec = f.do(t, http.MethodPost, "/requests/REQ-1/responses", donorResponsePayload{DonorID: "DNR-1", Response: "perhaps"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/requests/REQ-1/responses", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSearchEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	for _, d := range []donorRequest{
		{DonorID: "DNR-O", BloodType: "O-", Latitude: floatPtr(0.02), Longitude: floatPtr(0)},
		{DonorID: "DNR-A", BloodType: "A-", Latitude: floatPtr(0.01), Longitude: floatPtr(0)},
		{DonorID: "DNR-AB", BloodType: "AB+", Latitude: floatPtr(0.01), Longitude: floatPtr(0)},
	} {
		rec := f.do(t, http.MethodPost, "/donors", d)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := f.do(t, http.MethodPost, "/blood-banks", bloodBankRequest{
		BankID:    "BANK-1",
		Latitude:  floatPtr(0.03),
		Longitude: floatPtr(0),
		Inventory: []inventoryRequest{{BloodType: "O-", Units: 4}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/search/donors?bloodType=A-&lat=0&lng=0&radiusKm=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	donors := decodeBody[donorSearchResponse](t, rec)
	assert.Equal(t, "A-", donors.BloodType)
	require.Len(t, donors.Donors, 2)
	assert.Equal(t, "DNR-A", donors.Donors[0].DonorID)
	assert.Equal(t, "DNR-O", donors.Donors[1].DonorID)

	rec = f.do(t, http.MethodGet, "/search/donors?bloodType=A-&lat=0&lng=0&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[donorSearchResponse](t, rec).Donors, 1)

	rec = f.do(t, http.MethodGet, "/search/blood-banks?bloodType=B-&lat=0&lng=0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	banks := decodeBody[inventorySearchResponse](t, rec)
	require.Len(t, banks.Inventory, 1)
	assert.Equal(t, "BANK-1", banks.Inventory[0].BankID)
	assert.Equal(t, 4, banks.Inventory[0].UnitsAvailable)

	for _, target := range []string{
		"/search/donors?lat=0&lng=0",
		"/search/donors?bloodType=A-&lat=0",
		"/search/donors?bloodType=A-&lat=north&lng=0",
		"/search/donors?bloodType=A-&lat=0&lng=0&radiusKm=-2",
		"/search/donors?bloodType=A-&lat=0&lng=0&limit=-1",
		"/search/donors?bloodType=Q&lat=0&lng=0",
		"/search/donors?bloodType=A-&lat=100&lng=0",
	} {
		rec = f.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	rec = f.do(t, http.MethodGet, "/search/hospitals?bloodType=A-&lat=0&lng=0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPost, "/search/donors", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMatchRequestErrors(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/requests", bloodRequestPayload{
		RequestID: "REQ-NOLOC",
		BloodType: "B-",
		Units:     1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/requests/REQ-NOLOC/match", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/requests/REQ-NOLOC/match?maxDistanceKm=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/requests/REQ-NOLOC/match?maxDistanceKm=far", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/requests/REQ-MISSING/match", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/requests/REQ-NOLOC/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRequestValidation(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name string
		body bloodRequestPayload
	}{
		{"zero units", bloodRequestPayload{BloodType: "A+", Units: 0}},
		{"bad urgency", bloodRequestPayload{BloodType: "A+", Units: 1, Urgency: "whenever"}},
		{"expired", bloodRequestPayload{BloodType: "A+", Units: 1, ExpiresAt: testNow.Add(-time.Hour).Format(time.RFC3339)}},
		{"bad blood type", bloodRequestPayload{BloodType: "X", Units: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/requests", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestBloodBankAndDispatch(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/blood-banks", bloodBankRequest{
		BankID:    "BANK-1",
		Name:      "City Blood Bank",
		Latitude:  floatPtr(0.02),
		Longitude: floatPtr(0),
		Inventory: []inventoryRequest{{BloodType: "O+", Units: 3}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, id := range []string{"REQ-A", "REQ-B"} {
		rec = f.do(t, http.MethodPost, "/requests", bloodRequestPayload{
			RequestID: id,
			BloodType: "O+",
			Units:     2,
			Latitude:  floatPtr(0),
			Longitude: floatPtr(0),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/dispatch", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payload := decodeBody[dispatchResponse](t, rec)
	assert.Len(t, payload.Matched, 2)
	assert.Empty(t, payload.Errors)
	for _, m := range payload.Matched {
		require.Len(t, m.Inventory, 1)
		assert.Equal(t, "BANK-1", m.Inventory[0].BankID)
		assert.Equal(t, 2, m.Inventory[0].UnitsAllocated)
	}

	rec = f.do(t, http.MethodGet, "/dispatch", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpointAndRequestID(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/compatibility/A+", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-123", rec.Header().Get(requestIDHeader))

	rec = f.do(t, http.MethodGet, "/donors/DNR-1", nil)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `reddrop_api_requests_total{method="GET",route="/compatibility/{bloodType}",status="200"} 1`)
	assert.Contains(t, body, `route="/donors/{id}",status="404"`)
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/donors":                 "/donors",
		"/donors/D1":              "/donors/{id}",
		"/donors/D1/":             "/donors/{id}",
		"/donors/D1/availability": "/donors/{id}/availability",
		"/requests/R1/match":      "/requests/{id}/match",
		"/requests/R1/responses":  "/requests/{id}/responses",
		"/search/donors":          "/search/donors",
		"/search/blood-banks":     "/search/blood-banks",
		"/search/anything":        "other",
		"/compatibility/O-":       "/compatibility/{bloodType}",
		"/blood-banks":            "/blood-banks",
		"/healthz":                "/healthz",
		"/wp-admin":               "other",
	}
	for path, want := range cases {
		assert.Equal(t, want, routeLabel(path), path)
	}
}

func TestHealthz(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	healthy := NewRouter(logger, RouterDependencies{
		Health: CompositeHealth{"graph": ProbeFunc(func(context.Context) error { return nil })},
	})
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	degraded := NewRouter(logger, RouterDependencies{
		Health: CompositeHealth{
			"graph": ProbeFunc(func(context.Context) error { return nil }),
			"redis": ProbeFunc(func(context.Context) error { return errors.New("connection refused") }),
		},
	})
	rec = httptest.NewRecorder()
	degraded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	payload := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "degraded", payload["status"])
	assert.Equal(t, "redis: connection refused", payload["error"])
}
