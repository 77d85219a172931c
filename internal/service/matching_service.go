package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/matching"
	"github.com/vanshika/reddrop/backend/internal/reservation"
)

var (
	// ErrInvalidTransition is returned when a request cannot move to the
	// asked status from its current one.
	ErrInvalidTransition = errors.New("invalid request status transition")
	// ErrRequestExpired is returned when matching a request past its expiry.
	ErrRequestExpired = errors.New("request has expired")
	// ErrReservationLost is returned when a donor accepts a match after its
	// hold lapsed and another request claimed the donor.
	ErrReservationLost = errors.New("donor is held by another request")
)

// Repository is the storage contract required by the matching service.
type Repository interface {
	UpsertDonor(ctx context.Context, donor domain.Donor) error
	SetDonorAvailability(ctx context.Context, donorID string, availability domain.Availability, updatedAt time.Time) error
	GetDonor(ctx context.Context, donorID string) (domain.Donor, error)
	UpsertBloodBank(ctx context.Context, bank domain.BloodBank) error
	CreateRequest(ctx context.Context, req domain.BloodRequest) error
	GetRequest(ctx context.Context, requestID string) (domain.BloodRequest, error)
	ListRequests(ctx context.Context, statuses []domain.RequestStatus) ([]domain.BloodRequest, error)
	UpdateRequestStatus(ctx context.Context, requestID string, expected, status domain.RequestStatus, updatedAt time.Time) error
	RecordMatches(ctx context.Context, requestID string, records []domain.MatchRecord, matchedAt time.Time) error
	ListMatches(ctx context.Context, requestID string) ([]domain.MatchRecord, error)
	SetMatchResponse(ctx context.Context, requestID, donorID string, response domain.MatchResponse, respondedAt time.Time) error
}

// CandidateProvider returns donor and inventory snapshots for matching.
type CandidateProvider interface {
	FetchDonors(ctx context.Context, types []domain.BloodType, availableOnly bool) ([]domain.Donor, error)
	FetchInventory(ctx context.Context, types []domain.BloodType) ([]domain.InventoryLine, error)
}

// Recorder receives service-level measurements.
type Recorder interface {
	ObserveMatch(kind, outcome string, candidates int, dur time.Duration)
	ObserveExcluded(reason string)
	ObserveReservation(outcome string)
	ObserveTransition(status string)
	ObserveResponse(response string)
	ObserveIngest(entity string, ok bool)
}

type noopRecorder struct{}

func (noopRecorder) ObserveMatch(string, string, int, time.Duration) {}
func (noopRecorder) ObserveExcluded(string)                          {}
func (noopRecorder) ObserveReservation(string)                       {}
func (noopRecorder) ObserveTransition(string)                        {}
func (noopRecorder) ObserveResponse(string)                          {}
func (noopRecorder) ObserveIngest(string, bool)                      {}

// Config holds matching policy.
type Config struct {
	DefaultRadiusKm    float64
	ReservationTTL     time.Duration
	EnforceEligibility bool
}

// DefaultConfig mirrors the defaults of the config package.
func DefaultConfig() Config {
	return Config{
		DefaultRadiusKm:    20,
		ReservationTTL:     30 * time.Minute,
		EnforceEligibility: true,
	}
}

// MatchingService orchestrates registration, request lifecycle and matching.
// Persistence is delegated to the repository and candidate provider; ranking
// to the matching engine.
type MatchingService struct {
	repo       Repository
	candidates CandidateProvider
	engine     *matching.Engine
	reserver   reservation.Reserver
	cfg        Config
	logger     *slog.Logger
	metrics    Recorder
	nowFn      func() time.Time
	newID      func() string
}

// NewMatchingService constructs a MatchingService. A nil engine uses the
// default compatibility table and a nil reserver keeps reservations in
// process memory.
func NewMatchingService(repo Repository, candidates CandidateProvider, engine *matching.Engine, reserver reservation.Reserver, cfg Config) *MatchingService {
	if engine == nil {
		engine = matching.NewEngine(nil)
	}
	if reserver == nil {
		reserver = reservation.NewMemoryReserver()
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = DefaultConfig().ReservationTTL
	}
	return &MatchingService{
		repo:       repo,
		candidates: candidates,
		engine:     engine,
		reserver:   reserver,
		cfg:        cfg,
		logger:     slog.Default(),
		metrics:    noopRecorder{},
		nowFn:      time.Now,
		newID:      newRequestID,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *MatchingService) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// WithLogger replaces the default logger.
func (s *MatchingService) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger.With("component", "matching_service")
	}
}

// WithMetrics attaches a measurement sink.
func (s *MatchingService) WithMetrics(rec Recorder) {
	if rec != nil {
		s.metrics = rec
	}
}

func (s *MatchingService) now() time.Time {
	return s.nowFn().UTC()
}

// Engine exposes the engine so callers can reuse its table.
func (s *MatchingService) Engine() *matching.Engine {
	return s.engine
}

// CompatibleDonorsFor lists donor types that may give to recipient.
func (s *MatchingService) CompatibleDonorsFor(recipient string) ([]domain.BloodType, error) {
	bt, err := domain.ParseBloodType(recipient)
	if err != nil {
		return nil, err
	}
	set, err := s.engine.CompatibleDonorsFor(bt)
	if err != nil {
		return nil, err
	}
	return set.Types(), nil
}

// CompatibleRecipientsFor lists recipient types donor may give to.
func (s *MatchingService) CompatibleRecipientsFor(donor string) ([]domain.BloodType, error) {
	bt, err := domain.ParseBloodType(donor)
	if err != nil {
		return nil, err
	}
	set, err := s.engine.CompatibleRecipientsFor(bt)
	if err != nil {
		return nil, err
	}
	return set.Types(), nil
}

// UpsertDonor validates and stores a donor.
func (s *MatchingService) UpsertDonor(ctx context.Context, input DonorInput) (domain.Donor, error) {
	id := normalizeID(input.ID)
	if id == "" {
		return domain.Donor{}, &ValidationError{Reason: "donor id is required"}
	}
	bt, err := domain.ParseBloodType(input.BloodType)
	if err != nil {
		return domain.Donor{}, err
	}
	loc, err := normalizeLocation("location", input.Location)
	if err != nil {
		return domain.Donor{}, err
	}
	availability, err := normalizeAvailability(input.Availability)
	if err != nil {
		return domain.Donor{}, err
	}
	if input.TotalDonations < 0 {
		return domain.Donor{}, &ValidationError{Reason: "totalDonations must not be negative"}
	}

	last := utcPtr(input.LastDonationAt)
	donor := domain.Donor{
		ID:             id,
		Name:           sanitizeString(input.Name),
		BloodType:      bt,
		Location:       loc,
		Availability:   availability,
		LastDonationAt: last,
		NextEligibleAt: domain.NextEligibleDate(last),
		TotalDonations: input.TotalDonations,
		UpdatedAt:      s.now(),
	}
	if err := s.repo.UpsertDonor(ctx, donor); err != nil {
		return domain.Donor{}, err
	}
	return donor, nil
}

// GetDonor loads one donor.
func (s *MatchingService) GetDonor(ctx context.Context, donorID string) (domain.Donor, error) {
	return s.repo.GetDonor(ctx, normalizeID(donorID))
}

// SetDonorAvailability flips the donor's own availability flag. Going
// unavailable does not touch existing reservations; they lapse on their TTL.
func (s *MatchingService) SetDonorAvailability(ctx context.Context, donorID string, available bool) error {
	id := normalizeID(donorID)
	if id == "" {
		return &ValidationError{Reason: "donor id is required"}
	}
	availability := domain.Unavailable
	if available {
		availability = domain.Available
	}
	return s.repo.SetDonorAvailability(ctx, id, availability, s.now())
}

// UpsertBloodBank validates and stores a bank with its inventory.
func (s *MatchingService) UpsertBloodBank(ctx context.Context, input BloodBankInput) (domain.BloodBank, error) {
	id := normalizeID(input.ID)
	if id == "" {
		return domain.BloodBank{}, &ValidationError{Reason: "blood bank id is required"}
	}
	loc, err := normalizeLocation("location", input.Location)
	if err != nil {
		return domain.BloodBank{}, err
	}
	now := s.now()
	bank := domain.BloodBank{
		ID:            id,
		Name:          sanitizeString(input.Name),
		LicenseNumber: sanitizeString(input.LicenseNumber),
		Location:      loc,
		UpdatedAt:     now,
	}
	for i, in := range input.Inventory {
		bt, err := domain.ParseBloodType(in.BloodType)
		if err != nil {
			return domain.BloodBank{}, err
		}
		if in.Units < 0 {
			return domain.BloodBank{}, validationErrorf("inventory[%d]: units must not be negative", i)
		}
		lineID := normalizeID(in.ID)
		if lineID == "" {
			lineID = id + ":" + string(bt)
		}
		bank.Inventory = append(bank.Inventory, domain.InventoryLine{
			ID:           lineID,
			BankID:       id,
			BankName:     bank.Name,
			BankLocation: loc,
			BloodType:    bt,
			Units:        in.Units,
			ExpiresAt:    utcPtr(in.ExpiresAt),
			UpdatedAt:    now,
		})
	}
	if err := s.repo.UpsertBloodBank(ctx, bank); err != nil {
		return domain.BloodBank{}, err
	}
	return bank, nil
}
