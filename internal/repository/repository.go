package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/graph"
)

var (
	// ErrNotFound is returned when the addressed node does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict is returned when a status update finds the request in
	// a different state than expected.
	ErrStatusConflict = errors.New("request status changed concurrently")
	// ErrAlreadyExists is returned when creating a node whose id is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Repository persists donors, banks, requests and matches in the graph.
type Repository struct {
	client graph.Client
}

// New instantiates a Repository backed by the supplied graph client.
func New(client graph.Client) *Repository {
	return &Repository{client: client}
}

// UpsertDonor creates or refreshes a donor node.
func (r *Repository) UpsertDonor(ctx context.Context, donor domain.Donor) error {
	if donor.ID == "" {
		return errors.New("donor id is required")
	}
	params := map[string]any{
		"donorId": donor.ID,
		"props":   donorProperties(donor),
	}
	if _, err := r.client.ExecuteWrite(ctx, upsertDonorCypher, params); err != nil {
		return fmt.Errorf("upsert donor %s: %w", donor.ID, err)
	}
	return nil
}

// SetDonorAvailability flips the donor-owned availability flag.
func (r *Repository) SetDonorAvailability(ctx context.Context, donorID string, availability domain.Availability, updatedAt time.Time) error {
	params := map[string]any{
		"donorId":      donorID,
		"availability": string(availability),
		"updatedAt":    formatTime(updatedAt),
	}
	res, err := r.client.ExecuteWrite(ctx, setDonorAvailabilityCypher, params)
	if err != nil {
		return fmt.Errorf("set availability for donor %s: %w", donorID, err)
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("donor %s: %w", donorID, ErrNotFound)
	}
	return nil
}

// GetDonor loads a single donor.
func (r *Repository) GetDonor(ctx context.Context, donorID string) (domain.Donor, error) {
	res, err := r.client.ExecuteRead(ctx, getDonorCypher, map[string]any{"donorId": donorID})
	if err != nil {
		return domain.Donor{}, fmt.Errorf("get donor %s: %w", donorID, err)
	}
	rec := res.First()
	if rec == nil {
		return domain.Donor{}, fmt.Errorf("donor %s: %w", donorID, ErrNotFound)
	}
	return decodeDonor(rec), nil
}

// FetchDonors returns a donor snapshot restricted to the given blood types.
// Records are returned as stored; validation is left to the matching engine
// so that one malformed donor does not fail the whole snapshot.
func (r *Repository) FetchDonors(ctx context.Context, types []domain.BloodType, availableOnly bool) ([]domain.Donor, error) {
	if len(types) == 0 {
		return nil, nil
	}
	params := map[string]any{
		"bloodTypes":    bloodTypeParams(types),
		"availableOnly": availableOnly,
	}
	res, err := r.client.ExecuteRead(ctx, fetchDonorsCypher, params)
	if err != nil {
		return nil, fmt.Errorf("fetch donors: %w", err)
	}
	donors := make([]domain.Donor, 0, len(res.Records))
	for _, rec := range res.Records {
		donors = append(donors, decodeDonor(rec))
	}
	return donors, nil
}

// UpsertBloodBank stores a bank and links each inventory line to it.
func (r *Repository) UpsertBloodBank(ctx context.Context, bank domain.BloodBank) error {
	if bank.ID == "" {
		return errors.New("blood bank id is required")
	}
	props := map[string]any{
		"name":          bank.Name,
		"licenseNumber": bank.LicenseNumber,
		"updatedAt":     formatTime(bank.UpdatedAt),
	}
	coordinateProps(props, bank.Location)

	params := map[string]any{
		"bankId":    bank.ID,
		"props":     props,
		"inventory": inventoryParams(bank.Inventory),
	}
	if _, err := r.client.ExecuteWrite(ctx, upsertBloodBankCypher, params); err != nil {
		return fmt.Errorf("upsert blood bank %s: %w", bank.ID, err)
	}
	return nil
}

// FetchInventory returns in-stock inventory lines of the given types, with
// their bank's name and location denormalized onto each line.
func (r *Repository) FetchInventory(ctx context.Context, types []domain.BloodType) ([]domain.InventoryLine, error) {
	if len(types) == 0 {
		return nil, nil
	}
	res, err := r.client.ExecuteRead(ctx, fetchInventoryCypher, map[string]any{
		"bloodTypes": bloodTypeParams(types),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch inventory: %w", err)
	}
	lines := make([]domain.InventoryLine, 0, len(res.Records))
	for _, rec := range res.Records {
		lines = append(lines, domain.InventoryLine{
			ID:           toString(rec["lineId"]),
			BankID:       toString(rec["bankId"]),
			BankName:     toString(rec["bankName"]),
			BankLocation: toCoordinate(rec["latitude"], rec["longitude"]),
			BloodType:    domain.BloodType(toString(rec["bloodType"])),
			Units:        toInt(rec["units"]),
			ExpiresAt:    toTimePtr(rec["expiresAt"]),
			UpdatedAt:    toTime(rec["updatedAt"]),
		})
	}
	return lines, nil
}

// EnsureSchema creates the uniqueness constraints and lookup indexes the
// queries rely on. It is safe to call on every start.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// VerifyConnectivity lets the repository double as a health probe target.
func (r *Repository) VerifyConnectivity(ctx context.Context) error {
	return r.client.VerifyConnectivity(ctx)
}

func donorProperties(d domain.Donor) map[string]any {
	props := map[string]any{
		"name":           d.Name,
		"bloodType":      string(d.BloodType),
		"availability":   string(d.Availability),
		"lastDonationAt": formatTimePtr(d.LastDonationAt),
		"nextEligibleAt": formatTimePtr(d.NextEligibleAt),
		"totalDonations": d.TotalDonations,
		"updatedAt":      formatTime(d.UpdatedAt),
	}
	coordinateProps(props, d.Location)
	return props
}

func decodeDonor(rec graph.Record) domain.Donor {
	return domain.Donor{
		ID:             toString(rec["donorId"]),
		Name:           toString(rec["name"]),
		BloodType:      domain.BloodType(toString(rec["bloodType"])),
		Location:       toCoordinate(rec["latitude"], rec["longitude"]),
		Availability:   domain.Availability(toString(rec["availability"])),
		LastDonationAt: toTimePtr(rec["lastDonationAt"]),
		NextEligibleAt: toTimePtr(rec["nextEligibleAt"]),
		TotalDonations: toInt(rec["totalDonations"]),
		UpdatedAt:      toTime(rec["updatedAt"]),
	}
}

func inventoryParams(lines []domain.InventoryLine) []map[string]any {
	result := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		result = append(result, map[string]any{
			"id": line.ID,
			"props": map[string]any{
				"bloodType": string(line.BloodType),
				"units":     line.Units,
				"expiresAt": formatTimePtr(line.ExpiresAt),
				"updatedAt": formatTime(line.UpdatedAt),
			},
		})
	}
	return result
}

func bloodTypeParams(types []domain.BloodType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
