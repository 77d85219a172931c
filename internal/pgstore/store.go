// Package pgstore reads donor and inventory snapshots from the hosted
// Postgres schema (donor_profiles, blood_inventory and their profile tables).
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

const fetchDonorsSQL = `
SELECT dp.id,
       TRIM(CONCAT_WS(' ', p.first_name, p.last_name)),
       dp.blood_type::text,
       p.latitude,
       p.longitude,
       dp.availability::text,
       dp.last_donation_date,
       dp.next_eligible_date,
       dp.total_donations,
       dp.updated_at
FROM donor_profiles dp
LEFT JOIN profiles p ON p.user_id = dp.user_id
WHERE dp.blood_type::text = ANY($1)
  AND (NOT $2 OR dp.availability = 'available')
ORDER BY dp.id`

const fetchInventorySQL = `
SELECT bi.id,
       bb.id,
       bb.bank_name,
       p.latitude,
       p.longitude,
       bi.blood_type::text,
       bi.units_available,
       bi.expiry_date,
       bi.last_updated
FROM blood_inventory bi
JOIN blood_bank_profiles bb ON bb.id = bi.blood_bank_id
LEFT JOIN profiles p ON p.user_id = bb.user_id
WHERE bi.blood_type::text = ANY($1)
  AND COALESCE(bi.units_available, 0) > 0
ORDER BY bb.id, bi.id`

// querier is the subset of pgxpool.Pool the store needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store is a read-only candidate provider over Postgres.
type Store struct {
	db    querier
	ping  func(context.Context) error
	close func()
}

// Options configures the connection pool.
type Options struct {
	DSN      string
	MaxConns int32
}

// Open connects a pool and pings it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("missing postgres dsn")
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: pool, ping: pool.Ping, close: pool.Close}, nil
}

// Ping checks the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// FetchDonors returns donors of the given blood types.
func (s *Store) FetchDonors(ctx context.Context, types []domain.BloodType, availableOnly bool) ([]domain.Donor, error) {
	if len(types) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, fetchDonorsSQL, typeArgs(types), availableOnly)
	if err != nil {
		return nil, fmt.Errorf("query donors: %w", err)
	}
	defer rows.Close()

	var donors []domain.Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		donors = append(donors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donors: %w", err)
	}
	return donors, nil
}

// FetchInventory returns in-stock inventory lines of the given blood types.
func (s *Store) FetchInventory(ctx context.Context, types []domain.BloodType) ([]domain.InventoryLine, error) {
	if len(types) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, fetchInventorySQL, typeArgs(types))
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var lines []domain.InventoryLine
	for rows.Next() {
		line, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return lines, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDonor(row scanner) (domain.Donor, error) {
	var (
		d            domain.Donor
		bloodType    string
		lat, lng     *float64
		availability *string
		total        *int32
		updatedAt    *time.Time
	)
	if err := row.Scan(&d.ID, &d.Name, &bloodType, &lat, &lng, &availability,
		&d.LastDonationAt, &d.NextEligibleAt, &total, &updatedAt); err != nil {
		return domain.Donor{}, err
	}
	d.BloodType = domain.BloodType(bloodType)
	d.Location = coordinate(lat, lng)
	if availability != nil {
		d.Availability = domain.Availability(*availability)
	} else {
		d.Availability = domain.Unavailable
	}
	if total != nil {
		d.TotalDonations = int(*total)
	}
	if updatedAt != nil {
		d.UpdatedAt = updatedAt.UTC()
	}
	return d, nil
}

func scanInventory(row scanner) (domain.InventoryLine, error) {
	var (
		line      domain.InventoryLine
		bloodType string
		lat, lng  *float64
		units     *int32
		updatedAt *time.Time
	)
	if err := row.Scan(&line.ID, &line.BankID, &line.BankName, &lat, &lng,
		&bloodType, &units, &line.ExpiresAt, &updatedAt); err != nil {
		return domain.InventoryLine{}, err
	}
	line.BloodType = domain.BloodType(bloodType)
	line.BankLocation = coordinate(lat, lng)
	if units != nil {
		line.Units = int(*units)
	}
	if updatedAt != nil {
		line.UpdatedAt = updatedAt.UTC()
	}
	return line, nil
}

func coordinate(lat, lng *float64) *domain.Coordinate {
	if lat == nil || lng == nil {
		return nil
	}
	return &domain.Coordinate{Latitude: *lat, Longitude: *lng}
}

func typeArgs(types []domain.BloodType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
