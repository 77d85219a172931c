package pgstore

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

type fakeRows struct {
	rows    [][]any
	idx     int
	err     error
	scanErr error
	closed  bool
}

func (f *fakeRows) Close()                                       { f.closed = true }
func (f *fakeRows) Err() error                                   { return f.err }
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Next() bool {
	if f.idx >= len(f.rows) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeRows) Values() ([]any, error) {
	return f.rows[f.idx-1], nil
}

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	row := f.rows[f.idx-1]
	if len(row) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}

type fakeQuerier struct {
	rows *fakeRows
	err  error
	sql  string
	args []any
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql = sql
	q.args = args
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func ptr[T any](v T) *T { return &v }

func TestStore_FetchDonors(t *testing.T) {
	last := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := &fakeRows{rows: [][]any{
		{"D-1", "Asha Rao", "O-", ptr(12.97), ptr(77.59), ptr("available"), &last, (*time.Time)(nil), ptr(int32(3)), ptr(last)},
		{"D-2", "", "A-", nil, nil, nil, nil, nil, nil, nil},
	}}
	q := &fakeQuerier{rows: rows}
	store := &Store{db: q}

	donors, err := store.FetchDonors(context.Background(), []domain.BloodType{domain.ONegative, domain.ANegative}, true)
	require.NoError(t, err)
	require.Len(t, donors, 2)
	assert.True(t, rows.closed)

	assert.Equal(t, fetchDonorsSQL, q.sql)
	assert.Equal(t, []any{[]string{"O-", "A-"}, true}, q.args)

	assert.Equal(t, "Asha Rao", donors[0].Name)
	assert.Equal(t, domain.Available, donors[0].Availability)
	require.NotNil(t, donors[0].Location)
	assert.Equal(t, 77.59, donors[0].Location.Longitude)
	assert.Equal(t, 3, donors[0].TotalDonations)
	assert.Equal(t, &last, donors[0].LastDonationAt)

	assert.Nil(t, donors[1].Location)
	assert.Equal(t, domain.Unavailable, donors[1].Availability)
}

func TestStore_FetchInventory(t *testing.T) {
	expiry := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	rows := &fakeRows{rows: [][]any{
		{"L-1", "B-1", "City Bank", ptr(1.0), ptr(2.0), "AB-", ptr(int32(6)), &expiry, (*time.Time)(nil)},
	}}
	store := &Store{db: &fakeQuerier{rows: rows}}

	lines, err := store.FetchInventory(context.Background(), []domain.BloodType{domain.ABNegative})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "City Bank", lines[0].BankName)
	assert.Equal(t, 6, lines[0].Units)
	assert.Equal(t, &expiry, lines[0].ExpiresAt)
	assert.True(t, lines[0].UpdatedAt.IsZero())
}

func TestStore_Errors(t *testing.T) {
	boom := errors.New("connection reset")

	store := &Store{db: &fakeQuerier{err: boom}}
	_, err := store.FetchDonors(context.Background(), []domain.BloodType{domain.APositive}, false)
	require.ErrorIs(t, err, boom)

	store = &Store{db: &fakeQuerier{rows: &fakeRows{rows: [][]any{{"x"}}, scanErr: boom}}}
	_, err = store.FetchInventory(context.Background(), []domain.BloodType{domain.APositive})
	require.ErrorIs(t, err, boom)

	store = &Store{db: &fakeQuerier{rows: &fakeRows{err: boom}}}
	_, err = store.FetchDonors(context.Background(), []domain.BloodType{domain.APositive}, false)
	require.ErrorIs(t, err, boom)
}

func TestStore_EmptyTypesSkipsQuery(t *testing.T) {
	q := &fakeQuerier{}
	store := &Store{db: q}

	donors, err := store.FetchDonors(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Nil(t, donors)
	assert.Empty(t, q.sql)
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	require.Error(t, err)

	_, err = Open(context.Background(), Options{DSN: "://not a dsn"})
	require.Error(t, err)
}
