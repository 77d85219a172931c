package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

func TestBulkIngestor_IngestDonors(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, DefaultConfig())
	inputs := make([]DonorInput, 0, 25)
	for i := 0; i < 24; i++ {
		inputs = append(inputs, DonorInput{ID: fmt.Sprintf("D-%02d", i), BloodType: "O+", Location: kmNorth(float64(i))})
	}
	inputs = append(inputs, DonorInput{ID: "D-bad", BloodType: "Q-"})

	err := NewBulkIngestor(f.svc, 4).IngestDonors(context.Background(), inputs)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Len(t, taskErr.Errors, 1)
	assert.Contains(t, taskErr.Error(), "D-bad")
	var btErr *domain.InvalidBloodTypeError
	assert.ErrorAs(t, err, &btErr)

	assert.Len(t, f.repo.donors, 24)
	assert.Equal(t, 24, f.metrics.ingested["donor:true"])
	assert.Equal(t, 1, f.metrics.ingested["donor:false"])
}

func TestBulkIngestor_IngestBanksAndRequests(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, DefaultConfig())
	ingestor := NewBulkIngestor(f.svc, 0)

	require.NoError(t, ingestor.IngestBloodBanks(context.Background(), []BloodBankInput{
		{ID: "B-1", Location: kmNorth(1), Inventory: []InventoryInput{{BloodType: "A+", Units: 2}}},
		{ID: "B-2", Location: kmNorth(2)},
	}))
	assert.Len(t, f.repo.banks, 2)

	require.NoError(t, ingestor.IngestRequests(context.Background(), []RequestInput{
		{ID: "R-1", BloodType: "A+", Units: 1},
		{ID: "R-2", BloodType: "B-", Units: 2, Urgency: "critical"},
	}))
	assert.Len(t, f.repo.requests, 2)
}

func TestBulkIngestor_PropagatesRepositoryErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, DefaultConfig())
	boom := errors.New("write failed")
	f.repo.donorErr = boom

	err := NewBulkIngestor(f.svc, 2).IngestDonors(context.Background(), []DonorInput{
		{ID: "D-1", BloodType: "A+"},
		{ID: "D-2", BloodType: "A+"},
	})
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Len(t, taskErr.Errors, 2)
	assert.ErrorIs(t, err, boom)
}

func TestBulkIngestor_CancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := make([]DonorInput, 100)
	for i := range inputs {
		inputs[i] = DonorInput{ID: fmt.Sprintf("D-%d", i), BloodType: "AB-"}
	}
	err := NewBulkIngestor(f.svc, 3).IngestDonors(ctx, inputs)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(f.repo.donors), 100)
}

func TestBulkIngestor_EmptyInput(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	require.NoError(t, NewBulkIngestor(f.svc, 2).IngestDonors(context.Background(), nil))
}
