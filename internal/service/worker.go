package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// TaskError accumulates the errors of a bulk ingest or dispatch run.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString(" ")
		b.WriteString(err.Error())
		b.WriteString(";")
	}
	return b.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *TaskError) Unwrap() []error {
	return e.Errors
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// BulkIngestor loads donor, bank and request datasets using a worker pool.
type BulkIngestor struct {
	service *MatchingService
	workers int
}

// NewBulkIngestor creates a new BulkIngestor instance with the provided concurrency.
func NewBulkIngestor(service *MatchingService, workers int) *BulkIngestor {
	if workers <= 0 {
		workers = 4
	}
	return &BulkIngestor{
		service: service,
		workers: workers,
	}
}

// IngestDonors upserts donors concurrently.
func (bi *BulkIngestor) IngestDonors(ctx context.Context, donors []DonorInput) error {
	return bi.run(ctx, len(donors), func(idx int) error {
		_, err := bi.service.UpsertDonor(ctx, donors[idx])
		bi.service.metrics.ObserveIngest("donor", err == nil)
		if err != nil {
			return fmt.Errorf("donor %q: %w", donors[idx].ID, err)
		}
		return nil
	})
}

// IngestBloodBanks upserts banks and their inventory concurrently.
func (bi *BulkIngestor) IngestBloodBanks(ctx context.Context, banks []BloodBankInput) error {
	return bi.run(ctx, len(banks), func(idx int) error {
		_, err := bi.service.UpsertBloodBank(ctx, banks[idx])
		bi.service.metrics.ObserveIngest("blood_bank", err == nil)
		if err != nil {
			return fmt.Errorf("blood bank %q: %w", banks[idx].ID, err)
		}
		return nil
	})
}

// IngestRequests creates pending requests concurrently.
func (bi *BulkIngestor) IngestRequests(ctx context.Context, requests []RequestInput) error {
	return bi.run(ctx, len(requests), func(idx int) error {
		_, err := bi.service.CreateRequest(ctx, requests[idx])
		bi.service.metrics.ObserveIngest("request", err == nil)
		if err != nil {
			return fmt.Errorf("request %q: %w", requests[idx].ID, err)
		}
		return nil
	})
}

func (bi *BulkIngestor) run(ctx context.Context, total int, workerFn func(idx int) error) error {
	if total == 0 {
		return nil
	}
	indexCh := make(chan int)
	errCh := make(chan error, total)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			if err := workerFn(idx); err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}

	for i := 0; i < bi.workers; i++ {
		wg.Add(1)
		go worker()
	}

	dispatched := 0
Loop:
	for ; dispatched < total; dispatched++ {
		select {
		case indexCh <- dispatched:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
	close(errCh)

	if dispatched < total {
		return ctx.Err()
	}

	var taskErr TaskError
	for err := range errCh {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		taskErr.append(err)
	}
	return taskErr.asError()
}
