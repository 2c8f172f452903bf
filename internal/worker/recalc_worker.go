package worker

import (
	"context"
	"fmt"
	"time"

	"kasbook/internal/events"
	"kasbook/internal/ledger"
	"kasbook/internal/log"
	"kasbook/internal/services"
)

// Recalculator is the part of the cash-book service the worker drives.
type Recalculator interface {
	RecalculateAll(ctx context.Context) (services.Result, error)
	Verify(ctx context.Context) ([]ledger.Drift, error)
}

// RecalcWorker runs recomputes requested over the queue and periodically
// checks that the stored book still matches a replay.
type RecalcWorker struct {
	book           Recalculator
	verifyInterval time.Duration
	repair         bool
}

// NewRecalcWorker returns a worker. With repair set, drift found by a
// verification pass triggers a full recompute.
func NewRecalcWorker(book Recalculator, verifyInterval time.Duration, repair bool) *RecalcWorker {
	return &RecalcWorker{
		book:           book,
		verifyInterval: verifyInterval,
		repair:         repair,
	}
}

// HandleRecalculateRequest processes a single recompute request from AMQP.
func (w *RecalcWorker) HandleRecalculateRequest(ctx context.Context, msg *events.RecalculateRequest) error {
	logger := log.FromContext(ctx).With(log.FieldOperation, log.OpConsume, "reason", msg.Reason)
	logger.InfoContext(ctx, "Processing recalculate request", "requested_at", msg.RequestedAt)

	res, err := w.book.RecalculateAll(ctx)
	if err != nil {
		return fmt.Errorf("recalculate cash book: %w", err)
	}

	logger.InfoContext(ctx, "Recalculate request completed", log.FieldEntries, res.Entries)
	return nil
}

// VerifyOnce replays the book and returns how many stored values drifted.
func (w *RecalcWorker) VerifyOnce(ctx context.Context) (int, error) {
	drifts, err := w.book.Verify(ctx)
	if err != nil {
		return 0, fmt.Errorf("verify cash book: %w", err)
	}
	if len(drifts) == 0 {
		return 0, nil
	}

	logger := log.FromContext(ctx).With(log.FieldOperation, log.OpVerify)
	first := drifts[0]
	logger.WarnContext(ctx, "Cash book drift detected",
		"drifts", len(drifts),
		"first_entry", first.EntryID,
		"first_field", first.Field.String(),
		"stored", first.Stored,
		"computed", first.Computed)

	if !w.repair {
		return len(drifts), nil
	}
	if _, err := w.book.RecalculateAll(ctx); err != nil {
		return len(drifts), fmt.Errorf("repair cash book: %w", err)
	}
	logger.InfoContext(ctx, "Cash book repaired by full recompute", "drifts", len(drifts))
	return len(drifts), nil
}

// StartupCheck verifies the book once before the worker starts consuming,
// recovering from writes made while it was down.
func (w *RecalcWorker) StartupCheck(ctx context.Context) error {
	logger := log.FromContext(ctx).With(log.FieldOperation, log.OpStartup)
	logger.InfoContext(ctx, "Performing startup verification...")
	n, err := w.VerifyOnce(ctx)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Startup verification completed", "drifts", n)
	return nil
}

// Run verifies the book every verifyInterval until ctx is cancelled.
// Failed passes are logged and retried on the next tick.
func (w *RecalcWorker) Run(ctx context.Context) error {
	if w.verifyInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(w.verifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.VerifyOnce(ctx); err != nil {
				log.FromContext(ctx).Failure(ctx, "Periodic verification failed", log.ErrorTypeDatabase, err,
					log.FieldOperation, log.OpVerify)
			}
		}
	}
}
