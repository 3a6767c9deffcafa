package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// Worker mirrors added expenses to an external sheet. It consumes
// expense-added events and periodically re-checks the database for rows the
// events may have missed.
type Worker struct {
	storage   *storage.SQLiteRepository
	writer    sheets.ExpenseWriter
	batchSize int
	logger    *log.Logger
}

func New(storage *storage.SQLiteRepository, writer sheets.ExpenseWriter, batchSize int, logger *log.Logger) *Worker {
	return &Worker{
		storage:   storage,
		writer:    writer,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes expense events and runs the periodic resync until ctx ends.
func (w *Worker) Run(ctx context.Context, client *amqp.Client, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.ConsumeExpenseAdded(ctx, func(msg *amqp.ExpenseAddedMessage) error {
			return w.HandleExpenseAdded(ctx, msg)
		})
	})

	g.Go(func() error {
		// Catch up on anything missed while the worker was down.
		if err := w.ProcessPending(ctx); err != nil {
			w.logger.Error("startup resync failed", log.FieldError, err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ProcessPending(ctx); err != nil {
					w.logger.Error("periodic resync failed", log.FieldError, err)
				}
			}
		}
	})

	return g.Wait()
}

// HandleExpenseAdded mirrors a single expense from an event. A missing
// expense is dropped rather than requeued; it was deleted before the worker
// got to it.
func (w *Worker) HandleExpenseAdded(ctx context.Context, msg *amqp.ExpenseAddedMessage) error {
	w.logger.Info("processing expense event",
		log.FieldExpenseID, msg.ExpenseID,
		log.FieldUserID, msg.UserID,
		"source", msg.Source)

	expense, err := w.storage.GetExpense(ctx, msg.UserID, msg.ExpenseID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			w.logger.Warn("expense gone before mirror, dropping event",
				log.FieldExpenseID, msg.ExpenseID)
			return nil
		}
		return fmt.Errorf("get expense: %w", err)
	}

	return w.mirror(ctx, expense)
}

// ProcessPending mirrors expenses that have no event delivered yet. This is
// the backup path for lost messages.
func (w *Worker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncExpenses(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	w.logger.Info("processing pending expenses", "count", len(pending))

	for i := range pending {
		if err := w.mirror(ctx, &pending[i]); err != nil {
			w.logger.Error("failed to mirror pending expense",
				log.FieldExpenseID, pending[i].ID,
				log.FieldError, err)
		}
	}
	return nil
}

func (w *Worker) mirror(ctx context.Context, e *core.Expense) error {
	category := ""
	if e.CategoryID != nil {
		cat, err := w.storage.GetCategory(ctx, e.UserID, *e.CategoryID)
		switch {
		case err == nil:
			category = cat.Name
		case errors.Is(err, core.ErrNotFound):
			// Category deleted after the expense; mirror it uncategorized.
		default:
			return fmt.Errorf("resolve category: %w", err)
		}
	}

	ref, err := w.writer.Append(ctx, *e, category)
	if err != nil {
		if markErr := w.storage.MarkExpenseSyncError(ctx, e.ID); markErr != nil {
			w.logger.Error("failed to mark sync error", log.FieldExpenseID, e.ID, log.FieldError, markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.storage.MarkExpenseSynced(ctx, e.ID); err != nil {
		// The row is on the sheet; only the bookkeeping failed.
		w.logger.Error("failed to mark as synced", log.FieldExpenseID, e.ID, log.FieldError, err)
	}

	w.logger.Info("mirrored expense",
		log.FieldExpenseID, e.ID,
		log.FieldUserID, e.UserID,
		"sheet_ref", ref)
	return nil
}
