package services

import (
	"context"
	"encoding/json"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/assistant"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// EventPublisher emits expense events to downstream consumers. A nil
// publisher disables notifications; writes still succeed.
type EventPublisher interface {
	PublishExpenseAdded(ctx context.Context, expenseID, userID int64, source string) error
}

// ExpenseService orchestrates expense writes across SQLite and the event
// publisher. Category ownership is verified here so handlers and the chat
// pipeline share one rule.
type ExpenseService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	logger    *log.Logger
}

func NewExpenseService(storage *storage.SQLiteRepository, publisher EventPublisher, logger *log.Logger) *ExpenseService {
	return &ExpenseService{
		storage:   storage,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentExpense),
	}
}

// CreateExpense saves an expense and publishes an expense-added event.
// Publish failures are logged, not returned; the local write is the source
// of truth.
func (s *ExpenseService) CreateExpense(ctx context.Context, e *core.Expense, source string) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.checkCategory(ctx, e.UserID, e.CategoryID); err != nil {
		return err
	}
	if err := s.storage.CreateExpense(ctx, e); err != nil {
		return fmt.Errorf("save expense: %w", err)
	}
	s.publishAdded(ctx, e.ID, e.UserID, source)
	return nil
}

// UpdateExpense applies changes to an existing expense after re-checking
// category ownership.
func (s *ExpenseService) UpdateExpense(ctx context.Context, e *core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.checkCategory(ctx, e.UserID, e.CategoryID); err != nil {
		return err
	}
	return s.storage.UpdateExpense(ctx, e)
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, userID, id int64) error {
	return s.storage.DeleteExpense(ctx, userID, id)
}

// PublishTurnActions publishes one expense-added event per action recorded
// during a chat turn. Best effort; the reply has already been produced.
func (s *ExpenseService) PublishTurnActions(ctx context.Context, userID int64, actions []assistant.Action) {
	for _, action := range actions {
		if action.Type != assistant.ActionExpenseAdded {
			continue
		}
		var payload struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(action.Data, &payload); err != nil || payload.ID == 0 {
			s.logger.Warn("skipping action with no expense id", log.FieldUserID, userID, log.FieldError, err)
			continue
		}
		s.publishAdded(ctx, payload.ID, userID, amqp.SourceChat)
	}
}

// checkCategory returns core.ErrNotFound when the category does not exist
// or belongs to another user.
func (s *ExpenseService) checkCategory(ctx context.Context, userID int64, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	if _, err := s.storage.GetCategory(ctx, userID, *categoryID); err != nil {
		return err
	}
	return nil
}

func (s *ExpenseService) publishAdded(ctx context.Context, expenseID, userID int64, source string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseAdded(ctx, expenseID, userID, source); err != nil {
		s.logger.Error("failed to publish expense event",
			log.FieldExpenseID, expenseID,
			log.FieldUserID, userID,
			log.FieldError, err)
	}
}
