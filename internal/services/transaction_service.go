// Package services orchestrates storage, the ledger cache and event
// publishing for transaction writes and ledger reads.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"kicho/internal/amqp"
	"kicho/internal/core"
	"kicho/internal/log"
	"kicho/internal/metrics"
	"kicho/internal/storage"
)

// TransactionStore is the persistence used by TransactionService.
type TransactionStore interface {
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	CreateTransaction(ctx context.Context, t core.Transaction) error
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, id string) error
	GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]core.Transaction, error)
}

// EventPublisher announces transaction changes. *amqp.Client implements it.
type EventPublisher interface {
	PublishTransactionChanged(ctx context.Context, e *amqp.TransactionEvent) error
}

// Invalidator drops memoized ledger data of an owner.
type Invalidator interface {
	Invalidate(ownerID string) int
}

// TransactionService validates and stores transactions, then keeps derived
// ledger data in step with the change.
type TransactionService struct {
	store     TransactionStore
	calendar  core.FiscalCalendar
	ledger    Invalidator
	publisher EventPublisher
	newID     func() string
}

// NewTransactionService wires the service. ledger and publisher may be nil.
func NewTransactionService(store TransactionStore, calendar core.FiscalCalendar, ledger Invalidator, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		store:     store,
		calendar:  calendar,
		ledger:    ledger,
		publisher: publisher,
		newID:     uuid.NewString,
	}
}

// Create stores t for ownerID and returns it with ID and fiscal fields set.
func (s *TransactionService) Create(ctx context.Context, ownerID string, t core.Transaction) (core.Transaction, error) {
	if err := s.prepare(ctx, ownerID, &t); err != nil {
		return core.Transaction{}, err
	}
	t.ID = s.newID()

	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	logTransaction(ctx, "Transaction created", t)

	s.changed(ctx, amqp.ActionCreated, ownerID, t.ID, t.FiscalYear)
	return t, nil
}

// Update replaces transaction id of ownerID with t.
func (s *TransactionService) Update(ctx context.Context, ownerID, id string, t core.Transaction) (core.Transaction, error) {
	prev, err := s.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if err := s.prepare(ctx, ownerID, &t); err != nil {
		return core.Transaction{}, err
	}
	t.ID = id

	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}
	logTransaction(ctx, "Transaction updated", t)

	// Moving a transaction across fiscal years changes both ledgers.
	s.changed(ctx, amqp.ActionUpdated, ownerID, id, prev.FiscalYear, t.FiscalYear)
	return t, nil
}

// Delete removes transaction id of ownerID.
func (s *TransactionService) Delete(ctx context.Context, ownerID, id string) error {
	prev, err := s.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", id, err)
	}
	if err := s.store.DeleteTransaction(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Transaction deleted", "owner_id", ownerID, "transaction_id", id)

	s.changed(ctx, amqp.ActionDeleted, ownerID, id, prev.FiscalYear)
	return nil
}

func (s *TransactionService) Get(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, ownerID, id)
}

func (s *TransactionService) List(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, ownerID, f)
}

// prepare validates t, checks its account and stamps owner and fiscal fields.
func (s *TransactionService) prepare(ctx context.Context, ownerID string, t *core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := s.store.GetAccount(ctx, t.AccountID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("account %d: %w", t.AccountID, core.ErrInvalidAccount)
		}
		return fmt.Errorf("get account %d: %w", t.AccountID, err)
	}
	t.OwnerID = ownerID
	s.calendar.Stamp(t)
	return nil
}

// changed invalidates cached ledgers and publishes the event. The write has
// already been committed, so publish failures are only logged.
func (s *TransactionService) changed(ctx context.Context, action, ownerID, id string, fiscalYears ...int) {
	if s.ledger != nil {
		s.ledger.Invalidate(ownerID)
	}
	if s.publisher == nil {
		return
	}

	err := s.publisher.PublishTransactionChanged(ctx, amqp.NewTransactionEvent(action, ownerID, id, fiscalYears...))
	metrics.EventsPublished.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"owner_id", ownerID,
			"transaction_id", id,
			"action", action,
			"error", err)
	}
}

func logTransaction(ctx context.Context, msg string, t core.Transaction) {
	fields := log.NewFields().WithTransaction(t.OwnerID, t.ID, string(t.Type), t.AccountID, t.Amount.String())
	fields[log.FieldFiscalYear] = t.FiscalYear
	log.FromContext(ctx).LogAttrs(ctx, slog.LevelInfo, msg, fields)
}
