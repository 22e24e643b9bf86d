// Package worker keeps exported ledgers in step with transaction changes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kicho/internal/amqp"
	"kicho/internal/core"
	"kicho/internal/ledger"
	"kicho/internal/log"
	"kicho/internal/metrics"
	"kicho/internal/services"
	"kicho/internal/sheets"
)

// LedgerSource computes ledgers. *services.LedgerService implements it.
type LedgerSource interface {
	Summary(ctx context.Context, ownerID string, fiscalYear int) (services.Summary, error)
	FiscalYears(ctx context.Context, ownerID string) ([]int, error)
	Invalidate(ownerID string) int
}

// ExportWorker rewrites the exported ledger of every fiscal year touched by
// a transaction change.
type ExportWorker struct {
	ledgers LedgerSource
	writer  sheets.LedgerWriter
}

func NewExportWorker(ledgers LedgerSource, writer sheets.LedgerWriter) *ExportWorker {
	return &ExportWorker{ledgers: ledgers, writer: writer}
}

// HandleTransactionEvent is an amqp.Handler. Backend failures requeue the
// event; failures caused by stored data are marked permanent.
func (w *ExportWorker) HandleTransactionEvent(ctx context.Context, e *amqp.TransactionEvent) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"event_id", e.EventID,
		"action", e.Action,
		"owner_id", e.OwnerID,
		"fiscal_years", e.FiscalYears)

	// Writes happen in another process, so memoized summaries here are stale.
	w.ledgers.Invalidate(e.OwnerID)

	for _, fy := range e.FiscalYears {
		if err := w.Export(ctx, e.OwnerID, fy); err != nil {
			if isDataError(err) {
				return amqp.Permanent(err)
			}
			return err
		}
	}
	return nil
}

// isDataError reports failures caused by stored data rather than by the
// export backend. Retrying them yields the same result.
func isDataError(err error) bool {
	return errors.Is(err, ledger.ErrUnknownAccount) || core.IsValidationError(err)
}

// Export writes the current ledger of ownerID for fiscalYear.
func (w *ExportWorker) Export(ctx context.Context, ownerID string, fiscalYear int) error {
	sum, err := w.ledgers.Summary(ctx, ownerID, fiscalYear)
	if err != nil {
		metrics.LedgerExports.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("compute ledger %s/%d: %w", ownerID, fiscalYear, err)
	}

	ref, err := w.writer.WriteLedger(ctx, ownerID, fiscalYear, sum.Entries, sum.Totals)
	metrics.LedgerExports.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("write ledger %s/%d: %w", ownerID, fiscalYear, err)
	}

	fields := log.NewFields().WithLedger(ownerID, fiscalYear, len(sum.Entries))
	fields[log.FieldExportRef] = ref
	log.FromContext(ctx).LogAttrs(ctx, slog.LevelInfo, "Ledger exported", fields)
	return nil
}

// ExportOwner exports every fiscal year of ownerID, newest first, and
// returns how many were written. It is the recovery path for lost events.
// Years whose last transaction was deleted are not listed by FiscalYears;
// rewrite those with ExportYears.
func (w *ExportWorker) ExportOwner(ctx context.Context, ownerID string) (int, error) {
	years, err := w.ledgers.FiscalYears(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("list fiscal years: %w", err)
	}
	return w.ExportYears(ctx, ownerID, years)
}

// ExportYears exports the given fiscal years of ownerID. A year without
// transactions is written as an empty ledger.
func (w *ExportWorker) ExportYears(ctx context.Context, ownerID string, years []int) (int, error) {
	w.ledgers.Invalidate(ownerID)

	written := 0
	for _, fy := range years {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := w.Export(ctx, ownerID, fy); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
