package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stash/internal/core"
	"stash/internal/export"
)

type ExportStore interface {
	ListPendingExport(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkExported(ctx context.Context, id int64) error
	MarkExportError(ctx context.Context, id int64) error
}

// Exporter drains pending transactions to the statement writer. A row
// that fails to append is marked with an error status and skipped; the
// ledger itself is never affected.
type Exporter struct {
	store     ExportStore
	writer    export.StatementWriter
	batchSize int
}

func NewExporter(store ExportStore, writer export.StatementWriter, batchSize int) *Exporter {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Exporter{
		store:     store,
		writer:    writer,
		batchSize: batchSize,
	}
}

// Drain exports one batch and returns how many rows were appended.
func (e *Exporter) Drain(ctx context.Context) (int, error) {
	pending, err := e.store.ListPendingExport(ctx, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending export: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	exported := 0
	for _, tx := range pending {
		ref, err := e.writer.Append(ctx, tx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to append transaction to statement",
				"transaction_id", tx.ID,
				"error", err)
			if markErr := e.store.MarkExportError(ctx, tx.ID); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark export error",
					"transaction_id", tx.ID,
					"error", markErr)
			}
			continue
		}
		if err := e.store.MarkExported(ctx, tx.ID); err != nil {
			// The row landed in the sheet but stays pending here; the
			// next drain will append it again. Duplicate statement rows
			// beat lost ones.
			slog.ErrorContext(ctx, "Failed to mark transaction exported",
				"transaction_id", tx.ID,
				"row_ref", ref,
				"error", err)
			continue
		}
		exported++
	}
	return exported, nil
}

// Run drains on a fixed interval until ctx is done.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := e.Drain(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Statement export drain failed", "error", err)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "Statement export drain completed", "exported", n)
			}
		}
	}
}
