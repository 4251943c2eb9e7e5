// Package memory holds an in-memory StatementWriter used by tests and
// by local setups without a spreadsheet configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"stash/internal/core"
)

type Writer struct {
	mu   sync.Mutex
	rows []core.Transaction

	// FailNext makes the next Append return an error, for testing the
	// export error path.
	FailNext bool
}

func New() *Writer {
	return &Writer{}
}

func (w *Writer) Append(_ context.Context, t core.Transaction) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailNext {
		w.FailNext = false
		return "", fmt.Errorf("append transaction %d: writer unavailable", t.ID)
	}
	w.rows = append(w.rows, t)
	return fmt.Sprintf("row-%d", len(w.rows)), nil
}

func (w *Writer) Rows() []core.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]core.Transaction(nil), w.rows...)
}
