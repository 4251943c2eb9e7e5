// Package export defines the statement export port. Committed
// transactions are appended to an external statement, best-effort and
// decoupled from the ledger through the sync columns on the
// transaction row.
package export

import (
	"context"

	"stash/internal/core"
)

// StatementWriter appends one transaction to the owner's statement and
// returns an adapter-specific reference to the written row.
type StatementWriter interface {
	Append(ctx context.Context, t core.Transaction) (rowRef string, err error)
}
