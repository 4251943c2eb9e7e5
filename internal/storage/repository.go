// Package storage is the SQLite-backed ledger store. All mutations to
// balances go through CommitBatch so every batch is a single SQL
// transaction; readers treat the stored balance columns as
// authoritative.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stash/internal/core"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[string][]chan core.OwnerSnapshot
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Serialized writer; SQLite locks the whole file anyway
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:   db,
		subs: make(map[string][]chan core.OwnerSnapshot),
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
