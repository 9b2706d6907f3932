// Package store implements the relational store (C1): the durable record
// of messages, analyses, embedding references, sessions, operations,
// artifacts, patterns, facts, code elements, and documentation tasks.
// Backed by SQLite via modernc.org/sqlite (pure Go, no cgo), matching the
// teacher's WAL-mode, single-writer discipline in local_core.go.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"mira/internal/logging"
	"mira/internal/model"
)

// Store is the relational store capability described in spec.md §6.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex // guards critical sections that must not interleave with a suspension point
	path   string
}

// Open initializes (or re-opens) the SQLite-backed relational store at
// path, applying PRAGMAs and migrations matching the teacher's
// NewLocalStore.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: fmt.Errorf("creating directory: %w", err)}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	// Single-writer discipline: SQLite serializes writers regardless, but a
	// bounded pool keeps us honest about the "one logical connection"
	// policy in spec.md §5.
	db.SetMaxOpenConns(10)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			logging.Get(logging.CategoryStore).Warnw("pragma failed", "pragma", p, "err", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for packages (vectorstore) that share
// the same SQLite file for payload-filtered vector collections.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
