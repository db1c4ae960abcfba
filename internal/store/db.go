// Package store is the SQLite persistence layer for the scheduling engine:
// plans, versions, plan items, material master/state, capacity pools, roll
// campaigns, risk snapshots, strategy drafts, the action log, and pending
// path-rule overrides.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/logging"
)

// Store wraps a *sql.DB with the repository methods used by every engine
// package. A single *sql.DB is shared; SQLite's own locking plus
// busy_timeout serialize concurrent writers.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open opens (creating if necessary) the SQLite database at path, applies
// the teacher's PRAGMA tuning, ensures the schema, and runs migrations.
func Open(path string) (*Store, error) {
	log := logging.Get(logging.CategoryStore)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("pragma failed: %s: %v", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Info("store opened at %s", path)
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need a raw
// transaction (the recalc engine's per-run commit, for instance).
func (s *Store) DB() *sql.DB { return s.db }
