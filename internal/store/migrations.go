// Package store: versioned schema migrations. Mirrors the teacher's
// ALTER-based upgrade path: CREATE TABLE IF NOT EXISTS in schema.go
// covers new databases, and pendingMigrations carries columns added to
// tables that may already exist from an older schema version.
package store

import (
	"database/sql"
	"fmt"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/logging"
)

// Schema versions:
// v1: initial table set (plans, plan_versions, plan_items, material_master,
//     material_state, capacity_pool, roller_campaigns, risk_snapshots,
//     strategy_drafts, action_log, path_override_pending).
// v2: added plan_versions.revision for optimistic concurrency control.
// v3: added strategy_drafts.locked_at / locked_by lock-staleness columns.
const CurrentSchemaVersion = 3

// Migration adds a single column to a table if both the table exists and
// the column is missing.
type Migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []Migration{
	{"plan_versions", "revision", "INTEGER NOT NULL DEFAULT 0"},
	{"strategy_drafts", "locked_by", "TEXT NOT NULL DEFAULT ''"},
	{"strategy_drafts", "locked_at", "DATETIME"},
}

// RunMigrations applies pending ALTER-based migrations, tolerating a
// missing table (new database, already created by schema.go) or an
// already-present column (re-run against a current database).
func RunMigrations(db *sql.DB) error {
	log := logging.Get(logging.CategoryStore)
	applied, skipped := 0, 0

	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			skipped++
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			skipped++
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			log.Warn("migration failed (may already exist): %s.%s: %v", m.Table, m.Column, err)
			skipped++
			continue
		}
		log.Info("migration applied: %s.%s", m.Table, m.Column)
		applied++
	}

	log.Info("migrations complete: applied=%d skipped=%d", applied, skipped)
	return SetSchemaVersion(db, CurrentSchemaVersion)
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
	return err == nil && count > 0
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// GetSchemaVersion returns the last recorded schema version, or 0 if no
// schema_versions row has ever been written.
func GetSchemaVersion(db *sql.DB) int {
	if !tableExists(db, "schema_versions") {
		return 0
	}
	var version int
	if err := db.QueryRow(`SELECT version FROM schema_versions ORDER BY applied_at DESC LIMIT 1`).Scan(&version); err != nil {
		return 0
	}
	return version
}

// SetSchemaVersion records a new schema version row.
func SetSchemaVersion(db *sql.DB, version int) error {
	const createTable = `
		CREATE TABLE IF NOT EXISTS schema_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`
	if _, err := db.Exec(createTable); err != nil {
		return fmt.Errorf("create schema_versions table: %w", err)
	}
	_, err := db.Exec(`INSERT INTO schema_versions (version) VALUES (?)`, version)
	return err
}
