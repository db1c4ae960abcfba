//go:build sqlite_cgo

package store

// Building with -tags sqlite_cgo swaps the pure-Go modernc.org/sqlite
// driver for the cgo-backed mattn/go-sqlite3 one. The teacher carries
// both drivers in its own go.mod; this mirrors that dual-driver posture
// for operators who prefer a cgo build.

import (
	"database/sql"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// driverName is the database/sql driver used by Open.
const driverName = "sqlite3_cgo"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{})
}
