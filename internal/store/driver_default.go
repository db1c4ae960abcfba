//go:build !sqlite_cgo

package store

import (
	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver used by Open. The default build
// uses the pure-Go modernc.org/sqlite driver, requiring no cgo toolchain.
const driverName = "sqlite"
