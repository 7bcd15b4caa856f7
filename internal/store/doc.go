// Package store provides the SQL-backed connection the control engine reads
// from and writes to.
//
// The store owns two tables per deployment:
//   - Registry: which check ids apply to which partition
//   - Outcomes: one row per (partition..., check_id, entity_id, delivery_ref)
//
// Partition columns are configured per deployment (e.g. aar, skjema) and are
// created as TEXT columns leading both primary keys.
//
// # Drivers
//
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo, default)
//   - "sqlite":  modernc.org/sqlite (pure Go)
//   - "pgx":     github.com/jackc/pgx/v5/stdlib (Postgres)
//
// # Critical Patterns
//
// Every value is bound as a parameter. Statements arrive as queryir values and
// are compiled by querysql for the store's dialect; table and column names are
// validated identifiers, never user data.
//
// Every read and write receives the partition filter separately and ANDs it
// onto the statement, so a store shared by several engines never lets one
// partition see another's rows.
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
