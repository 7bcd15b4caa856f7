package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/roach88/controls/internal/querysql"
)

// Supported database/sql driver names.
const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// DefaultDriver is used when no driver is configured.
const DefaultDriver = DriverSQLite3

// Store is a database/sql connection implementing the engine's Connection.
// It is safe for concurrent use by several engines on disjoint partitions.
type Store struct {
	db       *sql.DB
	driver   string
	compiler *querysql.SQLCompiler
}

// DialectFor maps a driver name to its SQL dialect.
func DialectFor(driver string) (querysql.Dialect, error) {
	switch driver {
	case DriverSQLite3, DriverSQLite:
		return querysql.SQLite, nil
	case DriverPostgres:
		return querysql.Postgres, nil
	default:
		return 0, fmt.Errorf("unsupported driver %q (want %s, %s or %s)", driver, DriverSQLite3, DriverSQLite, DriverPostgres)
	}
}

// Open connects to a database with the given driver and DSN.
// SQLite databases are created if missing and configured with the pragmas
// listed in the package documentation.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty DSN for driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == querysql.SQLite {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	return &Store{db: db, driver: driver, compiler: querysql.NewSQLCompiler(dialect)}, nil
}

// OpenSQLite opens (or creates) a SQLite database file with the default driver.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return Open(ctx, DriverSQLite3, path)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Dialect returns the SQL dialect statements are compiled for.
func (s *Store) Dialect() querysql.Dialect {
	return s.compiler.Dialect
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
