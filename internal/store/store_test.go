package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/querysql"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.Driver() != DriverSQLite3 {
		t.Errorf("Driver() = %q, want %q", s.Driver(), DriverSQLite3)
	}
	if s.Dialect() != querysql.SQLite {
		t.Errorf("Dialect() = %v, want sqlite", s.Dialect())
	}
}

func TestOpen_DefaultDriver(t *testing.T) {
	s, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if s.Driver() != DefaultDriver {
		t.Errorf("Driver() = %q, want %q", s.Driver(), DefaultDriver)
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "whatever")
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOpen_RejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), DriverSQLite3, "  ")
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestDialectFor(t *testing.T) {
	tests := map[string]querysql.Dialect{
		DriverSQLite3:  querysql.SQLite,
		DriverSQLite:   querysql.SQLite,
		DriverPostgres: querysql.Postgres,
	}
	for driver, want := range tests {
		got, err := DialectFor(driver)
		if err != nil {
			t.Fatalf("DialectFor(%q) failed: %v", driver, err)
		}
		if got != want {
			t.Errorf("DialectFor(%q) = %v, want %v", driver, got, want)
		}
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var timeout int
	if err := s.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("query busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestOpen_PureGoDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "modernc.db"))
	if err != nil {
		t.Fatalf("Open(sqlite) failed: %v", err)
	}
	defer s.Close()

	layout := model.DefaultLayout()
	p := model.MustPartition("aar", "2024")
	if err := s.EnsureSchema(ctx, layout, p.Columns()); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}

	n, err := s.Insert(ctx, layout.OutcomesTable, outcomeRows("2024", 3))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Insert() = %d, want 3", n)
	}

	got, err := s.Query(ctx, persistedSelect(layout), p.Select())
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if got.Len() != 3 {
		t.Errorf("Query() returned %d rows, want 3", got.Len())
	}
}
