package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/controls/internal/model"
)

// EnsureSchema creates the registry and outcomes tables for the given
// partition columns if they do not exist yet. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context, layout model.Layout, partitionColumns []string) error {
	stmts, err := SchemaDDL(layout, partitionColumns)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// SchemaDDL returns the CREATE statements for layout. The same text is valid
// for SQLite and Postgres: SQLite gives BOOLEAN numeric affinity.
func SchemaDDL(layout model.Layout, partitionColumns []string) ([]string, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if len(partitionColumns) == 0 {
		return nil, fmt.Errorf("at least one partition column is required")
	}
	for _, c := range partitionColumns {
		if !model.IsIdentifier(c) {
			return nil, fmt.Errorf("invalid partition column name %q", c)
		}
		if model.IsReservedColumn(c) {
			return nil, fmt.Errorf("partition column %q collides with an outcome column", c)
		}
	}

	var partCols []string
	for _, c := range partitionColumns {
		partCols = append(partCols, fmt.Sprintf("\t%s TEXT NOT NULL", c))
	}
	partKey := strings.Join(partitionColumns, ", ")

	registry := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
%s,
	check_id TEXT NOT NULL,
	PRIMARY KEY (%s, check_id)
)`, layout.RegistryTable, strings.Join(partCols, ",\n"), partKey)

	outcomes := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
%s,
	check_id TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	delivery_ref TEXT NOT NULL,
	value TEXT,
	outcome BOOLEAN NOT NULL,
	PRIMARY KEY (%s, check_id, entity_id, delivery_ref)
)`, layout.OutcomesTable, strings.Join(partCols, ",\n"), partKey)

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_check_ref ON %s (check_id, delivery_ref)`,
		layout.OutcomesTable, layout.OutcomesTable)

	return []string{registry, outcomes, index}, nil
}

// RegisterChecks adds check ids to the registry for a partition. Ids already
// registered are left alone. Returns the number of ids newly registered.
func (s *Store) RegisterChecks(ctx context.Context, layout model.Layout, partition model.Partition, ids []string) (int64, error) {
	if partition.IsZero() {
		return 0, fmt.Errorf("register checks: empty partition")
	}
	cols := append(partition.Columns(), model.ColCheckID)
	t := model.NewTable(cols...)
	for _, id := range ids {
		id = model.NormalizeID(id)
		if id == "" {
			return 0, fmt.Errorf("register checks: empty check id")
		}
		row := make([]model.Value, 0, len(cols))
		for _, v := range partition.Values() {
			row = append(row, model.String(v))
		}
		row = append(row, model.String(id))
		if err := t.Append(row...); err != nil {
			return 0, fmt.Errorf("register checks: %w", err)
		}
	}
	n, err := s.InsertIgnore(ctx, layout.RegistryTable, t)
	if err != nil {
		return 0, fmt.Errorf("register checks: %w", err)
	}
	return n, nil
}
