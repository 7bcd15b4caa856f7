package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

// Query runs a select scoped to the partition filter and returns the rows as
// a table. Column names are those reported by the driver.
func (s *Store) Query(ctx context.Context, q queryir.Select, sel model.PartitionSelect) (*model.Table, error) {
	stmt, params, err := s.compiler.CompileQuery(q, sel)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	slog.Debug("store query", "sql", stmt, "params", len(params))

	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.From, err)
	}
	defer rows.Close()

	return scanTable(rows)
}

// Insert appends all rows of t to table in a single transaction.
//
// Rows are sent as multi-row INSERT statements; a batch larger than the
// dialect's parameter limit is split into several statements inside the same
// transaction, so the insert is all-or-nothing. Returns the number of rows
// inserted. An empty table performs no database call.
func (s *Store) Insert(ctx context.Context, table string, t *model.Table) (int64, error) {
	return s.insert(ctx, table, t, false)
}

// InsertIgnore is Insert with rows violating a unique key silently skipped.
func (s *Store) InsertIgnore(ctx context.Context, table string, t *model.Table) (int64, error) {
	return s.insert(ctx, table, t, true)
}

func (s *Store) insert(ctx context.Context, table string, t *model.Table, skipConflicts bool) (int64, error) {
	if t.Len() == 0 {
		return 0, nil
	}
	if len(t.Columns) == 0 {
		return 0, fmt.Errorf("insert into %s: table has no columns", table)
	}

	batch := s.compiler.Dialect.MaxParams() / len(t.Columns)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: begin tx: %w", table, err)
	}
	defer tx.Rollback() // No-op if committed

	var total int64
	for start := 0; start < len(t.Rows); start += batch {
		end := min(start+batch, len(t.Rows))
		ins := queryir.Insert{
			Table:         table,
			Columns:       t.Columns,
			Rows:          t.Rows[start:end],
			SkipConflicts: skipConflicts,
		}
		n, err := s.execTx(ctx, tx, ins, model.PartitionSelect{})
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert into %s: commit: %w", table, err)
	}
	return total, nil
}

// Exec runs one mutation scoped to the partition filter and returns the
// number of rows affected.
func (s *Store) Exec(ctx context.Context, m queryir.Mutation, sel model.PartitionSelect) (int64, error) {
	stmt, params, err := s.compiler.CompileMutation(m, sel)
	if err != nil {
		return 0, fmt.Errorf("compile mutation: %w", err)
	}
	slog.Debug("store exec", "sql", stmt, "params", len(params))

	res, err := s.db.ExecContext(ctx, stmt, params...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("exec: rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) execTx(ctx context.Context, tx *sql.Tx, m queryir.Mutation, sel model.PartitionSelect) (int64, error) {
	stmt, params, err := s.compiler.CompileMutation(m, sel)
	if err != nil {
		return 0, fmt.Errorf("compile mutation: %w", err)
	}
	res, err := tx.ExecContext(ctx, stmt, params...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// scanTable reads every row into a model.Table.
func scanTable(rows *sql.Rows) (*model.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	t := model.NewTable(cols...)
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make([]model.Value, len(cols))
		for i, v := range raw {
			cell, err := model.FromAny(v)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", cols[i], err)
			}
			row[i] = cell
		}
		t.Rows = append(t.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return t, nil
}
