package model

import (
	"fmt"
	"strings"
)

// Table is the tabular result exchanged with connections and checks.
//
// Columns are named; Rows hold one Value per column in the same order.
// Row order is whatever the producer returned and carries no meaning.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// Len returns the number of rows. A nil table has zero rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// MissingColumns returns the given columns that are absent from the table.
func (t *Table) MissingColumns(names ...string) []string {
	var missing []string
	for _, n := range names {
		if t.ColumnIndex(n) < 0 {
			missing = append(missing, n)
		}
	}
	return missing
}

// Append adds a row. The row must have one value per column.
func (t *Table) Append(row ...Value) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(row), len(t.Columns))
	}
	cp := make([]Value, len(row))
	copy(cp, row)
	t.Rows = append(t.Rows, cp)
	return nil
}

// MustAppend is Append for fixtures. Panics on arity mismatch.
func (t *Table) MustAppend(row ...Value) *Table {
	if err := t.Append(row...); err != nil {
		panic(err)
	}
	return t
}

// Get returns the cell at (row, column). Missing columns yield Null.
func (t *Table) Get(row int, column string) Value {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) || idx >= len(t.Rows[row]) {
		return Null{}
	}
	v := t.Rows[row][idx]
	if v == nil {
		return Null{}
	}
	return v
}

// Shape describes the table for error messages, e.g. "table[a,b] with 3 rows".
func (t *Table) Shape() string {
	if t == nil {
		return "nil table"
	}
	return fmt.Sprintf("table[%s] with %d rows", strings.Join(t.Columns, ","), len(t.Rows))
}
