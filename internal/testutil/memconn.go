package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

// Call operations recorded by MemConn.
const (
	OpQuery  = "query"
	OpInsert = "insert"
	OpExec   = "exec"
)

// Call is one recorded connection call.
type Call struct {
	Op        string
	Table     string
	Statement any // queryir.Select or queryir.Mutation; nil for Insert
	Rows      int // rows passed to Insert
	Select    model.PartitionSelect
}

// MemConn is an in-memory, recording implementation of engine.Connection.
//
// Safe for concurrent use.
type MemConn struct {
	mu     sync.Mutex
	tables map[string]*model.Table
	calls  []Call

	// QueryErr, when set for a table, is returned by Query on that table.
	QueryErr map[string]error

	// InsertErr and ExecErr, when set, fail every Insert or Exec.
	InsertErr error
	ExecErr   error
}

// NewMemConn creates an empty connection.
func NewMemConn() *MemConn {
	return &MemConn{
		tables:   make(map[string]*model.Table),
		QueryErr: make(map[string]error),
	}
}

// SetTable installs (or replaces) a table. The table is copied.
func (c *MemConn) SetTable(name string, t *model.Table) *MemConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[name] = cloneTable(t)
	return c
}

// Table returns a copy of a table, or nil if it does not exist.
func (c *MemConn) Table(name string) *model.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		return nil
	}
	return cloneTable(t)
}

// Calls returns the recorded calls in order.
func (c *MemConn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Writes returns the recorded Insert and Exec calls.
func (c *MemConn) Writes() []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Op != OpQuery {
			out = append(out, call)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (c *MemConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Query implements engine.Querier.
func (c *MemConn) Query(ctx context.Context, q queryir.Select, sel model.PartitionSelect) (*model.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: OpQuery, Table: q.From, Statement: q, Select: sel})

	if err := c.QueryErr[q.From]; err != nil {
		return nil, err
	}
	src, ok := c.tables[q.From]
	if !ok {
		return nil, fmt.Errorf("no such table: %s", q.From)
	}

	idx := make([]int, len(q.Columns))
	for i, col := range q.Columns {
		if idx[i] = src.ColumnIndex(col); idx[i] < 0 {
			return nil, fmt.Errorf("no such column: %s.%s", q.From, col)
		}
	}

	out := model.NewTable(q.Columns...)
	for _, row := range src.Rows {
		ok, err := matches(src, row, sel, q.Filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		cells := make([]model.Value, len(idx))
		for i, j := range idx {
			cells[i] = row[j]
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// Insert implements engine.Writer. Columns are matched by name; the target
// table is created with the inserted columns if it does not exist.
func (c *MemConn) Insert(ctx context.Context, table string, rows *model.Table) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: OpInsert, Table: table, Rows: rows.Len()})

	if c.InsertErr != nil {
		return 0, c.InsertErr
	}
	if rows.Len() == 0 {
		return 0, nil
	}
	dst, ok := c.tables[table]
	if !ok {
		dst = model.NewTable(rows.Columns...)
		c.tables[table] = dst
	}
	idx := make([]int, len(rows.Columns))
	for i, col := range rows.Columns {
		if idx[i] = dst.ColumnIndex(col); idx[i] < 0 {
			return 0, fmt.Errorf("table %s has no column %s", table, col)
		}
	}
	for _, row := range rows.Rows {
		cells := make([]model.Value, len(dst.Columns))
		for i := range cells {
			cells[i] = model.Null{}
		}
		for i, j := range idx {
			cells[j] = row[i]
		}
		dst.Rows = append(dst.Rows, cells)
	}
	return int64(rows.Len()), nil
}

// Exec implements engine.Writer for CaseUpdate and Delete.
func (c *MemConn) Exec(ctx context.Context, m queryir.Mutation, sel model.PartitionSelect) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch stmt := m.(type) {
	case queryir.CaseUpdate:
		c.calls = append(c.calls, Call{Op: OpExec, Table: stmt.Table, Statement: m, Select: sel})
		if c.ExecErr != nil {
			return 0, c.ExecErr
		}
		return c.update(stmt, sel)
	case queryir.Delete:
		c.calls = append(c.calls, Call{Op: OpExec, Table: stmt.Table, Statement: m, Select: sel})
		if c.ExecErr != nil {
			return 0, c.ExecErr
		}
		return c.delete(stmt, sel)
	default:
		return 0, fmt.Errorf("unsupported mutation %T", m)
	}
}

func (c *MemConn) update(stmt queryir.CaseUpdate, sel model.PartitionSelect) (int64, error) {
	t, ok := c.tables[stmt.Table]
	if !ok {
		return 0, fmt.Errorf("no such table: %s", stmt.Table)
	}
	col := t.ColumnIndex(stmt.Column)
	if col < 0 {
		return 0, fmt.Errorf("no such column: %s.%s", stmt.Table, stmt.Column)
	}
	also := make([]int, len(stmt.Also))
	for i, name := range stmt.Also {
		if also[i] = t.ColumnIndex(name); also[i] < 0 {
			return 0, fmt.Errorf("no such column: %s.%s", stmt.Table, name)
		}
	}

	var n int64
	for _, row := range t.Rows {
		ok, err := matches(t, row, sel, stmt.Where)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		n++
		for _, arm := range stmt.Arms {
			hit, err := eval(t, row, arm.When)
			if err != nil {
				return 0, err
			}
			if hit {
				row[col] = arm.Then
				for i, idx := range also {
					row[idx] = arm.Also[i]
				}
				break
			}
		}
	}
	return n, nil
}

func (c *MemConn) delete(stmt queryir.Delete, sel model.PartitionSelect) (int64, error) {
	t, ok := c.tables[stmt.Table]
	if !ok {
		return 0, fmt.Errorf("no such table: %s", stmt.Table)
	}
	kept := t.Rows[:0]
	var n int64
	for _, row := range t.Rows {
		ok, err := matches(t, row, sel, stmt.Where)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, row)
	}
	t.Rows = kept
	return n, nil
}

// matches applies the partition filter, then the predicate (nil = true).
func matches(t *model.Table, row []model.Value, sel model.PartitionSelect, p queryir.Predicate) (bool, error) {
	for _, col := range sel.Columns() {
		i := t.ColumnIndex(col)
		if i < 0 {
			return false, fmt.Errorf("no such column: %s", col)
		}
		if model.IsNull(row[i]) || !slices.Contains(sel.Values(col), row[i].String()) {
			return false, nil
		}
	}
	if p == nil {
		return true, nil
	}
	return eval(t, row, p)
}

func eval(t *model.Table, row []model.Value, p queryir.Predicate) (bool, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		v, err := cell(t, row, pred.Field)
		if err != nil {
			return false, err
		}
		return sameValue(v, pred.Value), nil
	case queryir.In:
		v, err := cell(t, row, pred.Field)
		if err != nil {
			return false, err
		}
		for _, want := range pred.Values {
			if sameValue(v, want) {
				return true, nil
			}
		}
		return false, nil
	case queryir.And:
		for _, sub := range pred.Predicates {
			ok, err := eval(t, row, sub)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case queryir.Or:
		for _, sub := range pred.Predicates {
			ok, err := eval(t, row, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported predicate %T", p)
	}
}

func cell(t *model.Table, row []model.Value, column string) (model.Value, error) {
	i := t.ColumnIndex(column)
	if i < 0 {
		return nil, fmt.Errorf("no such column: %s", column)
	}
	return row[i], nil
}

// sameValue compares like SQL equality on text columns: NULL never matches.
func sameValue(a, b model.Value) bool {
	if model.IsNull(a) || model.IsNull(b) {
		return false
	}
	return a.String() == b.String()
}

func cloneTable(t *model.Table) *model.Table {
	if t == nil {
		return nil
	}
	out := model.NewTable(t.Columns...)
	for _, row := range t.Rows {
		out.Rows = append(out.Rows, slices.Clone(row))
	}
	return out
}

// QueryOnly exposes only the read half of a connection.
type QueryOnly struct {
	Conn interface {
		Query(ctx context.Context, q queryir.Select, sel model.PartitionSelect) (*model.Table, error)
	}
}

// Query implements engine.Querier.
func (q QueryOnly) Query(ctx context.Context, s queryir.Select, sel model.PartitionSelect) (*model.Table, error) {
	return q.Conn.Query(ctx, s, sel)
}
