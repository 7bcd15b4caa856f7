package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

// Dialect selects the placeholder style and parameter limit of a backend.
type Dialect int

const (
	// SQLite uses ? placeholders.
	SQLite Dialect = iota
	// Postgres uses $1, $2, ... placeholders.
	Postgres
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// MaxParams is the number of bound parameters one statement may carry.
func (d Dialect) MaxParams() int {
	if d == Postgres {
		return 65535
	}
	// SQLITE_MAX_VARIABLE_NUMBER default since 3.32.0
	return 32766
}

// SQLCompiler compiles queryir statements to parameterized SQL.
//
// CRITICAL: All values are parameterized, never interpolated. Identifiers are
// validated by queryir.Validate before any text is produced.
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a compiler for the given dialect.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{Dialect: d}
}

// CompileQuery compiles a read statement, ANDing the partition filter onto it.
// Returns (sql, params, error).
func (c *SQLCompiler) CompileQuery(q queryir.Query, sel model.PartitionSelect) (string, []any, error) {
	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query, sel)
	case *queryir.Select:
		return c.compileSelect(*query, sel)
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// CompileMutation compiles a write statement. Update and delete filters are
// ANDed with the partition filter; inserts ignore it.
func (c *SQLCompiler) CompileMutation(m queryir.Mutation, sel model.PartitionSelect) (string, []any, error) {
	switch mut := m.(type) {
	case queryir.CaseUpdate:
		return c.compileCaseUpdate(mut, sel)
	case *queryir.CaseUpdate:
		return c.compileCaseUpdate(*mut, sel)
	case queryir.Insert:
		return c.compileInsert(mut)
	case *queryir.Insert:
		return c.compileInsert(*mut)
	case queryir.Delete:
		return c.compileDelete(mut, sel)
	case *queryir.Delete:
		return c.compileDelete(*mut, sel)
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil mutation")
	default:
		return "", nil, fmt.Errorf("unsupported mutation type: %T", m)
	}
}

// builder renders SQL text and collects parameters in textual order.
type builder struct {
	dialect Dialect
	sb      strings.Builder
	params  []any
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

// bind appends a parameter and writes its placeholder.
func (b *builder) bind(v model.Value) {
	b.params = append(b.params, model.Param(v))
	if b.dialect == Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.params)))
		return
	}
	b.sb.WriteString("?")
}

// caseSet writes col = CASE WHEN <arm> THEN ? ... ELSE col END.
func (b *builder) caseSet(col string, arms []queryir.CaseArm, then func(queryir.CaseArm) model.Value) {
	b.write(col, " = CASE")
	for _, arm := range arms {
		b.write(" WHEN ")
		b.predicate(arm.When)
		b.write(" THEN ")
		b.bind(then(arm))
	}
	b.write(" ELSE ", col, " END")
}

func (b *builder) finish() (string, []any, error) {
	if len(b.params) > b.dialect.MaxParams() {
		return "", nil, fmt.Errorf("statement binds %d parameters, %s allows %d", len(b.params), b.dialect, b.dialect.MaxParams())
	}
	return b.sb.String(), b.params, nil
}

func (c *SQLCompiler) newBuilder() *builder {
	return &builder{dialect: c.Dialect}
}

func (c *SQLCompiler) compileSelect(q queryir.Select, sel model.PartitionSelect) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}
	if err := validateSelectColumns(sel); err != nil {
		return "", nil, err
	}

	b := c.newBuilder()
	b.write("SELECT ", strings.Join(q.Columns, ", "), " FROM ", q.From)
	if where := withPartition(q.Filter, sel); where != nil {
		b.write(" WHERE ")
		b.predicate(where)
	}
	if len(q.OrderBy) > 0 {
		b.write(" ORDER BY ", strings.Join(q.OrderBy, ", "))
	}
	return b.finish()
}

// compileCaseUpdate renders
//
//	UPDATE t SET col = CASE WHEN <arm> THEN ? ... ELSE col END[, also = CASE ... END] WHERE <where>
//
// One CASE arm and one WHERE disjunct per changed row, one round trip.
func (c *SQLCompiler) compileCaseUpdate(u queryir.CaseUpdate, sel model.PartitionSelect) (string, []any, error) {
	if err := queryir.Validate(u); err != nil {
		return "", nil, err
	}
	if err := validateSelectColumns(sel); err != nil {
		return "", nil, err
	}

	b := c.newBuilder()
	b.write("UPDATE ", u.Table, " SET ")
	b.caseSet(u.Column, u.Arms, func(arm queryir.CaseArm) model.Value { return arm.Then })
	for i, col := range u.Also {
		b.write(", ")
		b.caseSet(col, u.Arms, func(arm queryir.CaseArm) model.Value { return arm.Also[i] })
	}
	b.write(" WHERE ")
	b.predicate(withPartition(u.Where, sel))
	return b.finish()
}

func (c *SQLCompiler) compileInsert(ins queryir.Insert) (string, []any, error) {
	if err := queryir.Validate(ins); err != nil {
		return "", nil, err
	}
	if len(ins.Rows) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no rows", ins.Table)
	}

	b := c.newBuilder()
	b.write("INSERT INTO ", ins.Table, " (", strings.Join(ins.Columns, ", "), ") VALUES ")
	for i, row := range ins.Rows {
		if i > 0 {
			b.write(", ")
		}
		b.write("(")
		for j, v := range row {
			if j > 0 {
				b.write(", ")
			}
			b.bind(v)
		}
		b.write(")")
	}
	if ins.SkipConflicts {
		b.write(" ON CONFLICT DO NOTHING")
	}
	return b.finish()
}

func (c *SQLCompiler) compileDelete(d queryir.Delete, sel model.PartitionSelect) (string, []any, error) {
	if err := queryir.Validate(d); err != nil {
		return "", nil, err
	}
	if err := validateSelectColumns(sel); err != nil {
		return "", nil, err
	}

	b := c.newBuilder()
	b.write("DELETE FROM ", d.Table, " WHERE ")
	b.predicate(withPartition(d.Where, sel))
	return b.finish()
}

// withPartition ANDs one IN predicate per partition column onto filter.
func withPartition(filter queryir.Predicate, sel model.PartitionSelect) queryir.Predicate {
	if sel.Len() == 0 {
		return filter
	}
	var preds []queryir.Predicate
	if filter != nil {
		preds = append(preds, filter)
	}
	for _, col := range sel.Columns() {
		vals := sel.Values(col)
		in := queryir.In{Field: col, Values: make([]model.Value, len(vals))}
		for i, v := range vals {
			in.Values[i] = model.String(v)
		}
		preds = append(preds, in)
	}
	return queryir.And{Predicates: preds}
}

func validateSelectColumns(sel model.PartitionSelect) error {
	for _, col := range sel.Columns() {
		if !model.IsIdentifier(col) {
			return fmt.Errorf("invalid partition column name %q", col)
		}
	}
	return nil
}

// predicate renders a predicate. Nested Or inside And (and And inside Or)
// is parenthesized when it has more than one operand.
func (b *builder) predicate(p queryir.Predicate) {
	switch pred := p.(type) {
	case queryir.Equals:
		b.write(pred.Field, " = ")
		b.bind(pred.Value)
	case *queryir.Equals:
		b.predicate(*pred)
	case queryir.In:
		if len(pred.Values) == 0 {
			b.write("1 = 0")
			return
		}
		b.write(pred.Field, " IN (")
		for i, v := range pred.Values {
			if i > 0 {
				b.write(", ")
			}
			b.bind(v)
		}
		b.write(")")
	case *queryir.In:
		b.predicate(*pred)
	case queryir.And:
		b.junction(pred.Predicates, " AND ", "1 = 1", isMultiOr)
	case *queryir.And:
		b.predicate(*pred)
	case queryir.Or:
		b.junction(pred.Predicates, " OR ", "1 = 0", isMultiAnd)
	case *queryir.Or:
		b.predicate(*pred)
	}
}

func (b *builder) junction(preds []queryir.Predicate, sep, empty string, needsParens func(queryir.Predicate) bool) {
	if len(preds) == 0 {
		b.write(empty)
		return
	}
	for i, sub := range preds {
		if i > 0 {
			b.write(sep)
		}
		if len(preds) > 1 && needsParens(sub) {
			b.write("(")
			b.predicate(sub)
			b.write(")")
			continue
		}
		b.predicate(sub)
	}
}

func isMultiOr(p queryir.Predicate) bool {
	switch pred := p.(type) {
	case queryir.Or:
		return len(pred.Predicates) > 1
	case *queryir.Or:
		return len(pred.Predicates) > 1
	}
	return false
}

func isMultiAnd(p queryir.Predicate) bool {
	switch pred := p.(type) {
	case queryir.And:
		return len(pred.Predicates) > 1
	case *queryir.And:
		return len(pred.Predicates) > 1
	}
	return false
}
