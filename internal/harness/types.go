package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/controls/internal/engine"
	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
	"github.com/roach88/controls/internal/querysql"
)

// Trace operations.
const (
	TraceQuery  = "query"
	TraceInsert = "insert"
	TraceExec   = "exec"
)

// ErrForcedRead is returned for reads of tables listed in Step.FailReads.
var ErrForcedRead = errors.New("forced read failure")

// TraceEvent is one statement the engine sent to the store.
type TraceEvent struct {
	// Step is the 1-based step index; 0 is engine construction.
	Step int    `json:"step"`
	Op   string `json:"op"`
	SQL  string `json:"sql"`
	Args []any  `json:"args"`

	// Rows is the number of rows returned (query) or affected (insert, exec).
	Rows int64 `json:"rows"`

	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains all statements in order.
	Trace []TraceEvent `json:"trace"`

	// Reports holds the report of each execute and insert step, by step
	// index; plan steps and failed steps leave nil.
	Reports []*engine.Report `json:"reports"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// recorder is an engine.Connection that records every statement it forwards.
type recorder struct {
	conn     engine.Connection
	compiler *querysql.SQLCompiler
	result   *Result
	step     int
	failing  map[string]bool
}

func newRecorder(conn engine.Connection, d querysql.Dialect, result *Result) *recorder {
	return &recorder{conn: conn, compiler: querysql.NewSQLCompiler(d), result: result}
}

// enterStep starts recording for a step and arms its forced read failures.
func (r *recorder) enterStep(step int, failReads []string) {
	r.step = step
	r.failing = make(map[string]bool, len(failReads))
	for _, t := range failReads {
		r.failing[t] = true
	}
}

func (r *recorder) record(op, sql string, args []any, rows int64, err error) {
	ev := TraceEvent{Step: r.step, Op: op, SQL: sql, Args: args, Rows: rows}
	if ev.Args == nil {
		ev.Args = []any{}
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.result.Trace = append(r.result.Trace, ev)
}

// Query implements engine.Querier.
func (r *recorder) Query(ctx context.Context, q queryir.Select, sel model.PartitionSelect) (*model.Table, error) {
	sql, args, err := r.compiler.CompileQuery(q, sel)
	if err != nil {
		return nil, err
	}
	if r.failing[q.From] {
		err := fmt.Errorf("%w on %s", ErrForcedRead, q.From)
		r.record(TraceQuery, sql, args, 0, err)
		return nil, err
	}
	t, err := r.conn.Query(ctx, q, sel)
	if err != nil {
		r.record(TraceQuery, sql, args, 0, err)
		return nil, err
	}
	r.record(TraceQuery, sql, args, int64(t.Len()), nil)
	return t, nil
}

// Insert implements engine.Writer.
func (r *recorder) Insert(ctx context.Context, table string, rows *model.Table) (int64, error) {
	sql, args, err := r.compiler.CompileMutation(queryir.Insert{Table: table, Columns: rows.Columns, Rows: rows.Rows}, model.PartitionSelect{})
	if err != nil {
		return 0, err
	}
	n, err := r.conn.Insert(ctx, table, rows)
	r.record(TraceInsert, sql, args, n, err)
	return n, err
}

// Exec implements engine.Writer.
func (r *recorder) Exec(ctx context.Context, m queryir.Mutation, sel model.PartitionSelect) (int64, error) {
	sql, args, err := r.compiler.CompileMutation(m, sel)
	if err != nil {
		return 0, err
	}
	n, err := r.conn.Exec(ctx, m, sel)
	r.record(TraceExec, sql, args, n, err)
	return n, err
}
