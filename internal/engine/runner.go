package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/controls/internal/metrics"
	"github.com/roach88/controls/internal/model"
)

// ResultSet is the concatenated output of all checks of one run.
type ResultSet struct {
	Rows []model.ResultRow

	// PerCheck counts the rows each invoked check produced.
	PerCheck map[string]int
}

// runChecks invokes every registered check in the registry, in registry
// order, and validates each result. The first failure aborts the run.
func (e *Engine) runChecks(ctx context.Context, runID string) (*ResultSet, error) {
	env := Env{Conn: e.conn, Partition: e.partition, Layout: e.layout}
	rs := &ResultSet{PerCheck: make(map[string]int)}

	for _, id := range e.registry {
		fn, ok := e.checks.Lookup(id)
		if !ok {
			slog.Debug("no implementation for registered check", "run_id", runID, "check", id)
			continue
		}
		if fn == nil {
			metrics.ChecksRunTotal.WithLabelValues(metrics.CheckInvalid).Inc()
			return nil, &InvalidCheckError{Check: id, Reason: "registered function is nil"}
		}

		t, err := fn(ctx, env)
		if err != nil {
			metrics.ChecksRunTotal.WithLabelValues(metrics.CheckFailed).Inc()
			return nil, &CheckFailedError{Check: id, Err: err}
		}

		rows, err := validateResult(id, t)
		if err != nil {
			metrics.ChecksRunTotal.WithLabelValues(metrics.CheckInvalid).Inc()
			return nil, err
		}

		metrics.ChecksRunTotal.WithLabelValues(metrics.CheckOK).Inc()
		metrics.ResultRowsTotal.Add(float64(len(rows)))
		slog.Debug("check ran", "run_id", runID, "check", id, "rows", len(rows))

		rs.PerCheck[id] = len(rows)
		rs.Rows = append(rs.Rows, rows...)
	}

	return rs, nil
}

// validateResult converts a check's table into result rows, enforcing the
// column contract, cell types, the check's own id and key uniqueness.
func validateResult(id string, t *model.Table) ([]model.ResultRow, error) {
	if t == nil {
		return nil, &InvalidResultError{Check: id, Got: "nil table", Reason: "check returned no table"}
	}
	invalid := func(format string, args ...any) error {
		return &InvalidResultError{Check: id, Got: t.Shape(), Reason: fmt.Sprintf(format, args...)}
	}

	if missing := t.MissingColumns(model.ResultColumns...); len(missing) > 0 {
		return nil, invalid("missing columns: %s", strings.Join(missing, ", "))
	}

	rows := make([]model.ResultRow, 0, t.Len())
	seen := make(map[model.Key]int, t.Len())
	for i := 0; i < t.Len(); i++ {
		checkID, err := model.AsString(t.Get(i, model.ColCheckID))
		if err != nil {
			return nil, invalid("row %d: %s: %v", i, model.ColCheckID, err)
		}
		if model.NormalizeID(checkID) != id {
			return nil, invalid("row %d: %s %q does not match the check", i, model.ColCheckID, checkID)
		}
		entity, err := model.AsString(t.Get(i, model.ColEntityID))
		if err != nil {
			return nil, invalid("row %d: %s: %v", i, model.ColEntityID, err)
		}
		if entity == "" {
			return nil, invalid("row %d: empty %s", i, model.ColEntityID)
		}
		ref, err := model.AsString(t.Get(i, model.ColDeliveryRef))
		if err != nil {
			return nil, invalid("row %d: %s: %v", i, model.ColDeliveryRef, err)
		}
		outcome, err := model.AsBool(t.Get(i, model.ColOutcome))
		if err != nil {
			return nil, invalid("row %d: %s: %v", i, model.ColOutcome, err)
		}

		row := model.ResultRow{
			CheckID:     id,
			EntityID:    entity,
			DeliveryRef: ref,
			Value:       t.Get(i, model.ColValue),
			Outcome:     outcome,
		}
		if prev, dup := seen[row.Key()]; dup {
			return nil, invalid("duplicate key %s at rows %d and %d", row.Key(), prev, i)
		}
		seen[row.Key()] = i
		rows = append(rows, row)
	}
	return rows, nil
}
