package engine

import (
	"context"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

// changedMatch is the per-row predicate of the update statement. It names
// the full key so entities sharing a delivery_ref never overwrite each other.
func changedMatch(row model.ResultRow) queryir.And {
	return queryir.KeyMatch(
		[]string{model.ColCheckID, model.ColEntityID, model.ColDeliveryRef},
		[]model.Value{model.String(row.CheckID), model.String(row.EntityID), model.String(row.DeliveryRef)},
	)
}

// BuildOutcomeUpdate builds the single CASE update for a Changed delta: one
// arm and one WHERE disjunct per row. Outcome and value are set from the
// same arm. Rows must be non-empty.
func BuildOutcomeUpdate(layout model.Layout, changed []model.ResultRow) queryir.CaseUpdate {
	arms := make([]queryir.CaseArm, len(changed))
	where := make([]queryir.Predicate, len(changed))
	for i, row := range changed {
		m := changedMatch(row)
		arms[i] = queryir.CaseArm{
			When: m,
			Then: model.Bool(row.Outcome),
			Also: []model.Value{persistedValue(row.Value)},
		}
		where[i] = m
	}
	return queryir.CaseUpdate{
		Table:  layout.OutcomesTable,
		Column: model.ColOutcome,
		Also:   []string{model.ColValue},
		Arms:   arms,
		Where:  queryir.Or{Predicates: where},
	}
}

// BuildOutcomeRows builds the table inserted for a New delta: partition
// columns, the key, value rendered as text, and outcome.
func BuildOutcomeRows(partition model.Partition, rows []model.ResultRow) *model.Table {
	cols := append(partition.Columns(),
		model.ColCheckID, model.ColEntityID, model.ColDeliveryRef, model.ColValue, model.ColOutcome)
	t := model.NewTable(cols...)

	partVals := partition.Values()
	for _, row := range rows {
		cells := make([]model.Value, 0, len(cols))
		for _, v := range partVals {
			cells = append(cells, model.String(v))
		}
		cells = append(cells,
			model.String(row.CheckID),
			model.String(row.EntityID),
			model.String(row.DeliveryRef),
			persistedValue(row.Value),
			model.Bool(row.Outcome),
		)
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// BuildStaleDelete builds one DELETE matching every stale key.
// Keys must be non-empty.
func BuildStaleDelete(layout model.Layout, stale []model.Key) queryir.Delete {
	where := make([]queryir.Predicate, len(stale))
	for i, k := range stale {
		where[i] = queryir.KeyMatch(
			[]string{model.ColCheckID, model.ColEntityID, model.ColDeliveryRef},
			[]model.Value{model.String(k.CheckID), model.String(k.EntityID), model.String(k.DeliveryRef)},
		)
	}
	return queryir.Delete{Table: layout.OutcomesTable, Where: queryir.Or{Predicates: where}}
}

// persistedValue stores diagnostic values as text; missing values stay NULL.
func persistedValue(v model.Value) model.Value {
	if model.IsNull(v) {
		return model.Null{}
	}
	return model.String(v.String())
}

// emitUpdate writes the Changed delta. An empty delta issues no statement.
func (e *Engine) emitUpdate(ctx context.Context, changed []model.ResultRow) (int64, error) {
	if len(changed) == 0 {
		return 0, nil
	}
	n, err := e.conn.Exec(ctx, BuildOutcomeUpdate(e.layout, changed), e.partition.Select())
	if err != nil {
		return 0, &MutationError{Path: PathUpdate, Err: err}
	}
	return n, nil
}

// emitInsert writes the New delta. An empty delta issues no statement.
func (e *Engine) emitInsert(ctx context.Context, rows []model.ResultRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := e.conn.Insert(ctx, e.layout.OutcomesTable, BuildOutcomeRows(e.partition, rows))
	if err != nil {
		return 0, &MutationError{Path: PathInsert, Err: err}
	}
	return n, nil
}

// emitDelete removes stale keys. An empty list issues no statement.
func (e *Engine) emitDelete(ctx context.Context, stale []model.Key) (int64, error) {
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := e.conn.Exec(ctx, BuildStaleDelete(e.layout, stale), e.partition.Select())
	if err != nil {
		return 0, &MutationError{Path: PathDelete, Err: err}
	}
	return n, nil
}
