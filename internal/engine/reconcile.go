package engine

import (
	"context"
	"fmt"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

// ReconcileChanged joins fresh rows with persisted outcomes on Key.
//
// Keys on both sides with differing outcomes become Changed, carrying the
// fresh value and outcome. Keys with equal outcomes are counted as
// Unchanged; value is never compared. Persisted-only keys are reported as
// Stale. Fresh-only keys belong to the new path and are left out.
func ReconcileChanged(fresh []model.ResultRow, persisted []model.PersistedRow) model.Delta {
	outcomes := make(map[model.Key]bool, len(persisted))
	for _, p := range persisted {
		outcomes[p.Key] = p.Outcome
	}

	var d model.Delta
	matched := make(map[model.Key]bool, len(fresh))
	for _, row := range fresh {
		prev, ok := outcomes[row.Key()]
		if !ok {
			continue
		}
		matched[row.Key()] = true
		if prev == row.Outcome {
			d.Unchanged++
			continue
		}
		d.Changed = append(d.Changed, row)
	}

	for _, p := range persisted {
		if !matched[p.Key] {
			d.Stale = append(d.Stale, p.Key)
			matched[p.Key] = true // persisted duplicates report once
		}
	}

	model.SortRows(d.Changed)
	model.SortKeys(d.Stale)
	return d
}

// ReconcileNew returns the fresh rows whose natural key (partition values
// plus Key) is absent from persisted.
func ReconcileNew(fresh []model.ResultRow, partitionValues []string, persisted map[model.NaturalKey]struct{}) []model.ResultRow {
	var out []model.ResultRow
	for _, row := range fresh {
		if _, ok := persisted[model.NewNaturalKey(partitionValues, row.Key())]; ok {
			continue
		}
		out = append(out, row)
	}
	model.SortRows(out)
	return out
}

// readOutcomes reads the persisted (key, outcome) rows of the partition.
func (e *Engine) readOutcomes(ctx context.Context) ([]model.PersistedRow, error) {
	q := queryir.Select{
		From:    e.layout.OutcomesTable,
		Columns: []string{model.ColCheckID, model.ColEntityID, model.ColDeliveryRef, model.ColOutcome},
	}
	t, err := e.conn.Query(ctx, q, e.partition.Select())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.layout.OutcomesTable, err)
	}

	rows := make([]model.PersistedRow, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		k, err := keyAt(t, i)
		if err != nil {
			return nil, fmt.Errorf("read %s: row %d: %w", e.layout.OutcomesTable, i, err)
		}
		outcome, err := model.AsBool(t.Get(i, model.ColOutcome))
		if err != nil {
			return nil, fmt.Errorf("read %s: row %d: %s: %w", e.layout.OutcomesTable, i, model.ColOutcome, err)
		}
		rows = append(rows, model.PersistedRow{Key: k, Outcome: outcome})
	}
	return rows, nil
}

// queryNaturalKeys reads the partition and key columns persisted for the
// partition. A failed query is returned as is; the caller decides whether
// it is fatal.
func (e *Engine) queryNaturalKeys(ctx context.Context) (*model.Table, error) {
	cols := append(e.partition.Columns(), model.ColCheckID, model.ColEntityID, model.ColDeliveryRef)
	return e.conn.Query(ctx, queryir.Select{From: e.layout.OutcomesTable, Columns: cols}, e.partition.Select())
}

// naturalKeys indexes the rows returned by queryNaturalKeys.
func (e *Engine) naturalKeys(t *model.Table) (map[model.NaturalKey]struct{}, error) {
	partCols := e.partition.Columns()
	keys := make(map[model.NaturalKey]struct{}, t.Len())
	for i := 0; i < t.Len(); i++ {
		vals := make([]string, len(partCols))
		for j, c := range partCols {
			v, err := model.AsString(t.Get(i, c))
			if err != nil {
				return nil, fmt.Errorf("read %s: row %d: %s: %w", e.layout.OutcomesTable, i, c, err)
			}
			vals[j] = v
		}
		k, err := keyAt(t, i)
		if err != nil {
			return nil, fmt.Errorf("read %s: row %d: %w", e.layout.OutcomesTable, i, err)
		}
		keys[model.NewNaturalKey(vals, k)] = struct{}{}
	}
	return keys, nil
}

func keyAt(t *model.Table, i int) (model.Key, error) {
	var k model.Key
	var err error
	if k.CheckID, err = model.AsString(t.Get(i, model.ColCheckID)); err != nil {
		return k, fmt.Errorf("%s: %w", model.ColCheckID, err)
	}
	if k.EntityID, err = model.AsString(t.Get(i, model.ColEntityID)); err != nil {
		return k, fmt.Errorf("%s: %w", model.ColEntityID, err)
	}
	if k.DeliveryRef, err = model.AsString(t.Get(i, model.ColDeliveryRef)); err != nil {
		return k, fmt.Errorf("%s: %w", model.ColDeliveryRef, err)
	}
	return k, nil
}
