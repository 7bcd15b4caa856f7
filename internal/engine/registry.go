package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

// loadRegistry reads the check ids registered for the partition.
// Ids are normalized, de-duplicated and sorted.
func loadRegistry(ctx context.Context, conn Querier, layout model.Layout, partition model.Partition) ([]string, error) {
	q := queryir.Select{
		From:    layout.RegistryTable,
		Columns: []string{model.ColCheckID},
		OrderBy: []string{model.ColCheckID},
	}
	t, err := conn.Query(ctx, q, partition.Select())
	if err != nil {
		return nil, fmt.Errorf("load registry from %s: %w", layout.RegistryTable, err)
	}

	col := model.ColCheckID
	if t.Len() > 0 && t.ColumnIndex(col) < 0 {
		return nil, fmt.Errorf("load registry from %s: result has no %s column (%s)", layout.RegistryTable, col, t.Shape())
	}

	seen := make(map[string]bool, t.Len())
	var ids []string
	for i := 0; i < t.Len(); i++ {
		raw, err := model.AsString(t.Get(i, col))
		if err != nil {
			return nil, fmt.Errorf("load registry from %s: row %d: %w", layout.RegistryTable, i, err)
		}
		id := model.NormalizeID(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, &EmptyRegistryError{Partition: partition.String(), Table: layout.RegistryTable}
	}
	slices.Sort(ids)
	return ids, nil
}
