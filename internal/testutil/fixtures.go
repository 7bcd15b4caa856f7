package testutil

import "github.com/roach88/controls/internal/model"

// Row builds a result row. value goes through model.MustFromAny.
func Row(checkID, entityID, deliveryRef string, value any, outcome bool) model.ResultRow {
	return model.ResultRow{
		CheckID:     checkID,
		EntityID:    entityID,
		DeliveryRef: deliveryRef,
		Value:       model.MustFromAny(value),
		Outcome:     outcome,
	}
}

// ResultTable renders rows with the check result columns.
func ResultTable(rows ...model.ResultRow) *model.Table {
	t := model.NewTable(model.ResultColumns...)
	for _, r := range rows {
		t.MustAppend(
			model.String(r.EntityID),
			model.String(r.DeliveryRef),
			model.String(r.CheckID),
			r.Value,
			model.Bool(r.Outcome),
		)
	}
	return t
}

// RegistryTable renders the registry rows of a partition.
func RegistryTable(p model.Partition, ids ...string) *model.Table {
	t := model.NewTable(append(p.Columns(), model.ColCheckID)...)
	for _, id := range ids {
		t.MustAppend(append(partitionCells(p), model.String(id))...)
	}
	return t
}

// OutcomesTable renders persisted outcome rows of a partition. The value
// column holds the text form, as the store persists it.
func OutcomesTable(p model.Partition, rows ...model.ResultRow) *model.Table {
	cols := append(p.Columns(),
		model.ColCheckID, model.ColEntityID, model.ColDeliveryRef, model.ColValue, model.ColOutcome)
	t := model.NewTable(cols...)
	for _, r := range rows {
		var value model.Value = model.Null{}
		if !model.IsNull(r.Value) {
			value = model.String(r.Value.String())
		}
		t.MustAppend(append(partitionCells(p),
			model.String(r.CheckID),
			model.String(r.EntityID),
			model.String(r.DeliveryRef),
			value,
			model.Bool(r.Outcome),
		)...)
	}
	return t
}

func partitionCells(p model.Partition) []model.Value {
	var cells []model.Value
	for _, v := range p.Values() {
		cells = append(cells, model.String(v))
	}
	return cells
}
