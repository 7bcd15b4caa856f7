package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

var (
	p2023 = model.MustPartition("aar", "2023")
	p2024 = model.MustPartition("aar", "2024")
)

func seeded(t *testing.T) *MemConn {
	t.Helper()
	c := NewMemConn()
	rows := OutcomesTable(p2024, Row("c1", "e1", "r1", 5, true), Row("c1", "e2", "r2", nil, false))
	old := OutcomesTable(p2023, Row("c1", "e1", "r1", 1, true))
	rows.Rows = append(rows.Rows, old.Rows...)
	c.SetTable(model.DefaultOutcomesTable, rows)
	return c
}

func TestMemConn_QueryProjectsAndFilters(t *testing.T) {
	c := seeded(t)

	got, err := c.Query(context.Background(), queryir.Select{
		From:    model.DefaultOutcomesTable,
		Columns: []string{model.ColEntityID, model.ColOutcome},
	}, p2024.Select())
	require.NoError(t, err)

	assert.Equal(t, []string{model.ColEntityID, model.ColOutcome}, got.Columns)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, model.String("e1"), got.Get(0, model.ColEntityID))

	got, err = c.Query(context.Background(), queryir.Select{
		From:    model.DefaultOutcomesTable,
		Columns: []string{model.ColEntityID},
		Filter:  queryir.Equals{Field: model.ColEntityID, Value: model.String("e2")},
	}, p2024.Select())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestMemConn_QueryErrors(t *testing.T) {
	c := seeded(t)

	_, err := c.Query(context.Background(), queryir.Select{From: "missing", Columns: []string{"x"}}, p2024.Select())
	assert.ErrorContains(t, err, "no such table")

	_, err = c.Query(context.Background(), queryir.Select{From: model.DefaultOutcomesTable, Columns: []string{"x"}}, p2024.Select())
	assert.ErrorContains(t, err, "no such column")

	boom := errors.New("boom")
	c.QueryErr[model.DefaultOutcomesTable] = boom
	_, err = c.Query(context.Background(), queryir.Select{From: model.DefaultOutcomesTable, Columns: []string{model.ColEntityID}}, p2024.Select())
	assert.ErrorIs(t, err, boom)
}

func TestMemConn_CaseUpdate(t *testing.T) {
	c := seeded(t)
	match := queryir.KeyMatch(
		[]string{model.ColCheckID, model.ColDeliveryRef},
		[]model.Value{model.String("c1"), model.String("r1")},
	)

	n, err := c.Exec(context.Background(), queryir.CaseUpdate{
		Table:  model.DefaultOutcomesTable,
		Column: model.ColOutcome,
		Arms:   []queryir.CaseArm{{When: match, Then: model.Bool(false)}},
		Where:  queryir.Or{Predicates: []queryir.Predicate{match}},
	}, p2024.Select())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tbl := c.Table(model.DefaultOutcomesTable)
	assert.Equal(t, model.Bool(false), tbl.Get(0, model.ColOutcome), "2024 row updated")
	assert.Equal(t, model.Bool(true), tbl.Get(2, model.ColOutcome), "2023 row untouched")
}

func TestMemConn_CaseUpdateExtraColumns(t *testing.T) {
	c := seeded(t)
	match := queryir.KeyMatch(
		[]string{model.ColCheckID, model.ColEntityID, model.ColDeliveryRef},
		[]model.Value{model.String("c1"), model.String("e1"), model.String("r1")},
	)

	n, err := c.Exec(context.Background(), queryir.CaseUpdate{
		Table:  model.DefaultOutcomesTable,
		Column: model.ColOutcome,
		Also:   []string{model.ColValue},
		Arms:   []queryir.CaseArm{{When: match, Then: model.Bool(false), Also: []model.Value{model.String("42")}}},
		Where:  match,
	}, p2024.Select())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tbl := c.Table(model.DefaultOutcomesTable)
	assert.Equal(t, model.String("42"), tbl.Get(0, model.ColValue))
	assert.Equal(t, model.Bool(false), tbl.Get(1, model.ColOutcome), "other entity untouched")

	_, err = c.Exec(context.Background(), queryir.CaseUpdate{
		Table:  model.DefaultOutcomesTable,
		Column: model.ColOutcome,
		Also:   []string{"missing"},
		Arms:   []queryir.CaseArm{{When: match, Then: model.Bool(true), Also: []model.Value{model.Null{}}}},
		Where:  match,
	}, p2024.Select())
	assert.ErrorContains(t, err, "no such column")
}

func TestMemConn_InsertAndDelete(t *testing.T) {
	c := seeded(t)
	ctx := context.Background()

	n, err := c.Insert(ctx, model.DefaultOutcomesTable, OutcomesTable(p2024, Row("c2", "e9", "r9", "x", true)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 4, c.Table(model.DefaultOutcomesTable).Len())

	n, err = c.Exec(ctx, queryir.Delete{
		Table: model.DefaultOutcomesTable,
		Where: queryir.Equals{Field: model.ColCheckID, Value: model.String("c1")},
	}, p2024.Select())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, c.Table(model.DefaultOutcomesTable).Len())
}

func TestMemConn_RecordsCalls(t *testing.T) {
	c := seeded(t)
	ctx := context.Background()

	_, _ = c.Query(ctx, queryir.Select{From: model.DefaultOutcomesTable, Columns: []string{model.ColCheckID}}, p2024.Select())
	_, _ = c.Insert(ctx, "other", ResultTable(Row("c1", "e1", "r1", 1, true)))

	calls := c.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, OpQuery, calls[0].Op)
	assert.Equal(t, OpInsert, calls[1].Op)
	assert.Equal(t, 1, calls[1].Rows)
	assert.Len(t, c.Writes(), 1)

	c.Reset()
	assert.Empty(t, c.Calls())
}

func TestMemConn_WriteErrors(t *testing.T) {
	c := seeded(t)
	c.InsertErr = errors.New("disk full")
	c.ExecErr = errors.New("locked")

	_, err := c.Insert(context.Background(), model.DefaultOutcomesTable, OutcomesTable(p2024, Row("c1", "e3", "r3", 1, true)))
	assert.EqualError(t, err, "disk full")

	_, err = c.Exec(context.Background(), queryir.Delete{
		Table: model.DefaultOutcomesTable,
		Where: queryir.Equals{Field: model.ColCheckID, Value: model.String("c1")},
	}, p2024.Select())
	assert.EqualError(t, err, "locked")
}
