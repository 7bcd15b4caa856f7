package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

// outcomeRows builds n outcome rows for partition aar=<aar>, alternating outcome.
func outcomeRows(aar string, n int) *model.Table {
	t := model.NewTable("aar", model.ColCheckID, model.ColEntityID, model.ColDeliveryRef, model.ColValue, model.ColOutcome)
	for i := 0; i < n; i++ {
		t.MustAppend(
			model.String(aar),
			model.String("c1"),
			model.String(fmt.Sprintf("e%d", i)),
			model.String(fmt.Sprintf("r%d", i)),
			model.String(fmt.Sprintf("%d", i*10)),
			model.Bool(i%2 == 0),
		)
	}
	return t
}

func persistedSelect(layout model.Layout) queryir.Select {
	return queryir.Select{
		From:    layout.OutcomesTable,
		Columns: []string{model.ColCheckID, model.ColEntityID, model.ColDeliveryRef, model.ColOutcome},
		OrderBy: []string{model.ColCheckID, model.ColEntityID, model.ColDeliveryRef},
	}
}

func setupOutcomes(t *testing.T) (*Store, model.Layout) {
	t.Helper()
	s := openTestStore(t)
	layout := model.DefaultLayout()
	if err := s.EnsureSchema(context.Background(), layout, []string{"aar"}); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}
	return s, layout
}

func TestInsertAndQuery_ScopedToPartition(t *testing.T) {
	s, layout := setupOutcomes(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, layout.OutcomesTable, outcomeRows("2023", 2)); err != nil {
		t.Fatalf("Insert(2023) failed: %v", err)
	}
	if _, err := s.Insert(ctx, layout.OutcomesTable, outcomeRows("2024", 3)); err != nil {
		t.Fatalf("Insert(2024) failed: %v", err)
	}

	got, err := s.Query(ctx, persistedSelect(layout), model.MustPartition("aar", "2024").Select())
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("Query() returned %d rows, want 3", got.Len())
	}

	wantCols := []string{model.ColCheckID, model.ColEntityID, model.ColDeliveryRef, model.ColOutcome}
	for i, c := range wantCols {
		if got.Columns[i] != c {
			t.Errorf("column %d = %q, want %q", i, got.Columns[i], c)
		}
	}

	entity, err := model.AsString(got.Get(0, model.ColEntityID))
	if err != nil || entity != "e0" {
		t.Errorf("row 0 entity = %q (%v), want e0", entity, err)
	}
	outcome, err := model.AsBool(got.Get(0, model.ColOutcome))
	if err != nil || !outcome {
		t.Errorf("row 0 outcome = %v (%v), want true", outcome, err)
	}
	outcome, err = model.AsBool(got.Get(1, model.ColOutcome))
	if err != nil || outcome {
		t.Errorf("row 1 outcome = %v (%v), want false", outcome, err)
	}
}

func TestInsert_EmptyTableIsNoop(t *testing.T) {
	s, layout := setupOutcomes(t)

	n, err := s.Insert(context.Background(), layout.OutcomesTable, model.NewTable("aar"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Insert() = %d, want 0", n)
	}

	n, err = s.Insert(context.Background(), layout.OutcomesTable, nil)
	if err != nil || n != 0 {
		t.Errorf("Insert(nil) = %d, %v; want 0, nil", n, err)
	}
}

func TestInsert_SplitsLargeBatchInOneTransaction(t *testing.T) {
	s, layout := setupOutcomes(t)
	ctx := context.Background()

	// 6 columns per row: more rows than fit in a single SQLite statement.
	rows := outcomeRows("2024", 6000)
	n, err := s.Insert(ctx, layout.OutcomesTable, rows)
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if n != 6000 {
		t.Errorf("Insert() = %d, want 6000", n)
	}
}

func TestInsert_AllOrNothing(t *testing.T) {
	s, layout := setupOutcomes(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, layout.OutcomesTable, outcomeRows("2024", 1)); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	// Second batch repeats e0 (primary key violation) after two fresh rows.
	batch := outcomeRows("2024", 3)
	batch.Rows = append(batch.Rows[1:], batch.Rows[0])
	if _, err := s.Insert(ctx, layout.OutcomesTable, batch); err == nil {
		t.Fatal("expected primary key violation")
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM control_outcomes").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows after failed insert = %d, want 1", count)
	}
}

func TestExec_CaseUpdateScopedToPartition(t *testing.T) {
	s, layout := setupOutcomes(t)
	ctx := context.Background()

	for _, aar := range []string{"2023", "2024"} {
		if _, err := s.Insert(ctx, layout.OutcomesTable, outcomeRows(aar, 2)); err != nil {
			t.Fatalf("Insert(%s) failed: %v", aar, err)
		}
	}

	// Flip e0 (true -> false) and e1 (false -> true) in 2024 only.
	match := func(ref string) queryir.And {
		return queryir.KeyMatch(
			[]string{model.ColCheckID, model.ColDeliveryRef},
			[]model.Value{model.String("c1"), model.String(ref)},
		)
	}
	update := queryir.CaseUpdate{
		Table:  layout.OutcomesTable,
		Column: model.ColOutcome,
		Arms: []queryir.CaseArm{
			{When: match("r0"), Then: model.Bool(false)},
			{When: match("r1"), Then: model.Bool(true)},
		},
		Where: queryir.Or{Predicates: []queryir.Predicate{match("r0"), match("r1")}},
	}

	n, err := s.Exec(ctx, update, model.MustPartition("aar", "2024").Select())
	if err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Exec() = %d, want 2", n)
	}

	rows, err := s.db.Query("SELECT aar, delivery_ref, outcome FROM control_outcomes ORDER BY aar, delivery_ref")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	want := map[string]bool{"2023/r0": true, "2023/r1": false, "2024/r0": false, "2024/r1": true}
	for rows.Next() {
		var aar, ref string
		var outcome bool
		if err := rows.Scan(&aar, &ref, &outcome); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if want[aar+"/"+ref] != outcome {
			t.Errorf("%s/%s outcome = %v, want %v", aar, ref, outcome, want[aar+"/"+ref])
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
}

func TestExec_Delete(t *testing.T) {
	s, layout := setupOutcomes(t)
	ctx := context.Background()
	if _, err := s.Insert(ctx, layout.OutcomesTable, outcomeRows("2024", 3)); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	del := queryir.Delete{
		Table: layout.OutcomesTable,
		Where: queryir.Equals{Field: model.ColEntityID, Value: model.String("e1")},
	}
	n, err := s.Exec(ctx, del, model.MustPartition("aar", "2024").Select())
	if err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Exec() = %d, want 1", n)
	}
}

func TestQuery_MissingTableFails(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Query(context.Background(), persistedSelect(model.DefaultLayout()), model.MustPartition("aar", "2024").Select())
	if err == nil {
		t.Fatal("expected error for missing table")
	}
}
