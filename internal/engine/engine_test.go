package engine

import (
	"context"
	"errors"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/controls/internal/metrics"
	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
	"github.com/roach88/controls/internal/testutil"
)

var part = model.MustPartition("aar", "2024", "skjema", "RA-0174")

func row(check, entity, ref string, value any, outcome bool) model.ResultRow {
	return testutil.Row(check, entity, ref, value, outcome)
}

// newConn seeds a registry for part and an outcomes table holding persisted.
func newConn(ids []string, persisted ...model.ResultRow) *testutil.MemConn {
	c := testutil.NewMemConn()
	c.SetTable(model.DefaultRegistryTable, testutil.RegistryTable(part, ids...))
	c.SetTable(model.DefaultOutcomesTable, testutil.OutcomesTable(part, persisted...))
	return c
}

// static returns a check that always yields rows.
func static(rows ...model.ResultRow) CheckFunc {
	return func(ctx context.Context, env Env) (*model.Table, error) {
		return testutil.ResultTable(rows...), nil
	}
}

func newEngine(t *testing.T, conn Querier, checks *CheckSet, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithRunIDGenerator(NewFixedGenerator("run-1", "run-2", "run-3"))}, opts...)
	e, err := New(context.Background(), conn, part, checks, opts...)
	require.NoError(t, err)
	return e
}

func TestNew_LoadsRegistry(t *testing.T) {
	conn := newConn([]string{" c2", "c1", "c1"})
	e := newEngine(t, conn, NewCheckSet())

	assert.Equal(t, []string{"c1", "c2"}, e.Registry())
	assert.Equal(t, part, e.Partition())
	assert.Equal(t, model.DefaultLayout(), e.Layout())

	calls := conn.Calls()
	require.Len(t, calls, 1, "registry is read once at construction")
	assert.Equal(t, model.DefaultRegistryTable, calls[0].Table)
	assert.Equal(t, []string{"aar", "skjema"}, calls[0].Select.Columns())
}

func TestNew_RegistryIsCopied(t *testing.T) {
	e := newEngine(t, newConn([]string{"c1"}), NewCheckSet())
	ids := e.Registry()
	ids[0] = "mutated"
	assert.Equal(t, []string{"c1"}, e.Registry())
}

func TestNew_ConfigurationErrors(t *testing.T) {
	conn := newConn([]string{"c1"})
	tests := []struct {
		name      string
		conn      Querier
		partition model.Partition
		checks    *CheckSet
		opts      []Option
	}{
		{"nil connection", nil, part, NewCheckSet(), nil},
		{"read-only connection", testutil.QueryOnly{Conn: conn}, part, NewCheckSet(), nil},
		{"empty partition", conn, model.Partition{}, NewCheckSet(), nil},
		{"nil checks", conn, part, nil, nil},
		{"reserved partition field", conn, model.MustPartition("outcome", "x"), NewCheckSet(), nil},
		{"same table names", conn, part, NewCheckSet(), []Option{WithLayout(model.Layout{RegistryTable: "t", OutcomesTable: "t"})}},
		{"bad stale policy", conn, part, NewCheckSet(), []Option{WithStalePolicy("purge")}},
		{"nil run ids", conn, part, NewCheckSet(), []Option{WithRunIDGenerator(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.conn, tt.partition, tt.checks, tt.opts...)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestNew_EmptyRegistry(t *testing.T) {
	conn := testutil.NewMemConn()
	other := model.MustPartition("aar", "2023", "skjema", "RA-0174")
	conn.SetTable(model.DefaultRegistryTable, testutil.RegistryTable(other, "c1"))

	_, err := New(context.Background(), conn, part, NewCheckSet())
	require.Error(t, err)
	assert.True(t, IsEmptyRegistryError(err))
	assert.Contains(t, err.Error(), "aar=2024,skjema=RA-0174")
}

func TestNew_RegistryReadFailure(t *testing.T) {
	_, err := New(context.Background(), testutil.NewMemConn(), part, NewCheckSet())
	require.Error(t, err)
	assert.False(t, IsEmptyRegistryError(err))
	assert.Contains(t, err.Error(), "load registry from control_registry")
}

func TestNew_CustomLayout(t *testing.T) {
	conn := testutil.NewMemConn()
	conn.SetTable("kontroller", testutil.RegistryTable(part, "c1"))

	e := newEngine(t, conn, NewCheckSet(), WithLayout(model.Layout{RegistryTable: "kontroller"}))
	assert.Equal(t, "kontroller", e.Layout().RegistryTable)
	assert.Equal(t, model.DefaultOutcomesTable, e.Layout().OutcomesTable)
}

func TestExecuteControls_ChangedPath(t *testing.T) {
	conn := newConn([]string{"c1"}, row("c1", "e1", "r1", nil, false))
	checks := NewCheckSet().MustRegister("c1", static(row("c1", "e1", "r1", 5, true)))
	e := newEngine(t, conn, checks)

	plan, err := e.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ResultRow{row("c1", "e1", "r1", 5, true)}, plan.Changed)
	assert.Empty(t, plan.New)

	n, err := e.ExecuteControls(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	outcomes := conn.Table(model.DefaultOutcomesTable)
	assert.Equal(t, model.Bool(true), outcomes.Get(0, model.ColOutcome))
}

func TestExecuteControls_Idempotent(t *testing.T) {
	conn := newConn([]string{"c1", "c2"},
		row("c1", "e1", "r1", nil, false),
		row("c2", "e1", "r1", nil, true),
		row("c2", "e2", "r2", nil, true),
	)
	checks := NewCheckSet().
		MustRegister("c1", static(row("c1", "e1", "r1", 5, true))).
		MustRegister("c2", static(row("c2", "e1", "r1", 1, false), row("c2", "e2", "r2", 2, true)))
	e := newEngine(t, conn, checks)

	n, err := e.ExecuteControls(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	conn.Reset()
	n, err = e.ExecuteControls(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Empty(t, conn.Writes(), "second call must not write")
}

func TestExecuteControls_SingleStatement(t *testing.T) {
	var persisted, fresh []model.ResultRow
	for _, ref := range []string{"r1", "r2", "r3", "r4"} {
		persisted = append(persisted, row("c1", "e-"+ref, ref, nil, false))
		fresh = append(fresh, row("c1", "e-"+ref, ref, 1, true))
	}
	conn := newConn([]string{"c1"}, persisted...)
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static(fresh...)))

	n, err := e.ExecuteControls(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	writes := conn.Writes()
	require.Len(t, writes, 1)
	upd, ok := writes[0].Statement.(queryir.CaseUpdate)
	require.True(t, ok)
	assert.Len(t, upd.Arms, 4)
	assert.Equal(t, model.ColOutcome, upd.Column)
	assert.Equal(t, []string{model.ColValue}, upd.Also)
	assert.Equal(t, []string{"aar", "skjema"}, writes[0].Select.Columns())
}

func TestExecuteControls_UnchangedExcluded(t *testing.T) {
	conn := newConn([]string{"c1"}, row("c1", "e1", "r1", nil, true))
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static(row("c1", "e1", "r1", 9, true))))

	r, err := e.ExecuteControlsReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, r.Changed)
	assert.Equal(t, 1, r.Unchanged)
	assert.Equal(t, int64(0), r.Updated)
	assert.Empty(t, conn.Writes())
}

func TestExecuteControls_IgnoresFreshOnlyRows(t *testing.T) {
	conn := newConn([]string{"c1"})
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static(row("c1", "e1", "r1", 1, true))))

	n, err := e.ExecuteControls(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Empty(t, conn.Writes())
}

func TestExecuteControls_PersistedReadFailureIsFatal(t *testing.T) {
	conn := newConn([]string{"c1"})
	conn.QueryErr[model.DefaultOutcomesTable] = errors.New("no such table")
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static(row("c1", "e1", "r1", 1, true))))

	_, err := e.ExecuteControls(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read control_outcomes")
	assert.Empty(t, conn.Writes())
}

func TestExecuteControls_MutationFailure(t *testing.T) {
	conn := newConn([]string{"c1"}, row("c1", "e1", "r1", nil, false))
	conn.ExecErr = errors.New("database is locked")
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static(row("c1", "e1", "r1", 1, true))))

	_, err := e.ExecuteControls(context.Background())
	require.Error(t, err)
	assert.True(t, IsMutationError(err))

	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, PathUpdate, me.Path)
	assert.Len(t, conn.Writes(), 1, "no retry")
}

func TestExecuteControls_StalePolicies(t *testing.T) {
	persisted := []model.ResultRow{
		row("c1", "e1", "r1", nil, true),
		row("c1", "gone", "r9", nil, true),
	}
	fresh := static(row("c1", "e1", "r1", 1, true))

	t.Run("ignore", func(t *testing.T) {
		conn := newConn([]string{"c1"}, persisted...)
		e := newEngine(t, conn, NewCheckSet().MustRegister("c1", fresh))

		r, err := e.ExecuteControlsReport(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, r.Stale)
		assert.Equal(t, int64(0), r.Deleted)
		assert.Empty(t, conn.Writes())
		assert.Equal(t, 2, conn.Table(model.DefaultOutcomesTable).Len())
	})

	t.Run("report", func(t *testing.T) {
		conn := newConn([]string{"c1"}, persisted...)
		e := newEngine(t, conn, NewCheckSet().MustRegister("c1", fresh), WithStalePolicy(StaleReport))

		r, err := e.ExecuteControlsReport(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, r.Stale)
		assert.Empty(t, conn.Writes())
	})

	t.Run("delete", func(t *testing.T) {
		conn := newConn([]string{"c1"}, persisted...)
		e := newEngine(t, conn, NewCheckSet().MustRegister("c1", fresh), WithStalePolicy(StaleDelete))

		r, err := e.ExecuteControlsReport(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), r.Deleted)

		writes := conn.Writes()
		require.Len(t, writes, 1)
		_, ok := writes[0].Statement.(queryir.Delete)
		assert.True(t, ok)

		left := conn.Table(model.DefaultOutcomesTable)
		require.Equal(t, 1, left.Len())
		assert.Equal(t, model.String("e1"), left.Get(0, model.ColEntityID))

		conn.Reset()
		r, err = e.ExecuteControlsReport(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, r.Stale)
		assert.Empty(t, conn.Writes())
	})
}

func TestInsertNewRows_NewPath(t *testing.T) {
	fresh := row("c1", "e2", "r2", 3, false)

	t.Run("empty persisted", func(t *testing.T) {
		conn := newConn([]string{"c1"})
		e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static(fresh)))

		plan, err := e.Plan(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []model.ResultRow{fresh}, plan.New)

		n, err := e.InsertNewRows(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got := conn.Table(model.DefaultOutcomesTable)
		require.Equal(t, 1, got.Len())
		assert.Equal(t, model.String("2024"), got.Get(0, "aar"))
		assert.Equal(t, model.String("RA-0174"), got.Get(0, "skjema"))
		assert.Equal(t, model.String("e2"), got.Get(0, model.ColEntityID))
		assert.Equal(t, model.String("3"), got.Get(0, model.ColValue))
		assert.Equal(t, model.Bool(false), got.Get(0, model.ColOutcome))
	})

	t.Run("key already persisted", func(t *testing.T) {
		conn := newConn([]string{"c1"}, row("c1", "e2", "r2", 3, true))
		e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static(fresh)))

		n, err := e.InsertNewRows(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
		assert.Empty(t, conn.Writes())
	})
}

func TestInsertNewRows_Idempotent(t *testing.T) {
	conn := newConn([]string{"c1"})
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1",
		static(row("c1", "e1", "r1", 1, true), row("c1", "e2", "r2", nil, false))))

	n, err := e.InsertNewRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	conn.Reset()
	n, err = e.InsertNewRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Empty(t, conn.Writes())
}

func TestInsertNewRows_FirstRun(t *testing.T) {
	conn := newConn([]string{"c1"})
	conn.QueryErr[model.DefaultOutcomesTable] = errors.New("no such table: control_outcomes")
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1",
		static(row("c1", "e1", "r1", 1, true), row("c1", "e2", "r2", 2, false))))

	before := promtest.ToFloat64(metrics.PersistedReadFailuresTotal)

	r, err := e.InsertNewRowsReport(context.Background())
	require.NoError(t, err)
	assert.True(t, r.PersistedReadFailed)
	assert.Equal(t, int64(2), r.Inserted)
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.PersistedReadFailuresTotal))
}

func TestInsertNewRows_MutationFailure(t *testing.T) {
	conn := newConn([]string{"c1"})
	conn.InsertErr = errors.New("disk full")
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static(row("c1", "e1", "r1", 1, true))))

	_, err := e.InsertNewRows(context.Background())
	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, PathInsert, me.Path)
	assert.EqualError(t, errors.Unwrap(err), "disk full")
}

func TestEmptyDelta_NoWrites(t *testing.T) {
	conn := newConn([]string{"c1"})
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static()))

	n, err := e.ExecuteControls(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = e.InsertNewRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.Empty(t, conn.Writes())
}

func TestPlan_DoesNotWrite(t *testing.T) {
	conn := newConn([]string{"c1", "c2"},
		row("c1", "e1", "r1", nil, false),
		row("c2", "old", "r0", nil, true),
	)
	checks := NewCheckSet().
		MustRegister("c1", static(row("c1", "e1", "r1", 5, true), row("c1", "e3", "r3", 1, true))).
		MustRegister("c2", static())
	e := newEngine(t, conn, checks)

	plan, err := e.Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", plan.RunID)
	assert.Equal(t, "aar=2024,skjema=RA-0174", plan.Partition)
	assert.Equal(t, []string{"c1", "c2"}, plan.Registry)
	assert.Equal(t, map[string]int{"c1": 2, "c2": 0}, plan.PerCheck)
	assert.Equal(t, 2, plan.Fresh)
	assert.Len(t, plan.Changed, 1)
	assert.Equal(t, []model.ResultRow{row("c1", "e3", "r3", 1, true)}, plan.New)
	assert.Equal(t, []model.Key{{CheckID: "c2", EntityID: "old", DeliveryRef: "r0"}}, plan.Stale)
	assert.Empty(t, conn.Writes())
}

func TestReport_RunIDs(t *testing.T) {
	conn := newConn([]string{"c1"})
	e := newEngine(t, conn, NewCheckSet().MustRegister("c1", static()))

	r1, err := e.ExecuteControlsReport(context.Background())
	require.NoError(t, err)
	r2, err := e.InsertNewRowsReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", r1.RunID)
	assert.Equal(t, "run-2", r2.RunID)
	assert.Equal(t, 1, r1.Checks)
}
