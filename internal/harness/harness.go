package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/controls/internal/engine"
	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/store"
)

// Harness is the test execution engine.
// It runs one scenario against an in-memory SQLite store with fixed check
// results and deterministic run ids.
type Harness struct {
	store    *store.Store
	rec      *recorder
	engine   *engine.Engine
	fixtures map[string]CheckFixture
	layout   model.Layout
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database with the outcome schema
// 2. Seed the registry and persisted outcomes (not traced)
// 3. Build the engine on a recording connection (step 0)
// 4. Execute steps, comparing each report with its expect clause
// 5. Evaluate assertions against the final outcomes table and trace
//
// An error is returned only when the scenario cannot be set up; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		fixtures: make(map[string]CheckFixture, len(scenario.Checks)),
		layout:   model.DefaultLayout(),
	}
	if err := h.seed(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}
	for _, f := range scenario.Checks {
		h.fixtures[model.NormalizeID(f.ID)] = f
	}

	result := NewResult()
	h.rec = newRecorder(st, st.Dialect(), result)

	policy, err := engine.ParseStalePolicy(scenario.StalePolicy)
	if err != nil {
		return nil, err
	}
	h.engine, err = engine.New(ctx, h.rec, scenario.Partition, h.checkSet(),
		engine.WithLayout(h.layout),
		engine.WithStalePolicy(policy),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(scenario.RunIDs...)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	for i, step := range scenario.Steps {
		h.executeStep(ctx, i+1, step, result)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, Layout: h.layout, Partition: scenario.Partition}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// seed creates the schema and writes the registry and persisted outcomes
// directly to the store.
func (h *Harness) seed(ctx context.Context, s *Scenario) error {
	if err := h.store.EnsureSchema(ctx, h.layout, s.Partition.Columns()); err != nil {
		return err
	}
	if len(s.Registry) > 0 {
		if _, err := h.store.RegisterChecks(ctx, h.layout, s.Partition, s.Registry); err != nil {
			return err
		}
	}
	rows := make([]model.ResultRow, 0, len(s.Persisted))
	for _, r := range s.Persisted {
		rr, err := r.resultRow(r.Check)
		if err != nil {
			return err
		}
		rows = append(rows, rr)
	}
	if _, err := h.store.Insert(ctx, h.layout.OutcomesTable, engine.BuildOutcomeRows(s.Partition, rows)); err != nil {
		return err
	}
	return nil
}

// checkSet registers one check per fixture id. Each check reads the
// fixture current at call time, so steps can replace results.
func (h *Harness) checkSet() *engine.CheckSet {
	set := engine.NewCheckSet()
	ids := make([]string, 0, len(h.fixtures))
	for id := range h.fixtures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		set.MustRegister(id, h.fixtureCheck(id))
	}
	return set
}

func (h *Harness) fixtureCheck(id string) engine.CheckFunc {
	return func(ctx context.Context, env engine.Env) (*model.Table, error) {
		f := h.fixtures[id]
		if f.Error != "" {
			return nil, errors.New(f.Error)
		}
		t := model.NewTable(model.ResultColumns...)
		for _, r := range f.Rows {
			rr, err := r.resultRow(f.ID)
			if err != nil {
				return nil, err
			}
			if err := t.Append(model.String(rr.EntityID), model.String(rr.DeliveryRef), model.String(f.ID), rr.Value, model.Bool(rr.Outcome)); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
}

func (r Row) resultRow(check string) (model.ResultRow, error) {
	v, err := model.FromAny(r.Value)
	if err != nil {
		return model.ResultRow{}, err
	}
	return model.ResultRow{CheckID: check, EntityID: r.Entity, DeliveryRef: r.Ref, Value: v, Outcome: r.Outcome}, nil
}

// executeStep runs one engine call and compares its report with the
// step's expect clause.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) {
	for _, f := range step.Checks {
		h.fixtures[model.NormalizeID(f.ID)] = f
	}
	h.rec.enterStep(index, step.FailReads)

	var (
		report *engine.Report
		err    error
	)
	switch step.Op {
	case OpExecute:
		report, err = h.engine.ExecuteControlsReport(ctx)
	case OpInsert:
		report, err = h.engine.InsertNewRowsReport(ctx)
	case OpPlan:
		var plan *engine.Plan
		plan, err = h.engine.Plan(ctx)
		if err == nil {
			report = planReport(plan)
		}
	}
	if step.Op != OpPlan {
		result.Reports = append(result.Reports, report)
	} else {
		result.Reports = append(result.Reports, nil)
	}

	for _, msg := range compareExpect(step.Expect, report, err) {
		result.AddError(fmt.Sprintf("steps[%d] (%s): %s", index-1, step.Op, msg))
	}
}

// planReport summarizes a plan with the counts a report would carry.
func planReport(p *engine.Plan) *engine.Report {
	return &engine.Report{
		RunID:               p.RunID,
		Partition:           p.Partition,
		Checks:              len(p.PerCheck),
		Rows:                p.Fresh,
		Changed:             len(p.Changed),
		New:                 len(p.New),
		Stale:               len(p.Stale),
		Unchanged:           p.Unchanged,
		PersistedReadFailed: p.PersistedReadFailed,
	}
}

// compareExpect returns one message per mismatch. A step without an
// expect clause must succeed.
func compareExpect(exp *Expect, r *engine.Report, err error) []string {
	if exp == nil {
		exp = &Expect{}
	}
	if exp.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected %s error, got success", exp.Error)}
		}
		if !ErrorKinds[exp.Error](err) {
			return []string{fmt.Sprintf("expected %s error, got: %v", exp.Error, err)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	checkInt := func(name string, want *int, got int) {
		if want != nil && *want != got {
			msgs = append(msgs, fmt.Sprintf("%s: expected %d, got %d", name, *want, got))
		}
	}
	checkInt64 := func(name string, want *int64, got int64) {
		if want != nil && *want != got {
			msgs = append(msgs, fmt.Sprintf("%s: expected %d, got %d", name, *want, got))
		}
	}
	checkInt("changed", exp.Changed, r.Changed)
	checkInt("new", exp.New, r.New)
	checkInt("stale", exp.Stale, r.Stale)
	checkInt("unchanged", exp.Unchanged, r.Unchanged)
	checkInt64("updated", exp.Updated, r.Updated)
	checkInt64("inserted", exp.Inserted, r.Inserted)
	checkInt64("deleted", exp.Deleted, r.Deleted)
	if exp.PersistedReadFailed != nil && *exp.PersistedReadFailed != r.PersistedReadFailed {
		msgs = append(msgs, fmt.Sprintf("persisted_read_failed: expected %t, got %t", *exp.PersistedReadFailed, r.PersistedReadFailed))
	}
	return msgs
}

// Summary renders the result errors, one per line.
func (r *Result) Summary() string {
	if r.Pass {
		return "pass"
	}
	return strings.Join(r.Errors, "\n")
}
