package engine

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/controls/internal/metrics"
	"github.com/roach88/controls/internal/model"
)

// Engine reconciles the checks of one partition against persisted outcomes.
//
// The registry is loaded once by New and never refreshed. Every entry point
// re-runs all checks and re-reads the persisted table.
type Engine struct {
	conn      Connection
	partition model.Partition
	layout    model.Layout
	checks    *CheckSet
	registry  []string

	stalePolicy StalePolicy
	runIDs      RunIDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLayout overrides the registry and outcomes table names.
// Empty names keep their defaults.
func WithLayout(l model.Layout) Option {
	return func(e *Engine) {
		e.layout = l.WithDefaults()
	}
}

// WithStalePolicy sets what ExecuteControls does with stale rows.
//
// Default: StaleIgnore.
func WithStalePolicy(p StalePolicy) Option {
	return func(e *Engine) {
		e.stalePolicy = p
	}
}

// WithRunIDGenerator sets the source of run ids.
//
// Default: UUIDv7Generator. Use NewFixedGenerator for golden tests.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// New binds an engine to a connection and partition and loads the registry.
//
// conn is accepted as a Querier so that a read-only connection is reported
// as a ConfigurationError rather than a compile-time mismatch; it must also
// implement Writer. New fails with EmptyRegistryError when the partition has
// no registered checks.
func New(ctx context.Context, conn Querier, partition model.Partition, checks *CheckSet, opts ...Option) (*Engine, error) {
	if conn == nil {
		return nil, &ConfigurationError{Reason: "nil connection"}
	}
	full, ok := conn.(Connection)
	if !ok {
		return nil, &ConfigurationError{Reason: "connection does not support Insert and Exec"}
	}
	if partition.IsZero() {
		return nil, &ConfigurationError{Reason: "empty partition"}
	}
	if checks == nil {
		return nil, &ConfigurationError{Reason: "nil check set"}
	}

	e := &Engine{
		conn:        full,
		partition:   partition,
		layout:      model.DefaultLayout(),
		checks:      checks,
		stalePolicy: DefaultStalePolicy,
		runIDs:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.layout.Validate(); err != nil {
		return nil, &ConfigurationError{Reason: "invalid layout", Err: err}
	}
	for _, c := range partition.Columns() {
		if model.IsReservedColumn(c) {
			return nil, &ConfigurationError{Reason: "partition field " + c + " collides with an outcome column"}
		}
	}
	if _, err := ParseStalePolicy(string(e.stalePolicy)); err != nil {
		return nil, &ConfigurationError{Reason: "invalid stale policy", Err: err}
	}
	if e.runIDs == nil {
		return nil, &ConfigurationError{Reason: "nil run id generator"}
	}

	registry, err := loadRegistry(ctx, e.conn, e.layout, partition)
	if err != nil {
		return nil, err
	}
	e.registry = registry

	slog.Debug("engine ready",
		"partition", partition.String(),
		"registry", len(registry),
		"implemented", len(e.implemented()),
	)
	return e, nil
}

// Partition returns the partition the engine is bound to.
func (e *Engine) Partition() model.Partition {
	return e.partition
}

// Layout returns the table layout.
func (e *Engine) Layout() model.Layout {
	return e.layout
}

// Registry returns a copy of the check ids loaded at construction.
func (e *Engine) Registry() []string {
	return slices.Clone(e.registry)
}

// implemented returns the registry ids that have a registered check.
func (e *Engine) implemented() []string {
	var ids []string
	for _, id := range e.registry {
		if _, ok := e.checks.Lookup(id); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Report summarizes one entry point call.
type Report struct {
	RunID     string `json:"run_id"`
	Partition string `json:"partition"`

	// Checks is the number of checks invoked; Rows the fresh rows they produced.
	Checks int `json:"checks"`
	Rows   int `json:"rows"`

	Changed   int `json:"changed"`
	New       int `json:"new"`
	Stale     int `json:"stale"`
	Unchanged int `json:"unchanged"`

	Updated  int64 `json:"updated"`
	Inserted int64 `json:"inserted"`
	Deleted  int64 `json:"deleted"`

	// PersistedReadFailed is set when the insert path could not read the
	// outcomes table and treated it as empty.
	PersistedReadFailed bool `json:"persisted_read_failed,omitempty"`
}

// ExecuteControls runs all checks, reconciles them against the persisted
// outcomes and writes the changed outcomes in a single statement.
// Returns the number of rows updated; 0 means already reconciled.
func (e *Engine) ExecuteControls(ctx context.Context) (int64, error) {
	r, err := e.ExecuteControlsReport(ctx)
	if err != nil {
		return 0, err
	}
	return r.Updated, nil
}

// ExecuteControlsReport is ExecuteControls returning the full report.
// With StaleDelete, stale rows are removed by a second statement after the
// update.
func (e *Engine) ExecuteControlsReport(ctx context.Context) (r *Report, err error) {
	start := time.Now()
	runID := e.runIDs.Generate()
	defer func() {
		metrics.RunDuration.WithLabelValues("execute", metrics.Status(err)).Observe(time.Since(start).Seconds())
	}()

	rs, err := e.runChecks(ctx, runID)
	if err != nil {
		return nil, err
	}
	persisted, err := e.readOutcomes(ctx)
	if err != nil {
		return nil, err
	}

	d := ReconcileChanged(rs.Rows, persisted)
	observeDelta(d.Changed, nil, d.Stale, d.Unchanged)

	r = e.newReport(runID, rs)
	r.Changed, r.Stale, r.Unchanged = len(d.Changed), len(d.Stale), d.Unchanged

	if r.Updated, err = e.emitUpdate(ctx, d.Changed); err != nil {
		return nil, err
	}
	metrics.WrittenRowsTotal.WithLabelValues(metrics.OpUpdate).Add(float64(r.Updated))

	switch e.stalePolicy {
	case StaleReport:
		for _, k := range d.Stale {
			slog.Info("stale outcome", "run_id", runID, "partition", r.Partition, "key", k.String())
		}
	case StaleDelete:
		if r.Deleted, err = e.emitDelete(ctx, d.Stale); err != nil {
			return nil, err
		}
		metrics.WrittenRowsTotal.WithLabelValues(metrics.OpDelete).Add(float64(r.Deleted))
	}

	slog.Info("controls executed",
		"run_id", runID,
		"partition", r.Partition,
		"checks", r.Checks,
		"changed", r.Changed,
		"unchanged", r.Unchanged,
		"stale", r.Stale,
		"updated", r.Updated,
		"deleted", r.Deleted,
	)
	return r, nil
}

// InsertNewRows runs all checks and inserts every result whose natural key
// is not yet persisted, in a single batch. A failed read of the outcomes
// table is treated as an empty table. Returns the number of rows inserted.
func (e *Engine) InsertNewRows(ctx context.Context) (int64, error) {
	r, err := e.InsertNewRowsReport(ctx)
	if err != nil {
		return 0, err
	}
	return r.Inserted, nil
}

// InsertNewRowsReport is InsertNewRows returning the full report.
func (e *Engine) InsertNewRowsReport(ctx context.Context) (r *Report, err error) {
	start := time.Now()
	runID := e.runIDs.Generate()
	defer func() {
		metrics.RunDuration.WithLabelValues("insert", metrics.Status(err)).Observe(time.Since(start).Seconds())
	}()

	rs, err := e.runChecks(ctx, runID)
	if err != nil {
		return nil, err
	}

	r = e.newReport(runID, rs)
	persisted, failed, err := e.persistedKeys(ctx, runID)
	if err != nil {
		return nil, err
	}
	r.PersistedReadFailed = failed

	fresh := ReconcileNew(rs.Rows, e.partition.Values(), persisted)
	r.New = len(fresh)
	observeDelta(nil, fresh, nil, 0)

	if r.Inserted, err = e.emitInsert(ctx, fresh); err != nil {
		return nil, err
	}
	metrics.WrittenRowsTotal.WithLabelValues(metrics.OpInsert).Add(float64(r.Inserted))

	slog.Info("new rows inserted",
		"run_id", runID,
		"partition", r.Partition,
		"checks", r.Checks,
		"new", r.New,
		"inserted", r.Inserted,
	)
	return r, nil
}

// persistedKeys reads the natural keys for the insert path. A failed query
// is logged and reported as an empty set; malformed rows are still fatal.
func (e *Engine) persistedKeys(ctx context.Context, runID string) (map[model.NaturalKey]struct{}, bool, error) {
	t, err := e.queryNaturalKeys(ctx)
	if err != nil {
		metrics.PersistedReadFailuresTotal.Inc()
		slog.Warn("persisted outcomes unreadable, treating as empty",
			"run_id", runID,
			"partition", e.partition.String(),
			"table", e.layout.OutcomesTable,
			"error", err,
		)
		return map[model.NaturalKey]struct{}{}, true, nil
	}
	keys, err := e.naturalKeys(t)
	if err != nil {
		return nil, false, err
	}
	return keys, false, nil
}

// Plan is the outcome of a dry run: what ExecuteControls and InsertNewRows
// would write now.
type Plan struct {
	RunID     string            `json:"run_id"`
	Partition string            `json:"partition"`
	Registry  []string          `json:"registry"`
	PerCheck  map[string]int    `json:"per_check"`
	Fresh     int               `json:"fresh"`
	Changed   []model.ResultRow `json:"changed"`
	New       []model.ResultRow `json:"new"`
	Stale     []model.Key       `json:"stale"`
	Unchanged int               `json:"unchanged"`

	// PersistedReadFailed mirrors Report.PersistedReadFailed for the new set.
	PersistedReadFailed bool `json:"persisted_read_failed,omitempty"`
}

// Plan runs all checks and both reconciliations without writing.
// The changed-path read is fatal on failure, exactly as in ExecuteControls.
func (e *Engine) Plan(ctx context.Context) (p *Plan, err error) {
	start := time.Now()
	runID := e.runIDs.Generate()
	defer func() {
		metrics.RunDuration.WithLabelValues("plan", metrics.Status(err)).Observe(time.Since(start).Seconds())
	}()

	rs, err := e.runChecks(ctx, runID)
	if err != nil {
		return nil, err
	}
	persisted, err := e.readOutcomes(ctx)
	if err != nil {
		return nil, err
	}
	keys, failed, err := e.persistedKeys(ctx, runID)
	if err != nil {
		return nil, err
	}

	d := ReconcileChanged(rs.Rows, persisted)
	p = &Plan{
		RunID:               runID,
		Partition:           e.partition.String(),
		Registry:            e.Registry(),
		PerCheck:            rs.PerCheck,
		Fresh:               len(rs.Rows),
		Changed:             d.Changed,
		New:                 ReconcileNew(rs.Rows, e.partition.Values(), keys),
		Stale:               d.Stale,
		Unchanged:           d.Unchanged,
		PersistedReadFailed: failed,
	}
	slog.Debug("plan computed",
		"run_id", runID,
		"partition", p.Partition,
		"changed", len(p.Changed),
		"new", len(p.New),
		"stale", len(p.Stale),
	)
	return p, nil
}

func (e *Engine) newReport(runID string, rs *ResultSet) *Report {
	return &Report{
		RunID:     runID,
		Partition: e.partition.String(),
		Checks:    len(rs.PerCheck),
		Rows:      len(rs.Rows),
	}
}

func observeDelta(changed, fresh []model.ResultRow, stale []model.Key, unchanged int) {
	metrics.DeltaRowsTotal.WithLabelValues(metrics.ClassChanged).Add(float64(len(changed)))
	metrics.DeltaRowsTotal.WithLabelValues(metrics.ClassNew).Add(float64(len(fresh)))
	metrics.DeltaRowsTotal.WithLabelValues(metrics.ClassStale).Add(float64(len(stale)))
	metrics.DeltaRowsTotal.WithLabelValues(metrics.ClassUnchanged).Add(float64(unchanged))
}
