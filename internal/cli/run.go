package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/controls/internal/engine"
	"github.com/roach88/controls/internal/metrics"
)

// RunOptions holds flags for the commands that run checks.
type RunOptions struct {
	ConfigOptions
	Pushgateway string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator

	// Gatherer is pushed to the Pushgateway; nil means the default registry.
	Gatherer prometheus.Gatherer
}

func newRunOptions(rootOpts *RootOptions) *RunOptions {
	return &RunOptions{ConfigOptions: ConfigOptions{RootOptions: rootOpts}}
}

func (o *RunOptions) addFlags(cmd *cobra.Command) {
	o.ConfigOptions.addFlags(cmd)
	cmd.Flags().StringVar(&o.Pushgateway, "pushgateway", "", "Pushgateway URL for run metrics (overrides metrics.pushgateway)")
}

// NewExecuteCommand creates the execute command.
func NewExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	return newExecuteCommand(newRunOptions(rootOpts))
}

func newExecuteCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Run checks and update changed outcomes",
		Long: `Run every registered check for the configured partition, compare the
results with the persisted outcomes and update the ones that changed in a
single statement. Rows that are not persisted yet are left for "insert".

Example:
  controls execute --config ./controls.yaml
  controls execute --config ./controls.yaml --format json --pushgateway http://localhost:9091`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd, "execute", (*engine.Engine).ExecuteControlsReport)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	return newInsertCommand(newRunOptions(rootOpts))
}

func newInsertCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Run checks and insert new outcomes",
		Long: `Run every registered check for the configured partition and insert, in
a single batch, every result whose key is not persisted yet. An unreadable
outcomes table is treated as empty and reported with a warning.

Example:
  controls insert --config ./controls.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd, "insert", (*engine.Engine).InsertNewRowsReport)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlanCommand(newRunOptions(rootOpts))
}

func newPlanCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what execute and insert would write",
		Long: `Run every registered check and both reconciliations without writing
anything. Text output lists counts; --verbose also lists the affected keys.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}
	opts.ConfigOptions.addFlags(cmd)

	return cmd
}

type reportFunc func(*engine.Engine, context.Context) (*engine.Report, error)

func runReport(opts *RunOptions, cmd *cobra.Command, entry string, run reportFunc) error {
	out := opts.output(cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts.ConfigPath, opts.RunIDs)
	if err != nil {
		return out.Fail(err)
	}
	defer s.Close()

	report, runErr := run(s.engine, ctx)
	opts.push(s)
	if runErr != nil {
		return out.Fail(runErr)
	}

	return out.Emit(report, func(w io.Writer) { writeReport(w, entry, report) })
}

// push sends the process metrics to the Pushgateway, if one is configured,
// grouped by the partition fields. A failed push is logged; the run itself
// has already been committed.
func (o *RunOptions) push(s *session) {
	url := o.Pushgateway
	if url == "" {
		url = s.cfg.Metrics.Pushgateway
	}
	if url == "" {
		return
	}
	gatherer := o.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if err := metrics.Push(url, s.cfg.Metrics.Job, s.cfg.PushGrouping(), gatherer); err != nil {
		slog.Warn("metrics push failed", "url", url, "error", err)
		return
	}
	slog.Debug("metrics pushed", "url", url, "job", s.cfg.Metrics.Job)
}

func writeReport(w io.Writer, entry string, r *engine.Report) {
	fmt.Fprintf(w, "%s %s (run %s)\n", entry, r.Partition, r.RunID)
	fmt.Fprintf(w, "  checks:    %d (%d rows)\n", r.Checks, r.Rows)
	switch entry {
	case "execute":
		fmt.Fprintf(w, "  changed:   %d\n", r.Changed)
		fmt.Fprintf(w, "  unchanged: %d\n", r.Unchanged)
		fmt.Fprintf(w, "  stale:     %d\n", r.Stale)
		fmt.Fprintf(w, "  updated:   %d\n", r.Updated)
		if r.Deleted > 0 {
			fmt.Fprintf(w, "  deleted:   %d\n", r.Deleted)
		}
	case "insert":
		fmt.Fprintf(w, "  new:       %d\n", r.New)
		fmt.Fprintf(w, "  inserted:  %d\n", r.Inserted)
		if r.PersistedReadFailed {
			fmt.Fprintln(w, "  warning:   outcomes table unreadable, treated as empty")
		}
	}
}

func runPlan(opts *RunOptions, cmd *cobra.Command) error {
	out := opts.output(cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts.ConfigPath, opts.RunIDs)
	if err != nil {
		return out.Fail(err)
	}
	defer s.Close()

	plan, err := s.engine.Plan(ctx)
	if err != nil {
		return out.Fail(err)
	}

	return out.Emit(plan, func(w io.Writer) {
		fmt.Fprintf(w, "plan %s (run %s)\n", plan.Partition, plan.RunID)
		fmt.Fprintf(w, "  checks:    %d (%d rows)\n", len(plan.PerCheck), plan.Fresh)
		fmt.Fprintf(w, "  changed:   %d\n", len(plan.Changed))
		fmt.Fprintf(w, "  new:       %d\n", len(plan.New))
		fmt.Fprintf(w, "  stale:     %d\n", len(plan.Stale))
		fmt.Fprintf(w, "  unchanged: %d\n", plan.Unchanged)
		for _, r := range plan.Changed {
			out.Debugf("changed %s -> %t", r.Key(), r.Outcome)
		}
		for _, r := range plan.New {
			out.Debugf("new     %s -> %t", r.Key(), r.Outcome)
		}
		for _, k := range plan.Stale {
			out.Debugf("stale   %s", k)
		}
	})
}
