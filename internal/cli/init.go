package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// InitResult is the output of the init command.
type InitResult struct {
	Partition string   `json:"partition"`
	Checks    []string `json:"checks"`

	// Registered counts ids newly added to the registry; ids already
	// present are left alone.
	Registered int64 `json:"registered"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create tables and register the configured checks",
		Long: `Create the registry and outcomes tables for the configured partition
columns if they do not exist, then register every configured check for the
configured partition. Safe to run repeatedly.

Example:
  controls init --config ./controls.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

func runInit(opts *ConfigOptions, cmd *cobra.Command) error {
	out := opts.output(cmd)
	ctx := cmd.Context()

	s, err := openStore(ctx, opts.ConfigPath)
	if err != nil {
		return out.Fail(err)
	}
	defer s.Close()

	if err := s.store.EnsureSchema(ctx, s.cfg.Tables, s.cfg.Partition.Columns()); err != nil {
		return out.Fail(&commandError{code: ErrCodeDatabase, exit: ExitCommandError, msg: "failed to create schema", err: err})
	}
	out.Debugf("Schema ready (%s, %s)", s.cfg.Tables.RegistryTable, s.cfg.Tables.OutcomesTable)

	ids := s.cfg.CheckIDs()
	n, err := s.store.RegisterChecks(ctx, s.cfg.Tables, s.cfg.Partition, ids)
	if err != nil {
		return out.Fail(&commandError{code: ErrCodeDatabase, exit: ExitCommandError, msg: "failed to register checks", err: err})
	}

	result := InitResult{Partition: s.cfg.Partition.String(), Checks: ids, Registered: n}
	return out.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Initialized %s: %d of %d check(s) newly registered\n", result.Partition, n, len(ids))
	})
}
