package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RegistryEntry is one registered check id.
type RegistryEntry struct {
	ID string `json:"id"`

	// Configured is false for ids registered in the database that have no
	// check in the config file; runs skip them.
	Configured bool `json:"configured"`
}

// RegistryResult is the output of the registry command.
type RegistryResult struct {
	Partition string          `json:"partition"`
	Checks    []RegistryEntry `json:"checks"`
}

// NewRegistryCommand creates the registry command.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "List the checks registered for the partition",
		Long: `List the check ids registered for the configured partition, in the
order they run, and whether the config file declares each of them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistry(opts, cmd)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

func runRegistry(opts *ConfigOptions, cmd *cobra.Command) error {
	out := opts.output(cmd)

	s, err := openSession(cmd.Context(), opts.ConfigPath, nil)
	if err != nil {
		return out.Fail(err)
	}
	defer s.Close()

	configured := s.cfg.CheckIDs()
	result := RegistryResult{Partition: s.cfg.Partition.String()}
	for _, id := range s.engine.Registry() {
		result.Checks = append(result.Checks, RegistryEntry{ID: id, Configured: slices.Contains(configured, id)})
	}

	return out.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Registry for %s (%d check(s)):\n", result.Partition, len(result.Checks))
		for _, c := range result.Checks {
			mark := " "
			if !c.Configured {
				mark = "?"
			}
			fmt.Fprintf(w, "  %s %s\n", mark, c.ID)
		}
	})
}
