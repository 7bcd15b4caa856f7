package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/controls/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                     `json:"valid"`
	Partition string                   `json:"partition,omitempty"`
	Checks    []string                 `json:"checks,omitempty"`
	Errors    []config.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate a controls configuration file without touching the database.

The file is checked against the embedded schema (types, enums, identifiers)
and then against the rules the schema cannot express, such as unique check
ids and non-empty partitions. Every problem is reported, not just the first.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

func runValidate(opts *ConfigOptions, cmd *cobra.Command) error {
	out := opts.output(cmd)
	out.Debugf("Validating %s", opts.ConfigPath)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		var errs config.ValidationErrors
		if errors.As(err, &errs) {
			return outputValidationErrors(out, errs)
		}
		return out.Fail(&commandError{code: ErrCodeConfig, exit: ExitCommandError, msg: "failed to load config", err: err})
	}

	result := ValidationResult{Valid: true, Partition: cfg.Partition.String(), Checks: cfg.CheckIDs()}
	return out.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Configuration valid (partition %s, %d check(s))\n", cfg.Partition, len(cfg.Checks))
	})
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(out *Output, errs config.ValidationErrors) error {
	if out.JSON() {
		response := Envelope{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &ErrorBody{
				Code:    ErrCodeConfig,
				Message: errs[0].Error(),
			},
		}
		if err := writeEnvelope(out.Out, response); err != nil {
			return err
		}
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(out.Out, "✗ Validation failed")
	fmt.Fprintln(out.Out)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(out.Out, "line %d\n", e.Line)
		}
		fmt.Fprintf(out.Out, "  %s: %s\n\n", e.Field, e.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
