package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/controls/internal/engine"
)

// Exit codes for CLI commands.
//
// ExitFailure means the command ran and the reconciliation, validation or
// scenario it drove did not succeed: a check raised, a result table was
// malformed, a write was rejected, a scenario diverged from its golden trace.
// ExitCommandError means the command never got that far: the config was
// unreadable, the database could not be opened or the engine refused its
// options.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// Error codes reported in the "code" field of a JSON error envelope.
//
// E0xx codes belong to the command layer. E1xx codes mirror the engine's
// typed errors one to one, so a caller scripting against --format json can
// branch on the failure kind without parsing messages.
const (
	ErrCodeGeneric       = "E001"
	ErrCodeConfig        = "E002"
	ErrCodeDatabase      = "E003"
	ErrCodeConfiguration = "E004"
	ErrCodePush          = "E005"
	ErrCodeTestFailed    = "E006"

	ErrCodeEmptyRegistry = "E101"
	ErrCodeInvalidCheck  = "E102"
	ErrCodeInvalidResult = "E103"
	ErrCodeCheckFailed   = "E104"
	ErrCodeMutation      = "E105"
)

// ExitError carries the process exit code out of a cobra RunE.
//
// main calls GetExitCode on whatever Execute returns; commands that have
// already rendered their failure return an ExitError so cobra stays silent
// and the shell still sees the right status.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. nil is ExitSuccess and
// any error that is not an ExitError is ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Envelope is the JSON document every command writes with --format json.
//
// Status is "ok" or "error". Data holds the command's result: a run report,
// a plan, the registry listing or a scenario summary. A failed run may carry
// both, e.g. a validation result listing every field error next to the
// first one in Error.
type Envelope struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error half of an Envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// writeEnvelope writes env as indented JSON followed by a newline.
func writeEnvelope(w io.Writer, env Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// Output renders command results and failures in the format chosen by
// --format.
//
// Results and errors go to Out. Diagnostics from --verbose go to Diag so
// that a JSON consumer reading Out never sees them; when Diag is nil they
// share Out, which only makes sense for text output.
type Output struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer
	Verbose bool
}

// JSON reports whether results are written as envelopes.
func (o *Output) JSON() bool {
	return o.Format == "json"
}

// Emit writes data wrapped in an ok envelope, or calls text to render it
// for a human. A nil text falls back to printing data with %v.
func (o *Output) Emit(data any, text func(w io.Writer)) error {
	if o.JSON() {
		return writeEnvelope(o.Out, Envelope{Status: "ok", Data: data})
	}
	if text == nil {
		fmt.Fprintln(o.Out, data)
		return nil
	}
	text(o.Out)
	return nil
}

// Error writes a single failure. details are included in JSON and, in text
// mode, only with --verbose.
func (o *Output) Error(code, message string, details any) error {
	if o.JSON() {
		return writeEnvelope(o.Out, Envelope{
			Status: "error",
			Error:  &ErrorBody{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(o.Out, "Error [%s]: %s\n", code, message)
	if o.Verbose && details != nil {
		fmt.Fprintf(o.Out, "Details: %v\n", details)
	}
	return nil
}

// Fail classifies err, renders it and returns the ExitError for cobra.
// Engine errors keep their chain, so callers can still match them with
// errors.As after the fact.
func (o *Output) Fail(err error) error {
	c := classify(err)
	_ = o.Error(c.code, c.Error(), nil)
	return WrapExitError(c.exit, c.msg, c.err)
}

// Debugf writes a diagnostic line when --verbose is set.
func (o *Output) Debugf(format string, args ...any) {
	if !o.Verbose {
		return
	}
	fmt.Fprintf(o.diag(), format+"\n", args...)
}

func (o *Output) diag() io.Writer {
	if o.Diag != nil {
		return o.Diag
	}
	return o.Out
}

// commandError pairs a failure with its error code and exit code until
// Output.Fail renders it.
type commandError struct {
	code string
	exit int
	msg  string
	err  error
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e *commandError) Unwrap() error {
	return e.err
}

// classify maps engine errors to CLI error codes. Run failures exit with
// ExitFailure; a misconfigured engine is a command error. An error that is
// already a commandError keeps its codes.
func classify(err error) *commandError {
	var ce *commandError
	if errors.As(err, &ce) {
		return ce
	}
	c := &commandError{code: ErrCodeGeneric, exit: ExitFailure, msg: "run failed", err: err}
	switch {
	case engine.IsConfigurationError(err):
		c.code, c.exit, c.msg = ErrCodeConfiguration, ExitCommandError, "invalid engine configuration"
	case engine.IsEmptyRegistryError(err):
		c.code, c.msg = ErrCodeEmptyRegistry, "no checks registered"
	case engine.IsInvalidCheckError(err):
		c.code = ErrCodeInvalidCheck
	case engine.IsInvalidResultError(err):
		c.code = ErrCodeInvalidResult
	case engine.IsCheckFailedError(err):
		c.code = ErrCodeCheckFailed
	case engine.IsMutationError(err):
		c.code, c.msg = ErrCodeMutation, "write failed"
	}
	return c
}
