package engine

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an engine that cannot be constructed: a
// connection lacking a capability, an empty partition or invalid options.
type ConfigurationError struct {
	// Reason is a human-readable description.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// EmptyRegistryError reports a partition with no registered checks.
// An engine with zero checks is never returned.
type EmptyRegistryError struct {
	Partition string
	Table     string
}

// Error implements the error interface.
func (e *EmptyRegistryError) Error() string {
	return fmt.Sprintf("no checks registered in %s for partition %s", e.Table, e.Partition)
}

// InvalidCheckError reports a registered check that cannot be invoked.
type InvalidCheckError struct {
	Check  string
	Reason string
}

// Error implements the error interface.
func (e *InvalidCheckError) Error() string {
	return fmt.Sprintf("check %q is not invocable: %s", e.Check, e.Reason)
}

// InvalidResultError reports a check result violating the column contract.
type InvalidResultError struct {
	// Check is the offending check id.
	Check string

	// Got describes what the check returned, e.g. "table[a,b] with 3 rows".
	Got string

	// Reason says which part of the contract was violated.
	Reason string
}

// Error implements the error interface.
func (e *InvalidResultError) Error() string {
	return fmt.Sprintf("check %q returned an invalid result (%s): %s", e.Check, e.Got, e.Reason)
}

// CheckFailedError wraps an error returned by a check function.
type CheckFailedError struct {
	Check string
	Err   error
}

// Error implements the error interface.
func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("check %q failed: %v", e.Check, e.Err)
}

// Unwrap returns the check's error.
func (e *CheckFailedError) Unwrap() error {
	return e.Err
}

// Write paths named by MutationError.
const (
	PathUpdate = "update"
	PathInsert = "insert"
	PathDelete = "delete"
)

// MutationError reports a failed write round trip. Writes are never retried.
type MutationError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Path, e.Err)
}

// Unwrap returns the connection's error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError returns true if err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsEmptyRegistryError returns true if err is or wraps an EmptyRegistryError.
func IsEmptyRegistryError(err error) bool {
	var target *EmptyRegistryError
	return errors.As(err, &target)
}

// IsInvalidCheckError returns true if err is or wraps an InvalidCheckError.
func IsInvalidCheckError(err error) bool {
	var target *InvalidCheckError
	return errors.As(err, &target)
}

// IsInvalidResultError returns true if err is or wraps an InvalidResultError.
func IsInvalidResultError(err error) bool {
	var target *InvalidResultError
	return errors.As(err, &target)
}

// IsCheckFailedError returns true if err is or wraps a CheckFailedError.
func IsCheckFailedError(err error) bool {
	var target *CheckFailedError
	return errors.As(err, &target)
}

// IsMutationError returns true if err is or wraps a MutationError.
func IsMutationError(err error) bool {
	var target *MutationError
	return errors.As(err, &target)
}
