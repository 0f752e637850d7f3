package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for sandbox execution.
var (
	// ErrExecutionFailed is the generic sandbox execution failure.
	ErrExecutionFailed = errors.New("sandbox execution failed")

	// ErrSecurityViolation indicates a permission, path, or network policy
	// breach.
	ErrSecurityViolation = errors.New("security violation")

	// ErrResourceLimit indicates a memory, CPU, timeout, file-descriptor,
	// or process-count ceiling was breached.
	ErrResourceLimit = errors.New("resource limit exceeded")

	// ErrMethodNotFound indicates the requested plugin method does not
	// exist.
	ErrMethodNotFound = errors.New("plugin method not found")
)

// ExecutionError wraps any failure raised inside the isolated unit so it
// reaches the caller typed, never silently swallowed.
type ExecutionError struct {
	PluginID string
	Method   string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sandbox: plugin %s method %s: %s: %v", e.PluginID, e.Method, e.Message, e.Err)
	}
	return fmt.Sprintf("sandbox: plugin %s method %s: %s", e.PluginID, e.Method, e.Message)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// SecurityViolationError reports a policy breach during sandboxed
// execution.
type SecurityViolationError struct {
	PluginID   string
	Permission Permission
	Detail     string
}

// Error implements the error interface.
func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation by plugin %s: %s denied: %s", e.PluginID, e.Permission, e.Detail)
}

// Unwrap allows errors.Is(err, ErrSecurityViolation).
func (e *SecurityViolationError) Unwrap() error { return ErrSecurityViolation }

// ResourceLimitError reports a breached resource ceiling.
type ResourceLimitError struct {
	PluginID string
	Resource string // "memory", "cpu", "timeout", "fds", "procs"
	Detail   string
}

// Error implements the error interface.
func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("resource limit exceeded by plugin %s: %s: %s", e.PluginID, e.Resource, e.Detail)
}

// Unwrap allows errors.Is(err, ErrResourceLimit).
func (e *ResourceLimitError) Unwrap() error { return ErrResourceLimit }
