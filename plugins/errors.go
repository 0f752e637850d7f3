package plugins

import (
	"errors"
	"fmt"
)

// Common error variables for plugin-related operations.
var (
	// ErrPluginNotFound indicates that a requested plugin could not be found
	// in the registry.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrPluginAlreadyExists indicates an attempt to register a plugin with
	// an id that is already in use.
	ErrPluginAlreadyExists = errors.New("plugin already exists")

	// ErrInvalidPluginID indicates that the provided plugin id is invalid.
	ErrInvalidPluginID = errors.New("invalid plugin ID")

	// ErrInvalidPluginVersion indicates that a version string does not follow
	// the semantic versioning format.
	ErrInvalidPluginVersion = errors.New("invalid plugin version")

	// ErrInvalidConstraint indicates that a dependency version predicate
	// could not be parsed.
	ErrInvalidConstraint = errors.New("invalid version constraint")

	// ErrDependencyNotMet indicates that one or more required plugin
	// dependencies are not satisfied.
	ErrDependencyNotMet = errors.New("plugin dependency not met")

	// ErrCircularDependency indicates a cycle in the plugin dependency graph.
	ErrCircularDependency = errors.New("circular plugin dependency")

	// ErrDependencyDepthExceeded indicates that a dependency walk went past
	// the configured maximum depth.
	ErrDependencyDepthExceeded = errors.New("dependency depth exceeded")
)

// PluginError represents a detailed error that occurred during a plugin
// operation. It carries the plugin id, the operation name, and the
// underlying cause for error-chain inspection.
type PluginError struct {
	// PluginID identifies the plugin where the error occurred.
	PluginID string

	// Operation describes the action being performed when the error occurred.
	Operation string

	// Message provides a human-readable description of the failure.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *PluginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plugin %s: %s failed: %s (%v)", e.PluginID, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("plugin %s: %s failed: %s", e.PluginID, e.Operation, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As handling.
func (e *PluginError) Unwrap() error {
	return e.Err
}

// NewPluginError creates a new PluginError with the given details.
func NewPluginError(pluginID, operation, message string, err error) *PluginError {
	return &PluginError{
		PluginID:  pluginID,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
