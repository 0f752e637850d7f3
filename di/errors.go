// Package di provides the dependency-injection container for the plugr
// runtime. Services are registered against interface or concrete types with
// a lifetime policy and resolved through factory (constructor) inspection,
// with cycle detection on the in-progress resolution chain.
package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Sentinel errors for container operations.
var (
	// ErrNotRegistered indicates that an abstract type was requested without
	// a registration.
	ErrNotRegistered = errors.New("service not registered")

	// ErrCircularDependency indicates that a type reappeared on its own
	// in-progress resolution chain.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrInvalidBinding indicates an interface/implementation or factory
	// signature mismatch at registration time.
	ErrInvalidBinding = errors.New("invalid service binding")

	// ErrScopeClosed indicates a resolve attempt on a closed scope.
	ErrScopeClosed = errors.New("scope closed")

	// ErrScopeRequired indicates a scoped service was resolved without an
	// open scope.
	ErrScopeRequired = errors.New("scoped service requires an open scope")
)

// ContainerError carries the service type and operation for a failed
// container call.
type ContainerError struct {
	// Service is the type being registered or resolved.
	Service reflect.Type

	// Operation is the container call that failed.
	Operation string

	// Message describes the failure.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ContainerError) Error() string {
	name := "<nil>"
	if e.Service != nil {
		name = e.Service.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("di: %s %s: %s (%v)", e.Operation, name, e.Message, e.Err)
	}
	return fmt.Sprintf("di: %s %s: %s", e.Operation, name, e.Message)
}

// Unwrap returns the underlying error.
func (e *ContainerError) Unwrap() error { return e.Err }

func newContainerError(service reflect.Type, op, msg string, err error) *ContainerError {
	return &ContainerError{Service: service, Operation: op, Message: msg, Err: err}
}

func chainString(stack []reflect.Type) string {
	names := make([]string, 0, len(stack))
	for _, t := range stack {
		names = append(names, t.String())
	}
	return strings.Join(names, " -> ")
}
