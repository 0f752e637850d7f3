package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-plugr/plugr/plugins"
)

// opsKey carries the SafeOps namespace through the execution context.
type opsKey struct{}

// WithOps attaches the restricted operation set to a context.
func WithOps(ctx context.Context, ops *SafeOps) context.Context {
	return context.WithValue(ctx, opsKey{}, ops)
}

// OpsFromContext returns the restricted operation set for the current
// sandboxed execution, or nil outside a sandbox.
func OpsFromContext(ctx context.Context) *SafeOps {
	ops, _ := ctx.Value(opsKey{}).(*SafeOps)
	return ops
}

// Request is one plugin method call handed to an isolator.
type Request struct {
	PluginID string
	Method   string
	Input    map[string]any
	Config   SecurityConfig

	// Invoke performs the call in-process. Process-boundary isolators
	// ignore it and re-create the plugin on the worker side.
	Invoke func(ctx context.Context) (any, error)
}

// Isolator runs a single plugin call inside an isolated execution unit.
// Implementations must terminate the unit when the context deadline
// passes and must never return a partial result.
type Isolator interface {
	// Name identifies the isolation strategy.
	Name() string

	// Execute runs the request to completion or failure.
	Execute(ctx context.Context, req Request) (any, error)
}

// Executor dispatches plugin method calls through the configured isolation
// strategy, enforcing the sandbox policy. A failure inside the sandbox
// aborts only the execution in progress; the host process is never
// affected.
type Executor struct {
	config   SecurityConfig
	monitor  *Monitor
	isolator Isolator
}

// NewExecutor creates an executor. A nil isolator defaults to in-process
// isolation with a resource watchdog.
func NewExecutor(config SecurityConfig, monitor *Monitor, isolator Isolator) *Executor {
	if monitor == nil {
		monitor = NewMonitor(config)
	}
	if isolator == nil {
		isolator = NewInprocIsolator(monitor)
	}
	return &Executor{config: config, monitor: monitor, isolator: isolator}
}

// Monitor returns the executor's violation and usage monitor.
func (e *Executor) Monitor() *Monitor { return e.monitor }

// Execute runs a plugin method under the sandbox policy. With the sandbox
// disabled the call is made directly (panics still contained); otherwise
// it is dispatched through the isolator, bounded by the configured
// timeout.
func (e *Executor) Execute(ctx context.Context, p plugins.Plugin, method string, input map[string]any) (any, error) {
	id := p.Metadata().Name
	checker := NewPermissionChecker(id, e.config, e.monitor)
	ops := NewSafeOps(checker)

	invoke, err := buildInvoke(p, method, input)
	if err != nil {
		return nil, &ExecutionError{PluginID: id, Method: method, Message: "dispatch failed", Err: err}
	}
	wrapped := func(callCtx context.Context) (result any, callErr error) {
		defer func() {
			if r := recover(); r != nil {
				result = nil
				callErr = fmt.Errorf("panic: %v", r)
			}
		}()
		return invoke(WithOps(callCtx, ops))
	}

	if !e.config.EnableSandbox {
		result, err := wrapped(ctx)
		if err != nil {
			return nil, &ExecutionError{PluginID: id, Method: method, Message: "direct call failed", Err: err}
		}
		return result, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout())
	defer cancel()

	result, err := e.isolator.Execute(callCtx, Request{
		PluginID: id,
		Method:   method,
		Input:    input,
		Config:   e.config,
		Invoke:   wrapped,
	})
	if err != nil {
		var sec *SecurityViolationError
		var res *ResourceLimitError
		var exec *ExecutionError
		if errors.As(err, &sec) || errors.As(err, &res) || errors.As(err, &exec) {
			return nil, err
		}
		return nil, &ExecutionError{PluginID: id, Method: method,
			Message: fmt.Sprintf("isolator %s", e.isolator.Name()), Err: err}
	}
	return result, nil
}

// buildInvoke maps a method name onto the plugin capability surface.
// Supported methods: "execute", "validate", "phase:<name>" for workflow
// plugins, and "agent:generate" for agent plugins.
func buildInvoke(p plugins.Plugin, method string, input map[string]any) (func(context.Context) (any, error), error) {
	switch {
	case method == "" || method == "execute":
		return func(ctx context.Context) (any, error) {
			return p.Execute(ctx, input)
		}, nil

	case method == "validate":
		return func(context.Context) (any, error) {
			return nil, p.Validate()
		}, nil

	case strings.HasPrefix(method, "phase:"):
		wf, ok := p.(plugins.WorkflowPlugin)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a workflow plugin", ErrMethodNotFound, p.Metadata().Name)
		}
		phase := strings.TrimPrefix(method, "phase:")
		return func(ctx context.Context) (any, error) {
			return wf.ExecutePhase(ctx, phase, input)
		}, nil

	case method == "agent:generate":
		ag, ok := p.(plugins.AgentPlugin)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an agent plugin", ErrMethodNotFound, p.Metadata().Name)
		}
		return func(context.Context) (any, error) {
			return ag.GenerateAgent(input)
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
}
