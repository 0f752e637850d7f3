// Package lifecycle implements the plugin lifecycle state machine. It owns
// the authoritative state of every registered plugin and drives all
// transitions, persisting metadata through a store and emitting events for
// every transition attempt.
package lifecycle

import (
	"errors"
	"fmt"
)

// State is a plugin lifecycle state.
type State string

// The full set of lifecycle states a plugin can occupy between registration
// and removal.
const (
	StateNotInstalled State = "not_installed"
	StateDownloading  State = "downloading"
	StateInstalling   State = "installing"
	StateInstalled    State = "installed"
	StateActivating   State = "activating"
	StateActive       State = "active"
	StateDeactivating State = "deactivating"
	StateInactive     State = "inactive"
	StateUpdating     State = "updating"
	StateUninstalling State = "uninstalling"
	StateError        State = "error"
	StateDisabled     State = "disabled"
)

// transitions is the allowed-transition table. Any requested transition
// outside this table is rejected with the state left unchanged.
var transitions = map[State][]State{
	StateNotInstalled: {StateDownloading, StateInstalling},
	StateDownloading:  {StateInstalling, StateError},
	StateInstalling:   {StateInstalled, StateError},
	StateInstalled:    {StateActivating, StateUpdating, StateUninstalling, StateDisabled},
	StateActivating:   {StateActive, StateError, StateInactive},
	StateActive:       {StateDeactivating, StateUpdating, StateError, StateDisabled},
	StateDeactivating: {StateInactive, StateError},
	StateInactive:     {StateActivating, StateUninstalling, StateUpdating, StateDisabled},
	StateUpdating:     {StateInstalled, StateError},
	StateUninstalling: {StateNotInstalled, StateError},
	StateError:        {StateInstalling, StateUninstalling, StateDisabled},
	StateDisabled:     {StateInstalled, StateUninstalling},
}

// CanTransition reports whether the table allows moving from s to target.
func (s State) CanTransition(target State) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the enumerated states.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Sentinel errors for lifecycle operations.
var (
	// ErrIllegalTransition indicates a transition request outside the
	// allowed-transition table.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrAlreadyInstalled indicates an install request for an id that is
	// already installed or active.
	ErrAlreadyInstalled = errors.New("plugin already installed")

	// ErrNotInstalled indicates an operation on an id with no state entry.
	ErrNotInstalled = errors.New("plugin not installed")

	// ErrValidationFailed indicates a plugin self-validation failure.
	ErrValidationFailed = errors.New("plugin validation failed")
)

// TransitionError reports a rejected lifecycle transition.
type TransitionError struct {
	PluginID string
	From     State
	To       State
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("plugin %s: illegal transition %s -> %s", e.PluginID, e.From, e.To)
}

// Unwrap allows errors.Is(err, ErrIllegalTransition).
func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
