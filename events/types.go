// Package events provides the asynchronous event system for the plugr
// runtime. Lifecycle operations publish events to a bounded queue consumed
// by a dispatch goroutine, so a slow or failing listener can never block or
// abort the operation that triggered the event.
package events

import (
	"time"
)

// EventType identifies the kind of event that occurred in the plugin system.
type EventType string

// Priority levels for plugin events.
const (
	// PriorityLow indicates minimal impact events that can be processed later.
	PriorityLow = 0
	// PriorityNormal indicates standard events requiring routine processing.
	PriorityNormal = 1
	// PriorityHigh indicates important events needing prompt attention.
	PriorityHigh = 2
	// PriorityCritical indicates urgent events requiring immediate handling.
	PriorityCritical = 3
)

// Lifecycle event types. Every lifecycle transition emits a started event
// before the attempt and a completed or failed event afterward.
const (
	EventInstallStarted     EventType = "install.started"
	EventInstallCompleted   EventType = "install.completed"
	EventInstallFailed      EventType = "install.failed"
	EventActivateStarted    EventType = "activate.started"
	EventActivateCompleted  EventType = "activate.completed"
	EventActivateFailed     EventType = "activate.failed"
	EventDeactivateStarted  EventType = "deactivate.started"
	EventDeactivateComplete EventType = "deactivate.completed"
	EventDeactivateFailed   EventType = "deactivate.failed"
	EventUpdateStarted      EventType = "update.started"
	EventUpdateCompleted    EventType = "update.completed"
	EventUpdateFailed       EventType = "update.failed"
	EventUninstallStarted   EventType = "uninstall.started"
	EventUninstallCompleted EventType = "uninstall.completed"
	EventUninstallFailed    EventType = "uninstall.failed"
)

// Health and security event types.
const (
	// EventHealthCheckFailed indicates a plugin health check failure.
	EventHealthCheckFailed EventType = "health.check.failed"

	// EventSecurityViolation indicates a sandbox policy breach.
	EventSecurityViolation EventType = "security.violation"

	// EventResourceExhausted indicates a sandboxed execution hit a
	// configured resource ceiling.
	EventResourceExhausted EventType = "resource.exhausted"
)

// Started returns the start event type for a lifecycle operation name.
func Started(op string) EventType { return EventType(op + ".started") }

// Completed returns the completion event type for a lifecycle operation name.
func Completed(op string) EventType { return EventType(op + ".completed") }

// Failed returns the failure event type for a lifecycle operation name.
func Failed(op string) EventType { return EventType(op + ".failed") }

// Event is a single occurrence in the plugin system.
type Event struct {
	// ID is a unique identifier assigned at publish time.
	ID string

	// Type indicates the specific kind of event that occurred.
	Type EventType

	// PluginID identifies the plugin the event concerns.
	PluginID string

	// Priority indicates the importance level of the event.
	Priority int

	// Error carries the captured error text for failure events.
	Error string

	// Metadata contains additional event-specific information.
	Metadata map[string]any

	// Timestamp records when the event was published.
	Timestamp time.Time
}

// Listener receives events dispatched by the bus.
type Listener interface {
	HandleEvent(event Event)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(event Event)

// HandleEvent implements Listener.
func (f ListenerFunc) HandleEvent(event Event) { f(event) }

// Filter defines criteria for selecting events, both for listener
// subscriptions and for history queries. Zero-value fields match anything.
type Filter struct {
	Types     []EventType
	PluginIDs []string
	MinLevel  int
	FromTime  time.Time
	ToTime    time.Time
}

// Match reports whether the event satisfies the filter.
func (f Filter) Match(e Event) bool {
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.PluginIDs) > 0 && !containsString(f.PluginIDs, e.PluginID) {
		return false
	}
	if e.Priority < f.MinLevel {
		return false
	}
	if !f.FromTime.IsZero() && e.Timestamp.Before(f.FromTime) {
		return false
	}
	if !f.ToTime.IsZero() && e.Timestamp.After(f.ToTime) {
		return false
	}
	return true
}

func containsType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsString(values []string, s string) bool {
	for _, candidate := range values {
		if candidate == s {
			return true
		}
	}
	return false
}
