// Package plugins provides the core plugin contract for the plugr runtime.
//
// Every extension implements Plugin; capability specializations (AgentPlugin,
// WorkflowPlugin) add domain-specific surfaces on top of the base contract.
// The package also owns plugin metadata, dependency specifiers, version
// constraints, and the dependency graph resolver.
package plugins

import (
	"context"
	"fmt"
	"strings"
)

// PluginType tags a plugin with the capability family it belongs to.
type PluginType string

const (
	// TypeAgent marks plugins that generate agent configurations.
	TypeAgent PluginType = "agent"
	// TypeWorkflow marks plugins that expose multi-phase workflows.
	TypeWorkflow PluginType = "workflow"
	// TypeAnalyzer marks plugins that inspect host or project state.
	TypeAnalyzer PluginType = "analyzer"
	// TypeGenerator marks plugins that emit derived artifacts.
	TypeGenerator PluginType = "generator"
	// TypeUtility marks general-purpose plugins with no specialization.
	TypeUtility PluginType = "utility"
)

// DependencySpec declares a dependency on another plugin by name.
// Constraint is a version predicate (see ParseConstraint); an empty
// constraint accepts any version. Optional dependencies never block
// installation when absent.
type DependencySpec struct {
	Name       string `json:"name" yaml:"name"`
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty"`
	Optional   bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

func (s DependencySpec) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	if s.Constraint != "" {
		b.WriteString(" ")
		b.WriteString(s.Constraint)
	}
	if s.Optional {
		b.WriteString(" (optional)")
	}
	return b.String()
}

// PluginMetadata describes a plugin to the runtime. Name is the unique
// plugin id across the whole system.
type PluginMetadata struct {
	Name         string           `json:"name" yaml:"name"`
	Version      string           `json:"version" yaml:"version"`
	Author       string           `json:"author,omitempty" yaml:"author,omitempty"`
	Description  string           `json:"description,omitempty" yaml:"description,omitempty"`
	Type         PluginType       `json:"type" yaml:"type"`
	Dependencies []DependencySpec `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Config       map[string]any   `json:"config,omitempty" yaml:"config,omitempty"`
}

// Validate performs basic structural validation of the metadata.
func (m PluginMetadata) Validate() error {
	if m.Name == "" {
		return ErrInvalidPluginID
	}
	if m.Version != "" {
		if _, err := parseVersion(m.Version); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPluginVersion, m.Version)
		}
	}
	for _, dep := range m.Dependencies {
		if dep.Name == "" {
			return fmt.Errorf("plugin %s declares a dependency with an empty name", m.Name)
		}
		if dep.Name == m.Name {
			return fmt.Errorf("plugin %s declares a dependency on itself", m.Name)
		}
	}
	return nil
}

// ConfigBool reads a boolean flag from the metadata configuration map.
func (m PluginMetadata) ConfigBool(key string) bool {
	v, ok := m.Config[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Plugin is the capability contract implemented by every extension.
//
// Lifecycle hooks are invoked by the lifecycle state machine: Initialize
// during installation with the plugin's declared configuration, Validate as
// the health check before activation, and Cleanup during deactivation and
// uninstallation. Execute is always dispatched through the sandbox executor.
type Plugin interface {
	// Metadata returns the plugin's descriptor. It must be stable across
	// calls and safe to invoke before Initialize.
	Metadata() PluginMetadata

	// Initialize prepares the plugin with its declared configuration.
	// Returns an error if the plugin cannot be made ready.
	Initialize(config map[string]any) error

	// Execute runs the plugin's main entry point with a request context.
	Execute(ctx context.Context, input map[string]any) (any, error)

	// Validate reports whether the plugin is currently healthy.
	Validate() error

	// Cleanup releases any resources held by the plugin.
	Cleanup() error
}

// AgentPlugin is implemented by agent-capability plugins.
type AgentPlugin interface {
	Plugin

	// GenerateAgent produces an agent configuration from a profile.
	GenerateAgent(profile map[string]any) (map[string]any, error)

	// AgentTools lists the tool names the generated agent may use.
	AgentTools() []string
}

// WorkflowPlugin is implemented by workflow-capability plugins.
type WorkflowPlugin interface {
	Plugin

	// WorkflowPhases lists the ordered phase names of the workflow.
	WorkflowPhases() []string

	// ExecutePhase runs a single named phase.
	ExecutePhase(ctx context.Context, phase string, input map[string]any) (any, error)
}

// BasePlugin provides a default Plugin implementation that concrete plugins
// can embed. Validate and Cleanup are no-ops; Execute must be supplied by
// the embedding type.
type BasePlugin struct {
	meta   PluginMetadata
	config map[string]any
}

// NewBasePlugin creates a base plugin carrying the given metadata.
func NewBasePlugin(meta PluginMetadata) BasePlugin {
	return BasePlugin{meta: meta}
}

// Metadata returns the descriptor supplied at construction.
func (p *BasePlugin) Metadata() PluginMetadata { return p.meta }

// Initialize stores the supplied configuration for later access.
func (p *BasePlugin) Initialize(config map[string]any) error {
	p.config = config
	return nil
}

// Config returns the configuration passed to Initialize.
func (p *BasePlugin) Config() map[string]any { return p.config }

// Validate reports healthy by default.
func (p *BasePlugin) Validate() error { return nil }

// Cleanup is a no-op by default.
func (p *BasePlugin) Cleanup() error { return nil }
