// Package sandbox executes plugin code under enforced memory, CPU,
// wall-clock, file-descriptor, process, and permission limits. Isolation
// strategies are interchangeable behind the Isolator interface; the
// strongest one runs the call in a separate OS process with kernel-enforced
// resource limits.
package sandbox

import "time"

// Permission is a named capability a plugin may be granted or denied.
type Permission string

// The closed permission set.
const (
	PermFileRead     Permission = "FILE_READ"
	PermFileWrite    Permission = "FILE_WRITE"
	PermNetwork      Permission = "NETWORK"
	PermExecute      Permission = "EXECUTE"
	PermDatabase     Permission = "DATABASE"
	PermSystemInfo   Permission = "SYSTEM_INFO"
	PermEnvironment  Permission = "ENVIRONMENT"
	PermProcessSpawn Permission = "PROCESS_SPAWN"
)

// AllPermissions lists every member of the closed permission set.
var AllPermissions = []Permission{
	PermFileRead, PermFileWrite, PermNetwork, PermExecute,
	PermDatabase, PermSystemInfo, PermEnvironment, PermProcessSpawn,
}

// SecurityConfig is the sandbox policy for plugin execution. Every field
// is independently settable; the zero value denies everything and disables
// the sandbox, so hosts should start from DefaultSecurityConfig.
type SecurityConfig struct {
	EnableSandbox      bool         `json:"enable_sandbox" yaml:"enable_sandbox"`
	AllowedPermissions []Permission `json:"allowed_permissions" yaml:"allowed_permissions"`
	DeniedPermissions  []Permission `json:"denied_permissions" yaml:"denied_permissions"`
	MaxMemoryMB        int64        `json:"max_memory_mb" yaml:"max_memory_mb"`
	MaxCPUPercent      float64      `json:"max_cpu_percent" yaml:"max_cpu_percent"`
	TimeoutSeconds     int          `json:"timeout_seconds" yaml:"timeout_seconds"`
	AllowedPaths       []string     `json:"allowed_paths" yaml:"allowed_paths"`
	DeniedPaths        []string     `json:"denied_paths" yaml:"denied_paths"`
	AllowNetwork       bool         `json:"allow_network" yaml:"allow_network"`
	AllowedHosts       []string     `json:"allowed_hosts" yaml:"allowed_hosts"`
}

// DefaultSecurityConfig returns a restrictive but usable policy: sandbox
// on, read-only file access, no network, modest resource ceilings, and the
// usual system configuration directories denied.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableSandbox:      true,
		AllowedPermissions: []Permission{PermFileRead},
		MaxMemoryMB:        256,
		MaxCPUPercent:      50,
		TimeoutSeconds:     30,
		DeniedPaths:        []string{"/etc", "/sys", "/proc", "/boot", "/root"},
	}
}

// Timeout returns the wall-clock limit as a duration.
func (c SecurityConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
