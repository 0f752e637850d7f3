// Package app assembles the plugin runtime: it owns the dependency
// injection container, the dependency resolver, the lifecycle machine, the
// sandbox executor, the event bus, and the plugin store, and exposes the
// manager surface hosts program against.
package app

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"

	"github.com/go-plugr/plugr/sandbox"
)

// Config configures a Manager. It is loaded from YAML through the kratos
// config layer; every field has a working default.
type Config struct {
	// PluginDir is scanned for plugin manifest files. Empty disables
	// discovery; built-in plugins still load.
	PluginDir string `json:"plugin_dir" yaml:"plugin_dir"`

	// MaxPlugins caps the number of installed plugins.
	MaxPlugins int `json:"max_plugins" yaml:"max_plugins"`

	// AutoActivate activates plugins right after installation and on
	// demand when an inactive plugin is executed.
	AutoActivate bool `json:"auto_activate" yaml:"auto_activate"`

	// MaxParallelLoads bounds concurrent manifest loading. Values below 2
	// load sequentially.
	MaxParallelLoads int `json:"max_parallel_loads" yaml:"max_parallel_loads"`

	// MaxManifestBytes is the per-manifest size ceiling; larger files are
	// skipped with a warning.
	MaxManifestBytes int64 `json:"max_manifest_bytes" yaml:"max_manifest_bytes"`

	// MaxDependencyDepth bounds recursive dependency resolution.
	MaxDependencyDepth int `json:"max_dependency_depth" yaml:"max_dependency_depth"`

	// StoreBackend selects the plugin store: "memory", "file", or "bolt".
	StoreBackend string `json:"store_backend" yaml:"store_backend"`

	// StorePath is the file-store root directory or the bolt database
	// file, depending on the backend.
	StorePath string `json:"store_path" yaml:"store_path"`

	EventQueueSize   int `json:"event_queue_size" yaml:"event_queue_size"`
	EventHistorySize int `json:"event_history_size" yaml:"event_history_size"`

	Security sandbox.SecurityConfig `json:"security" yaml:"security"`
}

// DefaultConfig returns the defaults a zero-config host gets.
func DefaultConfig() Config {
	return Config{
		MaxPlugins:       64,
		AutoActivate:     true,
		MaxParallelLoads: 4,
		MaxManifestBytes: 1 << 20,
		StoreBackend:     "memory",
		Security:         sandbox.DefaultSecurityConfig(),
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	c := config.New(config.WithSource(file.NewSource(path)))
	defer c.Close()
	if err := c.Load(); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := c.Scan(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
