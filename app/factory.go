package app

import (
	"fmt"
	"sync"

	"github.com/go-plugr/plugr/plugins"
)

// Creator builds a plugin instance for manifest-declared metadata. The
// metadata carries the manifest's name, version, dependencies, and config.
type Creator func(meta plugins.PluginMetadata) (plugins.Plugin, error)

// Factory maps constructor names to plugin creators so manifest files can
// declare which code backs them.
type Factory struct {
	mu       sync.RWMutex
	creators map[string]Creator
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{creators: make(map[string]Creator)}
}

// RegisterCreator binds a constructor name. Re-registering a name replaces
// the previous creator.
func (f *Factory) RegisterCreator(name string, create Creator) {
	if name == "" || create == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[name] = create
}

// Has reports whether a constructor name is registered.
func (f *Factory) Has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.creators[name]
	return ok
}

// Create instantiates a plugin through the named constructor.
func (f *Factory) Create(name string, meta plugins.PluginMetadata) (plugins.Plugin, error) {
	f.mu.RLock()
	create, ok := f.creators[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no constructor named %q", plugins.ErrPluginNotFound, name)
	}
	p, err := create(meta)
	if err != nil {
		return nil, fmt.Errorf("constructor %q: %w", name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("constructor %q returned no plugin", name)
	}
	return p, nil
}

// Names lists the registered constructor names.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.creators))
	for name := range f.creators {
		out = append(out, name)
	}
	return out
}
