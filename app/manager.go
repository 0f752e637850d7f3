package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-plugr/plugr/di"
	"github.com/go-plugr/plugr/events"
	"github.com/go-plugr/plugr/lifecycle"
	"github.com/go-plugr/plugr/log"
	"github.com/go-plugr/plugr/plugins"
	"github.com/go-plugr/plugr/sandbox"
	"github.com/go-plugr/plugr/store"
)

var (
	// ErrTooManyPlugins is returned when registration would exceed the
	// configured plugin ceiling.
	ErrTooManyPlugins = errors.New("plugin limit reached")

	// ErrPluginNotActive is returned when execution is requested for a
	// plugin that is not active and auto-activation is off.
	ErrPluginNotActive = errors.New("plugin is not active")
)

// Manager is the composition root of the plugin runtime. It owns one
// container, resolver, lifecycle machine, sandbox executor, event bus, and
// store; hosts interact with plugins exclusively through it.
type Manager struct {
	cfg       Config
	container *di.Container
	resolver  *plugins.Resolver
	bus       *events.Bus
	store     store.Store
	machine   *lifecycle.Machine
	monitor   *sandbox.Monitor
	executor  *sandbox.Executor
	factory   *Factory

	mu       sync.RWMutex
	byType   map[plugins.PluginType][]string
	builtins []builtin
}

type builtin struct {
	id     string
	plugin plugins.Plugin
}

// NewManager assembles a runtime from the configuration. The manager's
// collaborators are registered into its container so factory-constructed
// services can depend on them.
func NewManager(cfg Config) (*Manager, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	resolver := plugins.NewResolver(cfg.MaxDependencyDepth)
	bus := events.NewBus(cfg.EventQueueSize, cfg.EventHistorySize)
	machine := lifecycle.NewMachine(st, resolver, bus)
	monitor := sandbox.NewMonitor(cfg.Security)
	executor := sandbox.NewExecutor(cfg.Security, monitor, nil)

	m := &Manager{
		cfg:       cfg,
		container: di.New(),
		resolver:  resolver,
		bus:       bus,
		store:     st,
		machine:   machine,
		monitor:   monitor,
		executor:  executor,
		factory:   NewFactory(),
		byType:    make(map[plugins.PluginType][]string),
	}

	if err := errors.Join(
		di.RegisterInstance[*events.Bus](m.container, bus),
		di.RegisterInstance[store.Store](m.container, st),
		di.RegisterInstance[*plugins.Resolver](m.container, resolver),
		di.RegisterInstance[*lifecycle.Machine](m.container, machine),
		di.RegisterInstance[*sandbox.Executor](m.container, executor),
		di.RegisterInstance[*Manager](m.container, m),
	); err != nil {
		bus.Close()
		return nil, fmt.Errorf("seed container: %w", err)
	}
	return m, nil
}

func openStore(cfg Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return store.NewMemStore(), nil
	case "file":
		return store.NewFileStore(cfg.StorePath)
	case "bolt":
		return store.OpenBoltStore(cfg.StorePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Container exposes the manager's DI container.
func (m *Manager) Container() *di.Container { return m.container }

// Bus exposes the manager's event bus for subscribers.
func (m *Manager) Bus() *events.Bus { return m.bus }

// Factory exposes the constructor registry for manifest-declared plugins.
func (m *Manager) Factory() *Factory { return m.factory }

// AddBuiltin queues a built-in plugin; built-ins are installed by LoadAll
// before any manifest discovery runs.
func (m *Manager) AddBuiltin(id string, p plugins.Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builtins = append(m.builtins, builtin{id: id, plugin: p})
}

// RegisterPlugin installs a plugin under the given id, indexes it by type,
// registers the instance into the container under its concrete type, and
// activates it when auto-activation is on.
func (m *Manager) RegisterPlugin(id string, p plugins.Plugin) error {
	if p == nil {
		return plugins.NewPluginError(id, "register", "nil plugin", plugins.ErrInvalidPluginID)
	}
	if m.cfg.MaxPlugins > 0 && len(m.machine.List()) >= m.cfg.MaxPlugins {
		return plugins.NewPluginError(id, "register",
			fmt.Sprintf("limit is %d", m.cfg.MaxPlugins), ErrTooManyPlugins)
	}

	if err := m.machine.Install(p, id); err != nil {
		return err
	}

	meta := p.Metadata()
	m.mu.Lock()
	m.byType[meta.Type] = append(m.byType[meta.Type], id)
	m.mu.Unlock()

	if err := m.container.RegisterInstance(reflect.TypeOf(p), p); err != nil {
		log.Warnf("plugin %s: container registration failed: %v", id, err)
	}

	if m.cfg.AutoActivate {
		if err := m.machine.Activate(id); err != nil {
			return err
		}
	}
	return nil
}

// ExecutePlugin runs a plugin's Execute entry point through the sandbox.
func (m *Manager) ExecutePlugin(ctx context.Context, id string, input map[string]any) (any, error) {
	return m.ExecuteMethod(ctx, id, "execute", input)
}

// ExecuteMethod runs a named plugin method through the sandbox. An
// inactive plugin is activated on demand when auto-activation is on;
// otherwise execution is refused.
func (m *Manager) ExecuteMethod(ctx context.Context, id, method string, input map[string]any) (any, error) {
	state := m.machine.CurrentState(id)
	if state != lifecycle.StateActive {
		if !m.cfg.AutoActivate {
			return nil, plugins.NewPluginError(id, "execute",
				fmt.Sprintf("state is %s", state), ErrPluginNotActive)
		}
		if err := m.machine.Activate(id); err != nil {
			return nil, err
		}
	}

	p, ok := m.machine.Plugin(id)
	if !ok {
		return nil, plugins.NewPluginError(id, "execute", "no state entry", plugins.ErrPluginNotFound)
	}
	return m.executor.Execute(ctx, p, method, input)
}

// Activate transitions a plugin to active.
func (m *Manager) Activate(id string) error { return m.machine.Activate(id) }

// Deactivate transitions a plugin to inactive.
func (m *Manager) Deactivate(id string) error { return m.machine.Deactivate(id) }

// Update swaps the installed version of a plugin.
func (m *Manager) Update(id, version string) error { return m.machine.Update(id, version) }

// Disable takes a plugin out of service until Enable.
func (m *Manager) Disable(id string) error { return m.machine.Disable(id) }

// Enable returns a disabled plugin to installed.
func (m *Manager) Enable(id string) error { return m.machine.Enable(id) }

// HealthCheck runs the plugin's health check.
func (m *Manager) HealthCheck(id string) error { return m.machine.HealthCheck(id) }

// Uninstall removes a plugin and drops it from the type index.
func (m *Manager) Uninstall(id string) error {
	if err := m.machine.Uninstall(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for t, ids := range m.byType {
		for i, known := range ids {
			if known == id {
				m.byType[t] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Status returns the state record for one plugin.
func (m *Manager) Status(id string) (lifecycle.StateInfo, error) {
	return m.machine.Status(id)
}

// List returns state records for every registered plugin.
func (m *Manager) List() []lifecycle.StateInfo {
	return m.machine.List()
}

// PluginsByType returns the ids registered under a plugin type.
func (m *Manager) PluginsByType(t plugins.PluginType) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.byType[t]...)
}

// DependencyTree returns the nested dependency tree for a plugin.
func (m *Manager) DependencyTree(id string) (*plugins.TreeNode, error) {
	return m.resolver.DependencyTree(id)
}

// RenderDependencyTree draws the dependency tree as ASCII art.
func (m *Manager) RenderDependencyTree(id string) (string, error) {
	return m.resolver.RenderTree(id)
}

// Violations returns recorded sandbox violations, optionally filtered by
// plugin id.
func (m *Manager) Violations(id string) []sandbox.Violation {
	return m.monitor.Violations(id)
}

// Events returns retained bus history matching the filter.
func (m *Manager) Events(filter events.Filter) []events.Event {
	return m.bus.History(filter)
}

// Close shuts the runtime down: the event bus is drained and the store is
// closed when it holds resources.
func (m *Manager) Close() error {
	m.bus.Close()
	if closer, ok := m.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
