package lifecycle

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-plugr/plugr/events"
	"github.com/go-plugr/plugr/log"
	"github.com/go-plugr/plugr/plugins"
	"github.com/go-plugr/plugr/store"
)

// StateInfo is the authoritative record for one registered plugin. The
// plugin instance is owned exclusively by the machine while installed and
// is never handed out for mutation.
type StateInfo struct {
	PluginID              string                 `json:"plugin_id"`
	State                 State                  `json:"state"`
	Previous              State                  `json:"previous"`
	LastTransition        time.Time              `json:"last_transition"`
	Err                   string                 `json:"error,omitempty"`
	Metadata              plugins.PluginMetadata `json:"metadata"`
	InstallPath           string                 `json:"install_path,omitempty"`
	InstalledVersion      string                 `json:"installed_version,omitempty"`
	DependenciesSatisfied bool                   `json:"dependencies_satisfied"`
	LastHealthCheck       time.Time              `json:"last_health_check,omitempty"`
	LastHealthOK          bool                   `json:"last_health_ok"`

	plugin  plugins.Plugin
	cleaned bool // Cleanup already ran since the last Initialize/Validate cycle
}

// Machine drives plugin lifecycle transitions. Operations for the same
// plugin id are serialized by a per-id lock; operations on distinct ids
// proceed in parallel. When concurrent operations race on one id they are
// applied in lock-acquisition order and the later request observes the
// earlier one's resulting state.
type Machine struct {
	store    store.Store
	resolver *plugins.Resolver
	bus      *events.Bus

	mu     sync.RWMutex
	states map[string]*StateInfo
	locks  sync.Map // plugin id -> *sync.Mutex
}

// NewMachine creates a lifecycle machine over the given store, resolver,
// and event bus.
func NewMachine(s store.Store, r *plugins.Resolver, bus *events.Bus) *Machine {
	return &Machine{
		store:    s,
		resolver: r,
		bus:      bus,
		states:   make(map[string]*StateInfo),
	}
}

func (m *Machine) lockFor(id string) *sync.Mutex {
	actual, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (m *Machine) info(id string) (*StateInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.states[id]
	return info, ok
}

// transition applies one table-checked state change. On rejection the
// state is left unchanged and a TransitionError is returned.
func (m *Machine) transition(info *StateInfo, target State) error {
	if !info.State.CanTransition(target) {
		return &TransitionError{PluginID: info.PluginID, From: info.State, To: target}
	}
	info.Previous = info.State
	info.State = target
	info.LastTransition = time.Now()
	return nil
}

// toError moves the plugin to the error state (when the table allows) and
// records the message for later inspection.
func (m *Machine) toError(info *StateInfo, err error) {
	info.Err = err.Error()
	if info.State.CanTransition(StateError) {
		_ = m.transition(info, StateError)
	}
}

func (m *Machine) emitStarted(op, id string) {
	m.emit(events.Started(op), op, id, nil)
}

func (m *Machine) emitDone(op, id string, err error) {
	if err != nil {
		m.emit(events.Failed(op), op, id, err)
		return
	}
	m.emit(events.Completed(op), op, id, nil)
}

func (m *Machine) emit(t events.EventType, op, id string, err error) {
	e := events.Event{
		Type:     t,
		PluginID: id,
		Priority: events.PriorityNormal,
		Metadata: map[string]any{"operation": op},
	}
	if err != nil {
		e.Error = err.Error()
		e.Priority = events.PriorityHigh
	}
	m.bus.Publish(e)
}

// persist writes the plugin's state record through the store and returns
// the record location.
func (m *Machine) persist(info *StateInfo) (string, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("encode state for %s: %w", info.PluginID, err)
	}
	return m.store.Save(info.PluginID, data)
}

// Install registers and installs a plugin under the given id. The plugin
// is validated, its dependencies are resolved, its Initialize hook runs
// with the declared configuration, and its metadata is persisted. Any
// failure moves the plugin to the error state and is returned to the
// caller; the machine never retries.
func (m *Machine) Install(p plugins.Plugin, id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	// A plugin stuck in error may be installed again; anything else that
	// already has a live state entry is rejected.
	if existing, ok := m.info(id); ok && existing.State != StateNotInstalled && existing.State != StateError {
		return plugins.NewPluginError(id, "install",
			fmt.Sprintf("state is %s", existing.State), ErrAlreadyInstalled)
	}

	meta := p.Metadata()
	if meta.Name != "" && meta.Name != id {
		return plugins.NewPluginError(id, "install",
			fmt.Sprintf("metadata name %q does not match id", meta.Name), plugins.ErrInvalidPluginID)
	}
	meta.Name = id

	info := &StateInfo{
		PluginID: id,
		State:    StateNotInstalled,
		Metadata: meta,
		plugin:   p,
	}
	m.mu.Lock()
	m.states[id] = info
	m.mu.Unlock()

	m.emitStarted("install", id)
	err := m.install(info, p, meta)
	m.emitDone("install", id, err)
	return err
}

func (m *Machine) install(info *StateInfo, p plugins.Plugin, meta plugins.PluginMetadata) error {
	if err := m.transition(info, StateInstalling); err != nil {
		return err
	}

	if err := p.Validate(); err != nil {
		wrapped := plugins.NewPluginError(info.PluginID, "install", "validation failed", err)
		m.toError(info, wrapped)
		return wrapped
	}

	if err := m.resolver.Register(meta); err != nil {
		m.toError(info, err)
		return err
	}
	if meta.ConfigBool("skip_dependency_check") {
		log.Warnf("plugin %s installed with dependency checking skipped", info.PluginID)
	} else {
		if _, err := m.resolver.Resolve(meta); err != nil {
			m.toError(info, err)
			return err
		}
		info.DependenciesSatisfied = true
	}

	if err := p.Initialize(meta.Config); err != nil {
		wrapped := plugins.NewPluginError(info.PluginID, "install", "initialize hook failed", err)
		m.toError(info, wrapped)
		return wrapped
	}
	info.cleaned = false

	path, err := m.persist(info)
	if err != nil {
		wrapped := plugins.NewPluginError(info.PluginID, "install", "store write failed", err)
		m.toError(info, wrapped)
		return wrapped
	}
	info.InstallPath = path
	info.InstalledVersion = meta.Version

	if err := m.transition(info, StateInstalled); err != nil {
		return err
	}
	info.Err = ""
	m.resolver.MarkInstalled(info.PluginID)
	log.Infof("plugin %s installed (version %s)", info.PluginID, meta.Version)
	return nil
}

// Activate moves an installed or inactive plugin to active. The plugin's
// Validate hook serves as the health check; on failure the plugin rolls
// back to inactive and the error is returned.
func (m *Machine) Activate(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.emitStarted("activate", id)
	err := m.activate(id)
	m.emitDone("activate", id, err)
	return err
}

func (m *Machine) activate(id string) error {
	info, ok := m.info(id)
	if !ok {
		return plugins.NewPluginError(id, "activate", "no state entry", ErrNotInstalled)
	}
	if info.State != StateInstalled && info.State != StateInactive {
		return &TransitionError{PluginID: id, From: info.State, To: StateActivating}
	}

	// Required dependencies must be at least installed before activation.
	for _, spec := range info.Metadata.Dependencies {
		if spec.Optional {
			continue
		}
		if !m.resolver.IsInstalled(spec.Name) {
			err := plugins.NewPluginError(id, "activate",
				fmt.Sprintf("required dependency %s is not installed", spec.Name),
				plugins.ErrDependencyNotMet)
			info.Err = err.Error()
			return err
		}
	}

	if err := m.transition(info, StateActivating); err != nil {
		return err
	}

	healthErr := info.plugin.Validate()
	info.LastHealthCheck = time.Now()
	info.LastHealthOK = healthErr == nil
	if healthErr != nil {
		_ = m.transition(info, StateInactive)
		wrapped := plugins.NewPluginError(id, "activate", "health check failed", healthErr)
		info.Err = wrapped.Error()
		return wrapped
	}

	if err := m.transition(info, StateActive); err != nil {
		return err
	}
	info.Err = ""
	info.cleaned = false
	log.Infof("plugin %s activated", id)
	return nil
}

// Deactivate moves an active plugin to inactive, invoking its Cleanup hook.
func (m *Machine) Deactivate(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.emitStarted("deactivate", id)
	err := m.deactivate(id)
	m.emitDone("deactivate", id, err)
	return err
}

func (m *Machine) deactivate(id string) error {
	info, ok := m.info(id)
	if !ok {
		return plugins.NewPluginError(id, "deactivate", "no state entry", ErrNotInstalled)
	}
	if err := m.transition(info, StateDeactivating); err != nil {
		return err
	}

	if err := info.plugin.Cleanup(); err != nil {
		wrapped := plugins.NewPluginError(id, "deactivate", "cleanup hook failed", err)
		m.toError(info, wrapped)
		return wrapped
	}
	info.cleaned = true

	if err := m.transition(info, StateInactive); err != nil {
		return err
	}
	log.Infof("plugin %s deactivated", id)
	return nil
}

// Uninstall removes a plugin entirely: deactivates it first when active,
// invokes Cleanup when it has not already run, deletes the store record,
// and drops the state entry.
func (m *Machine) Uninstall(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.emitStarted("uninstall", id)
	err := m.uninstall(id)
	m.emitDone("uninstall", id, err)
	return err
}

func (m *Machine) uninstall(id string) error {
	info, ok := m.info(id)
	if !ok {
		return plugins.NewPluginError(id, "uninstall", "no state entry", ErrNotInstalled)
	}

	if info.State == StateActive {
		if err := m.deactivate(id); err != nil {
			return err
		}
	}

	if err := m.transition(info, StateUninstalling); err != nil {
		return err
	}

	if !info.cleaned {
		if err := info.plugin.Cleanup(); err != nil {
			wrapped := plugins.NewPluginError(id, "uninstall", "cleanup hook failed", err)
			m.toError(info, wrapped)
			return wrapped
		}
		info.cleaned = true
	}

	if _, err := m.store.Delete(id); err != nil {
		wrapped := plugins.NewPluginError(id, "uninstall", "store delete failed", err)
		m.toError(info, wrapped)
		return wrapped
	}

	_ = m.transition(info, StateNotInstalled)
	m.mu.Lock()
	delete(m.states, id)
	m.mu.Unlock()
	m.resolver.Unregister(id)
	log.Infof("plugin %s uninstalled", id)
	return nil
}

// Update swaps the installed version of a plugin. An active plugin is
// deactivated first and reactivated after a successful update.
func (m *Machine) Update(id, newVersion string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.emitStarted("update", id)
	err := m.update(id, newVersion)
	m.emitDone("update", id, err)
	return err
}

func (m *Machine) update(id, newVersion string) error {
	info, ok := m.info(id)
	if !ok {
		return plugins.NewPluginError(id, "update", "no state entry", ErrNotInstalled)
	}

	wasActive := info.State == StateActive
	if wasActive {
		if err := m.deactivate(id); err != nil {
			return err
		}
	}

	if err := m.transition(info, StateUpdating); err != nil {
		return err
	}

	previous := info.Metadata.Version
	info.Metadata.Version = newVersion
	info.InstalledVersion = newVersion
	if err := m.resolver.Register(info.Metadata); err != nil {
		info.Metadata.Version = previous
		info.InstalledVersion = previous
		m.toError(info, err)
		return err
	}
	if _, err := m.persist(info); err != nil {
		wrapped := plugins.NewPluginError(id, "update", "store write failed", err)
		m.toError(info, wrapped)
		return wrapped
	}

	if err := m.transition(info, StateInstalled); err != nil {
		return err
	}
	log.Infof("plugin %s updated %s -> %s", id, previous, newVersion)

	if wasActive {
		return m.activate(id)
	}
	return nil
}

// HealthCheck runs the plugin's Validate hook and records the result.
func (m *Machine) HealthCheck(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	info, ok := m.info(id)
	if !ok {
		return plugins.NewPluginError(id, "health_check", "no state entry", ErrNotInstalled)
	}
	err := info.plugin.Validate()
	info.LastHealthCheck = time.Now()
	info.LastHealthOK = err == nil
	if err != nil {
		m.emit(events.EventHealthCheckFailed, "health_check", id, err)
		return plugins.NewPluginError(id, "health_check", "validation failed", err)
	}
	return nil
}

// Status returns a copy of the plugin's state record. The copy is taken
// under the plugin's per-id lock, so a concurrent lifecycle operation is
// observed either entirely before or entirely after its transition.
func (m *Machine) Status(id string) (StateInfo, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	info, ok := m.info(id)
	if !ok {
		return StateInfo{}, plugins.NewPluginError(id, "status", "no state entry", ErrNotInstalled)
	}
	out := *info
	out.plugin = nil
	return out, nil
}

// List returns copies of all state records, each taken under its per-id
// lock.
func (m *Machine) List() []StateInfo {
	m.mu.RLock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]StateInfo, 0, len(ids))
	for _, id := range ids {
		if info, err := m.Status(id); err == nil {
			out = append(out, info)
		}
	}
	return out
}

// Plugin returns the installed plugin instance for dispatching execution.
func (m *Machine) Plugin(id string) (plugins.Plugin, bool) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	info, ok := m.info(id)
	if !ok {
		return nil, false
	}
	return info.plugin, true
}

// Disable moves a plugin to the disabled state. Allowed from installed,
// active, and inactive per the transition table.
func (m *Machine) Disable(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.emitStarted("disable", id)
	err := func() error {
		info, ok := m.info(id)
		if !ok {
			return plugins.NewPluginError(id, "disable", "no state entry", ErrNotInstalled)
		}
		return m.transition(info, StateDisabled)
	}()
	m.emitDone("disable", id, err)
	return err
}

// Enable returns a disabled plugin to the installed state.
func (m *Machine) Enable(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.emitStarted("enable", id)
	err := func() error {
		info, ok := m.info(id)
		if !ok {
			return plugins.NewPluginError(id, "enable", "no state entry", ErrNotInstalled)
		}
		return m.transition(info, StateInstalled)
	}()
	m.emitDone("enable", id, err)
	return err
}

// CurrentState returns the plugin's state, or StateNotInstalled when the
// id is unknown.
func (m *Machine) CurrentState(id string) State {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	info, ok := m.info(id)
	if !ok {
		return StateNotInstalled
	}
	return info.State
}
