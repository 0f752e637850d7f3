package plugins

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// DefaultMaxDependencyDepth bounds recursive dependency walks when the
// resolver is constructed without an explicit limit.
const DefaultMaxDependencyDepth = 32

// Dependency is a resolved dependency specifier produced by the Resolver.
type Dependency struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint,omitempty"`
	Optional   bool   `json:"optional,omitempty"`
}

// TreeNode is one node of a plugin dependency tree, shaped for
// visualization by external callers.
type TreeNode struct {
	Name         string      `json:"name"`
	Version      string      `json:"version"`
	Dependencies []*TreeNode `json:"dependencies"`
	Circular     bool        `json:"circular,omitempty"`
}

// Resolver validates plugin dependency specifiers against a registry of
// known plugin metadata, detects missing and circular dependencies, and
// produces install ordering and dependency trees.
type Resolver struct {
	mu        sync.RWMutex
	known     map[string]PluginMetadata
	installed map[string]bool
	maxDepth  int
}

// NewResolver creates a resolver with the given maximum recursion depth.
// Non-positive values fall back to DefaultMaxDependencyDepth.
func NewResolver(maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDependencyDepth
	}
	return &Resolver{
		known:     make(map[string]PluginMetadata),
		installed: make(map[string]bool),
		maxDepth:  maxDepth,
	}
}

// Register adds plugin metadata to the registry of known plugins.
func (r *Resolver) Register(meta PluginMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[meta.Name] = meta
	return nil
}

// Unregister removes a plugin from the registry.
func (r *Resolver) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.known, name)
	delete(r.installed, name)
}

// MarkInstalled records that a known plugin has been installed.
func (r *Resolver) MarkInstalled(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installed[name] = true
}

// MarkUninstalled records that a plugin is no longer installed.
func (r *Resolver) MarkUninstalled(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.installed, name)
}

// IsInstalled reports whether the named plugin is currently installed.
func (r *Resolver) IsInstalled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.installed[name]
}

// Known returns the registered metadata for a plugin name.
func (r *Resolver) Known(name string) (PluginMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.known[name]
	return meta, ok
}

// Resolve validates the dependency specifiers of the given metadata against
// the registry and returns the transitive dependencies in install order
// (dependencies before dependents).
//
// All missing required dependencies are reported together, not just the
// first. Circular required chains are reported with the cycle path.
func (r *Resolver) Resolve(meta PluginMetadata) ([]Dependency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	var errs *multierror.Error
	for _, spec := range meta.Dependencies {
		dep, ok := r.known[spec.Name]
		if !ok {
			if !spec.Optional {
				missing = append(missing, spec.Name)
			}
			continue
		}
		c, err := ParseConstraint(spec.Constraint)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("plugin %s: dependency %s: %w", meta.Name, spec.Name, err))
			continue
		}
		if !c.Matches(dep.Version) {
			errs = multierror.Append(errs, fmt.Errorf(
				"plugin %s requires %s %s, but version %s is available",
				meta.Name, spec.Name, c, dep.Version))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		for _, name := range missing {
			errs = multierror.Append(errs, fmt.Errorf("missing dependency: %s", name))
		}
		return nil, NewPluginError(meta.Name, "resolve",
			fmt.Sprintf("missing dependencies: [%s]", strings.Join(missing, ", ")),
			multierror.Append(errs, ErrDependencyNotMet))
	}
	if errs.ErrorOrNil() != nil {
		return nil, NewPluginError(meta.Name, "resolve", "dependency validation failed", errs)
	}

	if cycle := r.findCycleLocked(meta); len(cycle) > 0 {
		return nil, NewPluginError(meta.Name, "resolve",
			fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
			ErrCircularDependency)
	}

	ordered, err := r.orderLocked(meta)
	if err != nil {
		return nil, NewPluginError(meta.Name, "resolve", "dependency ordering failed", err)
	}
	return ordered, nil
}

// findCycleLocked runs a DFS over required dependencies starting at meta and
// returns the cycle path if one exists. Caller holds at least a read lock.
func (r *Resolver) findCycleLocked(meta PluginMetadata) []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cycle []string

	deps := func(name string) []DependencySpec {
		if name == meta.Name {
			return meta.Dependencies
		}
		if m, ok := r.known[name]; ok {
			return m.Dependencies
		}
		return nil
	}

	var dfs func(name string) bool
	dfs = func(name string) bool {
		if onStack[name] {
			// Slice the current path from the first occurrence of name.
			for i, n := range stack {
				if n == name {
					cycle = append(append([]string{}, stack[i:]...), name)
					return true
				}
			}
			cycle = []string{name, name}
			return true
		}
		if visited[name] {
			return false
		}
		visited[name] = true
		onStack[name] = true
		stack = append(stack, name)
		for _, spec := range deps(name) {
			if spec.Optional {
				continue
			}
			if dfs(spec.Name) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		onStack[name] = false
		return false
	}

	if dfs(meta.Name) {
		return cycle
	}
	return nil
}

// orderLocked produces the transitive dependencies of meta in install order
// via depth-first postorder. Caller holds at least a read lock.
func (r *Resolver) orderLocked(meta PluginMetadata) ([]Dependency, error) {
	var ordered []Dependency
	seen := make(map[string]bool)

	var walk func(specs []DependencySpec, depth int) error
	walk = func(specs []DependencySpec, depth int) error {
		if depth > r.maxDepth {
			return fmt.Errorf("%w: limit %d", ErrDependencyDepthExceeded, r.maxDepth)
		}
		for _, spec := range specs {
			if seen[spec.Name] {
				continue
			}
			dep, ok := r.known[spec.Name]
			if !ok {
				// Absent optional dependency; required absences were
				// rejected before ordering.
				continue
			}
			seen[spec.Name] = true
			if err := walk(dep.Dependencies, depth+1); err != nil {
				return err
			}
			ordered = append(ordered, Dependency{
				Name:       spec.Name,
				Constraint: spec.Constraint,
				Optional:   spec.Optional,
			})
		}
		return nil
	}

	if err := walk(meta.Dependencies, 1); err != nil {
		return nil, err
	}
	return ordered, nil
}

// InstallPlan returns the subset of deps not yet installed, in the order
// given. It is a pure planning call with no side effects; the caller is
// expected to install the returned plugins in order.
func (r *Resolver) InstallPlan(deps []Dependency) []Dependency {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var plan []Dependency
	for _, dep := range deps {
		if !r.installed[dep.Name] {
			plan = append(plan, dep)
		}
	}
	return plan
}

// DependencyTree builds a nested dependency tree for the named plugin with
// a depth-capped recursive walk. Nodes already on the current path are
// marked circular instead of being expanded again.
func (r *Resolver) DependencyTree(name string) (*TreeNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.known[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return r.buildTreeLocked(meta, make(map[string]bool), 0), nil
}

func (r *Resolver) buildTreeLocked(meta PluginMetadata, path map[string]bool, depth int) *TreeNode {
	node := &TreeNode{Name: meta.Name, Version: meta.Version}
	if depth >= r.maxDepth {
		return node
	}
	path[meta.Name] = true
	defer delete(path, meta.Name)

	for _, spec := range meta.Dependencies {
		dep, ok := r.known[spec.Name]
		if !ok {
			continue
		}
		if path[spec.Name] {
			node.Dependencies = append(node.Dependencies, &TreeNode{
				Name:     spec.Name,
				Version:  dep.Version,
				Circular: true,
			})
			continue
		}
		node.Dependencies = append(node.Dependencies, r.buildTreeLocked(dep, path, depth+1))
	}
	return node
}
