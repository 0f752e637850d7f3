package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-plugr/plugr/di"
	"github.com/go-plugr/plugr/lifecycle"
	"github.com/go-plugr/plugr/plugins"
)

type echoPlugin struct {
	plugins.BasePlugin
}

func (p *echoPlugin) Execute(ctx context.Context, input map[string]any) (any, error) {
	return input["msg"], nil
}

func newEcho(name, version string, deps ...plugins.DependencySpec) *echoPlugin {
	base := plugins.NewBasePlugin(plugins.PluginMetadata{
		Name:         name,
		Version:      version,
		Type:         plugins.TypeUtility,
		Dependencies: deps,
	})
	return &echoPlugin{BasePlugin: base}
}

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Security.EnableSandbox = false
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestRegisterAndExecute(t *testing.T) {
	m := newTestManager(t, nil)

	if err := m.RegisterPlugin("echo", newEcho("echo", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	info, err := m.Status("echo")
	if err != nil {
		t.Fatal(err)
	}
	if info.State != lifecycle.StateActive {
		t.Fatalf("auto-activate left plugin in %s", info.State)
	}

	out, err := m.ExecutePlugin(context.Background(), "echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi" {
		t.Errorf("ExecutePlugin = %v", out)
	}
}

func TestExecuteInactiveWithoutAutoActivate(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.AutoActivate = false })

	if err := m.RegisterPlugin("echo", newEcho("echo", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	_, err := m.ExecutePlugin(context.Background(), "echo", nil)
	if !errors.Is(err, ErrPluginNotActive) {
		t.Fatalf("execute installed-but-inactive = %v, want ErrPluginNotActive", err)
	}

	if err := m.Activate("echo"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ExecutePlugin(context.Background(), "echo", nil); err != nil {
		t.Errorf("execute after explicit activate: %v", err)
	}
}

func TestExecuteAutoActivates(t *testing.T) {
	m := newTestManager(t, nil)
	if err := m.RegisterPlugin("echo", newEcho("echo", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	if err := m.Deactivate("echo"); err != nil {
		t.Fatal(err)
	}

	if _, err := m.ExecutePlugin(context.Background(), "echo", nil); err != nil {
		t.Fatalf("auto-activation on execute failed: %v", err)
	}
	info, _ := m.Status("echo")
	if info.State != lifecycle.StateActive {
		t.Errorf("state after auto-activated execute = %s", info.State)
	}
}

func TestPluginCeiling(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.MaxPlugins = 1 })

	if err := m.RegisterPlugin("one", newEcho("one", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	err := m.RegisterPlugin("two", newEcho("two", "1.0.0"))
	if !errors.Is(err, ErrTooManyPlugins) {
		t.Fatalf("over-limit registration = %v, want ErrTooManyPlugins", err)
	}
}

func TestTypeIndexAndUninstall(t *testing.T) {
	m := newTestManager(t, nil)
	if err := m.RegisterPlugin("echo", newEcho("echo", "1.0.0")); err != nil {
		t.Fatal(err)
	}

	if ids := m.PluginsByType(plugins.TypeUtility); len(ids) != 1 || ids[0] != "echo" {
		t.Errorf("PluginsByType = %v", ids)
	}

	if err := m.Uninstall("echo"); err != nil {
		t.Fatal(err)
	}
	if ids := m.PluginsByType(plugins.TypeUtility); len(ids) != 0 {
		t.Errorf("uninstall left type index %v", ids)
	}
}

func TestRegisteredPluginAvailableInContainer(t *testing.T) {
	m := newTestManager(t, nil)
	p := newEcho("echo", "1.0.0")
	if err := m.RegisterPlugin("echo", p); err != nil {
		t.Fatal(err)
	}

	got, err := di.Resolve[*echoPlugin](m.Container())
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Error("container should hold the registered plugin instance")
	}
}

func TestDependencyTreeQueries(t *testing.T) {
	m := newTestManager(t, nil)
	if err := m.RegisterPlugin("dep", newEcho("dep", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterPlugin("main", newEcho("main", "1.0.0",
		plugins.DependencySpec{Name: "dep"})); err != nil {
		t.Fatal(err)
	}

	tree, err := m.DependencyTree("main")
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Dependencies) != 1 || tree.Dependencies[0].Name != "dep" {
		t.Errorf("tree = %+v", tree)
	}

	if _, err := m.RenderDependencyTree("main"); err != nil {
		t.Errorf("RenderDependencyTree: %v", err)
	}
}

func TestLoadAllFromManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeManifest("echo.yaml", `
name: manifest-echo
version: 1.0.0
type: utility
constructor: echo
config:
  greeting: hello
`)
	writeManifest("broken.yaml", `
version: 1.0.0
type: utility
`)
	writeManifest("notes.txt", "not a manifest")

	m := newTestManager(t, func(c *Config) {
		c.PluginDir = dir
		c.MaxParallelLoads = 1
	})
	m.Factory().RegisterCreator("echo", func(meta plugins.PluginMetadata) (plugins.Plugin, error) {
		return &echoPlugin{BasePlugin: plugins.NewBasePlugin(meta)}, nil
	})
	m.AddBuiltin("builtin-echo", newEcho("builtin-echo", "1.0.0"))

	n, err := m.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// The builtin and the valid manifest load; the nameless manifest is
	// skipped.
	if n != 2 {
		t.Fatalf("LoadAll = %d, want 2", n)
	}
	if _, err := m.Status("manifest-echo"); err != nil {
		t.Errorf("manifest plugin missing: %v", err)
	}
	if _, err := m.Status("builtin-echo"); err != nil {
		t.Errorf("builtin plugin missing: %v", err)
	}
}

func TestLoadAllParallel(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d"} {
		body := "name: plug-" + name + "\nversion: 1.0.0\ntype: utility\nconstructor: echo\n"
		if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := newTestManager(t, func(c *Config) {
		c.PluginDir = dir
		c.MaxParallelLoads = 3
	})
	m.Factory().RegisterCreator("echo", func(meta plugins.PluginMetadata) (plugins.Plugin, error) {
		return &echoPlugin{BasePlugin: plugins.NewBasePlugin(meta)}, nil
	})

	n, err := m.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("LoadAll = %d, want 4", n)
	}
}

func TestLoadAllSkipsOversizedManifest(t *testing.T) {
	dir := t.TempDir()
	big := "name: big\nversion: 1.0.0\nconstructor: echo\n# " + string(make([]byte, 4096))
	if err := os.WriteFile(filepath.Join(dir, "big.yaml"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, func(c *Config) {
		c.PluginDir = dir
		c.MaxParallelLoads = 1
		c.MaxManifestBytes = 128
	})
	n, err := m.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("LoadAll = %d, want 0", n)
	}
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
name: sample
version: 2.1.0
author: dev
type: workflow
dependencies:
  - name: base
    constraint: ">=1.0.0"
  - name: extra
    optional: true
config:
  retries: 3
`))
	if err != nil {
		t.Fatal(err)
	}
	meta := m.Metadata()
	if meta.Name != "sample" || meta.Version != "2.1.0" || meta.Type != plugins.TypeWorkflow {
		t.Errorf("metadata = %+v", meta)
	}
	if len(meta.Dependencies) != 2 || meta.Dependencies[0].Constraint != ">=1.0.0" || !meta.Dependencies[1].Optional {
		t.Errorf("dependencies = %+v", meta.Dependencies)
	}
	if m.ConstructorName() != "workflow" {
		t.Errorf("ConstructorName = %q, want the type when constructor is empty", m.ConstructorName())
	}

	if _, err := ParseManifest([]byte("version: 1.0.0")); err == nil {
		t.Error("manifest without a name should be rejected")
	}
	if _, err := ParseManifest([]byte("name: x")); err == nil {
		t.Error("manifest without a version should be rejected")
	}
	if _, err := ParseManifest([]byte("{{nope")); err == nil {
		t.Error("invalid yaml should be rejected")
	}
}
