package plugins

import (
	"errors"
	"strings"
	"testing"
)

func meta(name, version string, deps ...DependencySpec) PluginMetadata {
	return PluginMetadata{Name: name, Version: version, Type: TypeUtility, Dependencies: deps}
}

func TestResolveReportsAllMissing(t *testing.T) {
	r := NewResolver(0)

	m := meta("main", "1.0.0",
		DependencySpec{Name: "alpha"},
		DependencySpec{Name: "beta", Constraint: ">=1.0.0"},
		DependencySpec{Name: "gamma", Optional: true},
	)
	_, err := r.Resolve(m)
	if !errors.Is(err, ErrDependencyNotMet) {
		t.Fatalf("Resolve() = %v, want ErrDependencyNotMet", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "alpha") || !strings.Contains(msg, "beta") {
		t.Errorf("error should name every missing required dependency, got %q", msg)
	}
	if strings.Contains(msg, "gamma") {
		t.Errorf("absent optional dependency should not be reported, got %q", msg)
	}
}

func TestResolveConstraintMismatch(t *testing.T) {
	r := NewResolver(0)
	if err := r.Register(meta("dep", "1.0.0")); err != nil {
		t.Fatal(err)
	}

	_, err := r.Resolve(meta("main", "1.0.0", DependencySpec{Name: "dep", Constraint: ">=2.0.0"}))
	if err == nil {
		t.Fatal("Resolve() should reject an unsatisfiable constraint")
	}
	if !strings.Contains(err.Error(), "dep") {
		t.Errorf("error should name the offending dependency, got %q", err)
	}
}

func TestResolveCycle(t *testing.T) {
	r := NewResolver(0)
	if err := r.Register(meta("a", "1.0.0", DependencySpec{Name: "b"})); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(meta("b", "1.0.0", DependencySpec{Name: "a"})); err != nil {
		t.Fatal(err)
	}

	_, err := r.Resolve(meta("a", "1.0.0", DependencySpec{Name: "b"}))
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("Resolve() = %v, want ErrCircularDependency", err)
	}
	if !strings.Contains(err.Error(), "->") {
		t.Errorf("cycle error should show the path, got %q", err)
	}
}

func TestResolveOptionalCycleIgnored(t *testing.T) {
	r := NewResolver(0)
	if err := r.Register(meta("a", "1.0.0", DependencySpec{Name: "b"})); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(meta("b", "1.0.0", DependencySpec{Name: "a", Optional: true})); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Resolve(meta("a", "1.0.0", DependencySpec{Name: "b"})); err != nil {
		t.Fatalf("optional back-edge should not count as a cycle: %v", err)
	}
}

func TestResolveInstallOrder(t *testing.T) {
	r := NewResolver(0)
	// main -> mid -> leaf
	if err := r.Register(meta("leaf", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(meta("mid", "1.0.0", DependencySpec{Name: "leaf"})); err != nil {
		t.Fatal(err)
	}

	ordered, err := r.Resolve(meta("main", "1.0.0", DependencySpec{Name: "mid"}))
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(ordered))
	for i, d := range ordered {
		names[i] = d.Name
	}
	if len(names) != 2 || names[0] != "leaf" || names[1] != "mid" {
		t.Errorf("install order = %v, want [leaf mid]", names)
	}
}

func TestResolveDepthLimit(t *testing.T) {
	r := NewResolver(2)
	if err := r.Register(meta("d3", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(meta("d2", "1.0.0", DependencySpec{Name: "d3"})); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(meta("d1", "1.0.0", DependencySpec{Name: "d2"})); err != nil {
		t.Fatal(err)
	}

	_, err := r.Resolve(meta("main", "1.0.0", DependencySpec{Name: "d1"}))
	if !errors.Is(err, ErrDependencyDepthExceeded) {
		t.Fatalf("Resolve() = %v, want ErrDependencyDepthExceeded", err)
	}
}

func TestInstallPlan(t *testing.T) {
	r := NewResolver(0)
	deps := []Dependency{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	r.MarkInstalled("b")

	plan := r.InstallPlan(deps)
	if len(plan) != 2 || plan[0].Name != "a" || plan[1].Name != "c" {
		t.Errorf("InstallPlan() = %v, want the not-installed subset [a c]", plan)
	}
	if r.IsInstalled("a") || r.IsInstalled("c") {
		t.Error("planning must not mark anything installed")
	}
}

func TestDependencyTree(t *testing.T) {
	r := NewResolver(0)
	if err := r.Register(meta("leaf", "2.0.0")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(meta("root", "1.0.0", DependencySpec{Name: "leaf"})); err != nil {
		t.Fatal(err)
	}

	tree, err := r.DependencyTree("root")
	if err != nil {
		t.Fatal(err)
	}
	if tree.Name != "root" || len(tree.Dependencies) != 1 {
		t.Fatalf("unexpected tree shape: %+v", tree)
	}
	if got := tree.Dependencies[0]; got.Name != "leaf" || got.Version != "2.0.0" {
		t.Errorf("child = %+v, want leaf@2.0.0", got)
	}

	if _, err := r.DependencyTree("nope"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("DependencyTree(unknown) = %v, want ErrPluginNotFound", err)
	}
}

func TestDependencyTreeMarksCycles(t *testing.T) {
	r := NewResolver(0)
	if err := r.Register(meta("a", "1.0.0", DependencySpec{Name: "b"})); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(meta("b", "1.0.0", DependencySpec{Name: "a"})); err != nil {
		t.Fatal(err)
	}

	tree, err := r.DependencyTree("a")
	if err != nil {
		t.Fatal(err)
	}
	b := tree.Dependencies[0]
	if len(b.Dependencies) != 1 || !b.Dependencies[0].Circular {
		t.Errorf("back-edge to a should be marked circular: %+v", b)
	}
}

func TestRenderTree(t *testing.T) {
	r := NewResolver(0)
	if err := r.Register(meta("leaf", "2.0.0")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(meta("root", "1.0.0", DependencySpec{Name: "leaf"})); err != nil {
		t.Fatal(err)
	}

	out, err := r.RenderTree("root")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "root@1.0.0") || !strings.Contains(out, "leaf@2.0.0") {
		t.Errorf("rendered tree missing labels:\n%s", out)
	}
}
