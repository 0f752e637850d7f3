package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSafeOpsGuardedRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	ops := NewSafeOps(NewPermissionChecker("p1", SecurityConfig{
		AllowedPermissions: []Permission{PermFileRead},
		AllowedPaths:       []string{dir},
	}, nil))

	data, err := ops.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("ReadFile = %q", data)
	}

	if _, err := ops.ReadFile("/etc/passwd"); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("read outside allowed paths = %v, want ErrSecurityViolation", err)
	}
}

func TestSafeOpsReadDeniedWithoutPermission(t *testing.T) {
	ops := NewSafeOps(NewPermissionChecker("p1", SecurityConfig{}, nil))
	if _, err := ops.OpenRead("anything"); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("OpenRead without FILE_READ = %v, want ErrSecurityViolation", err)
	}
}

func TestSafeOpsGetenvGated(t *testing.T) {
	t.Setenv("PLUGR_TEST_VALUE", "42")

	denied := NewSafeOps(NewPermissionChecker("p1", SecurityConfig{}, nil))
	if _, err := denied.Getenv("PLUGR_TEST_VALUE"); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("Getenv without ENVIRONMENT = %v, want ErrSecurityViolation", err)
	}

	granted := NewSafeOps(NewPermissionChecker("p1", SecurityConfig{
		AllowedPermissions: []Permission{PermEnvironment},
	}, nil))
	v, err := granted.Getenv("PLUGR_TEST_VALUE")
	if err != nil {
		t.Fatal(err)
	}
	if v != "42" {
		t.Errorf("Getenv = %q", v)
	}
}

func TestSafeOpsFreeHelpers(t *testing.T) {
	ops := NewSafeOps(NewPermissionChecker("p1", SecurityConfig{}, nil))

	if got := ops.Sum(1, 2, 3.5); got != 6.5 {
		t.Errorf("Sum = %v", got)
	}
	if ops.Compare(1, 2) != -1 || ops.Compare(2, 1) != 1 || ops.Compare(1, 1) != 0 {
		t.Error("Compare ordering wrong")
	}
	m := ops.NewMap()
	m["k"] = "v"
	if len(m) != 1 {
		t.Error("NewMap unusable")
	}
	if l := ops.NewList(-1); l == nil || len(l) != 0 {
		t.Error("NewList should clamp negative capacity")
	}
}
