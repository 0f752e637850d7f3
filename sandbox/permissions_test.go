package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckPermissionDenyWins(t *testing.T) {
	cfg := SecurityConfig{
		AllowedPermissions: []Permission{PermFileRead, PermNetwork},
		DeniedPermissions:  []Permission{PermNetwork},
	}
	c := NewPermissionChecker("p1", cfg, nil)

	tests := []struct {
		perm Permission
		want bool
	}{
		{PermFileRead, true},
		{PermNetwork, false}, // denied beats allowed
		{PermFileWrite, false},
		{PermProcessSpawn, false},
	}
	for _, tt := range tests {
		if got := c.CheckPermission(tt.perm); got != tt.want {
			t.Errorf("CheckPermission(%s) = %v, want %v", tt.perm, got, tt.want)
		}
	}
}

func TestRequirePermissionRecordsViolation(t *testing.T) {
	monitor := NewMonitor(SecurityConfig{})
	c := NewPermissionChecker("p1", SecurityConfig{}, monitor)

	err := c.RequirePermission(PermFileWrite)
	if !errors.Is(err, ErrSecurityViolation) {
		t.Fatalf("RequirePermission = %v, want ErrSecurityViolation", err)
	}
	var sec *SecurityViolationError
	if !errors.As(err, &sec) || sec.PluginID != "p1" || sec.Permission != PermFileWrite {
		t.Errorf("violation error = %+v", sec)
	}
	if got := monitor.Violations("p1"); len(got) != 1 {
		t.Errorf("monitor recorded %d violations, want 1", len(got))
	}
}

func TestCheckFileAccess(t *testing.T) {
	allowed := t.TempDir()
	cfg := SecurityConfig{
		AllowedPermissions: []Permission{PermFileRead},
		AllowedPaths:       []string{allowed},
		DeniedPaths:        []string{"/etc"},
	}
	c := NewPermissionChecker("p1", cfg, nil)

	if err := c.CheckFileAccess(filepath.Join(allowed, "data.txt"), false); err != nil {
		t.Errorf("allowed path rejected: %v", err)
	}
	if err := c.CheckFileAccess("/etc/passwd", false); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("denied path accepted: %v", err)
	}
	// Traversal back into a denied path is still caught after cleaning.
	if err := c.CheckFileAccess(allowed+"/../../../../etc/passwd", false); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("traversal into denied path accepted: %v", err)
	}
	// Outside the allow list.
	if err := c.CheckFileAccess("/var/data.txt", false); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("path outside allow list accepted: %v", err)
	}
	// Writing needs FILE_WRITE even on an allowed path.
	if err := c.CheckFileAccess(filepath.Join(allowed, "data.txt"), true); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("write without FILE_WRITE accepted: %v", err)
	}
}

func TestCheckFileAccessFollowsSymlinks(t *testing.T) {
	denied := t.TempDir()
	secret := filepath.Join(denied, "secret.txt")
	if err := os.WriteFile(secret, []byte("private"), 0o600); err != nil {
		t.Fatal(err)
	}

	allowed := t.TempDir()
	link := filepath.Join(allowed, "innocent.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	cfg := SecurityConfig{
		AllowedPermissions: []Permission{PermFileRead},
		AllowedPaths:       []string{allowed},
		DeniedPaths:        []string{denied},
	}
	c := NewPermissionChecker("p1", cfg, nil)

	// The link's lexical path sits inside the allowed directory, but it
	// resolves into the denied one.
	if err := c.CheckFileAccess(link, false); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("symlinked path into denied directory accepted: %v", err)
	}

	ops := NewSafeOps(c)
	if _, err := ops.ReadFile(link); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("guarded read through symlink accepted: %v", err)
	}

	direct := filepath.Join(allowed, "plain.txt")
	if err := os.WriteFile(direct, []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.CheckFileAccess(direct, false); err != nil {
		t.Errorf("plain allowed file rejected: %v", err)
	}
}

func TestCheckFileAccessPrefixIsNotContainment(t *testing.T) {
	cfg := SecurityConfig{
		AllowedPermissions: []Permission{PermFileRead},
		DeniedPaths:        []string{"/etc"},
	}
	c := NewPermissionChecker("p1", cfg, nil)

	// "/etcetera" shares the string prefix but is not inside /etc.
	if err := c.CheckFileAccess("/etcetera/file", false); err != nil {
		t.Errorf("sibling directory rejected: %v", err)
	}
}

func TestCheckNetworkAccess(t *testing.T) {
	cfg := SecurityConfig{
		AllowedPermissions: []Permission{PermNetwork},
		AllowNetwork:       true,
		AllowedHosts:       []string{"api.example.com"},
	}
	c := NewPermissionChecker("p1", cfg, nil)

	if err := c.CheckNetworkAccess("api.example.com", 443); err != nil {
		t.Errorf("allow-listed host rejected: %v", err)
	}
	if err := c.CheckNetworkAccess("evil.example.com", 443); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("non-listed host accepted: %v", err)
	}

	off := NewPermissionChecker("p1", SecurityConfig{
		AllowedPermissions: []Permission{PermNetwork},
	}, nil)
	if err := off.CheckNetworkAccess("api.example.com", 443); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("network disabled by policy but accepted: %v", err)
	}
}

func TestCheckExecution(t *testing.T) {
	c := NewPermissionChecker("p1", SecurityConfig{}, nil)
	if err := c.CheckExecution("rm"); !errors.Is(err, ErrSecurityViolation) {
		t.Errorf("execution without EXECUTE accepted: %v", err)
	}

	granted := NewPermissionChecker("p1", SecurityConfig{
		AllowedPermissions: []Permission{PermExecute},
	}, nil)
	if err := granted.CheckExecution("ls"); err != nil {
		t.Errorf("granted execution rejected: %v", err)
	}
}
