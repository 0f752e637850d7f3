package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PermissionChecker evaluates the permission policy of one SecurityConfig
// for one plugin. Denials always win over grants.
type PermissionChecker struct {
	pluginID string
	config   SecurityConfig
	monitor  *Monitor
}

// NewPermissionChecker creates a checker for the given plugin and policy.
// The monitor may be nil; when present, every denial is recorded as a
// violation.
func NewPermissionChecker(pluginID string, config SecurityConfig, monitor *Monitor) *PermissionChecker {
	return &PermissionChecker{pluginID: pluginID, config: config, monitor: monitor}
}

// CheckPermission reports whether the permission is granted.
func (c *PermissionChecker) CheckPermission(p Permission) bool {
	for _, denied := range c.config.DeniedPermissions {
		if denied == p {
			return false
		}
	}
	for _, allowed := range c.config.AllowedPermissions {
		if allowed == p {
			return true
		}
	}
	return false
}

// RequirePermission returns a SecurityViolationError when the permission
// is denied, recording the violation.
func (c *PermissionChecker) RequirePermission(p Permission) error {
	if c.CheckPermission(p) {
		return nil
	}
	return c.violation(p, fmt.Sprintf("permission %s not granted", p))
}

// CheckFileAccess validates a filesystem access. The path is resolved to
// an absolute cleaned form before policy evaluation; write access
// additionally requires FILE_WRITE.
func (c *PermissionChecker) CheckFileAccess(path string, write bool) error {
	perm := PermFileRead
	if write {
		perm = PermFileWrite
	}
	if err := c.RequirePermission(perm); err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return c.violation(perm, fmt.Sprintf("cannot resolve path %q", path))
	}
	abs = canonicalize(filepath.Clean(abs))

	for _, denied := range c.config.DeniedPaths {
		if pathWithin(abs, denied) {
			return c.violation(perm, fmt.Sprintf("path %s is under denied path %s", abs, denied))
		}
	}
	if len(c.config.AllowedPaths) > 0 {
		for _, allowed := range c.config.AllowedPaths {
			if pathWithin(abs, allowed) {
				return nil
			}
		}
		return c.violation(perm, fmt.Sprintf("path %s is outside the allowed paths", abs))
	}
	return nil
}

// CheckNetworkAccess validates an outbound connection to host:port.
func (c *PermissionChecker) CheckNetworkAccess(host string, port int) error {
	if err := c.RequirePermission(PermNetwork); err != nil {
		return err
	}
	if !c.config.AllowNetwork {
		return c.violation(PermNetwork, "network access disabled by policy")
	}
	if len(c.config.AllowedHosts) > 0 {
		for _, allowed := range c.config.AllowedHosts {
			if strings.EqualFold(allowed, host) {
				return nil
			}
		}
		return c.violation(PermNetwork, fmt.Sprintf("host %s:%d is not allow-listed", host, port))
	}
	return nil
}

// CheckExecution validates running an external command.
func (c *PermissionChecker) CheckExecution(command string) error {
	if !c.CheckPermission(PermExecute) {
		return c.violation(PermExecute, fmt.Sprintf("execution of %q denied", command))
	}
	return nil
}

func (c *PermissionChecker) violation(p Permission, detail string) error {
	if c.monitor != nil {
		c.monitor.RecordViolation(c.pluginID, "permission", detail)
	}
	return &SecurityViolationError{PluginID: c.pluginID, Permission: p, Detail: detail}
}

// canonicalize follows symlinks so a link cannot smuggle access to a
// denied target under an innocent lexical path. A path that does not
// exist yet is resolved through its parent directory.
func canonicalize(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}

// pathWithin reports whether path is target or inside it. The target is
// canonicalized the same way as the candidate so both sides of the
// comparison name the real filesystem location.
func pathWithin(path, target string) bool {
	target = canonicalize(filepath.Clean(target))
	if path == target {
		return true
	}
	return strings.HasPrefix(path, target+string(filepath.Separator))
}
