package sandbox

import (
	"fmt"
	"io"
	"net"
	"os"
)

// SafeOps is the restricted operation set exposed to sandboxed plugin
// code. It offers arithmetic, container construction, and comparisons
// freely; everything touching the filesystem, environment, or network is
// gated by the permission checker. Raw process primitives are never
// exposed.
type SafeOps struct {
	checker *PermissionChecker
}

// NewSafeOps creates the restricted namespace for one execution.
func NewSafeOps(checker *PermissionChecker) *SafeOps {
	return &SafeOps{checker: checker}
}

// OpenRead opens a file strictly for reading. The path is resolved to an
// absolute form and checked against the deny-list before the open; any
// write-capable use is impossible because only the reader half is
// returned.
func (s *SafeOps) OpenRead(path string) (io.ReadCloser, error) {
	if err := s.checker.CheckFileAccess(path, false); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("guarded open %s: %w", path, err)
	}
	return f, nil
}

// ReadFile reads an entire file through the guarded open.
func (s *SafeOps) ReadFile(path string) ([]byte, error) {
	r, err := s.OpenRead(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Getenv reads an environment variable, gated by ENVIRONMENT.
func (s *SafeOps) Getenv(key string) (string, error) {
	if err := s.checker.RequirePermission(PermEnvironment); err != nil {
		return "", err
	}
	return os.Getenv(key), nil
}

// Hostname reports the host name, gated by SYSTEM_INFO.
func (s *SafeOps) Hostname() (string, error) {
	if err := s.checker.RequirePermission(PermSystemInfo); err != nil {
		return "", err
	}
	return os.Hostname()
}

// Dial opens a network connection, gated by NETWORK and the host
// allow-list.
func (s *SafeOps) Dial(network, host string, port int) (net.Conn, error) {
	if err := s.checker.CheckNetworkAccess(host, port); err != nil {
		return nil, err
	}
	return net.Dial(network, fmt.Sprintf("%s:%d", host, port))
}

// Sum adds a series of numbers. Arithmetic helpers are unconditionally
// available inside the sandbox.
func (s *SafeOps) Sum(values ...float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// Compare returns -1, 0, or 1 ordering a against b.
func (s *SafeOps) Compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// NewMap constructs a fresh string-keyed map.
func (s *SafeOps) NewMap() map[string]any { return make(map[string]any) }

// NewList constructs a fresh list with the given capacity.
func (s *SafeOps) NewList(capacity int) []any {
	if capacity < 0 {
		capacity = 0
	}
	return make([]any, 0, capacity)
}
