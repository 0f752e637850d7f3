//go:build !linux

package sandbox

// applyLimits is a no-op on platforms without rlimit support. The
// host-side deadline and the in-worker permission checks still apply.
func applyLimits(SecurityConfig) error { return nil }
