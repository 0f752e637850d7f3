//go:build linux

package sandbox

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Worker-side file descriptor and process ceilings. Plugins get enough
// headroom for ordinary file work but cannot fork-bomb or exhaust the fd
// table.
const (
	workerMaxFiles = 64
	workerMaxProcs = 16
)

// applyLimits installs kernel resource limits on the current process.
// Called once at worker startup, before any plugin code runs.
func applyLimits(c SecurityConfig) error {
	if c.MaxMemoryMB > 0 {
		bytes := uint64(c.MaxMemoryMB) * 1024 * 1024
		if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return err
		}
	}

	if c.TimeoutSeconds > 0 {
		// RLIMIT_CPU counts CPU seconds, not wall clock. The host-side
		// deadline kills slow-but-idle workers; this catches busy loops
		// even if the host dies first.
		secs := uint64(c.TimeoutSeconds)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: secs, Max: secs + 1}); err != nil {
			return err
		}
	}

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: workerMaxFiles, Max: workerMaxFiles}); err != nil {
		return err
	}
	if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{Cur: workerMaxProcs, Max: workerMaxProcs}); err != nil {
		// NPROC is per-user and may already be below our ceiling; that is
		// stricter than requested, not a failure.
		if !errors.Is(err, unix.EPERM) {
			return err
		}
	}
	return nil
}
