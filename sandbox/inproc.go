package sandbox

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// InprocIsolator runs the call on a goroutine with a wall-clock deadline
// and a heap watchdog. It cannot kill a runaway goroutine, so enforcement
// is advisory compared to ProcessIsolator; it is the default because it
// needs no worker-side plugin registration.
type InprocIsolator struct {
	monitor *Monitor

	// pollInterval controls how often the watchdog samples memory.
	pollInterval time.Duration
}

// NewInprocIsolator creates an in-process isolator reporting to the given
// monitor.
func NewInprocIsolator(monitor *Monitor) *InprocIsolator {
	return &InprocIsolator{monitor: monitor, pollInterval: 50 * time.Millisecond}
}

// Name implements Isolator.
func (i *InprocIsolator) Name() string { return "inproc" }

type callResult struct {
	value any
	err   error
}

// Execute implements Isolator. The call is abandoned (not killed) on
// timeout or memory breach; no partial result is ever returned.
func (i *InprocIsolator) Execute(ctx context.Context, req Request) (any, error) {
	done := make(chan callResult, 1)
	go func() {
		value, err := req.Invoke(ctx)
		done <- callResult{value: value, err: err}
	}()

	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)
	limitBytes := uint64(0)
	if req.Config.MaxMemoryMB > 0 {
		limitBytes = uint64(req.Config.MaxMemoryMB) * 1024 * 1024
	}

	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case res := <-done:
			if res.err != nil {
				return nil, &ExecutionError{PluginID: req.PluginID, Method: req.Method,
					Message: "plugin call failed", Err: res.err}
			}
			return res.value, nil

		case <-ctx.Done():
			i.monitor.RecordViolation(req.PluginID, "timeout",
				fmt.Sprintf("method %s exceeded %s", req.Method, req.Config.Timeout()))
			return nil, &ResourceLimitError{PluginID: req.PluginID, Resource: "timeout",
				Detail: fmt.Sprintf("method %s did not complete within %s", req.Method, req.Config.Timeout())}

		case <-ticker.C:
			if limitBytes == 0 {
				continue
			}
			var now runtime.MemStats
			runtime.ReadMemStats(&now)
			if now.HeapAlloc > baseline.HeapAlloc && now.HeapAlloc-baseline.HeapAlloc > limitBytes {
				i.monitor.RecordViolation(req.PluginID, "memory",
					fmt.Sprintf("heap grew %d bytes past the %d MB ceiling",
						now.HeapAlloc-baseline.HeapAlloc, req.Config.MaxMemoryMB))
				return nil, &ResourceLimitError{PluginID: req.PluginID, Resource: "memory",
					Detail: fmt.Sprintf("allocation exceeded %d MB", req.Config.MaxMemoryMB)}
			}
		}
	}
}
