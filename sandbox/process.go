package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/go-plugr/plugr/plugins"
)

// WorkerEnv marks a process as a sandbox worker. The host binary re-execs
// itself with this variable set; its main function must hand control to
// WorkerMain before doing anything else.
const WorkerEnv = "PLUGR_SANDBOX_WORKER"

var (
	entrypointsMu sync.RWMutex
	entrypoints   = make(map[string]func() plugins.Plugin)
)

// RegisterEntrypoint makes a plugin constructor available inside sandbox
// worker processes. Process isolation requires the same constructor to be
// registered in both the host and the re-exec'd worker, which holds
// automatically since they are the same binary.
func RegisterEntrypoint(name string, ctor func() plugins.Plugin) {
	entrypointsMu.Lock()
	defer entrypointsMu.Unlock()
	entrypoints[name] = ctor
}

// HasEntrypoint reports whether a worker-side constructor exists for the
// plugin name.
func HasEntrypoint(name string) bool {
	entrypointsMu.RLock()
	defer entrypointsMu.RUnlock()
	_, ok := entrypoints[name]
	return ok
}

// IsWorker reports whether the current process was started as a sandbox
// worker.
func IsWorker() bool {
	return os.Getenv(WorkerEnv) == "1"
}

type workerRequest struct {
	PluginID     string         `json:"plugin_id"`
	Method       string         `json:"method"`
	Input        map[string]any `json:"input"`
	Config       SecurityConfig `json:"config"`
	PluginConfig map[string]any `json:"plugin_config"`
}

type workerResponse struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"` // "security" or "resource" for typed re-raise
}

// ProcessIsolator runs plugin calls in a separate OS process with
// kernel-enforced resource limits (address space, CPU time, file
// descriptors, process count). A timed-out worker is killed outright and
// reports failure uniformly with a crash.
type ProcessIsolator struct {
	monitor *Monitor
	binary  string
}

// NewProcessIsolator creates a process isolator that re-execs the current
// binary in worker mode.
func NewProcessIsolator(monitor *Monitor) (*ProcessIsolator, error) {
	binary, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("sandbox: locate host binary: %w", err)
	}
	return &ProcessIsolator{monitor: monitor, binary: binary}, nil
}

// Name implements Isolator.
func (i *ProcessIsolator) Name() string { return "process" }

// Execute implements Isolator.
func (i *ProcessIsolator) Execute(ctx context.Context, req Request) (any, error) {
	if !HasEntrypoint(req.PluginID) {
		return nil, fmt.Errorf("no worker entrypoint registered for plugin %s", req.PluginID)
	}

	payload, err := json.Marshal(workerRequest{
		PluginID: req.PluginID,
		Method:   req.Method,
		Input:    req.Input,
		Config:   req.Config,
	})
	if err != nil {
		return nil, fmt.Errorf("encode worker request: %w", err)
	}

	cmd := exec.CommandContext(ctx, i.binary)
	cmd.Env = append(os.Environ(), WorkerEnv+"=1")
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		i.monitor.RecordViolation(req.PluginID, "timeout",
			fmt.Sprintf("worker for method %s killed after %s", req.Method, req.Config.Timeout()))
		return nil, &ResourceLimitError{PluginID: req.PluginID, Resource: "timeout",
			Detail: fmt.Sprintf("method %s did not complete within %s", req.Method, req.Config.Timeout())}
	}
	if runErr != nil {
		// Killed by RLIMIT_CPU or crashed under RLIMIT_AS pressure; the
		// caller sees one uniform "did not complete" failure.
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			i.monitor.RecordViolation(req.PluginID, "crash",
				fmt.Sprintf("worker exited: %v; stderr: %s", exitErr, stderr.String()))
			return nil, &ResourceLimitError{PluginID: req.PluginID, Resource: "process",
				Detail: fmt.Sprintf("worker terminated: %v", exitErr)}
		}
		return nil, fmt.Errorf("start worker: %w", runErr)
	}

	var resp workerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode worker response: %w", err)
	}
	switch {
	case resp.Kind == "security":
		return nil, &SecurityViolationError{PluginID: req.PluginID, Detail: resp.Error}
	case resp.Kind == "resource":
		return nil, &ResourceLimitError{PluginID: req.PluginID, Resource: "worker", Detail: resp.Error}
	case resp.Error != "":
		return nil, &ExecutionError{PluginID: req.PluginID, Method: req.Method,
			Message: "worker call failed", Err: errors.New(resp.Error)}
	}
	return resp.Result, nil
}

// WorkerMain is the entry point of a sandbox worker process. It applies
// the kernel resource limits, constructs the plugin from its registered
// entrypoint, performs the single requested call, writes the JSON response
// to stdout, and exits.
func WorkerMain() {
	code := runWorker(os.Stdin, os.Stdout)
	os.Exit(code)
}

func runWorker(in io.Reader, out io.Writer) int {
	var req workerRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		writeResponse(out, workerResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return 1
	}

	if err := applyLimits(req.Config); err != nil {
		writeResponse(out, workerResponse{Error: fmt.Sprintf("apply limits: %v", err), Kind: "resource"})
		return 1
	}

	entrypointsMu.RLock()
	ctor := entrypoints[req.PluginID]
	entrypointsMu.RUnlock()
	if ctor == nil {
		writeResponse(out, workerResponse{Error: fmt.Sprintf("no entrypoint for plugin %s", req.PluginID)})
		return 1
	}

	p := ctor()
	if cfg := req.PluginConfig; cfg != nil {
		if err := p.Initialize(cfg); err != nil {
			writeResponse(out, workerResponse{Error: fmt.Sprintf("initialize: %v", err)})
			return 1
		}
	} else if cfg := p.Metadata().Config; cfg != nil {
		if err := p.Initialize(cfg); err != nil {
			writeResponse(out, workerResponse{Error: fmt.Sprintf("initialize: %v", err)})
			return 1
		}
	}

	monitor := NewMonitor(req.Config)
	checker := NewPermissionChecker(req.PluginID, req.Config, monitor)
	ops := NewSafeOps(checker)

	invoke, err := buildInvoke(p, req.Method, req.Input)
	if err != nil {
		writeResponse(out, workerResponse{Error: err.Error()})
		return 1
	}

	result, callErr := func() (result any, callErr error) {
		defer func() {
			if r := recover(); r != nil {
				result = nil
				callErr = fmt.Errorf("panic: %v", r)
			}
		}()
		return invoke(WithOps(context.Background(), ops))
	}()

	if callErr != nil {
		resp := workerResponse{Error: callErr.Error()}
		var sec *SecurityViolationError
		var res *ResourceLimitError
		if errors.As(callErr, &sec) {
			resp.Kind = "security"
		} else if errors.As(callErr, &res) {
			resp.Kind = "resource"
		}
		writeResponse(out, resp)
		return 0
	}

	writeResponse(out, workerResponse{Result: result})
	return 0
}

func writeResponse(out io.Writer, resp workerResponse) {
	_ = json.NewEncoder(out).Encode(resp)
}
