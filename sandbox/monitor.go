package sandbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
)

// Violation is a recorded breach of a resource or permission limit.
type Violation struct {
	ID        string    `json:"id"`
	PluginID  string    `json:"plugin_id"`
	Kind      string    `json:"kind"` // "permission", "memory", "cpu", "timeout"
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// ResourceUsage is a point-in-time resource snapshot of an execution unit.
type ResourceUsage struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUSeconds float64 `json:"cpu_seconds"`
	CPUPercent float64 `json:"cpu_percent"`
	ReadOps    uint64  `json:"read_ops"`
	WriteOps   uint64  `json:"write_ops"`
	ReadBytes  uint64  `json:"read_bytes"`
	WriteBytes uint64  `json:"write_bytes"`
}

// Monitor records sandbox violations and computes live resource usage of
// execution units via the process table.
type Monitor struct {
	config SecurityConfig

	mu         sync.RWMutex
	violations []Violation
	max        int
}

// NewMonitor creates a monitor for the given policy.
func NewMonitor(config SecurityConfig) *Monitor {
	return &Monitor{config: config, max: 1024}
}

// RecordViolation appends a violation for the plugin. The log is bounded;
// the oldest entries are discarded first.
func (m *Monitor) RecordViolation(pluginID, kind, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = append(m.violations, Violation{
		ID:        uuid.NewString(),
		PluginID:  pluginID,
		Kind:      kind,
		Detail:    detail,
		Timestamp: time.Now(),
	})
	if len(m.violations) > m.max {
		m.violations = m.violations[len(m.violations)-m.max:]
	}
}

// Violations returns recorded violations, filtered by plugin id when
// non-empty.
func (m *Monitor) Violations(pluginID string) []Violation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Violation
	for _, v := range m.violations {
		if pluginID == "" || v.PluginID == pluginID {
			out = append(out, v)
		}
	}
	return out
}

// Usage computes the live resource usage of the process with the given pid.
func (m *Monitor) Usage(pid int32) (ResourceUsage, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("monitor: pid %d: %w", pid, err)
	}

	var usage ResourceUsage
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		usage.RSSBytes = mem.RSS
	}
	if times, err := proc.Times(); err == nil && times != nil {
		usage.CPUSeconds = times.User + times.System
	}
	if pct, err := proc.CPUPercent(); err == nil {
		usage.CPUPercent = pct
	}
	if io, err := proc.IOCounters(); err == nil && io != nil {
		usage.ReadOps = io.ReadCount
		usage.WriteOps = io.WriteCount
		usage.ReadBytes = io.ReadBytes
		usage.WriteBytes = io.WriteBytes
	}
	return usage, nil
}

// WithinLimits reports whether the execution unit for the plugin is inside
// its configured memory and CPU ceilings, recording a violation when not.
func (m *Monitor) WithinLimits(pluginID string, pid int32) (bool, error) {
	usage, err := m.Usage(pid)
	if err != nil {
		return false, err
	}

	if m.config.MaxMemoryMB > 0 {
		limit := uint64(m.config.MaxMemoryMB) * 1024 * 1024
		if usage.RSSBytes > limit {
			m.RecordViolation(pluginID, "memory",
				fmt.Sprintf("rss %d bytes exceeds limit %d MB", usage.RSSBytes, m.config.MaxMemoryMB))
			return false, nil
		}
	}
	if m.config.MaxCPUPercent > 0 && usage.CPUPercent > m.config.MaxCPUPercent {
		m.RecordViolation(pluginID, "cpu",
			fmt.Sprintf("cpu %.1f%% exceeds limit %.1f%%", usage.CPUPercent, m.config.MaxCPUPercent))
		return false, nil
	}
	return true, nil
}
