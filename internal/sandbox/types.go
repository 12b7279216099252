// Package sandbox defines the neutral data model and runtime contract shared
// by every isolation backend: gVisor, Kata Containers, and Firecracker.
package sandbox

import "time"

// ID identifies a single sandbox instance, one-to-one for its lifetime.
type ID string

// SnapshotID identifies a captured sandbox snapshot.
type SnapshotID string

// RuntimeType is the closed set of isolation backends the gateway knows how
// to drive.
type RuntimeType string

const (
	Gvisor      RuntimeType = "gvisor"
	Kata        RuntimeType = "kata"
	Firecracker RuntimeType = "firecracker"
)

// IsolationLevel is the caller-facing isolation request. Each RuntimeType
// advertises which levels it supports via Runtime.Supports.
type IsolationLevel string

const (
	Standard IsolationLevel = "standard"
	Strong   IsolationLevel = "strong"
	Maximum  IsolationLevel = "maximum"
)

// DefaultRuntime maps an isolation level to its preferred backend. Used by
// the selector (internal/runtimeselector) when no caller preference applies.
var DefaultRuntime = map[IsolationLevel]RuntimeType{
	Standard: Gvisor,
	Strong:   Kata,
	Maximum:  Firecracker,
}

// State is the finite set of sandbox lifecycle states. Once a sandbox enters
// Stopped or Failed and is destroyed, its ID is never reused within the
// owning process.
type State string

const (
	Creating State = "creating"
	Running  State = "running"
	Paused   State = "paused"
	Stopped  State = "stopped"
	Failed   State = "failed"
)

// Mount is a host-path bind mount into a sandbox's guest filesystem.
type Mount struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ReadOnly    bool   `json:"read_only"`
}

// Config is the request to materialize a sandbox. The core never fetches or
// unpacks the named Image; that is left to an external collaborator.
type Config struct {
	ID                 ID                `json:"id"`
	Image              string            `json:"image"`
	Command            []string          `json:"command"`
	Environment        map[string]string `json:"environment"`
	CPULimit           *float64          `json:"cpu_limit,omitempty"`
	MemoryLimit        *int64            `json:"memory_limit,omitempty"`
	TimeoutMillis      *int64            `json:"timeout,omitempty"`
	IsolationLevel     IsolationLevel    `json:"isolation_level"`
	RuntimePreference  *RuntimeType      `json:"runtime_preference,omitempty"`
	WorkingDir         string            `json:"working_dir,omitempty"`
	Mounts             []Mount           `json:"mounts,omitempty"`
}

// WorkDir returns the configured working directory or the "/" default.
func (c *Config) WorkDir() string {
	if c.WorkingDir == "" {
		return "/"
	}
	return c.WorkingDir
}

// Info is the per-driver bookkeeping record for one live sandbox. It is
// never exposed outside the owning driver; callers see Status.
type Info struct {
	ID          ID
	BackendID   string // container id (container runtimes) or TAP device name (Firecracker)
	BundlePath  string
	SocketPath  string // Firecracker only
	PID         int    // Firecracker only
	State       State
	Config      Config
	CreatedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	ExitCode    *int
}

// ResourceUsage reports consumption for a running or finished sandbox. Zero
// is the legal "unknown" sentinel for drivers that cannot sample a metric.
type ResourceUsage struct {
	CPUUsageSeconds  float64 `json:"cpu_usage_seconds"`
	MemoryUsageBytes uint64  `json:"memory_usage_bytes"`
	NetworkRxBytes   uint64  `json:"network_rx_bytes"`
	NetworkTxBytes   uint64  `json:"network_tx_bytes"`
}

// Result is the outcome of one Exec call.
type Result struct {
	ID            ID            `json:"id"`
	ExitCode      int           `json:"exit_code"` // -1 reserved for "killed/no status"
	Stdout        []byte        `json:"stdout"`
	Stderr        []byte        `json:"stderr"`
	DurationMs    int64         `json:"duration_ms"`
	ResourceUsage ResourceUsage `json:"resource_usage"`
}

// Status is the externally visible snapshot of a sandbox's lifecycle state.
type Status struct {
	ID            ID            `json:"id"`
	State         State         `json:"state"`
	CreatedAt     time.Time     `json:"created_at"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	ExitCode      *int          `json:"exit_code,omitempty"`
	ResourceUsage ResourceUsage `json:"resource_usage"`
}

// Snapshot is the opaque artifact produced by Runtime.Snapshot and consumed
// by Runtime.Resume. It is only restorable by the RuntimeType that produced
// it; the core never persists these bytes itself, only hands them to an
// external vault.
type Snapshot struct {
	ID             SnapshotID             `json:"id"`
	SandboxID      ID                     `json:"sandbox_id"`
	RuntimeType    RuntimeType            `json:"runtime_type"`
	Timestamp      time.Time              `json:"timestamp"`
	FilesystemState []byte                `json:"filesystem_state"`
	MemoryState     []byte                `json:"memory_state,omitempty"`
	Metadata        map[string]string     `json:"metadata,omitempty"`
}
