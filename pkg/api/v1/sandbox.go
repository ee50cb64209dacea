// Package v1 contains the wire-facing data transfer objects shared between
// the orchestrator and its HTTP API layer.
package v1

import "time"

// SandboxStatus is the lifecycle state of a sandbox (§3, §4.7).
type SandboxStatus string

const (
	SandboxCreated  SandboxStatus = "created"
	SandboxStarting SandboxStatus = "starting"
	SandboxRunning  SandboxStatus = "running"
	SandboxStopping SandboxStatus = "stopping"
	SandboxStopped  SandboxStatus = "stopped"
	SandboxPaused   SandboxStatus = "paused"
	SandboxError    SandboxStatus = "error"
)

// PortMapping describes one exposed container port (§3).
type PortMapping struct {
	Container int    `json:"container"`
	Label     string `json:"label"`
	Public    bool   `json:"public"`
	Protocol  string `json:"protocol,omitempty"`
}

// ResourceLimits is the concrete, resolved resource allocation for a sandbox
// (tier table plus overrides, §4.6).
type ResourceLimits struct {
	CPUCores  float64 `json:"cpu_cores"`
	MemoryGB  float64 `json:"memory_gb"`
	StorageGB float64 `json:"storage_gb"`
}

// Mount is a host-to-container bind mount.
type Mount struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"read_only"`
}

// Sandbox is one user-owned, container-backed development environment (§3).
type Sandbox struct {
	ID            string            `json:"id"`
	Slug          string            `json:"slug"`
	DisplayName   string            `json:"display_name"`
	UserID        string            `json:"user_id"`
	Status        SandboxStatus     `json:"status"`
	ContainerID   *string           `json:"container_id,omitempty"`
	Image         string            `json:"image"`
	Resources     ResourceLimits    `json:"resources"`
	Ports         []PortMapping     `json:"ports"`
	Mounts        []Mount           `json:"mounts"`
	Labels        map[string]string `json:"labels"`
	Network       string            `json:"network"`
	StartCommand  []string          `json:"start_command"`
	Flavor        string            `json:"flavor"`
	Tier          string            `json:"tier"`
	LastError     *string           `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Stats is the instantaneous resource snapshot returned by Stats(id) (§4.7).
type Stats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemRSS     int64   `json:"mem_rss_bytes"`
	MemLimit   int64   `json:"mem_limit_bytes"`
	NetRxBytes int64   `json:"net_rx_bytes"`
	NetTxBytes int64   `json:"net_tx_bytes"`
	BlkIOBytes int64   `json:"blk_io_bytes"`
}

// ExecResult is the outcome of a one-shot Exec(id, argv) call.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   []byte `json:"stdout"`
	Stderr   []byte `json:"stderr"`
}
