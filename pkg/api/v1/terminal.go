package v1

import "time"

// TerminalStatus is the connection state of a terminal session (§3).
type TerminalStatus string

const (
	TerminalConnecting   TerminalStatus = "connecting"
	TerminalConnected    TerminalStatus = "connected"
	TerminalDisconnected TerminalStatus = "disconnected"
	TerminalError        TerminalStatus = "error"
)

// TerminalSession is one PTY-backed terminal attached to a sandbox (§4.8).
type TerminalSession struct {
	ID        string         `json:"id"`
	SandboxID string         `json:"sandbox_id"`
	Status    TerminalStatus `json:"status"`
	Shell     string         `json:"shell"`
	CreatedAt time.Time      `json:"created_at"`
	ExitCode  *int           `json:"exit_code,omitempty"`
}
