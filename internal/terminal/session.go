// Package terminal implements the Terminal Multiplexer (C8, §4.8): PTY
// sessions attached to a sandbox container via Docker exec, broadcast to
// any number of subscribed websocket clients through wsutil.Hub, each
// backed by a bounded scrollback ring buffer.
package terminal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/runtime/docker"
	"github.com/agentpod/agentpod/internal/wsutil"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

const (
	// MaxSessionsPerSandbox caps concurrent terminals per sandbox (§4.8).
	MaxSessionsPerSandbox = 5
	// MaxScrollbackLines bounds each session's ring buffer (§4.8).
	MaxScrollbackLines = 10000
	defaultShell       = "/bin/bash"
)

// Session is one PTY-backed terminal attached to a sandbox container.
type Session struct {
	ID        string
	SandboxID string
	Shell     string
	CreatedAt time.Time

	mu       sync.Mutex
	stream   *docker.ExecStream
	exitCode *int
	status   v1.TerminalStatus
	scroll   *ringBuffer
}

// Manager creates and tracks terminal sessions, enforcing the per-sandbox
// session cap and fanning output out through a shared Hub (§4.8).
type Manager struct {
	docker *docker.Client
	hub    *wsutil.Hub
	logger *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session   // sessionID -> Session
	bySbx    map[string][]string   // sandboxID -> ordered sessionIDs
}

// NewManager creates a Manager backed by d and broadcasting through hub.
func NewManager(d *docker.Client, hub *wsutil.Hub, log *logger.Logger) *Manager {
	return &Manager{
		docker:   d,
		hub:      hub,
		logger:   log.WithFields(zap.String("component", "terminal")),
		sessions: make(map[string]*Session),
		bySbx:    make(map[string][]string),
	}
}

// Open starts a new PTY session against a sandbox's container (§4.8).
func (m *Manager) Open(ctx context.Context, sandboxID, containerID, shell string) (*Session, error) {
	if shell == "" {
		shell = defaultShell
	}

	m.mu.Lock()
	if len(m.bySbx[sandboxID]) >= MaxSessionsPerSandbox {
		m.mu.Unlock()
		return nil, apperrors.LimitReached("terminal sessions per sandbox")
	}
	m.mu.Unlock()

	stream, err := m.docker.Exec(ctx, containerID, []string{shell}, nil, "", true)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        uuid.New().String(),
		SandboxID: sandboxID,
		Shell:     shell,
		CreatedAt: time.Now(),
		stream:    stream,
		status:    v1.TerminalConnected,
		scroll:    newRingBuffer(MaxScrollbackLines),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.bySbx[sandboxID] = append(m.bySbx[sandboxID], sess.ID)
	m.mu.Unlock()

	go m.pump(sess)

	return sess, nil
}

// pump copies PTY output into the session's scrollback and broadcasts it
// to every subscribed client, topic-keyed by session id.
func (m *Manager) pump(sess *Session) {
	buf := make([]byte, 4096)
	for {
		n, err := sess.stream.Conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			sess.scroll.Write(chunk)
			m.hub.Broadcast(sess.ID, chunk)
		}
		if err != nil {
			break
		}
	}

	sess.mu.Lock()
	sess.status = v1.TerminalDisconnected
	sess.mu.Unlock()
}

// Write forwards keystroke bytes from a websocket client into the PTY.
func (m *Manager) Write(sessionID string, data []byte) error {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return apperrors.NotFound("terminal_session", sessionID)
	}

	if _, err := sess.stream.Conn.Write(data); err != nil {
		return apperrors.Runtime("failed to write to terminal", err)
	}
	return nil
}

// Resize propagates a terminal window resize to the underlying PTY (§4.8).
func (m *Manager) Resize(ctx context.Context, sessionID string, cols, rows uint) error {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return apperrors.NotFound("terminal_session", sessionID)
	}
	if sess.stream.Resize == nil {
		return nil
	}
	return sess.stream.Resize(ctx, cols, rows)
}

// Scrollback returns the buffered output retained for sessionID, useful
// when a new client attaches to an already-running session.
func (m *Manager) Scrollback(sessionID string) ([]byte, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("terminal_session", sessionID)
	}
	return sess.scroll.Snapshot(), nil
}

// Close terminates a session and releases its slot.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(m.sessions, sessionID)

	ids := m.bySbx[sess.SandboxID]
	for i, id := range ids {
		if id == sessionID {
			m.bySbx[sess.SandboxID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	return sess.stream.Conn.Close()
}

// List returns the sessions currently open for a sandbox.
func (m *Manager) List(sandboxID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.bySbx[sandboxID]
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.sessions[id])
	}
	return out
}

// Get returns a session by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// ToAPI converts a Session to its wire representation.
func (s *Session) ToAPI() v1.TerminalSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return v1.TerminalSession{
		ID:        s.ID,
		SandboxID: s.SandboxID,
		Status:    s.status,
		Shell:     s.Shell,
		CreatedAt: s.CreatedAt,
		ExitCode:  s.exitCode,
	}
}
