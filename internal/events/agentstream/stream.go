// Package agentstream bridges the JSON-RPC control channel spoken by the
// agent running inside a sandbox container to the chat fan-out in
// internal/events. It is adapted from internal/agent/acp/session.go's
// SessionManager: the wire protocol and call shapes are the same, but the
// transport changes from pipe-attaching a locally spawned process to
// dialing the sandbox's published agent port over TCP, since the agent
// now runs inside an isolated container rather than as a child process of
// this service.
//
// The companion protocol-constant/param-type file that
// internal/agent/acp/session.go imports from pkg/acp/jsonrpc was never
// present in the reference snapshot (only client.go, which is
// transport-generic), so the method names and param/result shapes below
// are defined here rather than reused from there.
package agentstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/events"
	"github.com/agentpod/agentpod/pkg/acp/jsonrpc"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// AgentPort is the TCP port the in-container agent listens on for its
// JSON-RPC control channel (§4.9).
const AgentPort = 4096

// JSON-RPC methods spoken over the agent control channel.
const (
	MethodInitialize     = "initialize"
	MethodSessionNew     = "session/new"
	MethodSessionPrompt  = "session/prompt"
	MethodSessionCancel  = "session/cancel"
	NotifySessionUpdate  = "session/update"
	dialTimeout          = 10 * time.Second
)

// InitializeParams negotiates protocol version and capabilities.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
	Capabilities    ClientCapabilities `json:"capabilities"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ClientCapabilities struct {
	Streaming bool `json:"streaming"`
}

// SessionNewResult carries the agent-assigned session identifier.
type SessionNewResult struct {
	SessionID string `json:"sessionId"`
}

// SessionPromptParams sends user input to the agent.
type SessionPromptParams struct {
	Message string `json:"message"`
}

// SessionCancelParams interrupts an in-flight prompt.
type SessionCancelParams struct {
	Reason string `json:"reason,omitempty"`
}

// SessionUpdate is a notification pushed by the agent as it works: text
// deltas, tool-call lifecycle transitions, or completion.
type SessionUpdate struct {
	Type     string          `json:"type"` // text, tool_call, complete, error
	Text     string          `json:"text,omitempty"`
	ToolCall *json.RawMessage `json:"toolCall,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// toolCallUpdate is the shape expected inside SessionUpdate.ToolCall.
type toolCallUpdate struct {
	ID     string                 `json:"id"`
	Name   string                 `json:"name"`
	Input  map[string]interface{} `json:"input"`
	Output map[string]interface{} `json:"output,omitempty"`
	Status v1.ToolCallStatus      `json:"status"`
}

// Stream is one live connection to a sandbox's agent process.
type Stream struct {
	SandboxID string
	ChatID    string // chat session id in internal/events
	conn      net.Conn
	client    *jsonrpc.Client

	mu        sync.RWMutex
	agentCSID string // ACP session id assigned by the agent
	status    string
}

// Manager dials sandbox agent ports and bridges their updates into a
// Dispatcher, fanning them out the same way internal/events already does
// for directly-submitted chat messages.
type Manager struct {
	dispatcher *events.Dispatcher
	logger     *logger.Logger

	mu      sync.RWMutex
	streams map[string]*Stream // sandboxID -> Stream
}

// NewManager creates a Manager that forwards agent activity through d.
func NewManager(d *events.Dispatcher, log *logger.Logger) *Manager {
	return &Manager{
		dispatcher: d,
		logger:     log.WithFields(zap.String("component", "agentstream")),
		streams:    make(map[string]*Stream),
	}
}

// Connect dials the agent listening at host:AgentPort inside sandboxID's
// container, performs the initialize handshake and opens a chat session
// for it, then begins forwarding its updates.
func (m *Manager) Connect(ctx context.Context, sandboxID, agentID, host string) (*Stream, error) {
	addr := fmt.Sprintf("%s:%d", host, AgentPort)
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperrors.Runtime("failed to connect to agent", err)
	}

	client := jsonrpc.NewClient(conn, conn, m.logger)

	cs, err := m.dispatcher.StartSession(ctx, sandboxID, agentID, "")
	if err != nil {
		conn.Close()
		return nil, err
	}

	stream := &Stream{
		SandboxID: sandboxID,
		ChatID:    cs.ID,
		conn:      conn,
		client:    client,
		status:    "initializing",
	}

	client.SetNotificationHandler(func(method string, params json.RawMessage) {
		m.handleNotification(ctx, stream, method, params)
	})
	client.Start(ctx)

	m.mu.Lock()
	m.streams[sandboxID] = stream
	m.mu.Unlock()

	if err := m.initialize(ctx, stream); err != nil {
		m.Close(sandboxID)
		return nil, err
	}
	if err := m.newSession(ctx, stream); err != nil {
		m.Close(sandboxID)
		return nil, err
	}

	return stream, nil
}

func (m *Manager) initialize(ctx context.Context, s *Stream) error {
	params := InitializeParams{
		ProtocolVersion: "1.0",
		ClientInfo:      ClientInfo{Name: "agentpod", Version: "0.1.0"},
		Capabilities:    ClientCapabilities{Streaming: true},
	}
	resp, err := s.client.Call(ctx, MethodInitialize, params)
	if err != nil {
		return apperrors.Runtime("agent initialize failed", err)
	}
	if resp.Error != nil {
		return apperrors.Runtime(fmt.Sprintf("agent initialize error: %s", resp.Error.Message), nil)
	}
	s.mu.Lock()
	s.status = "ready"
	s.mu.Unlock()
	return nil
}

func (m *Manager) newSession(ctx context.Context, s *Stream) error {
	resp, err := s.client.Call(ctx, MethodSessionNew, struct{}{})
	if err != nil {
		return apperrors.Runtime("agent session/new failed", err)
	}
	if resp.Error != nil {
		return apperrors.Runtime(fmt.Sprintf("agent session/new error: %s", resp.Error.Message), nil)
	}
	var result SessionNewResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return apperrors.Runtime("failed to parse session/new result", err)
	}
	s.mu.Lock()
	s.agentCSID = result.SessionID
	s.mu.Unlock()
	return nil
}

// Prompt forwards a user message to the agent over its control channel.
func (m *Manager) Prompt(ctx context.Context, sandboxID, message string) error {
	s, err := m.stream(sandboxID)
	if err != nil {
		return err
	}
	resp, err := s.client.Call(ctx, MethodSessionPrompt, SessionPromptParams{Message: message})
	if err != nil {
		return apperrors.Runtime("agent session/prompt failed", err)
	}
	if resp.Error != nil {
		return apperrors.Runtime(fmt.Sprintf("agent session/prompt error: %s", resp.Error.Message), nil)
	}
	return nil
}

// Cancel interrupts the agent's current operation.
func (m *Manager) Cancel(sandboxID, reason string) error {
	s, err := m.stream(sandboxID)
	if err != nil {
		return err
	}
	return s.client.Notify(MethodSessionCancel, SessionCancelParams{Reason: reason})
}

// Close disconnects a sandbox's agent stream.
func (m *Manager) Close(sandboxID string) error {
	m.mu.Lock()
	s, ok := m.streams[sandboxID]
	if ok {
		delete(m.streams, sandboxID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	s.client.Stop()
	return s.conn.Close()
}

func (m *Manager) stream(sandboxID string) (*Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[sandboxID]
	if !ok {
		return nil, apperrors.NotFound("agent_stream", sandboxID)
	}
	return s, nil
}

// handleNotification turns an agent session/update into a chat message or
// tool-call record and forwards it to the dispatcher, mirroring the
// notification-to-update-handler bridge in the original SessionManager.
func (m *Manager) handleNotification(ctx context.Context, s *Stream, method string, params json.RawMessage) {
	if method != NotifySessionUpdate {
		m.logger.Warn("unknown agent notification method", zap.String("method", method))
		return
	}

	var update SessionUpdate
	if err := json.Unmarshal(params, &update); err != nil {
		m.logger.Error("failed to parse session update", zap.Error(err))
		return
	}

	switch update.Type {
	case "text":
		msg := &v1.ChatMessage{
			SessionID: s.ChatID,
			Role:      v1.RoleAssistant,
			Parts:     []v1.ContentPart{{Kind: "text", Text: update.Text}},
		}
		if err := m.dispatcher.AppendMessage(ctx, msg); err != nil {
			m.logger.Error("failed to append agent message", zap.Error(err))
		}
	case "tool_call":
		if update.ToolCall == nil {
			return
		}
		var tc toolCallUpdate
		if err := json.Unmarshal(*update.ToolCall, &tc); err != nil {
			m.logger.Error("failed to parse tool call update", zap.Error(err))
			return
		}
		if err := m.dispatcher.RecordToolCall(ctx, s.ChatID, &v1.ToolCall{
			ID:     tc.ID,
			Name:   tc.Name,
			Input:  tc.Input,
			Output: tc.Output,
			Status: tc.Status,
		}); err != nil {
			m.logger.Error("failed to record tool call", zap.Error(err))
		}
	case "complete":
		if err := m.dispatcher.SetSessionStatus(ctx, s.ChatID, v1.ChatSessionCompleted); err != nil {
			m.logger.Error("failed to mark session complete", zap.Error(err))
		}
	case "error":
		if err := m.dispatcher.SetSessionStatus(ctx, s.ChatID, v1.ChatSessionError); err != nil {
			m.logger.Error("failed to mark session errored", zap.Error(err))
		}
	default:
		m.logger.Warn("unhandled session update type", zap.String("type", update.Type))
	}
}
