// Package events implements the Event Fan-Out / Chat Sync component (C9,
// §4.9): it persists chat messages and tool calls, and fans each update
// out to subscribed websocket clients and the process-wide event bus. It
// is adapted from the teacher's ACP message handler
// (internal/orchestrator/acp/handler.go), generalized from a single
// per-task message buffer to a full ChatSession/ChatMessage/ToolCall
// model. Live fan-out does not coalesce updates for lagging consumers: a
// subscriber whose send buffer is full misses that message, whatever its
// kind, and stays subscribed.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/events/bus"
	"github.com/agentpod/agentpod/internal/events/store"
	"github.com/agentpod/agentpod/internal/wsutil"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// Subjects published on the process-wide bus for chat activity (§4.9).
const (
	SubjectChatMessage  = "chat.message"
	SubjectToolCall     = "chat.tool_call"
	SubjectSessionState = "chat.session"
)

// wireEnvelope is what's broadcast to websocket subscribers: a discriminated
// union tagged by Kind so a single connection can multiplex message and
// tool-call updates for a session.
type wireEnvelope struct {
	Kind    string          `json:"kind"` // message, tool_call, session
	Payload json.RawMessage `json:"payload"`
}

// Dispatcher wires chat persistence to real-time fan-out.
type Dispatcher struct {
	store    store.Store
	hub      *wsutil.Hub
	eventBus bus.EventBus
	logger   *logger.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(st store.Store, hub *wsutil.Hub, eb bus.EventBus, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		hub:      hub,
		eventBus: eb,
		logger:   log.WithFields(zap.String("component", "events.dispatcher")),
	}
}

// StartSession creates a new chat session for an agent running in a sandbox.
func (d *Dispatcher) StartSession(ctx context.Context, sandboxID, agentID, workingDir string) (*v1.ChatSession, error) {
	now := time.Now()
	cs := &v1.ChatSession{
		ID:         uuid.New().String(),
		SandboxID:  sandboxID,
		AgentID:    agentID,
		Status:     v1.ChatSessionActive,
		WorkingDir: workingDir,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := d.store.CreateSession(ctx, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// AppendMessage persists a chat message and fans it out to subscribers of
// the session's topic, both locally (websocket) and cluster-wide (bus).
func (d *Dispatcher) AppendMessage(ctx context.Context, msg *v1.ChatMessage) error {
	if len(msg.Parts) == 0 {
		return apperrors.Invalid("parts", apperrors.ErrCodeInvalid, "message has no content parts")
	}

	var bodySize int
	for _, p := range msg.Parts {
		bodySize += len(p.Text)
	}
	if bodySize > v1.MaxMessageBodyBytes {
		return apperrors.Invalid("parts", apperrors.ErrCodeInvalid, "message body exceeds maximum size")
	}

	msg.CreatedAt = time.Now()
	if _, err := d.store.AppendMessage(ctx, msg); err != nil {
		return err
	}

	d.broadcast(msg.SessionID, "message", msg)
	d.publish(ctx, SubjectChatMessage, msg)
	return nil
}

// RecordToolCall persists (or updates) a tool call and fans it out. Output
// may legitimately arrive strictly after the call is first registered
// (§3): callers pass the same ID to transition pending -> running -> done.
func (d *Dispatcher) RecordToolCall(ctx context.Context, sessionID string, tc *v1.ToolCall) error {
	tc.UpdatedAt = time.Now()
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = tc.UpdatedAt
	}

	if err := d.store.UpsertToolCall(ctx, tc); err != nil {
		return err
	}

	d.broadcast(sessionID, "tool_call", tc)
	d.publish(ctx, SubjectToolCall, tc)
	return nil
}

// SetSessionStatus transitions a session's status and fans out the change.
func (d *Dispatcher) SetSessionStatus(ctx context.Context, sessionID string, status v1.ChatSessionStatus) error {
	cs, err := d.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	cs.Status = status
	cs.UpdatedAt = time.Now()
	if err := d.store.UpdateSession(ctx, cs); err != nil {
		return err
	}

	d.broadcast(sessionID, "session", cs)
	d.publish(ctx, SubjectSessionState, cs)
	return nil
}

// History returns messages after sinceID for replay when a client attaches
// to an already-running session (§4.9).
func (d *Dispatcher) History(ctx context.Context, sessionID string, sinceID int64, limit int) ([]*v1.ChatMessage, error) {
	return d.store.ListMessages(ctx, sessionID, sinceID, limit)
}

// broadcast is a best-effort local fan-out: slow websocket consumers are
// dropped from this message rather than stalling the whole session, since
// History() lets them catch up on reconnect. Terminal output goes through
// the same Hub.Broadcast, so a slow terminal client misses output the same
// way; the terminal package's scrollback buffer is replayed only when a
// client attaches.
func (d *Dispatcher) broadcast(sessionID, kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("failed to marshal broadcast payload", zap.Error(err))
		return
	}
	envelope, err := json.Marshal(wireEnvelope{Kind: kind, Payload: data})
	if err != nil {
		d.logger.Error("failed to marshal envelope", zap.Error(err))
		return
	}
	d.hub.Broadcast(sessionID, envelope)
}

func (d *Dispatcher) publish(ctx context.Context, subject string, payload interface{}) {
	if d.eventBus == nil {
		return
	}
	event, err := bus.NewEvent(subject, payload)
	if err != nil {
		d.logger.Error("failed to encode event", zap.Error(err))
		return
	}
	if err := d.eventBus.Publish(ctx, event); err != nil {
		d.logger.Error("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
