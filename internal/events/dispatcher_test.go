package events

import (
	"context"
	"testing"

	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/events/bus"
	"github.com/agentpod/agentpod/internal/events/store"
	"github.com/agentpod/agentpod/internal/wsutil"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{
		Level:  "error",
		Format: "json",
	})
	return log
}

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(store.NewMemoryStore(), wsutil.NewHub(newTestLogger()), bus.NewMemoryBus(), newTestLogger())
}

func TestStartSession(t *testing.T) {
	d := newTestDispatcher()
	ctx := context.Background()

	cs, err := d.StartSession(ctx, "sbx-1", "agent-1", "/workspace")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if cs.ID == "" {
		t.Error("expected a generated session id")
	}
	if cs.Status != v1.ChatSessionActive {
		t.Errorf("expected status active, got %s", cs.Status)
	}
}

func TestAppendMessageRejectsEmptyParts(t *testing.T) {
	d := newTestDispatcher()
	ctx := context.Background()
	cs, _ := d.StartSession(ctx, "sbx-1", "agent-1", "/workspace")

	err := d.AppendMessage(ctx, &v1.ChatMessage{SessionID: cs.ID, Role: v1.RoleUser})
	if err == nil {
		t.Fatal("expected error for message with no parts")
	}
}

func TestAppendMessageAssignsIDsAndBroadcasts(t *testing.T) {
	d := newTestDispatcher()
	ctx := context.Background()
	cs, _ := d.StartSession(ctx, "sbx-1", "agent-1", "/workspace")

	var received []byte
	eb := bus.NewMemoryBus()
	d.eventBus = eb
	sub, _ := eb.Subscribe(ctx, SubjectChatMessage, func(e bus.Event) {
		received = e.Payload
	})
	defer sub.Unsubscribe()

	msg := &v1.ChatMessage{
		SessionID: cs.ID,
		Role:      v1.RoleUser,
		Parts:     []v1.ContentPart{{Kind: "text", Text: "hello"}},
	}
	if err := d.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if msg.ID != 1 {
		t.Errorf("expected first message id 1, got %d", msg.ID)
	}
	if received == nil {
		t.Error("expected event published to bus")
	}

	history, err := d.History(ctx, cs.ID, 0, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 message in history, got %d", len(history))
	}
}

func TestRecordToolCallTransitionsStatus(t *testing.T) {
	d := newTestDispatcher()
	ctx := context.Background()
	cs, _ := d.StartSession(ctx, "sbx-1", "agent-1", "/workspace")

	tc := &v1.ToolCall{ID: "tc-1", MessageID: 1, Name: "read_file", Status: v1.ToolCallPending}
	if err := d.RecordToolCall(ctx, cs.ID, tc); err != nil {
		t.Fatalf("RecordToolCall failed: %v", err)
	}

	tc.Status = v1.ToolCallCompleted
	tc.Output = map[string]interface{}{"bytes": float64(42)}
	if err := d.RecordToolCall(ctx, cs.ID, tc); err != nil {
		t.Fatalf("RecordToolCall update failed: %v", err)
	}
}

func TestSetSessionStatusUnknownSession(t *testing.T) {
	d := newTestDispatcher()
	ctx := context.Background()

	if err := d.SetSessionStatus(ctx, "missing", v1.ChatSessionCompleted); err == nil {
		t.Fatal("expected not found error for unknown session")
	}
}
