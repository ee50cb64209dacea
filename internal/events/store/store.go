// Package store persists chat sessions, messages and tool calls (§3, §4.9).
package store

import (
	"context"

	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// Store is the persistence contract for chat history.
type Store interface {
	CreateSession(ctx context.Context, s *v1.ChatSession) error
	GetSession(ctx context.Context, id string) (*v1.ChatSession, error)
	UpdateSession(ctx context.Context, s *v1.ChatSession) error
	ListSessions(ctx context.Context, sandboxID string) ([]*v1.ChatSession, error)

	AppendMessage(ctx context.Context, m *v1.ChatMessage) (int64, error)
	ListMessages(ctx context.Context, sessionID string, sinceID int64, limit int) ([]*v1.ChatMessage, error)
	TrimOldest(ctx context.Context, sessionID string, keep int) (int, error)

	UpsertToolCall(ctx context.Context, t *v1.ToolCall) error
	GetToolCall(ctx context.Context, id string) (*v1.ToolCall, error)

	Close() error
}
