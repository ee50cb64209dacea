package store

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// MemoryStore keeps chat sessions, their message buffers and tool calls in
// process memory, adapted from the teacher's per-task message buffer
// (internal/orchestrator/acp/memory_store.go) but keyed by chat session
// instead of task id, and enforcing the message-count eviction rule the
// teacher's buffer didn't need (§5).
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*v1.ChatSession
	messages  map[string][]*v1.ChatMessage // sessionID -> ordered messages
	nextMsgID map[string]int64
	toolCalls map[string]*v1.ToolCall
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*v1.ChatSession),
		messages:  make(map[string][]*v1.ChatMessage),
		nextMsgID: make(map[string]int64),
		toolCalls: make(map[string]*v1.ToolCall),
	}
}

func (s *MemoryStore) CreateSession(ctx context.Context, cs *v1.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cs
	s.sessions[cs.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*v1.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("chat_session", id)
	}
	cp := *cs
	return &cp, nil
}

func (s *MemoryStore) UpdateSession(ctx context.Context, cs *v1.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[cs.ID]; !ok {
		return apperrors.NotFound("chat_session", cs.ID)
	}
	cp := *cs
	s.sessions[cs.ID] = &cp
	return nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, sandboxID string) ([]*v1.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1.ChatSession
	for _, cs := range s.sessions {
		if sandboxID == "" || cs.SandboxID == sandboxID {
			cp := *cs
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AppendMessage assigns the next monotonically increasing id for the
// session and appends it, evicting the oldest EvictionBatchSize messages
// once MaxMessagesPerSession is exceeded (§5).
func (s *MemoryStore) AppendMessage(ctx context.Context, m *v1.ChatMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[m.SessionID]; !ok {
		return 0, apperrors.NotFound("chat_session", m.SessionID)
	}

	s.nextMsgID[m.SessionID]++
	m.ID = s.nextMsgID[m.SessionID]
	cp := *m
	s.messages[m.SessionID] = append(s.messages[m.SessionID], &cp)

	if len(s.messages[m.SessionID]) > v1.MaxMessagesPerSession {
		s.messages[m.SessionID] = s.messages[m.SessionID][v1.EvictionBatchSize:]
	}

	return m.ID, nil
}

// ListMessages returns messages with ID > sinceID, oldest first, capped at
// limit (0 means unbounded).
func (s *MemoryStore) ListMessages(ctx context.Context, sessionID string, sinceID int64, limit int) ([]*v1.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*v1.ChatMessage
	for _, m := range s.messages[sessionID] {
		if m.ID > sinceID {
			cp := *m
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// TrimOldest drops messages beyond the most recent keep, returning the
// number removed (used for on-demand compaction outside the automatic
// eviction path).
func (s *MemoryStore) TrimOldest(ctx context.Context, sessionID string, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[sessionID]
	if len(msgs) <= keep {
		return 0, nil
	}
	removed := len(msgs) - keep
	s.messages[sessionID] = msgs[removed:]
	return removed, nil
}

func (s *MemoryStore) UpsertToolCall(ctx context.Context, t *v1.ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.toolCalls[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetToolCall(ctx context.Context, id string) (*v1.ToolCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.toolCalls[id]
	if !ok {
		return nil, apperrors.NotFound("tool_call", id)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Close() error { return nil }
