package store

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// MemoryStore keeps OAuth sessions and vault entries in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*v1.OAuthSession
	vault    map[string]*VaultEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*v1.OAuthSession),
		vault:    make(map[string]*VaultEntry),
	}
}

func (s *MemoryStore) CreateSession(ctx context.Context, sess *v1.OAuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*v1.OAuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("oauth_session", id)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) UpdateSession(ctx context.Context, sess *v1.OAuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return apperrors.NotFound("oauth_session", sess.ID)
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, userID string) ([]*v1.OAuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1.OAuthSession
	for _, sess := range s.sessions {
		if userID == "" || sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.vault, id)
	return nil
}

func (s *MemoryStore) PutVaultEntry(ctx context.Context, e *VaultEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.vault[e.SessionID] = &cp
	return nil
}

func (s *MemoryStore) GetVaultEntry(ctx context.Context, sessionID string) (*VaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.vault[sessionID]
	if !ok {
		return nil, apperrors.NotFound("oauth_vault_entry", sessionID)
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) DeleteVaultEntry(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vault, sessionID)
	return nil
}

func (s *MemoryStore) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*VaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*VaultEntry
	for _, e := range s.vault {
		if e.ExpiresAt.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
