package store

import (
	"context"
	"sync"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// MemoryStore is an in-process Store backed by maps, guarded by a single
// mutex, matching the teacher's task/repository.MemoryRepository shape.
type MemoryStore struct {
	mu        sync.RWMutex
	sandboxes map[string]*v1.Sandbox
	bySlug    map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sandboxes: make(map[string]*v1.Sandbox),
		bySlug:    make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sb *v1.Sandbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySlug[sb.Slug]; exists {
		return apperrors.Conflict("sandbox slug already in use")
	}

	cp := *sb
	s.sandboxes[sb.ID] = &cp
	s.bySlug[sb.Slug] = sb.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*v1.Sandbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sb, ok := s.sandboxes[id]
	if !ok {
		return nil, apperrors.NotFound("sandbox", id)
	}
	cp := *sb
	return &cp, nil
}

func (s *MemoryStore) GetBySlug(ctx context.Context, slug string) (*v1.Sandbox, error) {
	s.mu.RLock()
	id, ok := s.bySlug[slug]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("sandbox", slug)
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) Update(ctx context.Context, sb *v1.Sandbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sandboxes[sb.ID]; !ok {
		return apperrors.NotFound("sandbox", sb.ID)
	}
	cp := *sb
	s.sandboxes[sb.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sb, ok := s.sandboxes[id]
	if !ok {
		return nil
	}
	delete(s.sandboxes, id)
	delete(s.bySlug, sb.Slug)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, userID string) ([]*v1.Sandbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*v1.Sandbox, 0, len(s.sandboxes))
	for _, sb := range s.sandboxes {
		if userID == "" || sb.UserID == userID {
			cp := *sb
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
