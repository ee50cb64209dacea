// Package store persists Sandbox records (§3). Two implementations are
// provided: an in-memory store for tests and single-node dev use, and a
// Postgres-backed store (via jackc/pgx/v5) for production, following the
// Repository-interface pattern the task/repository package establishes.
package store

import (
	"context"

	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// Store is the persistence contract for Sandbox records.
type Store interface {
	Create(ctx context.Context, sb *v1.Sandbox) error
	Get(ctx context.Context, id string) (*v1.Sandbox, error)
	GetBySlug(ctx context.Context, slug string) (*v1.Sandbox, error)
	Update(ctx context.Context, sb *v1.Sandbox) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, userID string) ([]*v1.Sandbox, error)
	Close() error
}
