// Package store persists OAuth sessions and their encrypted token material
// (C10, §4.10). Token bytes are always pre-encrypted by the vault before
// they reach this package; the store itself never sees plaintext secrets.
package store

import (
	"context"
	"time"

	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// VaultEntry is the encrypted-at-rest token material for one OAuthSession.
type VaultEntry struct {
	SessionID    string
	Ciphertext   []byte // nacl secretbox sealed access+refresh token pair
	ExpiresAt    time.Time
	RefreshToken bool // whether Ciphertext includes a refresh token
}

// Store is the persistence contract for OAuth sessions and vault entries.
type Store interface {
	CreateSession(ctx context.Context, s *v1.OAuthSession) error
	GetSession(ctx context.Context, id string) (*v1.OAuthSession, error)
	UpdateSession(ctx context.Context, s *v1.OAuthSession) error
	ListSessions(ctx context.Context, userID string) ([]*v1.OAuthSession, error)
	DeleteSession(ctx context.Context, id string) error

	PutVaultEntry(ctx context.Context, e *VaultEntry) error
	GetVaultEntry(ctx context.Context, sessionID string) (*VaultEntry, error)
	DeleteVaultEntry(ctx context.Context, sessionID string) error
	// ListExpiringBefore returns vault entries whose ExpiresAt is before
	// cutoff (§4.10). The oauth Manager does not call it: its refresh
	// queue holds only tokens stored by the running process.
	ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*VaultEntry, error)

	Close() error
}
