package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// PostgresStore persists OAuth sessions and vault entries in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the oauth tables exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperrors.Runtime("failed to connect to postgres", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS oauth_sessions (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	resource_url      TEXT NOT NULL,
	authorization_url TEXT,
	status            TEXT NOT NULL,
	expires_at        TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_oauth_sessions_user ON oauth_sessions(user_id);

CREATE TABLE IF NOT EXISTS oauth_vault (
	session_id      TEXT PRIMARY KEY REFERENCES oauth_sessions(id) ON DELETE CASCADE,
	ciphertext      BYTEA NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL,
	refresh_token   BOOLEAN NOT NULL
);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperrors.Runtime("failed to initialize oauth schema", err)
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *v1.OAuthSession) error {
	const q = `INSERT INTO oauth_sessions (id, user_id, resource_url, authorization_url, status, expires_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := s.pool.Exec(ctx, q, sess.ID, sess.UserID, sess.ResourceURL, sess.AuthorizationURL, sess.Status, sess.ExpiresAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return apperrors.Runtime("failed to create oauth session", err)
	}
	return nil
}

func (s *PostgresStore) scanSession(row pgx.Row) (*v1.OAuthSession, error) {
	var sess v1.OAuthSession
	err := row.Scan(&sess.ID, &sess.UserID, &sess.ResourceURL, &sess.AuthorizationURL, &sess.Status, &sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("oauth_session", "")
		}
		return nil, apperrors.Runtime("failed to scan oauth session", err)
	}
	return &sess, nil
}

const oauthCols = `id, user_id, resource_url, authorization_url, status, expires_at, created_at, updated_at`

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*v1.OAuthSession, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+oauthCols+" FROM oauth_sessions WHERE id=$1", id)
	sess, err := s.scanSession(row)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("oauth_session", id)
		}
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *v1.OAuthSession) error {
	tag, err := s.pool.Exec(ctx, `UPDATE oauth_sessions SET status=$2, expires_at=$3, updated_at=$4 WHERE id=$1`,
		sess.ID, sess.Status, sess.ExpiresAt, sess.UpdatedAt)
	if err != nil {
		return apperrors.Runtime("failed to update oauth session", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("oauth_session", sess.ID)
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]*v1.OAuthSession, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+oauthCols+" FROM oauth_sessions WHERE ($1 = '' OR user_id = $1)", userID)
	if err != nil {
		return nil, apperrors.Runtime("failed to list oauth sessions", err)
	}
	defer rows.Close()

	var out []*v1.OAuthSession
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM oauth_sessions WHERE id=$1", id); err != nil {
		return apperrors.Runtime("failed to delete oauth session", err)
	}
	return nil
}

func (s *PostgresStore) PutVaultEntry(ctx context.Context, e *VaultEntry) error {
	const q = `INSERT INTO oauth_vault (session_id, ciphertext, expires_at, refresh_token) VALUES ($1,$2,$3,$4)
ON CONFLICT (session_id) DO UPDATE SET ciphertext=$2, expires_at=$3, refresh_token=$4`
	_, err := s.pool.Exec(ctx, q, e.SessionID, e.Ciphertext, e.ExpiresAt, e.RefreshToken)
	if err != nil {
		return apperrors.Runtime("failed to store vault entry", err)
	}
	return nil
}

func (s *PostgresStore) GetVaultEntry(ctx context.Context, sessionID string) (*VaultEntry, error) {
	row := s.pool.QueryRow(ctx, "SELECT session_id, ciphertext, expires_at, refresh_token FROM oauth_vault WHERE session_id=$1", sessionID)
	var e VaultEntry
	if err := row.Scan(&e.SessionID, &e.Ciphertext, &e.ExpiresAt, &e.RefreshToken); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("oauth_vault_entry", sessionID)
		}
		return nil, apperrors.Runtime("failed to scan vault entry", err)
	}
	return &e, nil
}

func (s *PostgresStore) DeleteVaultEntry(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM oauth_vault WHERE session_id=$1", sessionID); err != nil {
		return apperrors.Runtime("failed to delete vault entry", err)
	}
	return nil
}

func (s *PostgresStore) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*VaultEntry, error) {
	rows, err := s.pool.Query(ctx, "SELECT session_id, ciphertext, expires_at, refresh_token FROM oauth_vault WHERE expires_at < $1", cutoff)
	if err != nil {
		return nil, apperrors.Runtime("failed to list expiring vault entries", err)
	}
	defer rows.Close()

	var out []*VaultEntry
	for rows.Next() {
		var e VaultEntry
		if err := rows.Scan(&e.SessionID, &e.Ciphertext, &e.ExpiresAt, &e.RefreshToken); err != nil {
			return nil, apperrors.Runtime("failed to scan vault entry", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
