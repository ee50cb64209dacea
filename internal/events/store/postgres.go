package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// PostgresStore persists chat history in Postgres via pgx, sharing the
// connection pool convention established by sandbox/store.PostgresStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the chat tables exist.
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
CREATE TABLE IF NOT EXISTS chat_sessions (
	id           TEXT PRIMARY KEY,
	sandbox_id   TEXT NOT NULL,
	agent_id     TEXT NOT NULL,
	status       TEXT NOT NULL,
	working_dir  TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_sandbox ON chat_sessions(sandbox_id);

CREATE TABLE IF NOT EXISTS chat_messages (
	id          BIGSERIAL,
	session_id  TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	seq         BIGINT NOT NULL,
	role        TEXT NOT NULL,
	parts       JSONB NOT NULL,
	tool_calls  JSONB,
	created_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS tool_calls (
	id          TEXT PRIMARY KEY,
	message_id  BIGINT NOT NULL,
	name        TEXT NOT NULL,
	input       JSONB,
	output      JSONB,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperrors.Runtime("failed to initialize chat schema", err)
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, cs *v1.ChatSession) error {
	const q = `INSERT INTO chat_sessions (id, sandbox_id, agent_id, status, working_dir, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.pool.Exec(ctx, q, cs.ID, cs.SandboxID, cs.AgentID, cs.Status, cs.WorkingDir, cs.CreatedAt, cs.UpdatedAt)
	if err != nil {
		return apperrors.Runtime("failed to create chat session", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*v1.ChatSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, sandbox_id, agent_id, status, working_dir, created_at, updated_at
FROM chat_sessions WHERE id=$1`, id)
	var cs v1.ChatSession
	if err := row.Scan(&cs.ID, &cs.SandboxID, &cs.AgentID, &cs.Status, &cs.WorkingDir, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("chat_session", id)
		}
		return nil, apperrors.Runtime("failed to scan chat session", err)
	}
	return &cs, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, cs *v1.ChatSession) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chat_sessions SET status=$2, working_dir=$3, updated_at=$4 WHERE id=$1`,
		cs.ID, cs.Status, cs.WorkingDir, cs.UpdatedAt)
	if err != nil {
		return apperrors.Runtime("failed to update chat session", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("chat_session", cs.ID)
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, sandboxID string) ([]*v1.ChatSession, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, sandbox_id, agent_id, status, working_dir, created_at, updated_at
FROM chat_sessions WHERE ($1 = '' OR sandbox_id = $1) ORDER BY created_at`, sandboxID)
	if err != nil {
		return nil, apperrors.Runtime("failed to list chat sessions", err)
	}
	defer rows.Close()

	var out []*v1.ChatSession
	for rows.Next() {
		var cs v1.ChatSession
		if err := rows.Scan(&cs.ID, &cs.SandboxID, &cs.AgentID, &cs.Status, &cs.WorkingDir, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
			return nil, apperrors.Runtime("failed to scan chat session", err)
		}
		out = append(out, &cs)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m *v1.ChatMessage) (int64, error) {
	parts, err := json.Marshal(m.Parts)
	if err != nil {
		return 0, apperrors.Runtime("failed to marshal message parts", err)
	}
	toolCalls, err := json.Marshal(m.ToolCalls)
	if err != nil {
		return 0, apperrors.Runtime("failed to marshal tool call ids", err)
	}

	row := s.pool.QueryRow(ctx, `
INSERT INTO chat_messages (session_id, seq, role, parts, tool_calls, created_at)
VALUES ($1, COALESCE((SELECT MAX(seq) FROM chat_messages WHERE session_id=$1), 0) + 1, $2, $3, $4, $5)
RETURNING seq`, m.SessionID, m.Role, parts, toolCalls, m.CreatedAt)

	var seq int64
	if err := row.Scan(&seq); err != nil {
		return 0, apperrors.Runtime("failed to append chat message", err)
	}
	m.ID = seq
	return seq, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string, sinceID int64, limit int) ([]*v1.ChatMessage, error) {
	q := `SELECT seq, session_id, role, parts, tool_calls, created_at FROM chat_messages
WHERE session_id=$1 AND seq > $2 ORDER BY seq`
	args := []interface{}{sessionID, sinceID}
	if limit > 0 {
		q += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Runtime("failed to list chat messages", err)
	}
	defer rows.Close()

	var out []*v1.ChatMessage
	for rows.Next() {
		var m v1.ChatMessage
		var parts, toolCalls []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &parts, &toolCalls, &m.CreatedAt); err != nil {
			return nil, apperrors.Runtime("failed to scan chat message", err)
		}
		if len(parts) > 0 {
			_ = json.Unmarshal(parts, &m.Parts)
		}
		if len(toolCalls) > 0 {
			_ = json.Unmarshal(toolCalls, &m.ToolCalls)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TrimOldest(ctx context.Context, sessionID string, keep int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
DELETE FROM chat_messages WHERE session_id = $1 AND seq <= (
	SELECT COALESCE(MAX(seq), 0) - $2 FROM chat_messages WHERE session_id = $1
)`, sessionID, keep)
	if err != nil {
		return 0, apperrors.Runtime("failed to trim chat messages", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpsertToolCall(ctx context.Context, t *v1.ToolCall) error {
	input, err := json.Marshal(t.Input)
	if err != nil {
		return apperrors.Runtime("failed to marshal tool call input", err)
	}
	output, err := json.Marshal(t.Output)
	if err != nil {
		return apperrors.Runtime("failed to marshal tool call output", err)
	}

	const q = `
INSERT INTO tool_calls (id, message_id, name, input, output, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET output=$5, status=$6, updated_at=$8`
	_, err = s.pool.Exec(ctx, q, t.ID, t.MessageID, t.Name, input, output, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return apperrors.Runtime("failed to upsert tool call", err)
	}
	return nil
}

func (s *PostgresStore) GetToolCall(ctx context.Context, id string) (*v1.ToolCall, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, message_id, name, input, output, status, created_at, updated_at
FROM tool_calls WHERE id=$1`, id)

	var t v1.ToolCall
	var input, output []byte
	if err := row.Scan(&t.ID, &t.MessageID, &t.Name, &input, &output, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("tool_call", id)
		}
		return nil, apperrors.Runtime("failed to scan tool call", err)
	}
	if len(input) > 0 {
		_ = json.Unmarshal(input, &t.Input)
	}
	if len(output) > 0 {
		_ = json.Unmarshal(output, &t.Output)
	}
	return &t, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
