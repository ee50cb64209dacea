package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// PostgresStore is a Store backed by Postgres via pgx's connection pool,
// the teacher's replacement for its single-writer sqlite repository now
// that sandboxes, chat history and OAuth sessions all need concurrent
// multi-process access.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the sandboxes table exists.
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
CREATE TABLE IF NOT EXISTS sandboxes (
	id             TEXT PRIMARY KEY,
	slug           TEXT UNIQUE NOT NULL,
	display_name   TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	status         TEXT NOT NULL,
	container_id   TEXT,
	image          TEXT,
	flavor         TEXT,
	tier           TEXT,
	network        TEXT,
	start_command  JSONB,
	resources      JSONB,
	ports          JSONB,
	mounts         JSONB,
	labels         JSONB,
	last_error     TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sandboxes_user_id ON sandboxes(user_id);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperrors.Runtime("failed to initialize sandbox schema", err)
	}
	return nil
}

// row is the flattened, JSON-marshaled representation of a Sandbox used
// for the JSONB columns; pgx scans/binds these as []byte.
type sandboxRow struct {
	startCommand []byte
	resources    []byte
	ports        []byte
	mounts       []byte
	labels       []byte
}

func marshalRow(sb *v1.Sandbox) (*sandboxRow, error) {
	r := &sandboxRow{}
	var err error
	if r.startCommand, err = json.Marshal(sb.StartCommand); err != nil {
		return nil, apperrors.Runtime("failed to marshal start_command", err)
	}
	if r.resources, err = json.Marshal(sb.Resources); err != nil {
		return nil, apperrors.Runtime("failed to marshal resources", err)
	}
	if r.ports, err = json.Marshal(sb.Ports); err != nil {
		return nil, apperrors.Runtime("failed to marshal ports", err)
	}
	if r.mounts, err = json.Marshal(sb.Mounts); err != nil {
		return nil, apperrors.Runtime("failed to marshal mounts", err)
	}
	if r.labels, err = json.Marshal(sb.Labels); err != nil {
		return nil, apperrors.Runtime("failed to marshal labels", err)
	}
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, sb *v1.Sandbox) error {
	r, err := marshalRow(sb)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO sandboxes (id, slug, display_name, user_id, status, container_id, image, flavor, tier,
	network, start_command, resources, ports, mounts, labels, last_error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`
	_, err = s.pool.Exec(ctx, q,
		sb.ID, sb.Slug, sb.DisplayName, sb.UserID, sb.Status, sb.ContainerID, sb.Image, sb.Flavor, sb.Tier,
		sb.Network, r.startCommand, r.resources, r.ports, r.mounts, r.labels, sb.LastError, sb.CreatedAt, sb.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("sandbox slug already in use")
		}
		return apperrors.Runtime("failed to create sandbox", err)
	}
	return nil
}

func (s *PostgresStore) scanOne(row pgx.Row) (*v1.Sandbox, error) {
	var sb v1.Sandbox
	var startCommand, resources, ports, mounts, labels []byte

	err := row.Scan(
		&sb.ID, &sb.Slug, &sb.DisplayName, &sb.UserID, &sb.Status, &sb.ContainerID, &sb.Image, &sb.Flavor, &sb.Tier,
		&sb.Network, &startCommand, &resources, &ports, &mounts, &labels, &sb.LastError, &sb.CreatedAt, &sb.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("sandbox", "")
		}
		return nil, apperrors.Runtime("failed to scan sandbox row", err)
	}

	if err := unmarshalIfPresent(startCommand, &sb.StartCommand); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(resources, &sb.Resources); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(ports, &sb.Ports); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(mounts, &sb.Mounts); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(labels, &sb.Labels); err != nil {
		return nil, err
	}
	return &sb, nil
}

func unmarshalIfPresent(data []byte, target interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return apperrors.Runtime("failed to unmarshal sandbox column", err)
	}
	return nil
}

const selectColumns = `id, slug, display_name, user_id, status, container_id, image, flavor, tier,
	network, start_command, resources, ports, mounts, labels, last_error, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*v1.Sandbox, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+selectColumns+" FROM sandboxes WHERE id = $1", id)
	sb, err := s.scanOne(row)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("sandbox", id)
		}
		return nil, err
	}
	return sb, nil
}

func (s *PostgresStore) GetBySlug(ctx context.Context, slug string) (*v1.Sandbox, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+selectColumns+" FROM sandboxes WHERE slug = $1", slug)
	sb, err := s.scanOne(row)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("sandbox", slug)
		}
		return nil, err
	}
	return sb, nil
}

func (s *PostgresStore) Update(ctx context.Context, sb *v1.Sandbox) error {
	r, err := marshalRow(sb)
	if err != nil {
		return err
	}

	const q = `
UPDATE sandboxes SET display_name=$2, status=$3, container_id=$4, image=$5, flavor=$6, tier=$7,
	network=$8, start_command=$9, resources=$10, ports=$11, mounts=$12, labels=$13, last_error=$14, updated_at=$15
WHERE id=$1
`
	tag, err := s.pool.Exec(ctx, q,
		sb.ID, sb.DisplayName, sb.Status, sb.ContainerID, sb.Image, sb.Flavor, sb.Tier,
		sb.Network, r.startCommand, r.resources, r.ports, r.mounts, r.labels, sb.LastError, sb.UpdatedAt,
	)
	if err != nil {
		return apperrors.Runtime("failed to update sandbox", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("sandbox", sb.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM sandboxes WHERE id=$1", id); err != nil {
		return apperrors.Runtime("failed to delete sandbox", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]*v1.Sandbox, error) {
	var rows pgx.Rows
	var err error
	if userID != "" {
		rows, err = s.pool.Query(ctx, "SELECT "+selectColumns+" FROM sandboxes WHERE user_id=$1 ORDER BY created_at DESC", userID)
	} else {
		rows, err = s.pool.Query(ctx, "SELECT "+selectColumns+" FROM sandboxes ORDER BY created_at DESC")
	}
	if err != nil {
		return nil, apperrors.Runtime("failed to list sandboxes", err)
	}
	defer rows.Close()

	var out []*v1.Sandbox
	for rows.Next() {
		sb, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sb)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	type sqlStater interface{ SQLState() string }
	for err != nil {
		if se, ok := err.(sqlStater); ok {
			return se.SQLState() == "23505"
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
