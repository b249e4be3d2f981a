package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jordigilh/agent-sre/pkg/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLStore is the durable backend for the entity, user and long-term
// memory tiers, and for domain-schema persistence across restarts. Built on
// jackc/pgx/v5 directly rather than entgo.io/ent: ent requires a code
// generation step (entc/go generate) this exercise cannot run, so this
// store keeps the teacher's driver family (pgx underlies ent's generated
// code too) without the generator.
type SQLStore struct {
	pool *pgxpool.Pool
	dsn  string
}

// NewSQLStore wraps an already-constructed pgxpool.Pool.
func NewSQLStore(pool *pgxpool.Pool, dsn string) *SQLStore {
	return &SQLStore{pool: pool, dsn: dsn}
}

func (s *SQLStore) Connect(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *SQLStore) Disconnect(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// Migrate applies every migration under pkg/memory/store/migrations against
// the store's database, mirroring the teacher's golang-migrate-driven
// pkg/config bootstrapping flow.
func (s *SQLStore) Migrate() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlstore: load migration source: %w", err)
	}

	// The pgx/v5 migrate driver registers the "pgx5" URL scheme.
	dsn := s.dsn
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			dsn = "pgx5://" + strings.TrimPrefix(dsn, scheme)
			break
		}
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("sqlstore: init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlstore: apply migrations: %w", err)
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, entry *models.MemoryEntry) error {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal entry data: %w", err)
	}

	var expiresAt interface{}
	if !entry.ExpiresAt.IsZero() {
		expiresAt = entry.ExpiresAt
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO memory_entries (id, mem_type, agent_id, data, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, now(), now(), $5)
		ON CONFLICT (id) DO UPDATE SET
			mem_type = EXCLUDED.mem_type,
			agent_id = EXCLUDED.agent_id,
			data = EXCLUDED.data,
			updated_at = now(),
			expires_at = EXCLUDED.expires_at
	`, entry.ID, string(entry.Type), entry.AgentID, data, expiresAt)
	if err != nil {
		return fmt.Errorf("sqlstore: save entry %s: %w", entry.ID, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string, memType models.MemoryType) (*models.MemoryEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, mem_type, agent_id, data, created_at, updated_at, expires_at
		FROM memory_entries
		WHERE id = $1 AND mem_type = $2 AND (expires_at IS NULL OR expires_at > now())
	`, id, string(memType))

	entry, err := scanEntry(row)
	if errors.Is(err, errNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get entry %s: %w", id, err)
	}
	return entry, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM memory_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("sqlstore: delete entry %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) Query(ctx context.Context, memType models.MemoryType, agentID string, filters Filters, limit int) ([]*models.MemoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, mem_type, agent_id, data, created_at, updated_at, expires_at
		FROM memory_entries
		WHERE mem_type = $1
		  AND ($2 = '' OR agent_id = $2)
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY updated_at DESC
		LIMIT $3
	`, string(memType), agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query entries: %w", err)
	}
	defer rows.Close()

	var out []*models.MemoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveSchema(ctx context.Context, schema *models.DomainMemorySchema) error {
	payload, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal schema: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO domain_schemas (schema_id, agent_id, session_id, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (schema_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = now()
	`, schema.SchemaID, schema.AgentID, schema.SessionID, payload)
	if err != nil {
		return fmt.Errorf("sqlstore: save schema %s: %w", schema.SchemaID, err)
	}
	return nil
}

func (s *SQLStore) GetSchema(ctx context.Context, id string) (*models.DomainMemorySchema, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM domain_schemas WHERE schema_id = $1`, id).Scan(&payload)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlstore: get schema %s: %w", id, err)
	}

	var schema models.DomainMemorySchema
	if err := json.Unmarshal(payload, &schema); err != nil {
		return nil, fmt.Errorf("sqlstore: unmarshal schema %s: %w", id, err)
	}
	return &schema, nil
}

func (s *SQLStore) GetSchemaByAgent(ctx context.Context, agentID, sessionID string) (*models.DomainMemorySchema, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload FROM domain_schemas
		WHERE agent_id = $1 AND session_id = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`, agentID, sessionID).Scan(&payload)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlstore: get schema for %s/%s: %w", agentID, sessionID, err)
	}

	var schema models.DomainMemorySchema
	if err := json.Unmarshal(payload, &schema); err != nil {
		return nil, fmt.Errorf("sqlstore: unmarshal schema: %w", err)
	}
	return &schema, nil
}

var _ Store = (*SQLStore)(nil)
