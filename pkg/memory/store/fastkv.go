package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// FastKV is a Redis-backed store used for the short-term and working memory
// tiers, where entries naturally expire and high write throughput matters
// more than query flexibility. Grounded on kubernaut's go.mod choice of
// redis/go-redis/v9 for this concern; miniredis backs the hermetic tests.
type FastKV struct {
	client    *redis.Client
	keyPrefix string
}

// FastKVConfig configures the underlying redis.Client.
type FastKVConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewFastKV builds a FastKV store from a redis.Client the caller already
// constructed (e.g. pointed at a live Redis or a miniredis instance in
// tests).
func NewFastKV(client *redis.Client, keyPrefix string) *FastKV {
	if keyPrefix == "" {
		keyPrefix = "agent-sre:mem"
	}
	return &FastKV{client: client, keyPrefix: keyPrefix}
}

func (f *FastKV) entryKey(id string) string {
	return fmt.Sprintf("%s:entry:%s", f.keyPrefix, id)
}

func (f *FastKV) indexKey(memType models.MemoryType, agentID string) string {
	return fmt.Sprintf("%s:index:%s:%s", f.keyPrefix, agentID, memType)
}

func (f *FastKV) schemaKey(id string) string {
	return fmt.Sprintf("%s:schema:%s", f.keyPrefix, id)
}

func (f *FastKV) schemaPointerKey(agentID, sessionID string) string {
	return fmt.Sprintf("%s:schema-ptr:%s:%s", f.keyPrefix, agentID, sessionID)
}

func (f *FastKV) Connect(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

func (f *FastKV) Disconnect(ctx context.Context) error {
	return f.client.Close()
}

func (f *FastKV) Save(ctx context.Context, entry *models.MemoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("fastkv: marshal entry: %w", err)
	}

	ttl := TTLFor(entry.Type)
	key := f.entryKey(entry.ID)
	pipe := f.client.TxPipeline()
	pipe.Set(ctx, key, payload, ttl)
	pipe.SAdd(ctx, f.indexKey(entry.Type, entry.AgentID), entry.ID)
	pipe.Expire(ctx, f.indexKey(entry.Type, entry.AgentID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fastkv: save entry %s: %w", entry.ID, err)
	}
	return nil
}

func (f *FastKV) Get(ctx context.Context, id string, memType models.MemoryType) (*models.MemoryEntry, error) {
	raw, err := f.client.Get(ctx, f.entryKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fastkv: get entry %s: %w", id, err)
	}

	var entry models.MemoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("fastkv: unmarshal entry %s: %w", id, err)
	}
	if entry.Type != memType {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (f *FastKV) Delete(ctx context.Context, id string) error {
	if err := f.client.Del(ctx, f.entryKey(id)).Err(); err != nil {
		return fmt.Errorf("fastkv: delete entry %s: %w", id, err)
	}
	return nil
}

func (f *FastKV) Query(ctx context.Context, memType models.MemoryType, agentID string, filters Filters, limit int) ([]*models.MemoryEntry, error) {
	ids, err := f.client.SMembers(ctx, f.indexKey(memType, agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("fastkv: query index %s/%s: %w", agentID, memType, err)
	}

	var out []*models.MemoryEntry
	for _, id := range ids {
		entry, err := f.Get(ctx, id, memType)
		if err == ErrNotFound {
			continue // expired since the index entry was written
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *FastKV) SaveSchema(ctx context.Context, schema *models.DomainMemorySchema) error {
	payload, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("fastkv: marshal schema: %w", err)
	}

	pipe := f.client.TxPipeline()
	pipe.Set(ctx, f.schemaKey(schema.SchemaID), payload, 0)
	pipe.Set(ctx, f.schemaPointerKey(schema.AgentID, schema.SessionID), schema.SchemaID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fastkv: save schema %s: %w", schema.SchemaID, err)
	}
	return nil
}

func (f *FastKV) GetSchema(ctx context.Context, id string) (*models.DomainMemorySchema, error) {
	raw, err := f.client.Get(ctx, f.schemaKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fastkv: get schema %s: %w", id, err)
	}

	var schema models.DomainMemorySchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("fastkv: unmarshal schema %s: %w", id, err)
	}
	return &schema, nil
}

func (f *FastKV) GetSchemaByAgent(ctx context.Context, agentID, sessionID string) (*models.DomainMemorySchema, error) {
	id, err := f.client.Get(ctx, f.schemaPointerKey(agentID, sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fastkv: get schema pointer %s/%s: %w", agentID, sessionID, err)
	}
	return f.GetSchema(ctx, id)
}

var _ Store = (*FastKV)(nil)
