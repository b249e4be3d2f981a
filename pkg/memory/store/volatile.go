package store

import (
	"context"
	"sync"
	"time"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// Volatile is a process-local store with no persistence beyond the
// lifetime of the process. Used for tests and local development, matching
// the teacher's pkg/session.Manager in-memory shape.
type Volatile struct {
	mu      sync.RWMutex
	entries map[string]*models.MemoryEntry
	schemas map[string]*models.DomainMemorySchema
	// agent:session -> schema id, resolving "the current schema for this
	// session" the way the fast-KV pointer key does.
	schemaPointers map[string]string
}

// NewVolatile creates an empty Volatile store.
func NewVolatile() *Volatile {
	return &Volatile{
		entries:        make(map[string]*models.MemoryEntry),
		schemas:        make(map[string]*models.DomainMemorySchema),
		schemaPointers: make(map[string]string),
	}
}

func (v *Volatile) Connect(ctx context.Context) error    { return nil }
func (v *Volatile) Disconnect(ctx context.Context) error { return nil }

func (v *Volatile) Save(ctx context.Context, entry *models.MemoryEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry.UpdatedAt = time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.UpdatedAt
	}
	v.entries[entry.ID] = entry
	return nil
}

func (v *Volatile) Get(ctx context.Context, id string, memType models.MemoryType) (*models.MemoryEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	e, ok := v.entries[id]
	if !ok || e.Type != memType {
		return nil, ErrNotFound
	}
	if !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt) {
		return nil, ErrNotFound
	}
	return e, nil
}

func (v *Volatile) Delete(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, id)
	return nil
}

func (v *Volatile) Query(ctx context.Context, memType models.MemoryType, agentID string, filters Filters, limit int) ([]*models.MemoryEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []*models.MemoryEntry
	for _, e := range v.entries {
		if e.Type != memType {
			continue
		}
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (v *Volatile) SaveSchema(ctx context.Context, schema *models.DomainMemorySchema) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	schema.UpdatedAt = time.Now()
	if schema.CreatedAt.IsZero() {
		schema.CreatedAt = schema.UpdatedAt
	}
	v.schemas[schema.SchemaID] = schema
	v.schemaPointers[schema.AgentID+":"+schema.SessionID] = schema.SchemaID
	return nil
}

func (v *Volatile) GetSchema(ctx context.Context, id string) (*models.DomainMemorySchema, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s, ok := v.schemas[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (v *Volatile) GetSchemaByAgent(ctx context.Context, agentID, sessionID string) (*models.DomainMemorySchema, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	id, ok := v.schemaPointers[agentID+":"+sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := v.schemas[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

var _ Store = (*Volatile)(nil)
