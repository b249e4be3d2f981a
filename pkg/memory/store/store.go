// Package store defines the polymorphic persistence interface shared by the
// three memory backends (volatile, fast KV with TTL, durable SQL) and the
// domain-schema persistence they all also support.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// ErrNotFound is returned by Get/GetSchema when no entry/schema exists for
// the given id.
var ErrNotFound = errors.New("store: not found")

// Filters narrows a Query call. Empty filters match everything.
type Filters map[string]interface{}

// Store is the single capability set every memory backend implements,
// following the teacher's one-interface-per-concern shape (e.g.
// pkg/mcp.Client wraps every server behind one interface regardless of
// transport).
type Store interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Save(ctx context.Context, entry *models.MemoryEntry) error
	Get(ctx context.Context, id string, memType models.MemoryType) (*models.MemoryEntry, error)
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, memType models.MemoryType, agentID string, filters Filters, limit int) ([]*models.MemoryEntry, error)

	SaveSchema(ctx context.Context, schema *models.DomainMemorySchema) error
	GetSchema(ctx context.Context, id string) (*models.DomainMemorySchema, error)
	GetSchemaByAgent(ctx context.Context, agentID, sessionID string) (*models.DomainMemorySchema, error)
}

// TTLFor returns the retention period for a given memory tier, per §4.2:
// short-term (conversation) 1h, working 24h, anything else defaults to 24h.
// There is no episodic tier, so no 7-day retention is ever returned.
func TTLFor(memType models.MemoryType) time.Duration {
	switch memType {
	case models.MemoryConversation:
		return time.Hour
	case models.MemoryWorking:
		return 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
