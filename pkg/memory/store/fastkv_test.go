package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/agent-sre/pkg/models"
)

func newTestFastKV(t *testing.T) *FastKV {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFastKV(client, "test")
}

func TestFastKV_SaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newTestFastKV(t)

	entry := &models.MemoryEntry{
		ID:      "e1",
		Type:    models.MemoryConversation,
		AgentID: "agent-a",
		Data:    map[string]interface{}{"hello": "world"},
	}
	require.NoError(t, kv.Save(ctx, entry))

	got, err := kv.Get(ctx, "e1", models.MemoryConversation)
	require.NoError(t, err)
	require.Equal(t, "agent-a", got.AgentID)
}

func TestFastKV_GetWrongTypeNotFound(t *testing.T) {
	ctx := context.Background()
	kv := newTestFastKV(t)

	entry := &models.MemoryEntry{ID: "e2", Type: models.MemoryWorking, AgentID: "agent-a"}
	require.NoError(t, kv.Save(ctx, entry))

	_, err := kv.Get(ctx, "e2", models.MemoryConversation)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFastKV_QueryByAgentAndType(t *testing.T) {
	ctx := context.Background()
	kv := newTestFastKV(t)

	require.NoError(t, kv.Save(ctx, &models.MemoryEntry{ID: "e3", Type: models.MemoryWorking, AgentID: "agent-b"}))
	require.NoError(t, kv.Save(ctx, &models.MemoryEntry{ID: "e4", Type: models.MemoryWorking, AgentID: "agent-b"}))
	require.NoError(t, kv.Save(ctx, &models.MemoryEntry{ID: "e5", Type: models.MemoryConversation, AgentID: "agent-b"}))

	got, err := kv.Query(ctx, models.MemoryWorking, "agent-b", nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestFastKV_SchemaRoundTripByAgentSession(t *testing.T) {
	ctx := context.Background()
	kv := newTestFastKV(t)

	schema := &models.DomainMemorySchema{
		SchemaID:  "s1",
		AgentID:   "agent-c",
		SessionID: "sess-1",
	}
	require.NoError(t, kv.SaveSchema(ctx, schema))

	got, err := kv.GetSchemaByAgent(ctx, "agent-c", "sess-1")
	require.NoError(t, err)
	require.Equal(t, "s1", got.SchemaID)
}

func TestFastKV_GetSchemaNotFound(t *testing.T) {
	ctx := context.Background()
	kv := newTestFastKV(t)

	_, err := kv.GetSchema(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
