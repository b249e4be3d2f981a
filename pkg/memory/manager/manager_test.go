package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/agent-sre/pkg/memory/store"
	"github.com/jordigilh/agent-sre/pkg/models"
)

func newTestManager() *Manager {
	return New(store.NewVolatile(), store.NewVolatile())
}

func TestStartConversation_CreatesWhenMissing(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	conv, err := m.StartConversation(ctx, "user-1", "", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, 1, conv.MessageCount)
}

func TestStartConversation_ReturnsExistingOnHit(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	conv, err := m.StartConversation(ctx, "user-1", "conv-1", "hi")
	require.NoError(t, err)

	again, err := m.StartConversation(ctx, "user-1", "conv-1", "")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, 1, again.MessageCount)
}

func TestAddMessage_IncrementsCount(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	conv, err := m.StartConversation(ctx, "user-1", "conv-2", "")
	require.NoError(t, err)

	require.NoError(t, m.AddMessage(ctx, conv, models.RoleAssistant, "reply", nil))
	assert.Equal(t, 1, conv.MessageCount)
	assert.Equal(t, "reply", conv.Messages[0].Content)
}

func TestSummarizeConversation_ExtractiveFallback(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	conv := &models.Conversation{ID: "conv-3"}
	for i := 0; i < 7; i++ {
		conv.Messages = append(conv.Messages, models.Message{Role: models.RoleUser, Content: "message body text"})
	}

	require.NoError(t, m.SummarizeConversation(ctx, conv, nil))
	assert.NotEmpty(t, conv.Summary)
	assert.Contains(t, conv.Summary, "|")
}

func TestGetOrCreateUserMemory_CreatesEmpty(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	u, err := m.GetOrCreateUserMemory(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, "user-2", u.UserID)
	assert.Empty(t, u.Facts)
}

func TestUpdateUserPreference_Upserts(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	require.NoError(t, m.UpdateUserPreference(ctx, "user-3", "theme", "dark", true))
	u, err := m.GetOrCreateUserMemory(ctx, "user-3")
	require.NoError(t, err)
	assert.Equal(t, "dark", u.Preferences["theme"])
}

func TestAddUserFact_DefaultsConfidence(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	require.NoError(t, m.AddUserFact(ctx, "user-4", "likes yaml", "chat", 0))
	u, err := m.GetOrCreateUserMemory(ctx, "user-4")
	require.NoError(t, err)
	require.Len(t, u.Facts, 1)
	assert.Equal(t, 0.8, u.Facts[0].Confidence)
}

func TestCreateOrUpdateEntity_MergesAttributesAndTags(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	_, err := m.CreateOrUpdateEntity(ctx, "pod", "web-1", map[string]interface{}{"namespace": "prod"}, []string{"critical"})
	require.NoError(t, err)

	e, err := m.CreateOrUpdateEntity(ctx, "pod", "web-1", map[string]interface{}{"owner": "sre"}, []string{"critical", "tier-1"})
	require.NoError(t, err)

	assert.Equal(t, "prod", e.Attributes["namespace"])
	assert.Equal(t, "sre", e.Attributes["owner"])
	assert.ElementsMatch(t, []string{"critical", "tier-1"}, e.Tags)
}

func TestRecordTaskCompletion_Appends(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	require.NoError(t, m.RecordTaskCompletion(ctx, "agent-1", "task-1", "fixed it", true))
	require.NoError(t, m.RecordTaskCompletion(ctx, "agent-1", "task-2", "failed", false))

	entry, err := m.durable.Get(ctx, domainKey("agent-1"), models.MemoryDomain)
	require.NoError(t, err)
	d := entry.Data.(*models.Domain)
	require.Len(t, d.TaskCompletions, 2)
	assert.True(t, d.TaskCompletions[0].Success)
	assert.False(t, d.TaskCompletions[1].Success)
}

func TestBuildContext_AggregatesUserAndConversation(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	require.NoError(t, m.UpdateUserPreference(ctx, "user-5", "verbosity", "high", true))
	conv, err := m.StartConversation(ctx, "user-5", "conv-5", "first")
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, conv, models.RoleAssistant, "second", nil))

	out, err := m.BuildContext(ctx, BuildContextInput{UserID: "user-5", ConversationID: "conv-5", ConversationLimit: 1})
	require.NoError(t, err)
	assert.Equal(t, "high", out.UserPreferences["verbosity"])
	require.Len(t, out.RecentMessages, 1)
	assert.Equal(t, "second", out.RecentMessages[0].Content)
}
