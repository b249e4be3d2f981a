// Package manager implements the Memory Manager: a single facade over the
// fast and durable stores that routes each operation to the tier-appropriate
// backend, following the contract in the conversation/working/entity/user/
// long-term memory section of the spec.
package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordigilh/agent-sre/pkg/memory/store"
	"github.com/jordigilh/agent-sre/pkg/models"
	"github.com/jordigilh/agent-sre/pkg/observability"
)

// Summarizer reduces a conversation's messages to a bounded summary string.
// Callers may supply an LLM-backed implementation; Manager falls back to a
// deterministic extractive rule when none is given.
type Summarizer func(ctx context.Context, messages []models.Message) (string, error)

// Manager is the process-wide singleton that every other component reaches
// memory through; components receive a *Manager reference and never
// instantiate stores directly, per the "singletons injected, never ambient
// globals" rule.
type Manager struct {
	fast    store.Store // conversation, working
	durable store.Store // entity, user, domain, persistent schemas
}

// New builds a Manager over an already-connected fast and durable store.
func New(fast, durable store.Store) *Manager {
	return &Manager{fast: fast, durable: durable}
}

// Connect connects both underlying stores.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.fast.Connect(ctx); err != nil {
		return fmt.Errorf("manager: connect fast store: %w", err)
	}
	if err := m.durable.Connect(ctx); err != nil {
		return fmt.Errorf("manager: connect durable store: %w", err)
	}
	return nil
}

// Disconnect tears down both underlying stores.
func (m *Manager) Disconnect(ctx context.Context) error {
	if err := m.fast.Disconnect(ctx); err != nil {
		return fmt.Errorf("manager: disconnect fast store: %w", err)
	}
	return m.durable.Disconnect(ctx)
}

// StartConversation returns the existing conversation if conversationID
// already resolves to one (incrementing a cache-hit metric), otherwise
// creates and persists a new one.
func (m *Manager) StartConversation(ctx context.Context, userID, conversationID string, initialMessage string) (*models.Conversation, error) {
	if conversationID != "" {
		entry, err := m.fast.Get(ctx, conversationID, models.MemoryConversation)
		if err == nil {
			observability.RecordMetric("memory_conversation_cache_hit", map[string]string{"user_id": userID}, 1)
			if conv, ok := entry.Data.(*models.Conversation); ok {
				return conv, nil
			}
		}
	}

	id := conversationID
	if id == "" {
		id = uuid.New().String()
	}

	conv := &models.Conversation{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if initialMessage != "" {
		conv.Messages = append(conv.Messages, models.Message{
			Role:      models.RoleUser,
			Content:   initialMessage,
			Timestamp: time.Now(),
		})
		conv.MessageCount = 1
	}

	if err := m.saveConversation(ctx, conv); err != nil {
		return nil, err
	}
	observability.Logger(ctx).Info("conversation.started", "conversation_id", id, "user_id", userID)
	return conv, nil
}

// AddMessage appends a message to conv, persists it and records a message
// length histogram.
func (m *Manager) AddMessage(ctx context.Context, conv *models.Conversation, role models.MessageRole, content string, metadata map[string]interface{}) error {
	conv.Messages = append(conv.Messages, models.Message{
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now(),
	})
	conv.MessageCount = len(conv.Messages)

	if err := m.saveConversation(ctx, conv); err != nil {
		return err
	}
	observability.RecordMetric("memory_message_length_chars", map[string]string{"role": string(role)}, float64(len(content)))
	return nil
}

// SummarizeConversation reduces conv's messages to a bounded summary,
// writing the result to conv.Summary. When summarizer is nil, a
// deterministic extractive rule is used: first two + middle + last two
// messages, each truncated to a 50-char prefix.
func (m *Manager) SummarizeConversation(ctx context.Context, conv *models.Conversation, summarizer Summarizer) error {
	var summary string
	var err error

	if summarizer != nil {
		summary, err = summarizer(ctx, conv.Messages)
	}
	if summarizer == nil || err != nil {
		summary = extractiveSummary(conv.Messages)
	}

	conv.Summary = summary
	return m.saveConversation(ctx, conv)
}

func extractiveSummary(messages []models.Message) string {
	if len(messages) == 0 {
		return ""
	}

	prefix := func(m models.Message) string {
		c := m.Content
		if len(c) > 50 {
			c = c[:50]
		}
		return fmt.Sprintf("[%s] %s", m.Role, c)
	}

	var picked []models.Message
	switch {
	case len(messages) <= 5:
		picked = messages
	default:
		picked = append(picked, messages[0], messages[1])
		picked = append(picked, messages[len(messages)/2])
		picked = append(picked, messages[len(messages)-2], messages[len(messages)-1])
	}

	parts := make([]string, 0, len(picked))
	for _, msg := range picked {
		parts = append(parts, prefix(msg))
	}
	return strings.Join(parts, " | ")
}

func (m *Manager) saveConversation(ctx context.Context, conv *models.Conversation) error {
	conv.UpdatedAt = time.Now()
	return m.fast.Save(ctx, &models.MemoryEntry{
		ID:      conv.ID,
		Type:    models.MemoryConversation,
		AgentID: conv.UserID,
		Data:    conv,
	})
}

// GetOrCreateUserMemory is a read-through accessor: misses create an empty
// user record with no preferences or facts.
func (m *Manager) GetOrCreateUserMemory(ctx context.Context, userID string) (*models.User, error) {
	entry, err := m.durable.Get(ctx, userKey(userID), models.MemoryUser)
	if err == nil {
		if u, ok := entry.Data.(*models.User); ok {
			return u, nil
		}
	}

	u := &models.User{UserID: userID, Preferences: map[string]interface{}{}}
	if err := m.saveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUserPreference upserts a single preference key/value and records a
// preference-update metric labeled by whether the update was explicit.
func (m *Manager) UpdateUserPreference(ctx context.Context, userID, key string, value interface{}, explicit bool) error {
	u, err := m.GetOrCreateUserMemory(ctx, userID)
	if err != nil {
		return err
	}
	if u.Preferences == nil {
		u.Preferences = map[string]interface{}{}
	}
	u.Preferences[key] = value

	if err := m.saveUser(ctx, u); err != nil {
		return err
	}
	observability.RecordMetric("memory_preference_update", map[string]string{
		"explicit": fmt.Sprintf("%t", explicit),
	}, 1)
	return nil
}

// AddUserFact appends a fact to the user's fact list. Facts are never
// deduplicated automatically.
func (m *Manager) AddUserFact(ctx context.Context, userID, fact, source string, confidence float64) error {
	if confidence == 0 {
		confidence = 0.8
	}
	u, err := m.GetOrCreateUserMemory(ctx, userID)
	if err != nil {
		return err
	}
	u.Facts = append(u.Facts, models.UserFact{
		Fact:       fact,
		Source:     source,
		Confidence: confidence,
		Timestamp:  time.Now(),
	})
	return m.saveUser(ctx, u)
}

func (m *Manager) saveUser(ctx context.Context, u *models.User) error {
	return m.durable.Save(ctx, &models.MemoryEntry{
		ID:      userKey(u.UserID),
		Type:    models.MemoryUser,
		AgentID: u.UserID,
		Data:    u,
	})
}

func userKey(userID string) string { return "user:" + userID }

// CreateOrUpdateEntity performs a read-modify-write: merges the supplied
// attribute map into any existing entity and unions the tag lists.
func (m *Manager) CreateOrUpdateEntity(ctx context.Context, entityType, entityID string, attributes map[string]interface{}, tags []string) (*models.Entity, error) {
	key := entityKey(entityType, entityID)

	entity := &models.Entity{EntityType: entityType, EntityID: entityID, Attributes: map[string]interface{}{}}
	if existing, err := m.durable.Get(ctx, key, models.MemoryEntity); err == nil {
		if e, ok := existing.Data.(*models.Entity); ok {
			entity = e
		}
	}

	if entity.Attributes == nil {
		entity.Attributes = map[string]interface{}{}
	}
	for k, v := range attributes {
		entity.Attributes[k] = v
	}
	entity.Tags = unionStrings(entity.Tags, tags)

	if err := m.durable.Save(ctx, &models.MemoryEntry{
		ID:   key,
		Type: models.MemoryEntity,
		Data: entity,
	}); err != nil {
		return nil, err
	}
	return entity, nil
}

func entityKey(entityType, entityID string) string { return "entity:" + entityType + ":" + entityID }

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// RecordLearning, RecordPattern, RecordErrorPattern and RecordTaskCompletion
// each append to the corresponding domain-memory sub-list for agentID and
// bump a per-category counter metric.
func (m *Manager) RecordLearning(ctx context.Context, agentID, learning string) error {
	return m.mutateDomain(ctx, agentID, "learning", func(d *models.Domain) {
		d.Learnings = append(d.Learnings, learning)
	})
}

func (m *Manager) RecordPattern(ctx context.Context, agentID, pattern string) error {
	return m.mutateDomain(ctx, agentID, "pattern", func(d *models.Domain) {
		d.Patterns = append(d.Patterns, pattern)
	})
}

func (m *Manager) RecordErrorPattern(ctx context.Context, agentID, errorPattern string) error {
	return m.mutateDomain(ctx, agentID, "error_pattern", func(d *models.Domain) {
		d.ErrorPatterns = append(d.ErrorPatterns, errorPattern)
	})
}

func (m *Manager) RecordTaskCompletion(ctx context.Context, agentID, taskID, summary string, success bool) error {
	return m.mutateDomain(ctx, agentID, "task_completion", func(d *models.Domain) {
		d.TaskCompletions = append(d.TaskCompletions, models.TaskCompletionRecord{
			TaskID:    taskID,
			Success:   success,
			Summary:   summary,
			Timestamp: time.Now(),
		})
	})
}

func (m *Manager) mutateDomain(ctx context.Context, agentID, category string, mutate func(*models.Domain)) error {
	key := domainKey(agentID)
	d := &models.Domain{AgentID: agentID}
	if existing, err := m.durable.Get(ctx, key, models.MemoryDomain); err == nil {
		if dd, ok := existing.Data.(*models.Domain); ok {
			d = dd
		}
	}

	mutate(d)

	if err := m.durable.Save(ctx, &models.MemoryEntry{
		ID:      key,
		Type:    models.MemoryDomain,
		AgentID: agentID,
		Data:    d,
	}); err != nil {
		return err
	}
	observability.RecordMetric("memory_domain_record", map[string]string{"category": category, "agent_id": agentID}, 1)
	return nil
}

func domainKey(agentID string) string { return "domain:" + agentID }

// Context is the prompt-ready object build_context assembles: user
// preferences/facts/instructions, a task-schema excerpt, recent messages
// and selected domain patterns.
type Context struct {
	UserPreferences map[string]interface{}
	UserFacts       []models.UserFact
	Instructions    []string
	SchemaExcerpt   *models.DomainMemorySchema
	RecentMessages  []models.Message
	DomainPatterns  []string
}

// BuildContextInput parameterizes BuildContext.
type BuildContextInput struct {
	UserID            string
	ConversationID    string
	SessionID         string
	AgentID           string
	ConversationLimit int
}

// BuildContext aggregates user memory, a conversation's tail, a task
// schema excerpt and domain patterns into one object, recording
// context_build_duration and context_size_chars.
func (m *Manager) BuildContext(ctx context.Context, in BuildContextInput) (*Context, error) {
	start := time.Now()
	out := &Context{}

	if in.UserID != "" {
		u, err := m.GetOrCreateUserMemory(ctx, in.UserID)
		if err == nil {
			out.UserPreferences = u.Preferences
			out.UserFacts = u.Facts
			out.Instructions = u.Instructions
		}
	}

	if in.ConversationID != "" {
		if entry, err := m.fast.Get(ctx, in.ConversationID, models.MemoryConversation); err == nil {
			if conv, ok := entry.Data.(*models.Conversation); ok {
				limit := in.ConversationLimit
				if limit <= 0 || limit > len(conv.Messages) {
					limit = len(conv.Messages)
				}
				out.RecentMessages = conv.Messages[len(conv.Messages)-limit:]
			}
		}
	}

	if in.AgentID != "" && in.SessionID != "" {
		if schema, err := m.durable.GetSchemaByAgent(ctx, in.AgentID, in.SessionID); err == nil {
			out.SchemaExcerpt = schema
		}
		if entry, err := m.durable.Get(ctx, domainKey(in.AgentID), models.MemoryDomain); err == nil {
			if d, ok := entry.Data.(*models.Domain); ok {
				out.DomainPatterns = d.Patterns
			}
		}
	}

	observability.RecordMetric("context_build_duration_seconds", map[string]string{"user_id": in.UserID}, time.Since(start).Seconds())
	observability.RecordMetric("context_size_chars", map[string]string{"user_id": in.UserID}, float64(contextSize(out)))
	return out, nil
}

func contextSize(c *Context) int {
	size := 0
	for _, f := range c.UserFacts {
		size += len(f.Fact)
	}
	for _, m := range c.RecentMessages {
		size += len(m.Content)
	}
	for _, p := range c.DomainPatterns {
		size += len(p)
	}
	return size
}
