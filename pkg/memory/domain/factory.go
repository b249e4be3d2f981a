// Package domain implements the Domain Memory Factory: the two-phase
// Initializer/Worker pattern. The Initializer extracts explicit goals,
// requirements and constraints from a free-form request; the Worker (the
// agent itself) executes against the resulting schema, mutating only
// status/progress/decisions/artifacts and never removing items.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordigilh/agent-sre/pkg/memory/store"
	"github.com/jordigilh/agent-sre/pkg/models"
)

// AnalyzerResult is what an LLM-analyzer callback (or the rule-based
// fallback) produces.
type AnalyzerResult struct {
	Goals        []models.Goal
	Requirements []models.Requirement
	Constraints  []models.Constraint
	Steps        []string
}

// Analyzer extracts goals/requirements/constraints/steps from a free-form
// request. Returning an error causes Factory to fall back to the
// rule-based analyzer.
type Analyzer func(ctx context.Context, agentType, request string) (*AnalyzerResult, error)

// InitializeInput parameterizes Factory.Initialize.
type InitializeInput struct {
	Request      string
	AgentID      string
	AgentType    string
	Domain       string
	UserID       string
	SessionID    string
	Context      map[string]interface{}
	Goals        []models.Goal
	Requirements []models.Requirement
	Constraints  []models.Constraint
}

// Factory is the Domain Memory Factory. DefaultConstraints are merged into
// every schema's constraint list regardless of what the analyzer produces.
type Factory struct {
	store              store.Store
	analyzer           Analyzer
	DefaultConstraints []models.Constraint
}

// New builds a Factory. analyzer may be nil, in which case Initialize
// always uses the rule-based fallback.
func New(s store.Store, analyzer Analyzer) *Factory {
	return &Factory{store: s, analyzer: analyzer}
}

// Initialize runs the Initializer phase: build a new DomainMemorySchema,
// populate it from caller-supplied goals/requirements/constraints, the
// analyzer callback, or the rule-based fallback (in that priority order),
// merge in DefaultConstraints, persist and return it.
func (f *Factory) Initialize(ctx context.Context, in InitializeInput) (*models.DomainMemorySchema, error) {
	now := time.Now()
	schema := &models.DomainMemorySchema{
		SchemaID:  uuid.New().String(),
		TaskID:    uuid.New().String(),
		AgentID:   in.AgentID,
		AgentType: in.AgentType,
		Domain:    in.Domain,
		UserID:    in.UserID,
		SessionID: in.SessionID,
		State: models.TaskState{
			CurrentStep: "initialized",
			Context:     map[string]interface{}{"original_request": in.Request},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for k, v := range in.Context {
		schema.State.Context[k] = v
	}

	switch {
	case len(in.Goals) > 0 || len(in.Requirements) > 0 || len(in.Constraints) > 0:
		schema.Goals = in.Goals
		schema.Requirements = in.Requirements
		schema.Constraints = in.Constraints

	default:
		result, err := f.runAnalyzer(ctx, in.AgentType, in.Request)
		if err != nil || result == nil {
			result = ruleBasedAnalyze(in.AgentType, in.Request)
		}
		schema.Goals = result.Goals
		schema.Requirements = result.Requirements
		schema.Constraints = result.Constraints
		schema.Progress.PlannedSteps = result.Steps
		schema.Progress.StepsTotal = len(result.Steps)
	}

	schema.Constraints = append(schema.Constraints, f.DefaultConstraints...)

	if err := f.store.SaveSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("domain: persist initialized schema: %w", err)
	}
	return schema, nil
}

func (f *Factory) runAnalyzer(ctx context.Context, agentType, request string) (*AnalyzerResult, error) {
	if f.analyzer == nil {
		return nil, nil
	}
	return f.analyzer(ctx, agentType, request)
}

// ruleBasedAnalyze is the fallback analyzer: a small per-agent-type keyword
// lookup table that always enforces a "stay within scope" constraint.
func ruleBasedAnalyze(agentType, request string) *AnalyzerResult {
	lower := strings.ToLower(request)
	scopeConstraint := models.Constraint{
		Description: "stay within scope",
		Hard:        true,
		Category:    "authorization",
	}

	var goal models.Goal
	switch strings.ToLower(agentType) {
	case "sre":
		if containsAny(lower, "attack", "exploit") {
			goal = models.Goal{Description: "Run a safety test against the reported issue", Priority: 1, Status: models.GoalPending}
		} else {
			goal = models.Goal{Description: "Monitor and triage the reported issue", Priority: 2, Status: models.GoalPending}
		}
	default:
		goal = defaultGoal(request)
	}

	if goal.Description == "" {
		goal = defaultGoal(request)
	}

	return &AnalyzerResult{
		Goals:       []models.Goal{goal},
		Constraints: []models.Constraint{scopeConstraint},
	}
}

func defaultGoal(request string) models.Goal {
	prefix := request
	if len(prefix) > 80 {
		prefix = prefix[:80]
	}
	return models.Goal{
		Description: fmt.Sprintf("Process request: %s", prefix),
		Priority:    3,
		Status:      models.GoalPending,
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Update stamps updated_at and persists schema, for Worker-side mutations
// that don't fit Complete/Fail.
func (f *Factory) Update(ctx context.Context, schema *models.DomainMemorySchema) error {
	schema.UpdatedAt = time.Now()
	if err := f.store.SaveSchema(ctx, schema); err != nil {
		return fmt.Errorf("domain: persist schema update: %w", err)
	}
	return nil
}

// Complete transitions every non-terminal goal to completed (or failed, if
// !success), records a completion_summary artifact and persists.
func (f *Factory) Complete(ctx context.Context, schema *models.DomainMemorySchema, summary string, success bool, learnings []string) error {
	terminal := models.GoalCompleted
	step := "completed"
	if !success {
		terminal = models.GoalFailed
		step = "failed"
	}

	for i := range schema.Goals {
		if !schema.Goals[i].Terminal() {
			schema.Goals[i].Status = terminal
		}
	}
	schema.State.CurrentStep = step
	schema.Artifacts = append(schema.Artifacts, models.Artifact{
		Kind:      "completion_summary",
		Content:   summary,
		Timestamp: time.Now(),
	})
	if len(learnings) > 0 {
		if schema.State.Context == nil {
			schema.State.Context = map[string]interface{}{}
		}
		schema.State.Context["learnings"] = learnings
	}

	return f.Update(ctx, schema)
}

// Fail mirrors Complete for the error path: records a failure_record
// artifact and writes state.last_error instead of a completion summary.
func (f *Factory) Fail(ctx context.Context, schema *models.DomainMemorySchema, failure error, recoverable bool) error {
	for i := range schema.Goals {
		if !schema.Goals[i].Terminal() {
			schema.Goals[i].Status = models.GoalFailed
		}
	}
	schema.State.CurrentStep = "failed"
	schema.State.LastError = failure.Error()
	schema.Artifacts = append(schema.Artifacts, models.Artifact{
		Kind:      "failure_record",
		Content:   fmt.Sprintf("recoverable=%t: %s", recoverable, failure.Error()),
		Timestamp: time.Now(),
	})

	return f.Update(ctx, schema)
}
