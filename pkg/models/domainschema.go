package models

import "time"

// GoalStatus is the lifecycle state of a task goal.
type GoalStatus string

const (
	GoalPending    GoalStatus = "pending"
	GoalInProgress GoalStatus = "in_progress"
	GoalCompleted  GoalStatus = "completed"
	GoalFailed     GoalStatus = "failed"
)

// Goal is a single objective of a domain memory task.
type Goal struct {
	Description string
	Priority    int // 1..5
	Status      GoalStatus
}

// Terminal reports whether the goal is in a terminal status.
func (g Goal) Terminal() bool {
	return g.Status == GoalCompleted || g.Status == GoalFailed
}

// Requirement is an explicit requirement extracted for a task.
type Requirement struct {
	Description string
	Satisfied   bool
}

// Constraint is a hard or soft boundary a task must respect.
type Constraint struct {
	Description string
	Hard        bool
	Category    string
}

// Decision records a choice the worker made while executing a task.
type Decision struct {
	Description string
	Rationale   string
	Timestamp   time.Time
}

// Artifact is a named output produced while executing a task (a summary, a
// failure record, a generated document).
type Artifact struct {
	Kind      string
	Content   string
	Timestamp time.Time
}

// Progress tracks completion of a task's planned steps.
type Progress struct {
	StepsTotal     int
	StepsCompleted int
	PlannedSteps   []string
}

// TaskState is the mutable execution pointer of a domain memory schema.
type TaskState struct {
	CurrentStep string
	Context     map[string]interface{}
	LastError   string
}

// DomainMemorySchema is the Initializer->Worker task schema: goals,
// requirements, constraints, progress, decisions and artifacts accumulated
// across a task's lifetime.
type DomainMemorySchema struct {
	SchemaID     string
	AgentID      string
	AgentType    string
	Domain       string
	SessionID    string
	TaskID       string
	UserID       string
	Goals        []Goal
	Requirements []Requirement
	Constraints  []Constraint
	Progress     Progress
	State        TaskState
	Decisions    []Decision
	Artifacts    []Artifact
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AllGoalsTerminal reports whether every goal has reached a terminal status.
// Completing a schema does not check it: the domain factory moves any
// non-terminal goal to a terminal status itself.
func (s *DomainMemorySchema) AllGoalsTerminal() bool {
	for _, g := range s.Goals {
		if !g.Terminal() {
			return false
		}
	}
	return true
}
