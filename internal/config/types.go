package config

import (
	"time"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// Config is the umbrella configuration object assembled by Load. It is the
// single value cmd/agent-sre/main.go threads through every component
// constructor.
type Config struct {
	// Server is the inbound HTTP listener configuration for pkg/ingress.
	Server ServerConfig

	// Workflow carries the operation-mode and retry knobs spec.md §6.5
	// enumerates.
	Workflow WorkflowConfig

	// Approval configures the quorum policy and the providers dispatched to.
	Approval ApprovalConfig

	// Memory configures the fast (Redis) and durable (Postgres) tiers. Either
	// URL may be empty — an empty tier degrades to pkg/memory/store.Volatile.
	Memory MemoryConfig

	// TRMModelPath names the recursive-reasoning model path. It is read from
	// TRM_MODEL_PATH, but nothing loads a model from it: cmd/agent-sre builds the
	// Selector without a ReasoningModel, so Phase 1 does not run either way.
	TRMModelPath string

	// Runbook configures runbook fetch/cache (pkg/runbook).
	Runbook RunbookConfig

	// ExampleDBPath is the path to the seed remediation-example JSON file
	// (spec.md §6.4's "Example DB file").
	ExampleDBPath string

	// LLMGRPCAddr is the address of the inference sidecar pkg/llm.GRPCClient
	// dials. Empty falls back to pkg/llm.FakeClient so the binary still
	// starts without an inference sidecar configured (degraded: Phase 3
	// selection always fails, leaving only static lambda_function annotations).
	LLMGRPCAddr string

	// FunctionNamespace is the Kubernetes namespace lambda functions are
	// invoked in (workflow.Engine.FunctionNamespace).
	FunctionNamespace string
}

// ServerConfig configures the ingress HTTP listener.
type ServerConfig struct {
	Addr string // e.g. ":8080"
}

// WorkflowConfig carries spec.md §6.5's OPERATION_MODE and MAX_RETRIES.
type WorkflowConfig struct {
	OperationMode models.OperationMode
	MaxRetries    int
}

// ApprovalConfig carries spec.md §6.5's approval-quorum knobs plus the
// provider credentials/endpoints needed to construct pkg/approval's
// providers.
type ApprovalConfig struct {
	RequireAll     bool
	TimeoutSeconds int
	TimeoutAction  models.TimeoutAction
	SweepInterval  time.Duration

	Chat ChatProviderConfig
	HTTP HTTPProviderConfig
}

// ChatProviderConfig mirrors pkg/approval.ChatProviderConfig; both fields
// empty disables the chat provider entirely.
type ChatProviderConfig struct {
	Token   string
	Channel string
}

// HTTPProviderConfig mirrors pkg/approval.HTTPProviderConfig; an empty URL
// disables the generic HTTP webhook provider.
type HTTPProviderConfig struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// MemoryConfig carries spec.md §6.5's MEMORY_FAST_URL/MEMORY_DURABLE_URL.
type MemoryConfig struct {
	FastURL     string // Redis connection string; empty disables the tier.
	DurableURL  string // Postgres DSN; empty disables the tier.
	FastPrefix  string
}

// RunbookConfig mirrors pkg/runbook.Config.
type RunbookConfig struct {
	AllowedHosts []string
	CacheTTL     time.Duration
	GitHubToken  string
}
