package config

import (
	"time"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// Default values for every option spec.md §6.5 enumerates, plus the ambient
// defaults (server address, example DB path, sweep interval) the spec
// leaves unstated but a runnable binary still needs.
const (
	DefaultOperationMode  = models.ModeAgentic
	DefaultTimeoutSeconds = 3600
	DefaultTimeoutAction  = models.TimeoutActionPending
	DefaultMaxRetries     = 3

	DefaultServerAddr        = ":8080"
	DefaultExampleDBPath     = "data/remediation_examples.json"
	DefaultApprovalSweep     = 30 * time.Second
	DefaultRunbookCacheTTL   = 10 * time.Minute
	DefaultHTTPProviderTO    = 10 * time.Second
	DefaultFastKeyPrefix     = "agent-sre:mem"
	DefaultFunctionNamespace = "agent-sre"
)

// defaultRunbookAllowedHosts matches pkg/runbook's own zero-value
// behavior (empty = unrestricted) unless RUNBOOK_ALLOWED_HOSTS overrides it;
// left nil here so an operator opts into the allowlist rather than being
// silently restricted to GitHub.
var defaultRunbookAllowedHosts []string
