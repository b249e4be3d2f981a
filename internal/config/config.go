// Package config loads agent-sre's configuration from its environment —
// the enumerated options of spec.md §6.5 plus the ambient settings
// (listen address, example DB path, approval sweep cadence) a runnable
// binary needs that the spec leaves to the implementation.
//
// Load is the primary entry point: it reads every variable with
// getEnv/getEnvInt/getEnvBool/getEnvDuration, applies the defaults in
// defaults.go, and validates the result before returning — grounded on the
// teacher's pkg/config.Initialize(ctx, configDir), minus the YAML layer
// this spec has no use for.
package config

// FastMemoryEnabled reports whether MEMORY_FAST_URL was set, i.e. whether
// cmd/agent-sre should wire a Redis-backed store into that memory tier
// instead of leaving it on pkg/memory/store.Volatile.
func (c *Config) FastMemoryEnabled() bool { return c.Memory.FastURL != "" }

// DurableMemoryEnabled reports whether MEMORY_DURABLE_URL was set.
func (c *Config) DurableMemoryEnabled() bool { return c.Memory.DurableURL != "" }

// RecursiveReasoningEnabled reports whether TRM_MODEL_PATH was set. No code
// loads a model from that path, so pkg/selector's Phase 1 recursive-reasoning
// strategy runs only when a caller supplies a ReasoningModel itself.
func (c *Config) RecursiveReasoningEnabled() bool { return c.TRMModelPath != "" }

// ChatProviderEnabled reports whether the Slack chat approval provider has
// enough configuration to construct (both token and channel set).
func (c *Config) ChatProviderEnabled() bool {
	return c.Approval.Chat.Token != "" && c.Approval.Chat.Channel != ""
}

// HTTPProviderEnabled reports whether the generic HTTP webhook approval
// provider has a URL to send to.
func (c *Config) HTTPProviderEnabled() bool {
	return c.Approval.HTTP.URL != ""
}

// LLMSidecarEnabled reports whether LLM_GRPC_ADDR was set, i.e. whether a
// real llm.GRPCClient should be dialed instead of falling back to
// llm.FakeClient.
func (c *Config) LLMSidecarEnabled() bool { return c.LLMGRPCAddr != "" }
