package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// Load reads the environment and returns a validated Config. This is the
// primary entry point for configuration loading — mirrors the teacher's
// config.Initialize(ctx, configDir) shape, except the source of truth here
// is the process environment rather than a YAML directory, per spec.md
// §6.5's enumerated environment variables.
func Load() (*Config, error) {
	cfg := load()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func load() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", DefaultServerAddr),
		},
		Workflow: WorkflowConfig{
			OperationMode: models.OperationMode(getEnv("OPERATION_MODE", string(DefaultOperationMode))),
			MaxRetries:    getEnvInt("MAX_RETRIES", DefaultMaxRetries),
		},
		Approval: ApprovalConfig{
			RequireAll:     getEnvBool("APPROVAL_REQUIRE_ALL", false),
			TimeoutSeconds: getEnvInt("APPROVAL_TIMEOUT_SECONDS", DefaultTimeoutSeconds),
			TimeoutAction:  models.TimeoutAction(getEnv("APPROVAL_TIMEOUT_ACTION", string(DefaultTimeoutAction))),
			SweepInterval:  getEnvDuration("APPROVAL_SWEEP_INTERVAL", DefaultApprovalSweep),
			Chat: ChatProviderConfig{
				Token:   getEnv("SLACK_BOT_TOKEN", ""),
				Channel: getEnv("SLACK_CHANNEL", ""),
			},
			HTTP: HTTPProviderConfig{
				Name:    getEnv("APPROVAL_HTTP_PROVIDER_NAME", "http"),
				URL:     getEnv("APPROVAL_HTTP_PROVIDER_URL", ""),
				Timeout: getEnvDuration("APPROVAL_HTTP_PROVIDER_TIMEOUT", DefaultHTTPProviderTO),
			},
		},
		Memory: MemoryConfig{
			FastURL:    getEnv("MEMORY_FAST_URL", ""),
			DurableURL: getEnv("MEMORY_DURABLE_URL", ""),
			FastPrefix: getEnv("MEMORY_FAST_KEY_PREFIX", DefaultFastKeyPrefix),
		},
		TRMModelPath: getEnv("TRM_MODEL_PATH", ""),
		Runbook: RunbookConfig{
			AllowedHosts: getEnvList("RUNBOOK_ALLOWED_HOSTS", defaultRunbookAllowedHosts),
			CacheTTL:     getEnvDuration("RUNBOOK_CACHE_TTL", DefaultRunbookCacheTTL),
			GitHubToken:  getEnv("GITHUB_TOKEN", ""),
		},
		ExampleDBPath:     getEnv("EXAMPLE_DB_PATH", DefaultExampleDBPath),
		LLMGRPCAddr:       getEnv("LLM_GRPC_ADDR", ""),
		FunctionNamespace: getEnv("FUNCTION_NAMESPACE", DefaultFunctionNamespace),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated environment variable. An unset or
// empty variable returns fallback unchanged (distinguishing "not set, use
// default" from "set to empty, clear the allowlist" is not worth the extra
// env var; operators who want no allowlist simply don't set it).
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
