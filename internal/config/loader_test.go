package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/agent-sre/pkg/models"
)

func TestLoad_DefaultsWhenEnvironmentUnset(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, models.ModeAgentic, cfg.Workflow.OperationMode)
	assert.Equal(t, DefaultMaxRetries, cfg.Workflow.MaxRetries)
	assert.False(t, cfg.Approval.RequireAll)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.Approval.TimeoutSeconds)
	assert.Equal(t, models.TimeoutActionPending, cfg.Approval.TimeoutAction)
	assert.False(t, cfg.FastMemoryEnabled())
	assert.False(t, cfg.DurableMemoryEnabled())
	assert.False(t, cfg.RecursiveReasoningEnabled())
	assert.False(t, cfg.ChatProviderEnabled())
	assert.False(t, cfg.HTTPProviderEnabled())
}

func TestLoad_ReadsEnumeratedEnvironmentVariables(t *testing.T) {
	t.Setenv("OPERATION_MODE", "supervised")
	t.Setenv("APPROVAL_REQUIRE_ALL", "true")
	t.Setenv("APPROVAL_TIMEOUT_SECONDS", "120")
	t.Setenv("APPROVAL_TIMEOUT_ACTION", "approve")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("MEMORY_FAST_URL", "redis://localhost:6379/0")
	t.Setenv("MEMORY_DURABLE_URL", "postgres://localhost/agent_sre")
	t.Setenv("TRM_MODEL_PATH", "/models/trm.bin")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, models.ModeSupervised, cfg.Workflow.OperationMode)
	assert.True(t, cfg.Approval.RequireAll)
	assert.Equal(t, 120, cfg.Approval.TimeoutSeconds)
	assert.Equal(t, models.TimeoutActionApprove, cfg.Approval.TimeoutAction)
	assert.Equal(t, 5, cfg.Workflow.MaxRetries)
	assert.True(t, cfg.FastMemoryEnabled())
	assert.True(t, cfg.DurableMemoryEnabled())
	assert.True(t, cfg.RecursiveReasoningEnabled())
}

func TestLoad_InvalidOperationModeFailsValidation(t *testing.T) {
	t.Setenv("OPERATION_MODE", "chaotic")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPERATION_MODE")
}

func TestLoad_InvalidTimeoutActionFailsValidation(t *testing.T) {
	t.Setenv("APPROVAL_TIMEOUT_ACTION", "shrug")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APPROVAL_TIMEOUT_ACTION")
}

func TestLoad_NegativeMaxRetriesFailsValidation(t *testing.T) {
	t.Setenv("MAX_RETRIES", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_RETRIES")
}

func TestLoad_ChatProviderRequiresBothTokenAndChannel(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_CHANNEL")
}

func TestLoad_ChatProviderEnabledWhenBothSet(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_CHANNEL", "#sre-alerts")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.ChatProviderEnabled())
}

func TestLoad_RunbookAllowedHostsSplitsOnComma(t *testing.T) {
	t.Setenv("RUNBOOK_ALLOWED_HOSTS", "github.com, raw.githubusercontent.com ,internal.wiki")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"github.com", "raw.githubusercontent.com", "internal.wiki"}, cfg.Runbook.AllowedHosts)
}

func TestLoad_RunbookCacheTTLParsedAsDuration(t *testing.T) {
	t.Setenv("RUNBOOK_CACHE_TTL", "90s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Runbook.CacheTTL)
}

func TestLoad_UnparsableDurationFallsBackToDefault(t *testing.T) {
	t.Setenv("RUNBOOK_CACHE_TTL", "not-a-duration")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultRunbookCacheTTL, cfg.Runbook.CacheTTL)
}
