package config

import (
	"fmt"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// Validate performs fail-fast validation over a loaded Config, mirroring
// the teacher's Validator.ValidateAll shape: one method per concern,
// stopping at the first failure so a misconfigured process never starts
// serving traffic.
func Validate(cfg *Config) error {
	v := &validator{cfg: cfg}

	checks := []func() error{
		v.validateWorkflow,
		v.validateApproval,
		v.validateMemory,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type validator struct {
	cfg *Config
}

func (v *validator) validateWorkflow() error {
	switch v.cfg.Workflow.OperationMode {
	case models.ModeAgentic, models.ModeSupervised:
	default:
		return newValidationError("OPERATION_MODE", fmt.Errorf("%w: %q (want %q or %q)",
			ErrInvalidValue, v.cfg.Workflow.OperationMode, models.ModeAgentic, models.ModeSupervised))
	}
	if v.cfg.Workflow.MaxRetries < 0 {
		return newValidationError("MAX_RETRIES", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	return nil
}

func (v *validator) validateApproval() error {
	a := v.cfg.Approval
	if a.TimeoutSeconds <= 0 {
		return newValidationError("APPROVAL_TIMEOUT_SECONDS", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	switch a.TimeoutAction {
	case models.TimeoutActionApprove, models.TimeoutActionReject, models.TimeoutActionPending:
	default:
		return newValidationError("APPROVAL_TIMEOUT_ACTION", fmt.Errorf("%w: %q", ErrInvalidValue, a.TimeoutAction))
	}
	if a.Chat.Token != "" && a.Chat.Channel == "" {
		return newValidationError("SLACK_CHANNEL", fmt.Errorf("%w: required when SLACK_BOT_TOKEN is set", ErrMissingRequiredField))
	}
	if a.Chat.Channel != "" && a.Chat.Token == "" {
		return newValidationError("SLACK_BOT_TOKEN", fmt.Errorf("%w: required when SLACK_CHANNEL is set", ErrMissingRequiredField))
	}
	return nil
}

func (v *validator) validateMemory() error {
	// Empty URLs are valid — they mean "this tier is disabled, fall back to
	// the in-process Volatile store" per pkg/memory/manager's degraded-mode
	// contract. Nothing further to check here without dialing the backend,
	// which Connect (not Load) is responsible for.
	return nil
}
