// Package workflow implements the Remediation Workflow Engine (I): a typed,
// checkpointed state machine that carries one alert from CloudEvent receipt
// through selection, optional approval, lambda invocation, and
// verification.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jordigilh/agent-sre/pkg/memory/domain"
	"github.com/jordigilh/agent-sre/pkg/models"
	"github.com/jordigilh/agent-sre/pkg/observability"
)

// defaultWorkflowTimeout bounds a single Run call, per spec.md §5's
// "implementation-defined default 300s" overall workflow budget.
const defaultWorkflowTimeout = 300 * time.Second

// CheckpointStore persists a WorkflowState keyed by correlation_id on every
// node transition, enabling crash-resumable workflows (spec.md §4.8).
type CheckpointStore interface {
	Save(ctx context.Context, state *models.WorkflowState) error
	Load(ctx context.Context, correlationID string) (*models.WorkflowState, error)
}

// Selector is the subset of pkg/selector.Selector the Engine depends on.
type Selector interface {
	Select(ctx context.Context, alert *models.Alert) (*models.LambdaSelection, error)
}

// ApprovalManager is the subset of pkg/approval.Manager the Engine depends
// on.
type ApprovalManager interface {
	RequestApproval(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error)
	Get(requestID string) (*models.ApprovalRequest, error)
}

// LambdaInvoker is the subset of pkg/lambda.Invoker the Engine depends on.
type LambdaInvoker interface {
	Invoke(ctx context.Context, functionName, namespace string, parameters map[string]interface{}, correlationID string) *models.RemediationResult
}

// DomainFactory is the subset of pkg/memory/domain.Factory the Engine
// depends on. spec.md §4 states the Domain Memory Factory "is used both by
// the workflow (per-alert task) and by sibling agents": the Engine opens a
// DomainMemorySchema for the alert once selection is underway and closes it
// out with the workflow's final outcome, the same Initializer/Worker
// lifecycle a sibling agent would drive by hand.
type DomainFactory interface {
	Initialize(ctx context.Context, in domain.InitializeInput) (*models.DomainMemorySchema, error)
	Complete(ctx context.Context, schema *models.DomainMemorySchema, summary string, success bool, learnings []string) error
	Fail(ctx context.Context, schema *models.DomainMemorySchema, failure error, recoverable bool) error
}

// Engine drives a WorkflowState through the state machine described in
// spec.md §4.8.
type Engine struct {
	Selector          Selector
	Approval          ApprovalManager
	Invoker           LambdaInvoker
	Checkpoints       CheckpointStore
	Chains            *ChainRegistry // extra post-verification stages, keyed by chain id or alert type; nil/empty runs only the built-in chain
	DomainFactory     DomainFactory  // per-alert task schema; nil skips domain-memory bookkeeping entirely
	FunctionNamespace string         // k8s namespace hosting lambda functions; defaults to "agent-sre"
	WorkflowTimeout   time.Duration
	ApprovalPollEvery time.Duration
}

// New builds an Engine with its collaborators wired in.
func New(sel Selector, appr ApprovalManager, inv LambdaInvoker, checkpoints CheckpointStore) *Engine {
	return &Engine{
		Selector:          sel,
		Approval:          appr,
		Invoker:           inv,
		Checkpoints:       checkpoints,
		Chains:            NewChainRegistry(nil),
		FunctionNamespace: "agent-sre",
		WorkflowTimeout:   defaultWorkflowTimeout,
		ApprovalPollEvery: time.Second,
	}
}

// Run drives state from its current Step to completion, checkpointing after
// every transition. A zero-value Step is treated as receive_cloudevent (a
// fresh workflow); any other value resumes from that step, per the
// crash-resumable checkpointing contract.
func (e *Engine) Run(ctx context.Context, state *models.WorkflowState) error {
	timeout := e.WorkflowTimeout
	if timeout <= 0 {
		timeout = defaultWorkflowTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if state.Step == "" {
		state.Step = models.StepReceiveCloudEvent
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = observability.Now()
	}

	var stepErr error
	for state.Step != models.StepComplete {
		if err := ctx.Err(); err != nil {
			state.Error = "workflow_timeout"
			state.Success = false
			state.Step = models.StepComplete
			e.checkpoint(ctx, state)
			e.finalizeDomainMemory(ctx, state)
			return fmt.Errorf("workflow: %s: %w", state.Error, err)
		}

		if err := e.step(ctx, state); err != nil {
			observability.Logger(ctx).Error("workflow: step failed", "step", state.Step, "correlation_id", state.CorrelationID, "error", err)
			stepErr = err
		}
		state.UpdatedAt = observability.Now()
		e.checkpoint(ctx, state)
	}

	e.finalizeDomainMemory(ctx, state)
	return stepErr
}

// finalizeDomainMemory closes out the DomainMemorySchema opened in
// stepExtractLambdaFunction with the workflow's terminal outcome: Complete
// on a verified success, Fail otherwise. A run with no DomainFactory wired,
// or one that never reached extract_lambda_function (e.g. it timed out
// before extraction), has no schema to close and is a no-op.
func (e *Engine) finalizeDomainMemory(ctx context.Context, state *models.WorkflowState) {
	if e.DomainFactory == nil || state.DomainSchema == nil {
		return
	}

	var err error
	if state.Success {
		summary := "remediation verified successful"
		if state.RemediationResult != nil && state.RemediationResult.Message != "" {
			summary = state.RemediationResult.Message
		}
		err = e.DomainFactory.Complete(ctx, state.DomainSchema, summary, true, nil)
	} else {
		failure := state.Error
		if failure == "" {
			failure = "workflow did not complete successfully"
		}
		err = e.DomainFactory.Fail(ctx, state.DomainSchema, errors.New(failure), true)
	}
	if err != nil {
		observability.Logger(ctx).Warn("workflow: domain memory finalize failed", "correlation_id", state.CorrelationID, "error", err)
	}
}

func (e *Engine) checkpoint(ctx context.Context, state *models.WorkflowState) {
	if e.Checkpoints == nil {
		return
	}
	if err := e.Checkpoints.Save(ctx, state); err != nil {
		observability.Logger(ctx).Warn("workflow: checkpoint failed", "correlation_id", state.CorrelationID, "error", err)
	}
}

// step executes exactly one node of the state machine and advances
// state.Step per the transition table in spec.md §4.8.
func (e *Engine) step(ctx context.Context, state *models.WorkflowState) error {
	switch state.Step {
	case models.StepReceiveCloudEvent:
		state.Step = models.StepExtractFromCloudEvent
		return nil

	case models.StepExtractFromCloudEvent:
		extractFromCloudEvent(state)
		state.Step = models.StepExtractLambdaFunction
		return nil

	case models.StepExtractLambdaFunction:
		return e.stepExtractLambdaFunction(ctx, state)

	case models.StepRequestApproval:
		return e.stepRequestApproval(ctx, state)

	case models.StepWaitForApproval:
		return e.stepWaitForApproval(ctx, state)

	case models.StepExecuteLambdaFunction:
		return e.stepExecuteLambdaFunction(ctx, state)

	case models.StepVerifyRemediation:
		return e.stepVerifyRemediation(ctx, state)

	case models.StepExecuteChainStages:
		return e.stepExecuteChainStages(ctx, state)

	default:
		state.Error = fmt.Sprintf("unknown step %q", state.Step)
		state.Step = models.StepComplete
		return fmt.Errorf("workflow: %s", state.Error)
	}
}

// extractFromCloudEvent fills alertname/labels/annotations from the
// CloudEvent's data payload, and resolves the static-annotation fast path
// if present — exactly spec.md §4.8's "Extract step".
func extractFromCloudEvent(state *models.WorkflowState) {
	data := state.EventData
	labels := toStringMap(data["labels"])
	state.Labels = labels

	state.AlertName = firstNonEmptyString(
		stringField(data, "alertname"),
		stringField(data, "subject"),
		labels["alertname"],
		"unknown",
	)

	merged := map[string]string{}
	for k, v := range toStringMap(data["commonAnnotations"]) {
		merged[k] = v
	}
	for k, v := range toStringMap(data["annotations"]) {
		merged[k] = v // alert-specific wins
	}
	state.Annotations = merged
	state.CommonAnnotations = toStringMap(data["commonAnnotations"])
	state.ChainID = merged["chain"]

	if fn := merged["lambda_function"]; fn != "" {
		state.LambdaFunction = fn
		params := map[string]interface{}{}
		if raw := merged["lambda_parameters"]; raw != "" {
			_ = json.Unmarshal([]byte(raw), &params)
		}
		state.LambdaParameters = params
		state.Method = models.MethodStaticAnnotation
		state.Confidence = 1.0
	}
}

// stepExtractLambdaFunction runs the Selector only if the extract step
// didn't already resolve a static-annotation lambda_function.
func (e *Engine) stepExtractLambdaFunction(ctx context.Context, state *models.WorkflowState) error {
	e.initDomainMemory(ctx, state)

	if state.LambdaFunction == "" {
		alert := &models.Alert{
			AlertName:   state.AlertName,
			Status:      models.AlertStatusFiring,
			Labels:      state.Labels,
			Annotations: state.Annotations,
			Fingerprint: state.CorrelationID,
		}

		sel, err := e.Selector.Select(ctx, alert)
		if err != nil {
			state.Error = "selection_failed"
			state.Success = false
			state.Step = models.StepComplete
			return err
		}

		state.LambdaFunction = sel.LambdaFunction
		state.LambdaParameters = sel.Parameters
		state.Confidence = sel.Confidence
		state.Method = sel.Method
		state.Reasoning = sel.Reasoning
	}

	if state.OperationMode == models.ModeSupervised {
		state.Step = models.StepRequestApproval
	} else {
		state.Step = models.StepExecuteLambdaFunction
	}
	return nil
}

// initDomainMemory opens the per-alert DomainMemorySchema on first entry
// into extract_lambda_function. A failure to initialize degrades to
// running the workflow without domain-memory bookkeeping rather than
// failing the remediation itself.
func (e *Engine) initDomainMemory(ctx context.Context, state *models.WorkflowState) {
	if e.DomainFactory == nil || state.DomainSchema != nil {
		return
	}

	schema, err := e.DomainFactory.Initialize(ctx, domain.InitializeInput{
		Request:   fmt.Sprintf("remediate alert %s", state.AlertName),
		AgentID:   "agent-sre",
		AgentType: "sre",
		Domain:    "remediation",
		SessionID: state.CorrelationID,
	})
	if err != nil {
		observability.Logger(ctx).Warn("workflow: domain memory initialize failed, continuing without schema", "correlation_id", state.CorrelationID, "error", err)
		return
	}
	state.DomainSchema = schema
}

func (e *Engine) stepRequestApproval(ctx context.Context, state *models.WorkflowState) error {
	cfg := state.ApprovalConfig
	if cfg == nil {
		cfg = &models.ApprovalConfig{TimeoutAction: models.TimeoutActionReject, Timeout: 10 * time.Minute}
	}

	req := &models.ApprovalRequest{
		RequestID:      state.CorrelationID,
		Agent:          "agent-sre",
		Action:         "remediate",
		LambdaFunction: state.LambdaFunction,
		Parameters:     state.LambdaParameters,
		Providers:      cfg.Providers,
		RequireAll:     cfg.RequireAll,
		Timeout:        cfg.Timeout,
		TimeoutAction:  cfg.TimeoutAction,
	}

	stored, err := e.Approval.RequestApproval(ctx, req)
	if err != nil {
		state.Error = err.Error()
		state.Step = models.StepComplete
		return err
	}

	state.ApprovalRequestID = stored.RequestID
	state.ApprovalStatus = stored.Status
	state.Step = models.StepWaitForApproval
	return nil
}

// stepWaitForApproval polls the Approval Manager until the request reaches
// a terminal status or the workflow's own deadline is hit. This is the
// "approval-wait polling" suspension point named in spec.md §5.
func (e *Engine) stepWaitForApproval(ctx context.Context, state *models.WorkflowState) error {
	interval := e.ApprovalPollEvery
	if interval <= 0 {
		interval = time.Second
	}

	for {
		req, err := e.Approval.Get(state.ApprovalRequestID)
		if err != nil {
			state.Error = err.Error()
			state.Step = models.StepComplete
			return err
		}
		state.ApprovalStatus = req.Status

		switch req.Status {
		case models.ApprovalApproved:
			state.Step = models.StepExecuteLambdaFunction
			return nil
		case models.ApprovalRejected, models.ApprovalTimeout, models.ApprovalCancelled:
			state.Error = "approval_" + string(req.Status)
			state.Success = false
			state.Step = models.StepComplete
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// stepExecuteLambdaFunction applies the execute-step parameter defaulting
// rule, invokes the lambda, and implements the retry/backoff and
// cannot-fix failure semantics of spec.md §4.8.
func (e *Engine) stepExecuteLambdaFunction(ctx context.Context, state *models.WorkflowState) error {
	applyParameterDefaults(state)

	result := e.Invoker.Invoke(ctx, state.LambdaFunction, e.namespace(), state.LambdaParameters, state.CorrelationID)
	state.RemediationResult = result

	switch {
	case result.Status == "success":
		state.Step = models.StepVerifyRemediation
		return nil

	case result.CannotFix:
		state.Error = "cannot_fix"
		state.Success = false
		state.Step = models.StepComplete
		return fmt.Errorf("workflow: lambda unreachable: %s", result.Error)

	case state.RetryCount < state.MaxRetries:
		state.RetryCount++
		sleepBackoff(ctx, state.RetryCount)
		return nil // remain at execute_lambda_function

	default:
		state.Error = result.Error
		state.Success = false
		state.Step = models.StepComplete
		return fmt.Errorf("workflow: lambda invocation exhausted retries: %s", result.Error)
	}
}

func (e *Engine) namespace() string {
	if e.FunctionNamespace == "" {
		return "agent-sre"
	}
	return e.FunctionNamespace
}

// stepVerifyRemediation implements the minimal verify contract: success is
// treated as verified.
func (e *Engine) stepVerifyRemediation(ctx context.Context, state *models.WorkflowState) error {
	verified := state.RemediationResult != nil && state.RemediationResult.Status == "success"
	state.VerificationResult = &models.VerificationResult{Verified: verified, AlertResolved: verified}
	state.Success = verified
	state.Step = models.StepExecuteChainStages
	return nil
}

// stepExecuteChainStages runs the extra stages of a registered chain (see
// ChainConfig) after a successfully verified remediation, in declared
// order, invoking each stage's lambda function directly — a chain stage
// has no selection or approval gate of its own, since it exists to extend
// an already-approved remediation (e.g. a post-remediation health
// re-check), not to select or gate a new one. A failed stage is recorded
// but does not abort the remaining stages or flip an already-successful
// workflow's Success back to false.
func (e *Engine) stepExecuteChainStages(ctx context.Context, state *models.WorkflowState) error {
	state.Step = models.StepComplete

	if !state.Success || e.Chains == nil {
		return nil
	}

	chain, ok := e.chainFor(state)
	if !ok {
		return nil
	}

	for _, stage := range chain.Stages {
		result := e.Invoker.Invoke(ctx, stage.LambdaFunction, e.namespace(), stage.Parameters, state.CorrelationID)
		state.StageResults = append(state.StageResults, result)
		if result.Status != "success" {
			observability.Logger(ctx).Warn("workflow: chain stage failed", "stage", stage.Name, "correlation_id", state.CorrelationID, "error", result.Error)
		}
	}
	return nil
}

// chainFor resolves the chain, if any, that applies to state: first by
// explicit ChainID (an alert annotation can name one directly), then by
// the alert's name against each registered chain's AlertTypes.
func (e *Engine) chainFor(state *models.WorkflowState) (*ChainConfig, bool) {
	if state.ChainID != "" {
		if chain, err := e.Chains.Get(state.ChainID); err == nil {
			return chain, true
		}
	}
	return e.Chains.GetByAlertType(state.AlertName)
}

// applyParameterDefaults implements spec.md §4.8's execute-step parameter
// defaulting: name falls back through labels, then "unknown"; namespace
// falls back through labels, then "flux-system".
func applyParameterDefaults(state *models.WorkflowState) {
	if state.LambdaParameters == nil {
		state.LambdaParameters = map[string]interface{}{}
	}
	if stringParam(state.LambdaParameters, "name") == "" {
		state.LambdaParameters["name"] = labelAny(state.Labels, "unknown", "name", "resource_name", "pod", "deployment")
	}
	if stringParam(state.LambdaParameters, "namespace") == "" {
		state.LambdaParameters["namespace"] = labelAny(state.Labels, "flux-system", "namespace", "resource_namespace")
	}
}

// sleepBackoff implements exponential backoff (base 1s, factor 2) with
// ±20% jitter, per spec.md §4.8's retry failure semantics.
func sleepBackoff(ctx context.Context, retryCount int) {
	base := time.Second * time.Duration(1<<uint(retryCount-1))
	jitter := time.Duration(float64(base) * (rand.Float64()*0.4 - 0.2))
	delay := base + jitter
	if delay < 0 {
		delay = base
	}

	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func toStringMap(v interface{}) map[string]string {
	out := map[string]string{}
	m, ok := v.(map[string]interface{})
	if !ok {
		if sm, ok := v.(map[string]string); ok {
			return sm
		}
		return out
	}
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func labelAny(labels map[string]string, fallback string, keys ...string) string {
	for _, k := range keys {
		if v := labels[k]; v != "" {
			return v
		}
	}
	return fallback
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
