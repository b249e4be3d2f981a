package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/agent-sre/pkg/models"
)

type fakeSelector struct {
	sel *models.LambdaSelection
	err error
}

func (f *fakeSelector) Select(ctx context.Context, alert *models.Alert) (*models.LambdaSelection, error) {
	return f.sel, f.err
}

type fakeApproval struct {
	stored  *models.ApprovalRequest
	reqErr  error
	getResp *models.ApprovalRequest
	getErr  error
}

func (f *fakeApproval) RequestApproval(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	if f.reqErr != nil {
		return nil, f.reqErr
	}
	req.Status = models.ApprovalPending
	f.stored = req
	return req, nil
}

func (f *fakeApproval) Get(requestID string) (*models.ApprovalRequest, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getResp, nil
}

type fakeInvoker struct {
	results     []*models.RemediationResult
	calls       int
	invocations int
}

func (f *fakeInvoker) Invoke(ctx context.Context, functionName, namespace string, parameters map[string]interface{}, correlationID string) *models.RemediationResult {
	f.invocations++
	r := f.results[f.calls]
	if f.calls < len(f.results)-1 {
		f.calls++
	}
	return r
}

func newTestState(correlationID string, mode models.OperationMode) *models.WorkflowState {
	return &models.WorkflowState{
		CorrelationID: correlationID,
		EventData: map[string]interface{}{
			"alertname": "PodCrashLooping",
			"labels":    map[string]interface{}{"namespace": "payments", "pod": "worker-0"},
		},
		OperationMode: mode,
		MaxRetries:    2,
	}
}

func TestRun_AgenticHappyPath_GoesFromReceiveToComplete(t *testing.T) {
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{"name": "worker-0", "namespace": "payments"}, Confidence: 0.9}}
	inv := &fakeInvoker{results: []*models.RemediationResult{{Status: "success", Message: "restarted"}}}
	checkpoints := NewVolatileCheckpoints()
	engine := New(sel, &fakeApproval{}, inv, checkpoints)
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-1", models.ModeAgentic)
	err := engine.Run(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, models.StepComplete, state.Step)
	assert.True(t, state.Success)
	assert.Equal(t, "pod-restart", state.LambdaFunction)
}

func TestRun_StaticAnnotationBypassesSelector(t *testing.T) {
	inv := &fakeInvoker{results: []*models.RemediationResult{{Status: "success"}}}
	engine := New(&fakeSelector{err: assertErr("selector should not be called")}, &fakeApproval{}, inv, NewVolatileCheckpoints())
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-2", models.ModeAgentic)
	state.EventData["annotations"] = map[string]interface{}{"lambda_function": "pod-restart"}

	err := engine.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "pod-restart", state.LambdaFunction)
	assert.Equal(t, models.MethodStaticAnnotation, state.Method)
	assert.Equal(t, 1.0, state.Confidence)
}

func TestRun_SelectionFailureIsTerminal(t *testing.T) {
	sel := &fakeSelector{err: assertErr("no allowed function")}
	engine := New(sel, &fakeApproval{}, &fakeInvoker{}, NewVolatileCheckpoints())
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-3", models.ModeAgentic)
	err := engine.Run(context.Background(), state)

	require.Error(t, err)
	assert.Equal(t, models.StepComplete, state.Step)
	assert.Equal(t, "selection_failed", state.Error)
	assert.False(t, state.Success)
}

func TestRun_SupervisedModeWaitsForApprovalThenExecutes(t *testing.T) {
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{}}}
	appr := &fakeApproval{getResp: &models.ApprovalRequest{RequestID: "corr-4", Status: models.ApprovalApproved}}
	inv := &fakeInvoker{results: []*models.RemediationResult{{Status: "success"}}}
	engine := New(sel, appr, inv, NewVolatileCheckpoints())
	engine.WorkflowTimeout = 5 * time.Second
	engine.ApprovalPollEvery = time.Millisecond

	state := newTestState("corr-4", models.ModeSupervised)
	err := engine.Run(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, state.ApprovalStatus)
	assert.True(t, state.Success)
}

func TestRun_ApprovalRejectionIsTerminal(t *testing.T) {
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{}}}
	appr := &fakeApproval{getResp: &models.ApprovalRequest{RequestID: "corr-5", Status: models.ApprovalRejected}}
	engine := New(sel, appr, &fakeInvoker{}, NewVolatileCheckpoints())
	engine.WorkflowTimeout = 5 * time.Second
	engine.ApprovalPollEvery = time.Millisecond

	state := newTestState("corr-5", models.ModeSupervised)
	err := engine.Run(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, models.StepComplete, state.Step)
	assert.False(t, state.Success)
	assert.Equal(t, "approval_rejected", state.Error)
}

func TestRun_RetriesTransientLambdaFailureThenSucceeds(t *testing.T) {
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{}}}
	inv := &fakeInvoker{results: []*models.RemediationResult{
		{Status: "error", Error: "transient"},
		{Status: "success"},
	}}
	engine := New(sel, &fakeApproval{}, inv, NewVolatileCheckpoints())
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-6", models.ModeAgentic)
	state.MaxRetries = 3

	err := engine.Run(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, state.Success)
	assert.Equal(t, 1, state.RetryCount)
}

func TestRun_CannotFixLambdaIsTerminalWithNoRetry(t *testing.T) {
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{}}}
	inv := &fakeInvoker{results: []*models.RemediationResult{{Status: "error", CannotFix: true, Error: "unreachable"}}}
	engine := New(sel, &fakeApproval{}, inv, NewVolatileCheckpoints())
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-7", models.ModeAgentic)
	err := engine.Run(context.Background(), state)

	require.Error(t, err)
	assert.Equal(t, "cannot_fix", state.Error)
	assert.Equal(t, 0, state.RetryCount)
}

func TestApplyParameterDefaults_FallsBackThroughLabelKeys(t *testing.T) {
	state := &models.WorkflowState{
		Labels:           map[string]string{"pod": "worker-0"},
		LambdaParameters: map[string]interface{}{},
	}
	applyParameterDefaults(state)
	assert.Equal(t, "worker-0", state.LambdaParameters["name"])
	assert.Equal(t, "flux-system", state.LambdaParameters["namespace"])
}

func TestCheckpointing_SavesStateAfterEveryTransition(t *testing.T) {
	checkpoints := NewVolatileCheckpoints()
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{}}}
	inv := &fakeInvoker{results: []*models.RemediationResult{{Status: "success"}}}
	engine := New(sel, &fakeApproval{}, inv, checkpoints)
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-8", models.ModeAgentic)
	require.NoError(t, engine.Run(context.Background(), state))

	stored, err := checkpoints.Load(context.Background(), "corr-8")
	require.NoError(t, err)
	assert.Equal(t, models.StepComplete, stored.Step)
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

func assertErr(msg string) error { return stubErr(msg) }
