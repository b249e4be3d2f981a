package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/agent-sre/pkg/memory/domain"
	"github.com/jordigilh/agent-sre/pkg/models"
)

type fakeDomainFactory struct {
	initialized []domain.InitializeInput
	completed   []*models.DomainMemorySchema
	failed      []*models.DomainMemorySchema
	initErr     error
}

func (f *fakeDomainFactory) Initialize(ctx context.Context, in domain.InitializeInput) (*models.DomainMemorySchema, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.initialized = append(f.initialized, in)
	return &models.DomainMemorySchema{SchemaID: "schema-1", SessionID: in.SessionID}, nil
}

func (f *fakeDomainFactory) Complete(ctx context.Context, schema *models.DomainMemorySchema, summary string, success bool, learnings []string) error {
	f.completed = append(f.completed, schema)
	return nil
}

func (f *fakeDomainFactory) Fail(ctx context.Context, schema *models.DomainMemorySchema, failure error, recoverable bool) error {
	f.failed = append(f.failed, schema)
	return nil
}

func TestRun_DomainFactory_InitializedOnExtractAndCompletedOnSuccess(t *testing.T) {
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{}}}
	inv := &fakeInvoker{results: []*models.RemediationResult{{Status: "success", Message: "restarted"}}}
	df := &fakeDomainFactory{}
	engine := New(sel, &fakeApproval{}, inv, NewVolatileCheckpoints())
	engine.DomainFactory = df
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-domain-1", models.ModeAgentic)
	err := engine.Run(context.Background(), state)

	require.NoError(t, err)
	require.Len(t, df.initialized, 1)
	assert.Equal(t, "corr-domain-1", df.initialized[0].SessionID)
	require.NotNil(t, state.DomainSchema)
	require.Len(t, df.completed, 1)
	assert.Empty(t, df.failed)
}

func TestRun_DomainFactory_FailedOnUnverifiedOutcome(t *testing.T) {
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{}}}
	inv := &fakeInvoker{results: []*models.RemediationResult{{Status: "error", CannotFix: true, Error: "unreachable"}}}
	df := &fakeDomainFactory{}
	engine := New(sel, &fakeApproval{}, inv, NewVolatileCheckpoints())
	engine.DomainFactory = df
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-domain-2", models.ModeAgentic)
	err := engine.Run(context.Background(), state)

	require.Error(t, err)
	require.Len(t, df.initialized, 1)
	require.Len(t, df.failed, 1)
	assert.Empty(t, df.completed)
}

func TestRun_DomainFactory_SelectionFailureFailsOpenedSchema(t *testing.T) {
	sel := &fakeSelector{err: assertErr("no allowed function")}
	df := &fakeDomainFactory{}
	engine := New(sel, &fakeApproval{}, &fakeInvoker{}, NewVolatileCheckpoints())
	engine.DomainFactory = df
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-domain-3", models.ModeAgentic)
	err := engine.Run(context.Background(), state)

	require.Error(t, err)
	require.Len(t, df.initialized, 1, "extract_lambda_function opens the schema before the selector runs")
	require.Len(t, df.failed, 1)
}

func TestRun_NoDomainFactoryWired_NoOp(t *testing.T) {
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{}}}
	inv := &fakeInvoker{results: []*models.RemediationResult{{Status: "success"}}}
	engine := New(sel, &fakeApproval{}, inv, NewVolatileCheckpoints())
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-domain-4", models.ModeAgentic)
	err := engine.Run(context.Background(), state)

	require.NoError(t, err)
	assert.Nil(t, state.DomainSchema)
}

func TestRun_DomainFactory_InitializeErrorDegradesGracefully(t *testing.T) {
	sel := &fakeSelector{sel: &models.LambdaSelection{LambdaFunction: "pod-restart", Parameters: map[string]interface{}{}}}
	inv := &fakeInvoker{results: []*models.RemediationResult{{Status: "success"}}}
	df := &fakeDomainFactory{initErr: assertErr("store unavailable")}
	engine := New(sel, &fakeApproval{}, inv, NewVolatileCheckpoints())
	engine.DomainFactory = df
	engine.WorkflowTimeout = 5 * time.Second

	state := newTestState("corr-domain-5", models.ModeAgentic)
	err := engine.Run(context.Background(), state)

	require.NoError(t, err)
	assert.Nil(t, state.DomainSchema)
	assert.Empty(t, df.completed)
	assert.Empty(t, df.failed)
}
