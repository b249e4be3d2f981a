package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/agent-sre/pkg/memory/store"
	"github.com/jordigilh/agent-sre/pkg/models"
	"github.com/jordigilh/agent-sre/pkg/workflow"
)

func TestCatchupHandler_NoProviderWired_ServiceUnavailable(t *testing.T) {
	srv := NewServer(&fakeWorkflow{}, &fakeApprovalHandler{}, store.NewVolatile())

	req := httptest.NewRequest(http.MethodGet, "/workflow/corr-1/catchup", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCatchupHandler_UnknownCorrelationID_NotFound(t *testing.T) {
	srv := NewServer(&fakeWorkflow{}, &fakeApprovalHandler{}, store.NewVolatile())
	srv.SetCatchupProvider(workflow.NewVolatileCheckpoints())

	req := httptest.NewRequest(http.MethodGet, "/workflow/missing/catchup", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatchupHandler_ReplaysTransitionsSinceGivenSeq(t *testing.T) {
	checkpoints := workflow.NewVolatileCheckpoints()
	ctx := context.Background()
	require.NoError(t, checkpoints.Save(ctx, &models.WorkflowState{CorrelationID: "corr-1", Step: models.StepReceiveCloudEvent}))
	require.NoError(t, checkpoints.Save(ctx, &models.WorkflowState{CorrelationID: "corr-1", Step: models.StepExtractFromCloudEvent}))
	require.NoError(t, checkpoints.Save(ctx, &models.WorkflowState{CorrelationID: "corr-1", Step: models.StepComplete}))

	srv := NewServer(&fakeWorkflow{}, &fakeApprovalHandler{}, store.NewVolatile())
	srv.SetCatchupProvider(checkpoints)

	req := httptest.NewRequest(http.MethodGet, "/workflow/corr-1/catchup?since=1", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body catchupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "corr-1", body.CorrelationID)
	require.Len(t, body.Transitions, 2)
	assert.Equal(t, models.StepExtractFromCloudEvent, body.Transitions[0].Step)
	assert.Equal(t, models.StepComplete, body.Transitions[1].Step)
}

func TestCatchupHandler_InvalidSinceParam_BadRequest(t *testing.T) {
	srv := NewServer(&fakeWorkflow{}, &fakeApprovalHandler{}, store.NewVolatile())
	srv.SetCatchupProvider(workflow.NewVolatileCheckpoints())

	req := httptest.NewRequest(http.MethodGet, "/workflow/corr-1/catchup?since=notanumber", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
