package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/agent-sre/pkg/models"
)

func TestVolatileCheckpoints_SaveAndLoad(t *testing.T) {
	store := NewVolatileCheckpoints()
	ctx := context.Background()

	state := &models.WorkflowState{CorrelationID: "corr-1", Step: models.StepReceiveCloudEvent}
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepReceiveCloudEvent, loaded.Step)
}

func TestVolatileCheckpoints_Load_UnknownCorrelationID(t *testing.T) {
	store := NewVolatileCheckpoints()
	_, err := store.Load(context.Background(), "missing")
	assert.Error(t, err)
}

func TestVolatileCheckpoints_Since_ReturnsOnlyNewerTransitions(t *testing.T) {
	store := NewVolatileCheckpoints()
	ctx := context.Background()

	steps := []models.WorkflowStep{
		models.StepReceiveCloudEvent,
		models.StepExtractFromCloudEvent,
		models.StepExtractLambdaFunction,
	}
	for _, step := range steps {
		require.NoError(t, store.Save(ctx, &models.WorkflowState{CorrelationID: "corr-2", Step: step}))
	}

	all, err := store.Since(ctx, "corr-2", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].Seq)
	assert.Equal(t, models.StepReceiveCloudEvent, all[0].State.Step)

	missed, err := store.Since(ctx, "corr-2", 1)
	require.NoError(t, err)
	require.Len(t, missed, 2)
	assert.Equal(t, models.StepExtractFromCloudEvent, missed[0].State.Step)
	assert.Equal(t, models.StepExtractLambdaFunction, missed[1].State.Step)
}

func TestVolatileCheckpoints_Since_UnknownCorrelationID(t *testing.T) {
	store := NewVolatileCheckpoints()
	_, err := store.Since(context.Background(), "missing", 0)
	assert.Error(t, err)
}

func TestVolatileCheckpoints_Since_CapsAtCatchupLimit(t *testing.T) {
	store := NewVolatileCheckpoints()
	ctx := context.Background()

	for i := 0; i < catchupLimit+50; i++ {
		require.NoError(t, store.Save(ctx, &models.WorkflowState{CorrelationID: "corr-3", Step: models.StepReceiveCloudEvent}))
	}

	hist, err := store.Since(ctx, "corr-3", 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hist), catchupLimit)
}
