package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectText_ConcatenatesTextChunks(t *testing.T) {
	ch := make(chan Chunk, 2)
	ch <- &TextChunk{Content: "hello "}
	ch <- &TextChunk{Content: "world"}
	close(ch)

	text, toolCall, err := CollectText(ch)
	require.NoError(t, err)
	assert.Nil(t, toolCall)
	assert.Equal(t, "hello world", text)
}

func TestCollectText_ReturnsFirstToolCall(t *testing.T) {
	ch := make(chan Chunk, 2)
	ch <- &ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-restart"}`}
	ch <- &ToolCallChunk{Name: "second"}
	close(ch)

	_, toolCall, err := CollectText(ch)
	require.NoError(t, err)
	require.NotNil(t, toolCall)
	assert.Equal(t, "select_remediation", toolCall.Name)
}

func TestCollectText_PropagatesErrorChunk(t *testing.T) {
	ch := make(chan Chunk, 1)
	ch <- &ErrorChunk{Message: "provider down", Retryable: true}
	close(ch)

	_, _, err := CollectText(ch)
	require.Error(t, err)
	assert.Equal(t, "provider down", err.Error())
}

func TestFakeClient_ReturnsCannedResponsesInOrder(t *testing.T) {
	client := &FakeClient{Responses: []FakeResponse{
		{Text: "first"},
		{ToolCall: &ToolCallChunk{Name: "select_remediation"}},
	}}

	ch1, err := client.Generate(context.Background(), &GenerateInput{})
	require.NoError(t, err)
	text, _, err := CollectText(ch1)
	require.NoError(t, err)
	assert.Equal(t, "first", text)

	ch2, err := client.Generate(context.Background(), &GenerateInput{})
	require.NoError(t, err)
	_, toolCall, err := CollectText(ch2)
	require.NoError(t, err)
	require.NotNil(t, toolCall)
	assert.Equal(t, "select_remediation", toolCall.Name)
}

func TestBuildLambdaFunctionTool_ConstrainsLambdaFunctionEnum(t *testing.T) {
	tool := BuildLambdaFunctionTool()
	assert.Equal(t, LambdaFunctionToolName, tool.Name)
	prop, ok := tool.InputSchema.Properties["lambda_function"]
	require.True(t, ok)
	assert.NotEmpty(t, prop.Enum)
}
