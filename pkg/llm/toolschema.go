package llm

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// LambdaFunctionToolName is the function name the Selector's Phase 3
// function-calling prompt asks the LLM to invoke.
const LambdaFunctionToolName = "select_remediation"

// BuildLambdaFunctionTool describes the select_remediation function as an
// mcp.Tool: lambda_function is constrained to the closed enumeration,
// parameters is a free-form object (validated by the Selector after the
// call returns), confidence and reasoning are optional hints the model may
// supply. Grounded on pkg/mcp/client.go's mcpsdk.Tool usage for describing
// callable functions to an LLM.
func BuildLambdaFunctionTool() *mcpsdk.Tool {
	allowed := make([]any, 0, len(models.AllowedLambdaFunctions))
	for fn := range models.AllowedLambdaFunctions {
		allowed = append(allowed, string(fn))
	}

	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"lambda_function": {
				Type: "string",
				Enum: allowed,
			},
			"parameters": {
				Type: "object",
			},
			"confidence": {
				Type: "number",
			},
			"reasoning": {
				Type: "string",
			},
		},
		Required: []string{"lambda_function", "parameters"},
	}

	return &mcpsdk.Tool{
		Name:        LambdaFunctionToolName,
		Description: "Select a remediation lambda function and its parameters for the given alert.",
		InputSchema: schema,
	}
}

// WithLambdaFunctionTool converts BuildLambdaFunctionTool's mcp.Tool into the
// llm.ToolDefinition shape Generate requests carry, appends it to t.Tools
// and returns t.
func (t *GenerateInput) WithLambdaFunctionTool() *GenerateInput {
	tool := BuildLambdaFunctionTool()
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		raw = []byte(`{"type":"object"}`)
	}
	t.Tools = append(t.Tools, ToolDefinition{
		Name:             tool.Name,
		Description:      tool.Description,
		ParametersSchema: string(raw),
	})
	return t
}

// FunctionCallArguments is the JSON shape the Selector expects back from
// either a parsed tool call's Arguments or a regex-extracted fallback.
type FunctionCallArguments struct {
	LambdaFunction string                 `json:"lambda_function"`
	Parameters     map[string]interface{} `json:"parameters"`
	Confidence     float64                `json:"confidence,omitempty"`
	Reasoning      string                 `json:"reasoning,omitempty"`
}
