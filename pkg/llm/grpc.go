package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered with grpc's encoding package so ClientConn.
// Invoke can marshal/unmarshal plain Go structs over the wire without a
// protoc-generated stub, which this exercise cannot produce. The teacher's
// own GRPCLLMClient depends on a generated `llmv1` package built from a
// .proto file that isn't checked into the pack; this keeps the same
// transport (grpc.ClientConn, insecure creds, unary Invoke) while standing
// in a JSON wire codec for the missing generated messages.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// generateWireRequest/generateWireResponse are the wire shapes exchanged
// with the inference sidecar, mirroring toProtoRequest/fromProtoResponse's
// field set in the teacher's llm_grpc.go without vendor-specific grounding
// metadata.
type generateWireRequest struct {
	CorrelationID string                 `json:"correlation_id"`
	Messages      []wireMessage          `json:"messages"`
	Tools         []ToolDefinition       `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

type generateWireResponse struct {
	Text     string     `json:"text,omitempty"`
	ToolCall *ToolCall  `json:"tool_call,omitempty"`
	Usage    *UsageInfo `json:"usage,omitempty"`
	Error    *WireError `json:"error,omitempty"`
}

// UsageInfo is the wire shape of a UsageChunk.
type UsageInfo struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// WireError is the wire shape of an ErrorChunk.
type WireError struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// GRPCClient implements Client by calling an external inference sidecar
// over gRPC. Inference itself (model hosting, prompting strategy beyond
// message/tool shaping) is out of scope; this is purely the transport.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient dials addr with insecure (plaintext) transport, matching
// the teacher's assumption that the inference service runs as a sidecar or
// on localhost.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("llm: dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Generate performs a unary call to the sidecar's Generate method and
// adapts the single response into a one-shot (non-streaming) channel of
// Chunks, closed immediately after the response (or error) is delivered.
func (c *GRPCClient) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	req := toWireRequest(input)
	var resp generateWireResponse

	err := c.conn.Invoke(ctx, "/llm.v1.LLMService/Generate", req, &resp, grpc.CallContentSubtype(jsonCodecName))

	ch := make(chan Chunk, 4)
	go func() {
		defer close(ch)
		if err != nil {
			ch <- &ErrorChunk{Message: err.Error(), Retryable: true}
			return
		}
		if resp.Error != nil {
			ch <- &ErrorChunk{Message: resp.Error.Message, Retryable: resp.Error.Retryable}
			return
		}
		if resp.Text != "" {
			ch <- &TextChunk{Content: resp.Text}
		}
		if resp.ToolCall != nil {
			ch <- &ToolCallChunk{CallID: resp.ToolCall.ID, Name: resp.ToolCall.Name, Arguments: resp.ToolCall.Arguments}
		}
		if resp.Usage != nil {
			ch <- &UsageChunk{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens, TotalTokens: resp.Usage.TotalTokens}
		}
	}()

	return ch, nil
}

// Close releases the underlying gRPC connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func toWireRequest(input *GenerateInput) *generateWireRequest {
	req := &generateWireRequest{
		CorrelationID: input.CorrelationID,
		Tools:         input.Tools,
	}
	for _, m := range input.Messages {
		req.Messages = append(req.Messages, wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		})
	}
	return req
}

var _ Client = (*GRPCClient)(nil)
