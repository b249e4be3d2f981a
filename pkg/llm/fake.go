package llm

import "context"

// FakeClient is an in-memory Client used by tests and by callers running
// without LLM_GRPC_ADDR (no inference sidecar) configured. Responses is
// consumed in call order; once exhausted, Generate returns an ErrorChunk.
type FakeClient struct {
	Responses []FakeResponse
	calls     int
	LastInput *GenerateInput // the most recent Generate call's input, for assertions
}

// FakeResponse is one canned Generate response.
type FakeResponse struct {
	Text     string
	ToolCall *ToolCallChunk
	Err      string
}

func (f *FakeClient) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	f.LastInput = input
	ch := make(chan Chunk, 2)
	defer close(ch)

	if f.calls >= len(f.Responses) {
		ch <- &ErrorChunk{Message: "fake client: no more canned responses", Retryable: false}
		return ch, nil
	}
	resp := f.Responses[f.calls]
	f.calls++

	if resp.Err != "" {
		ch <- &ErrorChunk{Message: resp.Err, Retryable: false}
		return ch, nil
	}
	if resp.Text != "" {
		ch <- &TextChunk{Content: resp.Text}
	}
	if resp.ToolCall != nil {
		ch <- resp.ToolCall
	}
	return ch, nil
}

func (f *FakeClient) Close() error { return nil }

var _ Client = (*FakeClient)(nil)
