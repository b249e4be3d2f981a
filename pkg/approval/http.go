package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// HTTPProviderConfig configures the generic HTTP-webhook approval provider.
type HTTPProviderConfig struct {
	Name    string
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// httpRequestPayload is the JSON body posted to the configured webhook URL.
type httpRequestPayload struct {
	RequestID      string                 `json:"request_id"`
	Agent          string                 `json:"agent"`
	Action         string                 `json:"action"`
	LambdaFunction string                 `json:"lambda_function"`
	Parameters     map[string]interface{} `json:"parameters"`
}

// httpResponsePayload is the JSON shape expected on the
// POST /approval/callback body for this provider.
type httpResponsePayload struct {
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
	Actor     string `json:"actor"`
}

// HTTPProvider delivers approval requests as a plain JSON POST to a
// configured URL and decodes a matching JSON callback body.
type HTTPProvider struct {
	name    string
	url     string
	headers map[string]string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPProvider builds an HTTPProvider. Defaults Timeout to 10s and Name
// to "http" if unset.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	name := cfg.Name
	if name == "" {
		name = "http"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		name:    name,
		url:     cfg.URL,
		headers: cfg.Headers,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

// Send POSTs the request as JSON to the configured URL. Fail-closed: any
// non-2xx response or transport error is returned as an error so the
// Manager marks this provider rejected.
func (p *HTTPProvider) Send(ctx context.Context, req *models.ApprovalRequest) error {
	body, err := json.Marshal(httpRequestPayload{
		RequestID:      req.RequestID,
		Agent:          req.Agent,
		Action:         req.Action,
		LambdaFunction: req.LambdaFunction,
		Parameters:     req.Parameters,
	})
	if err != nil {
		return fmt.Errorf("approval: marshal http provider request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("approval: build http provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("approval: http provider send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("approval: http provider returned status %d", resp.StatusCode)
	}
	return nil
}

// HandleResponse decodes a generic JSON callback body.
func (p *HTTPProvider) HandleResponse(payload []byte) (*models.ApprovalDecision, error) {
	var body httpResponsePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("approval: decode http provider callback: %w", err)
	}
	if body.Decision != "approve" && body.Decision != "reject" {
		return nil, fmt.Errorf("approval: http provider callback has invalid decision %q", body.Decision)
	}

	return &models.ApprovalDecision{
		RequestID: body.RequestID,
		Provider:  p.name,
		Decision:  body.Decision,
		Actor:     body.Actor,
		Timestamp: time.Now(),
	}, nil
}

var _ Provider = (*HTTPProvider)(nil)
