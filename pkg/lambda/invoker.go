// Package lambda implements the Lambda Invoker (H): a CloudEvent-speaking
// HTTP client that probes a remediation function's health, invokes it
// behind a per-function circuit breaker, and parses its CloudEvent
// response.
package lambda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jordigilh/agent-sre/pkg/cloudevent"
	"github.com/jordigilh/agent-sre/pkg/masking"
	"github.com/jordigilh/agent-sre/pkg/models"
	"github.com/jordigilh/agent-sre/pkg/observability"
)

const (
	healthProbeTimeout = 5 * time.Second
	invokeTimeout      = 60 * time.Second
	remediationEventType = "io.homelab.agent-sre.remediation.request"
	eventSource          = "agent-sre"
)

// Invoker calls remediation lambda functions over HTTP, wrapping every
// invocation in a per-function sony/gobreaker circuit breaker so a
// repeatedly failing function stops receiving traffic rather than
// accumulating timeouts.
type Invoker struct {
	client          *http.Client
	mu              sync.Mutex
	breakers        map[string]*gobreaker.CircuitBreaker
	breakerSettings func(functionName string) gobreaker.Settings
	masker          *masking.Service
}

// SetMasker wires a masking.Service into the invoker; every subsequent
// Invoke call redacts secrets out of the remediation function's response
// before it reaches the caller. A nil masker (the default) leaves
// responses unmodified.
func (inv *Invoker) SetMasker(masker *masking.Service) {
	inv.masker = masker
}

// NewInvoker builds an Invoker. httpClient may be nil to use
// http.DefaultClient's transport with per-call timeouts applied via
// context.
func NewInvoker(httpClient *http.Client) *Invoker {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Invoker{
		client:   httpClient,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		breakerSettings: func(functionName string) gobreaker.Settings {
			return gobreaker.Settings{
				Name:        functionName,
				MaxRequests: 1,
				Interval:    0,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
			}
		},
	}
}

func (inv *Invoker) breakerFor(functionName string) *gobreaker.CircuitBreaker {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	cb, ok := inv.breakers[functionName]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(inv.breakerSettings(functionName))
		inv.breakers[functionName] = cb
	}
	return cb
}

func functionURL(functionName, namespace string) string {
	return fmt.Sprintf("http://%s.%s.svc.cluster.local", functionName, namespace)
}

// Invoke implements the full Lambda Invoker contract: availability probe,
// CloudEvent invocation behind the function's circuit breaker, and
// response parsing. Every call is enclosed in a lambda_function.call span.
func (inv *Invoker) Invoke(ctx context.Context, functionName, namespace string, parameters map[string]interface{}, correlationID string) *models.RemediationResult {
	url := functionURL(functionName, namespace)
	eventID := correlationID

	fields := observability.NewFields().Component("lambda").CorrelationID(correlationID)
	fields["lambda_function"] = functionName
	fields["namespace"] = namespace
	fields["url"] = url
	fields["event_id"] = eventID
	fields["event_type"] = remediationEventType

	ctx, endSpan := observability.Trace(ctx, "lambda_function.call", fields)

	result := inv.invoke(ctx, functionName, namespace, url, parameters, correlationID, eventID)

	endSpan(resultErr(result))
	return result
}

func (inv *Invoker) invoke(ctx context.Context, functionName, namespace, url string, parameters map[string]interface{}, correlationID, eventID string) *models.RemediationResult {
	if err := inv.probeHealth(ctx, url); err != nil {
		return &models.RemediationResult{
			Status:    "error",
			CannotFix: true,
			Error:     err.Error(),
		}
	}

	breaker := inv.breakerFor(functionName)
	raw, err := breaker.Execute(func() (interface{}, error) {
		return inv.doInvoke(ctx, url, parameters, correlationID, eventID)
	})
	if err != nil {
		return &models.RemediationResult{
			Status:  "error",
			Message: transportErrorMessage(err),
			Error:   err.Error(),
		}
	}

	resp := raw.(*cloudevent.Event)
	result := parseResponse(resp)
	if inv.masker != nil {
		result.Message = inv.masker.MaskString(result.Message)
		result.Error = inv.masker.MaskString(result.Error)
		result.Raw = inv.masker.MaskMap(result.Raw)
	}
	return result
}

// probeHealth performs the 5s-budget availability check. A non-200 or
// connect/timeout error means the function can't be fixed by invoking it
// right now.
func (inv *Invoker) probeHealth(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health probe request: %w", err)
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		return fmt.Errorf("health probe unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// doInvoke POSTs the CloudEvent-enveloped invocation request and decodes
// the CloudEvent response.
func (inv *Invoker) doInvoke(ctx context.Context, url string, parameters map[string]interface{}, correlationID, eventID string) (*cloudevent.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	ev := &cloudevent.Event{
		ID:            eventID,
		Type:          remediationEventType,
		Source:        eventSource,
		SpecVersion:   cloudevent.SpecVersion,
		CorrelationID: correlationID,
		Data:          parameters,
	}
	body, err := ev.MarshalStructured()
	if err != nil {
		return nil, fmt.Errorf("marshal cloudevent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/cloudevents+json")
	req.Header.Set("X-Correlation-ID", correlationID)

	resp, err := inv.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{code: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read invoke response: %w", err)
	}

	var respEvent cloudevent.Event
	if err := json.Unmarshal(raw, &respEvent); err != nil {
		return nil, fmt.Errorf("decode cloudevent response: %w", err)
	}
	return &respEvent, nil
}

func parseResponse(ev *cloudevent.Event) *models.RemediationResult {
	result := &models.RemediationResult{Raw: ev.Data}

	status, _ := ev.Data["status"].(string)
	if status == "" {
		status = "success"
	}
	result.Status = status

	if msg, ok := ev.Data["message"].(string); ok {
		result.Message = msg
	}
	if errMsg, ok := ev.Data["error"].(string); ok {
		result.Error = errMsg
	}
	return result
}

func resultErr(result *models.RemediationResult) error {
	if result.Status == "error" {
		return fmt.Errorf("%s", result.Message)
	}
	return nil
}

// httpStatusError distinguishes a non-2xx response from a gobreaker trip
// or transport-level failure, so transportErrorMessage can render the
// spec's "HTTP X" shape specifically for status-code failures.
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

func transportErrorMessage(err error) string {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Error()
	}
	return err.Error()
}
