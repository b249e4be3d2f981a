// Package approval implements the multi-provider Approval Protocol: storing
// ApprovalRequests, dispatching them to chat/HTTP providers, applying
// per-provider decisions under a configurable quorum policy, and sweeping
// expired requests per their timeout_action.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jordigilh/agent-sre/pkg/models"
	"github.com/jordigilh/agent-sre/pkg/observability"
)

// ErrUnknownRequest is returned when a callback or lookup references a
// request_id the Manager has never stored.
var ErrUnknownRequest = fmt.Errorf("approval: unknown request_id")

// ErrUnknownProvider is returned when a request names a provider the
// Manager has no registration for.
var ErrUnknownProvider = fmt.Errorf("approval: unknown provider")

// Manager is the process-wide Approval Manager singleton: a mutex-protected
// in-memory map of ApprovalRequests plus the registered providers, exactly
// the shared-resource shape spec.md §5 describes ("the Approval Manager's
// in-memory request map is mutex-protected").
type Manager struct {
	mu        sync.Mutex
	requests  map[string]*models.ApprovalRequest
	providers map[string]Provider
	now       func() time.Time
}

// New builds a Manager wired to the given providers, keyed by their Name().
func New(providers ...Provider) *Manager {
	m := &Manager{
		requests:  make(map[string]*models.ApprovalRequest),
		providers: make(map[string]Provider, len(providers)),
		now:       time.Now,
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		m.providers[p.Name()] = p
	}
	return m
}

// RequestApproval stores req (status pending) and attempts to Send it to
// every provider named in req.Providers. A provider that errors on Send, or
// that isn't registered, is marked rejected immediately (fail-closed).
// Returns the stored request with its status already recomputed.
func (m *Manager) RequestApproval(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	if req.RequestID == "" {
		return nil, fmt.Errorf("approval: request_id is required")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = m.now()
	}
	req.Status = models.ApprovalPending
	req.PerProviderStatus = make(map[string]models.ApprovalStatus, len(req.Providers))
	for _, name := range req.Providers {
		req.PerProviderStatus[name] = models.ApprovalPending
	}

	m.mu.Lock()
	m.requests[req.RequestID] = req
	m.mu.Unlock()

	for _, name := range req.Providers {
		provider, ok := m.providers[name]
		if !ok {
			observability.Logger(ctx).Warn("approval: no provider registered, failing closed", "provider", name, "request_id", req.RequestID)
			m.setProviderStatus(req.RequestID, name, models.ApprovalRejected)
			continue
		}
		if err := provider.Send(ctx, req); err != nil {
			observability.Logger(ctx).Warn("approval: provider send failed, failing closed", "provider", name, "request_id", req.RequestID, "error", err)
			m.setProviderStatus(req.RequestID, name, models.ApprovalRejected)
			continue
		}
	}

	observability.RecordMetric("approval_requests_total", map[string]string{"agent": req.Agent, "lambda_function": req.LambdaFunction}, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[req.RequestID], nil
}

// HandleCallback decodes a provider callback payload and applies the
// resulting decision to the named request's per-provider status, then
// recomputes the request's global status under its quorum policy.
func (m *Manager) HandleCallback(ctx context.Context, providerName string, payload []byte) (*models.ApprovalRequest, error) {
	provider, ok := m.providers[providerName]
	if !ok {
		return nil, ErrUnknownProvider
	}

	decision, err := provider.HandleResponse(payload)
	if err != nil {
		return nil, fmt.Errorf("approval: handle provider response: %w", err)
	}

	status := models.ApprovalRejected
	if decision.Decision == "approve" {
		status = models.ApprovalApproved
	}

	req, err := m.setProviderStatus(decision.RequestID, providerName, status)
	if err != nil {
		return nil, err
	}

	observability.RecordMetric("approval_decisions_total", map[string]string{"provider": providerName, "decision": decision.Decision}, 1)
	return req, nil
}

// setProviderStatus mutates one provider's status within a request and
// recomputes the request's global status under its quorum policy.
func (m *Manager) setProviderStatus(requestID, provider string, status models.ApprovalStatus) (*models.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return nil, ErrUnknownRequest
	}
	if req.Status != models.ApprovalPending {
		// Terminal requests don't accept further provider updates.
		return req, nil
	}

	req.PerProviderStatus[provider] = status
	req.Status = quorumStatus(req)
	return req, nil
}

// quorumStatus applies spec.md §4.6's quorum rule against the request's
// current per-provider statuses.
func quorumStatus(req *models.ApprovalRequest) models.ApprovalStatus {
	var anyApproved, anyRejected, allApproved, allRejected bool
	allApproved = true
	allRejected = true

	for _, status := range req.PerProviderStatus {
		switch status {
		case models.ApprovalApproved:
			anyApproved = true
			allRejected = false
		case models.ApprovalRejected:
			anyRejected = true
			allApproved = false
		default:
			allApproved = false
			allRejected = false
		}
	}

	if req.RequireAll {
		switch {
		case anyRejected:
			return models.ApprovalRejected
		case allApproved:
			return models.ApprovalApproved
		default:
			return models.ApprovalPending
		}
	}

	switch {
	case anyApproved:
		return models.ApprovalApproved
	case allRejected:
		return models.ApprovalRejected
	default:
		return models.ApprovalPending
	}
}

// Get returns the stored request, or ErrUnknownRequest.
func (m *Manager) Get(requestID string) (*models.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return nil, ErrUnknownRequest
	}
	return req, nil
}

// SweepTimeouts scans every pending request and, for any whose deadline has
// passed, transitions it to timeout and then applies its timeout_action.
// Returns the requests that transitioned, so a caller can resume their
// workflows. Matches spec.md §4.6's periodic-sweep contract.
func (m *Manager) SweepTimeouts(ctx context.Context) []*models.ApprovalRequest {
	now := m.now()

	m.mu.Lock()
	var transitioned []*models.ApprovalRequest
	for _, req := range m.requests {
		if req.Status != models.ApprovalPending {
			continue
		}
		if !req.Expired(now) {
			continue
		}

		req.Status = models.ApprovalTimeout
		switch req.TimeoutAction {
		case models.TimeoutActionApprove:
			req.Status = models.ApprovalApproved
		case models.TimeoutActionReject:
			req.Status = models.ApprovalRejected
		case models.TimeoutActionPending:
			// Stays ApprovalTimeout; the workflow engine aborts with an error.
		}
		transitioned = append(transitioned, req)
	}
	m.mu.Unlock()

	for _, req := range transitioned {
		observability.Logger(ctx).Info("approval: request timed out", "request_id", req.RequestID, "timeout_action", req.TimeoutAction, "resolved_status", req.Status)
		observability.RecordMetric("approval_timeouts_total", map[string]string{"timeout_action": string(req.TimeoutAction)}, 1)
	}
	return transitioned
}

// StartSweep runs SweepTimeouts every interval until ctx is cancelled.
func (m *Manager) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepTimeouts(ctx)
			}
		}
	}()
}
