package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/jordigilh/agent-sre/pkg/approval"
	"github.com/jordigilh/agent-sre/pkg/cloudevent"
	"github.com/jordigilh/agent-sre/pkg/models"
	"github.com/jordigilh/agent-sre/pkg/observability"
)

// cloudEventResponse is the success body for POST /, per spec.md §6.1.
type cloudEventResponse struct {
	Status        string `json:"status"`
	EventID       string `json:"event_id"`
	CorrelationID string `json:"correlation_id"`
}

// errorResponse is the body for any 4xx/5xx response across this package.
type errorResponse struct {
	Error string `json:"error"`
}

// cloudEventHandler handles POST / — the CloudEvent sink of spec.md §4.9 and
// §6.1. Parse errors return 400; a fired alert is dispatched to the Workflow
// Engine on its own goroutine (the HTTP response does not wait for the
// workflow to finish — "each inbound CloudEvent is processed on its own
// logical task", spec.md §5); a resolved alert is persisted synchronously
// (so a persistence failure surfaces as 500 on this request, rather than
// being silently dropped in a detached goroutine); every other type is a
// pass-through, logged only.
func (s *Server) cloudEventHandler(c *echo.Context) error {
	ev, err := cloudevent.ParseRequest(c.Request())
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	correlationID := observability.CorrelationIDFrom(c.Request().Header, ev.ID)
	ctx := observability.BindContext(c.Request().Context(), observability.BindOptions{
		CorrelationID: correlationID,
		EventID:       ev.ID,
	})

	switch ev.Type {
	case alertFiredType:
		s.dispatchFired(ctx, ev, correlationID)

	case alertResolvedType:
		if err := s.persistResolved(ctx, ev, correlationID); err != nil {
			observability.Logger(ctx).Error("ingress: failed to persist resolved alert", "correlation_id", correlationID, "error", err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}

	default:
		observability.Logger(ctx).Info("ingress: pass-through event type", "type", ev.Type, "correlation_id", correlationID)
	}

	return c.JSON(http.StatusOK, cloudEventResponse{
		Status:        "processed",
		EventID:       ev.ID,
		CorrelationID: correlationID,
	})
}

// dispatchFired starts (or skips, if one is already in flight for this
// correlation ID) a Workflow Engine run on a detached context — the
// workflow's lifetime outlives the HTTP request that triggered it.
func (s *Server) dispatchFired(ctx context.Context, ev *cloudevent.Event, correlationID string) {
	if s.workflow == nil {
		observability.Logger(ctx).Warn("ingress: no workflow runner wired, dropping fired alert", "correlation_id", correlationID)
		return
	}
	if !s.tryAcquire(correlationID) {
		observability.Logger(ctx).Info("ingress: duplicate in-flight correlation id, skipping", "correlation_id", correlationID)
		return
	}

	state := s.stateFromEvent(ev, correlationID)

	go func() {
		defer s.release(correlationID)

		runCtx := observability.BindContext(context.Background(), observability.BindOptions{
			CorrelationID: correlationID,
			EventID:       ev.ID,
		})
		if err := s.workflow.Run(runCtx, state); err != nil {
			observability.Logger(runCtx).Error("ingress: workflow run failed", "correlation_id", correlationID, "error", err)
		}
	}()
}

// persistResolved implements the "...alert.resolved is persisted to memory
// but not acted upon" rule of spec.md §4.9.
func (s *Server) persistResolved(ctx context.Context, ev *cloudevent.Event, correlationID string) error {
	if s.resolvedStore == nil {
		observability.Logger(ctx).Info("ingress: no resolved-alert store wired, logging only", "correlation_id", correlationID)
		return nil
	}

	data := ev.Data
	if s.masker != nil {
		data = s.masker.MaskMap(data)
	}

	entry := &models.MemoryEntry{
		ID:        "alert:resolved:" + correlationID,
		Type:      models.MemoryWorking,
		AgentID:   "agent-sre",
		Data:      data,
		CreatedAt: observability.Now(),
		UpdatedAt: observability.Now(),
	}
	return s.resolvedStore.Save(ctx, entry)
}

// approvalCallbackPayload is the minimal shape needed to dispatch and
// respond to a provider callback, per spec.md §6.2. The full payload is
// passed through to the named provider's HandleResponse unparsed (Slack
// callbacks, for instance, aren't flat JSON matching this shape at all).
type approvalCallbackPayload struct {
	RequestID string `json:"request_id"`
	Provider  string `json:"provider"`
}

type approvalCallbackResponse struct {
	Status         string                `json:"status"`
	RequestID      string                `json:"request_id"`
	ApprovalStatus models.ApprovalStatus `json:"approval_status"`
}

// approvalCallbackHandler handles POST /approval/callback, per spec.md §6.2.
func (s *Server) approvalCallbackHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("read body: %v", err)})
	}

	var peek approvalCallbackPayload
	_ = json.Unmarshal(body, &peek) // providers like Slack send a different envelope; best-effort only

	ctx := observability.BindContext(c.Request().Context(), observability.BindOptions{CorrelationID: peek.RequestID})

	req, err := s.approvalMgr.HandleCallback(ctx, peek.Provider, body)
	if err != nil {
		if errors.Is(err, approval.ErrUnknownRequest) {
			return c.JSON(http.StatusNotFound, approvalCallbackResponse{Status: "unknown_request", RequestID: peek.RequestID})
		}
		observability.Logger(ctx).Error("ingress: approval callback failed", "provider", peek.Provider, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, approvalCallbackResponse{
		Status:         "processed",
		RequestID:      req.RequestID,
		ApprovalStatus: req.Status,
	})
}

// catchupResponse is the body for GET /workflow/:id/catchup.
type catchupResponse struct {
	CorrelationID string              `json:"correlation_id"`
	Transitions   []catchupTransition `json:"transitions"`
}

type catchupTransition struct {
	Seq  int                 `json:"seq"`
	Step models.WorkflowStep `json:"step"`
}

// catchupHandler handles GET /workflow/:id/catchup?since=N — it lets a
// reconnecting operator dashboard or CLI replay the workflow-state
// transitions it missed for a correlation ID, bounded by the checkpoint
// store's own retention (workflow.catchupLimit transitions).
func (s *Server) catchupHandler(c *echo.Context) error {
	if s.catchup == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "catchup not available"})
	}

	correlationID := c.Param("id")
	since := 0
	if v := c.QueryParam("since"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid since parameter"})
		}
		since = parsed
	}

	transitions, err := s.catchup.Since(c.Request().Context(), correlationID, since)
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}

	out := make([]catchupTransition, len(transitions))
	for i, t := range transitions {
		out[i] = catchupTransition{Seq: t.Seq, Step: t.State.Step}
	}

	return c.JSON(http.StatusOK, catchupResponse{CorrelationID: correlationID, Transitions: out})
}
