// Package ingress implements the Event Ingress boundary (J): a CloudEvent
// sink that dispatches fired alerts into the Workflow Engine, persists
// resolved alerts without acting on them, accepts approval-provider
// callbacks, and exposes liveness/readiness/metrics endpoints.
package ingress

import (
	"context"
	"net/http"
	"sync"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordigilh/agent-sre/pkg/cloudevent"
	"github.com/jordigilh/agent-sre/pkg/masking"
	"github.com/jordigilh/agent-sre/pkg/memory/store"
	"github.com/jordigilh/agent-sre/pkg/models"
	"github.com/jordigilh/agent-sre/pkg/observability"
	"github.com/jordigilh/agent-sre/pkg/workflow"
)

const (
	alertFiredType    = "io.homelab.prometheus.alert.fired"
	alertResolvedType = "io.homelab.prometheus.alert.resolved"
)

// WorkflowRunner is the subset of workflow.Engine the ingress depends on.
type WorkflowRunner interface {
	Run(ctx context.Context, state *models.WorkflowState) error
}

// ApprovalHandler is the subset of approval.Manager the ingress depends on.
type ApprovalHandler interface {
	HandleCallback(ctx context.Context, providerName string, payload []byte) (*models.ApprovalRequest, error)
}

// CatchupProvider is the subset of workflow.VolatileCheckpoints the ingress
// depends on to let a reconnecting caller replay missed workflow-state
// transitions for a correlation ID, grounded on the teacher's
// pkg/events catch-up adapter.
type CatchupProvider interface {
	Since(ctx context.Context, correlationID string, sinceSeq int) ([]workflow.Transition, error)
}

// Server is the HTTP ingress. Mirrors the teacher's Echo-v5-based
// api.Server: a thin composition of pre-built collaborators behind a single
// *echo.Echo, with Set*-style wiring happening before Start.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	workflow      WorkflowRunner
	approvalMgr   ApprovalHandler
	resolvedStore store.Store
	masker        *masking.Service
	catchup       CatchupProvider

	defaultMode models.OperationMode
	maxRetries  int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewServer builds an ingress server with its collaborators wired in.
// resolvedStore may be nil (resolved alerts are then only logged, not
// persisted) — every other argument is required.
func NewServer(workflow WorkflowRunner, approvalMgr ApprovalHandler, resolvedStore store.Store) *Server {
	e := echo.New()

	s := &Server{
		echo:          e,
		workflow:      workflow,
		approvalMgr:   approvalMgr,
		resolvedStore: resolvedStore,
		defaultMode:   models.ModeAgentic,
		inFlight:      make(map[string]struct{}),
	}

	s.setupRoutes()
	return s
}

// SetDefaultOperationMode overrides the OperationMode assigned to every
// workflow started from a fired alert; no per-alert mode annotation is read.
func (s *Server) SetDefaultOperationMode(mode models.OperationMode) {
	s.defaultMode = mode
}

// SetMaxRetries overrides the lambda retry budget (spec.md §6.5's
// MAX_RETRIES) assigned to every freshly-received workflow.
func (s *Server) SetMaxRetries(maxRetries int) {
	s.maxRetries = maxRetries
}

// SetMasker wires a masking.Service into the server; every resolved alert
// persisted through persistResolved is redacted first. A nil masker (the
// default) persists alert payloads unmodified.
func (s *Server) SetMasker(masker *masking.Service) {
	s.masker = masker
}

// SetCatchupProvider wires the Workflow Engine's checkpoint history into
// GET /workflow/:id/catchup. A nil provider (the default) serves 503 from
// that endpoint rather than panicking.
func (s *Server) SetCatchupProvider(catchup CatchupProvider) {
	s.catchup = catchup
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/ready", s.readyHandler)
	s.echo.GET("/metrics", s.metricsHandler)

	s.echo.POST("/", s.cloudEventHandler)
	s.echo.POST("/approval/callback", s.approvalCallbackHandler)
	s.echo.GET("/workflow/:id/catchup", s.catchupHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// readyHandler implements spec.md §4.9's readiness contract: ready requires
// all components initialized.
func (s *Server) readyHandler(c *echo.Context) error {
	if s.workflow == nil || s.approvalMgr == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// metricsHandler serves the Prometheus registry directly through the
// standard promhttp handler, bypassing Echo's own response helpers so the
// exposition format (including content-type negotiation) is exactly what
// client_golang produces.
func (s *Server) metricsHandler(c *echo.Context) error {
	promhttp.HandlerFor(observability.Registry(), promhttp.HandlerOpts{}).ServeHTTP(c.Response(), c.Request())
	return nil
}

// tryAcquire implements the per-correlation-id dedup rule of spec.md §5: a
// second arrival for a correlation ID already in flight is rejected rather
// than interleaved with the first.
func (s *Server) tryAcquire(correlationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[correlationID]; busy {
		return false
	}
	s.inFlight[correlationID] = struct{}{}
	return true
}

func (s *Server) release(correlationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, correlationID)
}

// stateFromEvent builds the initial WorkflowState for a freshly-fired alert.
func (s *Server) stateFromEvent(ev *cloudevent.Event, correlationID string) *models.WorkflowState {
	return &models.WorkflowState{
		EventData:     ev.Data,
		EventType:     ev.Type,
		EventID:       ev.ID,
		CorrelationID: correlationID,
		OperationMode: s.defaultMode,
		MaxRetries:    s.maxRetries,
		CreatedAt:     observability.Now(),
	}
}
