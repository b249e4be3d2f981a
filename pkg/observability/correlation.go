package observability

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jordigilh/agent-sre/pkg/cloudevent"
)

// CorrelationIDFrom resolves a correlation ID for an inbound event following
// the preference order required by the observability contract:
// X-Correlation-ID header -> CloudEvent id -> W3C traceparent trace-id ->
// newly generated UUIDv4.
func CorrelationIDFrom(headers http.Header, eventID string) string {
	if headers != nil {
		if v := headers.Get("X-Correlation-ID"); v != "" {
			return v
		}
	}
	if eventID != "" {
		return eventID
	}
	if headers != nil {
		if tp := headers.Get("traceparent"); tp != "" {
			if traceID := cloudevent.TraceIDFromTraceparent(tp); traceID != "" {
				return traceID
			}
		}
	}
	return uuid.New().String()
}
