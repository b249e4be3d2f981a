package cloudevent

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest_Structured(t *testing.T) {
	body := `{"id":"evt-1","type":"io.homelab.prometheus.alert.fired","source":"prometheus","specversion":"1.0","data":{"alertname":"FluxReconciliationFailure"}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", structuredContentType)

	ev, err := ParseRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, "io.homelab.prometheus.alert.fired", ev.Type)
	assert.Equal(t, "FluxReconciliationFailure", ev.Data["alertname"])
}

func TestParseRequest_Binary(t *testing.T) {
	body := `{"alertname":"PodCrashLooping"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ce-id", "evt-2")
	req.Header.Set("ce-type", "io.homelab.prometheus.alert.fired")
	req.Header.Set("ce-source", "prometheus")
	req.Header.Set("ce-specversion", "1.0")

	ev, err := ParseRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "evt-2", ev.ID)
	assert.Equal(t, "PodCrashLooping", ev.Data["alertname"])
}

func TestParseRequest_MissingRequiredFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", structuredContentType)

	_, err := ParseRequest(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field")
}

func TestTraceIDFromTraceparent(t *testing.T) {
	valid := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", TraceIDFromTraceparent(valid))
	assert.Equal(t, "", TraceIDFromTraceparent("garbage"))
}

func TestNewUUIDv4_Format(t *testing.T) {
	id := NewUUIDv4()
	assert.Len(t, id, 36)
	assert.Equal(t, "4", string(id[14]))
}
