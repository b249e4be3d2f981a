// Package cloudevent implements the minimal CloudEvents v1.0 envelope used at
// both the inbound ingress boundary and the outbound Lambda Invoker boundary.
//
// No example in the retrieved pack imports an official CloudEvents SDK
// (github.com/cloudevents/sdk-go never appears, directly or transitively, in
// any go.mod in the corpus) so this package is a small hand-rolled encoder/
// decoder built on encoding/json and net/http, the way the teacher builds its
// own thin wrappers (pkg/slack/message.go, pkg/events/payloads.go) around
// external wire formats it doesn't have a vendored SDK for.
package cloudevent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const SpecVersion = "1.0"

// Event is a CloudEvents v1.0 envelope.
type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Source        string                 `json:"source"`
	SpecVersion   string                 `json:"specversion"`
	CorrelationID string                 `json:"correlationid,omitempty"`
	Time          string                 `json:"time,omitempty"`
	DataContentType string               `json:"datacontenttype,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// structuredContentType is the content-type that selects structured mode.
const structuredContentType = "application/cloudevents+json"

// ParseRequest parses an inbound CloudEvent from an HTTP request, choosing
// structured or binary mode based on Content-Type.
func ParseRequest(r *http.Request) (*Event, error) {
	ct := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("cloudevent: read body: %w", err)
	}

	if mediaType == structuredContentType {
		return parseStructured(body)
	}
	return parseBinary(r.Header, body)
}

// parseStructured decodes a structured-mode CloudEvent: the entire envelope
// is the JSON body.
func parseStructured(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("cloudevent: invalid structured JSON: %w", err)
	}
	if err := validate(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// parseBinary decodes a binary-mode CloudEvent: ce-* headers carry
// attributes, the raw body is the data payload.
func parseBinary(h http.Header, body []byte) (*Event, error) {
	ev := &Event{
		ID:              h.Get("ce-id"),
		Type:            h.Get("ce-type"),
		Source:          h.Get("ce-source"),
		SpecVersion:     h.Get("ce-specversion"),
		CorrelationID:   h.Get("ce-correlationid"),
		Time:            h.Get("ce-time"),
		DataContentType: h.Get("ce-datacontenttype"),
	}
	if len(body) > 0 {
		var data map[string]interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("cloudevent: invalid binary-mode body: %w", err)
		}
		ev.Data = data
	}
	if err := validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func validate(ev *Event) error {
	var missing []string
	if ev.ID == "" {
		missing = append(missing, "id")
	}
	if ev.Type == "" {
		missing = append(missing, "type")
	}
	if ev.Source == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return fmt.Errorf("cloudevent: missing required field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// WriteBinaryRequest populates an outbound *http.Request with this event in
// binary mode: ce-* headers plus a raw JSON body of Data.
func (ev *Event) WriteBinaryRequest(req *http.Request) error {
	req.Header.Set("ce-id", ev.ID)
	req.Header.Set("ce-type", ev.Type)
	req.Header.Set("ce-source", ev.Source)
	req.Header.Set("ce-specversion", ev.SpecVersion)
	if ev.CorrelationID != "" {
		req.Header.Set("ce-correlationid", ev.CorrelationID)
	}
	if ev.DataContentType != "" {
		req.Header.Set("ce-datacontenttype", ev.DataContentType)
	}
	if ev.Data != nil {
		body, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("cloudevent: marshal binary-mode body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
	}
	return nil
}

// MarshalStructured serializes the event as a structured-mode JSON body.
func (ev *Event) MarshalStructured() ([]byte, error) {
	return json.Marshal(ev)
}
