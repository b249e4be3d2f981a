package cloudevent

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// traceparentRe matches the W3C Trace Context header:
// version-traceid-spanid-flags
var traceparentRe = regexp.MustCompile(`^([0-9a-f]{2})-([0-9a-f]{32})-([0-9a-f]{16})-([0-9a-f]{2})$`)

// TraceIDFromTraceparent extracts the trace-id component of a W3C
// traceparent header, or "" if the header is absent or malformed.
func TraceIDFromTraceparent(header string) string {
	m := traceparentRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[2]
}

// NewUUIDv4 generates a random UUIDv4 string without pulling in a UUID
// library at this boundary (the rest of the module uses google/uuid; this
// helper exists only so package cloudevent has no dependency on pkg/models
// or an external store).
func NewUUIDv4() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// FormatTraceparent builds a traceparent header value from a trace ID,
// generating a fresh span ID. No outbound call in this module attaches a
// traceparent header; callers that want one build it with this helper.
func FormatTraceparent(traceID string) string {
	var spanID [8]byte
	_, _ = rand.Read(spanID[:])
	return fmt.Sprintf("00-%s-%s-01", traceID, hex.EncodeToString(spanID[:]))
}
