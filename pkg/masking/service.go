// Package masking redacts secrets from remediation lambda responses and
// alert payloads: the Lambda Invoker masks responses and the ingress server
// masks resolved-alert payloads before persisting them to memory. Approval
// requests are not passed through it. It is a simplified, standalone descendant of the
// teacher's pkg/masking: the same built-in regex catalog (pkg/config's
// BuiltinConfig, reproduced in pattern.go) applied unconditionally, with no
// per-MCP-server registry lookup — see DESIGN.md for the full reasoning.
package masking

// Service applies every pattern in its catalog to a piece of text or a
// decoded JSON-ish value (map[string]interface{}/[]interface{}/string).
// The zero value is unusable; build one with New.
type Service struct {
	patterns []Pattern
}

// New builds a Service from the given patterns. A nil or empty slice falls
// back to DefaultPatterns, so a Service built with New always has a
// non-empty catalog; there is no constructor for a Service that masks
// nothing.
func New(patterns []Pattern) *Service {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Service{patterns: patterns}
}

// MaskString applies every pattern in the catalog to content and returns
// the redacted result. Matches never overlap across patterns since each
// pattern is applied to the output of the previous one in sequence.
func (s *Service) MaskString(content string) string {
	for _, p := range s.patterns {
		content = p.Regexp.ReplaceAllString(content, p.Replacement)
	}
	return content
}

// MaskValue walks an arbitrary decoded-JSON value (as produced by
// encoding/json or a CloudEvent's Data map) and returns a deep copy with
// every string leaf passed through MaskString. Non-string leaves (numbers,
// bools, nil) are returned unchanged since the regex catalog only matches
// on text.
func (s *Service) MaskValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return s.MaskString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = s.MaskValue(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = s.MaskValue(child)
		}
		return out
	default:
		return v
	}
}

// MaskMap is a typed convenience wrapper around MaskValue for the
// map[string]interface{} shape cloudevent.Event.Data and
// models.RemediationResult.Raw both use. A nil input returns nil.
func (s *Service) MaskMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	return s.MaskValue(data).(map[string]interface{})
}
