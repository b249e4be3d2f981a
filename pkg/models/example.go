package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// RemediationExample is a single recorded (alert -> action -> outcome)
// triple, used by the Example DB for similarity retrieval.
type RemediationExample struct {
	ID             string
	AlertName      string
	Labels         map[string]string
	LambdaFunction string
	Parameters     map[string]interface{}
	Success        *bool // nil = outcome not yet known
	Timestamp      time.Time
	Reasoning      string
}

// ExampleID derives the stable identity of an example from
// SHA-256(alertname|canonical(labels)).
func ExampleID(alertName string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(alertName)
	b.WriteByte('|')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// AlertEmbedding augments a RemediationExample with an embedding vector for
// semantic similarity search in the Vector Store.
type AlertEmbedding struct {
	RemediationExample
	Embedding []float64
}
