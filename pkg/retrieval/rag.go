package retrieval

import (
	"fmt"
	"strings"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// RAG composes the Example DB and Vector Store into the single retrieval
// surface the Selector calls: top-k similar incidents, top-k few-shot
// examples, and write-back indexing after a remediation outcome is known.
type RAG struct {
	Examples *ExampleDB
	Vectors  *VectorStore
}

// NewRAG wires an ExampleDB and VectorStore together.
func NewRAG(examples *ExampleDB, vectors *VectorStore) *RAG {
	return &RAG{Examples: examples, Vectors: vectors}
}

// SimilarIncidents returns the top-k semantically similar past incidents
// from the Vector Store (RAG.top_k in the selector's Phase 2).
func (r *RAG) SimilarIncidents(alertName string, labels map[string]string, topK int) []ScoredExample {
	return r.Vectors.SimilaritySearch(SimilaritySearchInput{
		AlertName: alertName,
		Labels:    labels,
		TopK:      topK,
	})
}

// FewShotExamples returns the top-k lexically similar examples from the
// Example DB (ExampleDB.top_k in the selector's Phase 2).
func (r *RAG) FewShotExamples(alertName string, labels map[string]string, topK int) []ScoredExample {
	return r.Examples.FindSimilarExamples(FindSimilarInput{
		AlertName: alertName,
		Labels:    labels,
		TopK:      topK,
	})
}

// IndexAlert records a selection's outcome into both stores. success is nil
// immediately after emission (Phase 6) and patched once verification
// completes.
func (r *RAG) IndexAlert(alert *models.Alert, lambdaFunction string, parameters map[string]interface{}, success *bool) error {
	r.Vectors.IndexAlert(alert, lambdaFunction, parameters, success)
	return r.Examples.AddExample(&models.RemediationExample{
		AlertName:      alert.AlertName,
		Labels:         alert.Labels,
		LambdaFunction: lambdaFunction,
		Parameters:     parameters,
		Success:        success,
	})
}

// FormatIncidentsSection renders scored incidents into a "Similar Past
// Incidents" prompt section.
func FormatIncidentsSection(scored []ScoredExample) string {
	if len(scored) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Similar Past Incidents\n")
	for _, s := range scored {
		fmt.Fprintf(&b, "- alert=%s lambda=%s success=%s similarity=%.2f\n",
			s.Example.AlertName, s.Example.LambdaFunction, successLabel(s.Example.Success), s.Similarity)
	}
	return b.String()
}

// FormatExamplesSection renders scored examples into a few-shot "Examples"
// prompt section.
func FormatExamplesSection(scored []ScoredExample) string {
	if len(scored) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Examples\n")
	for _, s := range scored {
		fmt.Fprintf(&b, "- alert=%s labels=%v -> lambda=%s parameters=%v\n",
			s.Example.AlertName, s.Example.Labels, s.Example.LambdaFunction, s.Example.Parameters)
	}
	return b.String()
}

func successLabel(success *bool) string {
	if success == nil {
		return "unknown"
	}
	if *success {
		return "true"
	}
	return "false"
}
