// Package selector implements the Intelligent Remediation Selector: a
// cascading pipeline that tries progressively more expensive strategies —
// a static annotation, a recursive-reasoning model, then retrieval-
// augmented LLM function calling — to pick a lambda function and its
// parameters for an alert.
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jordigilh/agent-sre/pkg/llm"
	"github.com/jordigilh/agent-sre/pkg/models"
	"github.com/jordigilh/agent-sre/pkg/observability"
	"github.com/jordigilh/agent-sre/pkg/retrieval"
)

// ErrSelectionFailed is returned when every phase of the cascade fails to
// produce an allowed lambda function.
var ErrSelectionFailed = fmt.Errorf("selector: selection_failed")

// ReasoningModel is the optional Phase 1 recursive-reasoning strategy:
// a small model that iteratively refines its own structured-JSON output.
// Selector treats a nil ReasoningModel as disabled. No implementation is
// loaded from TRM_MODEL_PATH; cmd/agent-sre passes nil, so Phase 1 runs only
// when a caller supplies its own ReasoningModel.
type ReasoningModel interface {
	Predict(ctx context.Context, alert *models.Alert) (*models.LambdaSelection, error)
}

// RunbookResolver fetches (and caches) the runbook content named by an
// alert's runbook_url annotation, for inlining into the Phase 3 prompt.
// A nil RunbookResolver simply omits the runbook section.
type RunbookResolver interface {
	Resolve(ctx context.Context, runbookURL string) (string, error)
}

// Selector runs the cascading pipeline described in the package doc.
type Selector struct {
	Reasoning ReasoningModel // nil = Phase 1 disabled
	RAG       *retrieval.RAG
	LLM       llm.Client
	Runbook   RunbookResolver // nil = no runbook enrichment
}

// New builds a Selector. reasoning may be nil.
func New(reasoning ReasoningModel, rag *retrieval.RAG, llmClient llm.Client) *Selector {
	return &Selector{Reasoning: reasoning, RAG: rag, LLM: llmClient}
}

// Select runs the cascade end to end and returns the chosen selection, or
// ErrSelectionFailed if every phase failed to produce an allowed lambda
// function.
func (s *Selector) Select(ctx context.Context, alert *models.Alert) (*models.LambdaSelection, error) {
	if sel := s.phase0StaticAnnotation(alert); sel != nil {
		s.indexSelection(ctx, alert, sel)
		return sel, nil
	}

	if sel := s.phase1RecursiveReasoning(ctx, alert); sel != nil {
		s.indexSelection(ctx, alert, sel)
		return sel, nil
	}

	similarIncidents, fewShot := s.phase2Retrieve(alert)

	sel, err := s.phase3FunctionCall(ctx, alert, similarIncidents, fewShot)
	if err != nil {
		observability.Logger(ctx).Warn("selector: function-calling phase failed", "error", err, "alertname", alert.AlertName)
		return nil, ErrSelectionFailed
	}

	s.phase4ValidateAndEnrich(alert, sel)
	if !models.IsAllowedLambdaFunction(sel.LambdaFunction) {
		return nil, ErrSelectionFailed
	}

	s.phase5Confidence(sel, len(similarIncidents))

	s.indexSelection(ctx, alert, sel)
	return sel, nil
}

func (s *Selector) phase0StaticAnnotation(alert *models.Alert) *models.LambdaSelection {
	fn := alert.Annotation("lambda_function")
	if fn == "" {
		return nil
	}

	params := map[string]interface{}{}
	if raw := alert.Annotation("lambda_parameters"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &params)
	}

	return &models.LambdaSelection{
		LambdaFunction: fn,
		Parameters:     params,
		Method:         models.MethodStaticAnnotation,
		Confidence:     1.0,
	}
}

func (s *Selector) phase1RecursiveReasoning(ctx context.Context, alert *models.Alert) *models.LambdaSelection {
	if s.Reasoning == nil {
		return nil
	}
	sel, err := s.Reasoning.Predict(ctx, alert)
	if err != nil || sel == nil {
		return nil
	}
	if !models.IsAllowedLambdaFunction(sel.LambdaFunction) {
		return nil
	}
	sel.Method = models.MethodRecursiveReasoning
	return sel
}

func (s *Selector) phase2Retrieve(alert *models.Alert) ([]retrieval.ScoredExample, []retrieval.ScoredExample) {
	if s.RAG == nil {
		return nil, nil
	}
	similar := s.RAG.SimilarIncidents(alert.AlertName, alert.Labels, 3)
	fewShot := s.RAG.FewShotExamples(alert.AlertName, alert.Labels, 5)
	return similar, fewShot
}

var toolCallNameRegex = regexp.MustCompile(`"?lambda_function"?\s*[:=]\s*"([a-z0-9-]+)"`)

func (s *Selector) phase3FunctionCall(ctx context.Context, alert *models.Alert, similar, fewShot []retrieval.ScoredExample) (*models.LambdaSelection, error) {
	if s.LLM == nil {
		return nil, fmt.Errorf("selector: no LLM client configured")
	}

	prompt := buildPrompt(alert, similar, fewShot) + s.runbookSection(ctx, alert)
	input := (&llm.GenerateInput{
		CorrelationID: alert.Fingerprint,
		Messages: []llm.ConversationMessage{
			{Role: llm.RoleSystem, Content: "You select a remediation lambda function for the given alert. Respond by calling select_remediation."},
			{Role: llm.RoleUser, Content: prompt},
		},
	}).WithLambdaFunctionTool()

	ch, err := s.LLM.Generate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("selector: generate: %w", err)
	}

	text, toolCall, err := llm.CollectText(ch)
	if err != nil {
		return nil, fmt.Errorf("selector: generate response: %w", err)
	}

	if toolCall != nil {
		var args llm.FunctionCallArguments
		if err := json.Unmarshal([]byte(toolCall.Arguments), &args); err == nil && args.LambdaFunction != "" {
			return &models.LambdaSelection{
				LambdaFunction:   args.LambdaFunction,
				Parameters:       args.Parameters,
				Method:           models.MethodAIFunctionCalling,
				Reasoning:        args.Reasoning,
				SimilarIncidents: len(similar),
				FewShotExamples:  len(fewShot),
			}, nil
		}
	}

	// Fallback: regex-extract the function name from free text.
	match := toolCallNameRegex.FindStringSubmatch(text)
	if match == nil {
		return nil, fmt.Errorf("selector: could not extract lambda_function from response")
	}
	return &models.LambdaSelection{
		LambdaFunction:   match[1],
		Parameters:       map[string]interface{}{},
		Method:           models.MethodAIFunctionCalling,
		Reasoning:        text,
		SimilarIncidents: len(similar),
		FewShotExamples:  len(fewShot),
	}, nil
}

// runbookSection fetches the runbook named by the alert's runbook_url
// annotation and formats it as additional prompt context. Fetch failures
// are logged and swallowed — a runbook is enrichment, not a required input,
// so a dead link must not fail the whole selection.
func (s *Selector) runbookSection(ctx context.Context, alert *models.Alert) string {
	if s.Runbook == nil {
		return ""
	}
	runbookURL := alert.Annotation("runbook_url")
	if runbookURL == "" {
		return ""
	}

	content, err := s.Runbook.Resolve(ctx, runbookURL)
	if err != nil || content == "" {
		if err != nil {
			observability.Logger(ctx).Warn("selector: runbook resolution failed", "url", runbookURL, "error", err)
		}
		return ""
	}
	return fmt.Sprintf("\nRunbook (%s):\n%s\n", runbookURL, content)
}

func buildPrompt(alert *models.Alert, similar, fewShot []retrieval.ScoredExample) string {
	prompt := fmt.Sprintf("Alert: %s\nLabels: %v\nAnnotations: %v\n\n", alert.AlertName, alert.Labels, alert.Annotations)
	prompt += retrieval.FormatIncidentsSection(similar)
	prompt += retrieval.FormatExamplesSection(fewShot)
	return prompt
}

// phase4ValidateAndEnrich fills in parameter defaults deterministically;
// applied regardless of which phase produced the selection except Phase 0
// (static annotations are trusted verbatim) and Phase 1 (the reasoning
// model is trusted to have produced complete parameters).
func (s *Selector) phase4ValidateAndEnrich(alert *models.Alert, sel *models.LambdaSelection) {
	if sel.Parameters == nil {
		sel.Parameters = map[string]interface{}{}
	}

	if sel.Name() == "" {
		sel.Parameters["name"] = alert.LabelAny("unknown", "name", "resource_name", "pod", "deployment", "kustomization")
	}
	if sel.Namespace() == "" {
		sel.Parameters["namespace"] = alert.LabelAny("flux-system", "namespace", "resource_namespace")
	}

	switch models.LambdaFunction(sel.LambdaFunction) {
	case models.LambdaScaleDeployment:
		if _, ok := sel.Parameters["replicas"]; !ok {
			if v := alert.LabelAny("", "expected", "replicas"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					sel.Parameters["replicas"] = n
				}
			}
		}
	case models.LambdaPodRestart:
		if _, ok := sel.Parameters["type"]; !ok {
			sel.Parameters["type"] = "pod"
		}
	}
}

// phase5Confidence calibrates confidence per the fixed formula: base 0.5,
// +0.2 if any similar incidents were retrieved, +0.1/+0.2 for reasoning
// length past 50/100 chars, +0.1 if both name and namespace resolved,
// capped at 1.0.
func (s *Selector) phase5Confidence(sel *models.LambdaSelection, similarIncidentCount int) {
	confidence := 0.5
	if similarIncidentCount > 0 {
		confidence += 0.2
	}
	if len(sel.Reasoning) > 50 {
		confidence += 0.1
	}
	if len(sel.Reasoning) > 100 {
		confidence += 0.1
	}
	if sel.Name() != "" && sel.Namespace() != "" {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	sel.Confidence = confidence
}

// indexSelection records the emitted selection into the RAG with
// success=nil (Phase 6); success is patched by the caller once
// verification completes.
func (s *Selector) indexSelection(ctx context.Context, alert *models.Alert, sel *models.LambdaSelection) {
	if s.RAG == nil {
		return
	}
	if err := s.RAG.IndexAlert(alert, sel.LambdaFunction, sel.Parameters, nil); err != nil {
		observability.Logger(ctx).Warn("selector: failed to index selection", "error", err)
	}
}
