package selector_test

import (
	"context"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/agent-sre/pkg/llm"
	"github.com/jordigilh/agent-sre/pkg/models"
	"github.com/jordigilh/agent-sre/pkg/retrieval"
	"github.com/jordigilh/agent-sre/pkg/selector"
)

type fakeReasoning struct {
	sel *models.LambdaSelection
	err error
}

func (f *fakeReasoning) Predict(ctx context.Context, alert *models.Alert) (*models.LambdaSelection, error) {
	return f.sel, f.err
}

type fakeRunbook struct {
	content string
	err     error
}

func (f *fakeRunbook) Resolve(ctx context.Context, runbookURL string) (string, error) {
	return f.content, f.err
}

func newRAG() *retrieval.RAG {
	dir := GinkgoT().TempDir()
	db, err := retrieval.NewExampleDB(filepath.Join(dir, "examples.json"))
	Expect(err).NotTo(HaveOccurred())
	vs := retrieval.NewVectorStore(nil)
	return retrieval.NewRAG(db, vs)
}

var _ = Describe("Selector", func() {
	var alert *models.Alert

	BeforeEach(func() {
		alert = &models.Alert{
			AlertName: "PodCrashLooping",
			Status:    models.AlertStatusFiring,
			Labels:    map[string]string{"namespace": "payments", "pod": "worker-0"},
		}
	})

	Context("Phase 0: static annotation", func() {
		It("short-circuits on a lambda_function annotation with full confidence", func() {
			alert.Annotations = map[string]string{
				"lambda_function":   "pod-restart",
				"lambda_parameters": `{"name":"worker-0","namespace":"payments"}`,
			}
			sel := selector.New(nil, newRAG(), nil)

			result, err := sel.Select(context.Background(), alert)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.LambdaFunction).To(Equal("pod-restart"))
			Expect(result.Method).To(Equal(models.MethodStaticAnnotation))
			Expect(result.Confidence).To(Equal(1.0))
			Expect(result.Name()).To(Equal("worker-0"))
		})
	})

	Context("Phase 1: recursive reasoning model", func() {
		It("is skipped when no ReasoningModel is configured", func() {
			sel := selector.New(nil, newRAG(), &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-restart","parameters":{}}`}},
			}})

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Method).To(Equal(models.MethodAIFunctionCalling))
		})

		It("uses the reasoning model's output when it returns an allowed function", func() {
			reasoning := &fakeReasoning{sel: &models.LambdaSelection{
				LambdaFunction: "scale-deployment",
				Parameters:     map[string]interface{}{"name": "worker", "namespace": "payments", "replicas": 3},
			}}
			sel := selector.New(reasoning, newRAG(), nil)

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.LambdaFunction).To(Equal("scale-deployment"))
			Expect(result.Method).To(Equal(models.MethodRecursiveReasoning))
		})

		It("falls through to later phases when the reasoning model errors", func() {
			reasoning := &fakeReasoning{err: errors.New("model not loaded")}
			sel := selector.New(reasoning, newRAG(), &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-restart","parameters":{}}`}},
			}})

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Method).To(Equal(models.MethodAIFunctionCalling))
		})

		It("falls through when the reasoning model proposes a disallowed function", func() {
			reasoning := &fakeReasoning{sel: &models.LambdaSelection{LambdaFunction: "delete-everything"}}
			sel := selector.New(reasoning, newRAG(), &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-restart","parameters":{}}`}},
			}})

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.LambdaFunction).To(Equal("pod-restart"))
		})
	})

	Context("Phase 3: LLM function calling", func() {
		It("parses structured tool-call arguments", func() {
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{
					Name:      "select_remediation",
					Arguments: `{"lambda_function":"pod-restart","parameters":{"name":"worker-0","namespace":"payments"},"reasoning":"pod is crash looping repeatedly"}`,
				}},
			}}
			sel := selector.New(nil, newRAG(), fake)

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.LambdaFunction).To(Equal("pod-restart"))
			Expect(result.Method).To(Equal(models.MethodAIFunctionCalling))
		})

		It("falls back to regex extraction when no structured tool call is returned", func() {
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{Text: `I recommend calling with "lambda_function": "pod-restart" to resolve this.`},
			}}
			sel := selector.New(nil, newRAG(), fake)

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.LambdaFunction).To(Equal("pod-restart"))
		})

		It("fails the selection when neither structured nor regex extraction succeeds", func() {
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{Text: "I am not sure what to do here."},
			}}
			sel := selector.New(nil, newRAG(), fake)

			_, err := sel.Select(context.Background(), alert)
			Expect(err).To(MatchError(selector.ErrSelectionFailed))
		})

		It("fails the selection when the LLM returns a disallowed lambda function", func() {
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"rm-rf","parameters":{}}`}},
			}}
			sel := selector.New(nil, newRAG(), fake)

			_, err := sel.Select(context.Background(), alert)
			Expect(err).To(MatchError(selector.ErrSelectionFailed))
		})
	})

	Context("Phase 3: runbook enrichment", func() {
		It("inlines resolved runbook content into the prompt sent to the LLM", func() {
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-restart","parameters":{}}`}},
			}}
			alert.Annotations = map[string]string{"runbook_url": "https://runbooks.example.com/pod-restart.md"}
			sel := selector.New(nil, newRAG(), fake)
			sel.Runbook = &fakeRunbook{content: "Step 1: restart the pod."}

			_, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.LastInput.Messages[1].Content).To(ContainSubstring("Step 1: restart the pod."))
		})

		It("omits the runbook section without failing selection when resolution errors", func() {
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-restart","parameters":{}}`}},
			}}
			alert.Annotations = map[string]string{"runbook_url": "https://runbooks.example.com/missing.md"}
			sel := selector.New(nil, newRAG(), fake)
			sel.Runbook = &fakeRunbook{err: errors.New("404")}

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.LambdaFunction).To(Equal("pod-restart"))
			Expect(fake.LastInput.Messages[1].Content).NotTo(ContainSubstring("Runbook"))
		})
	})

	Context("Phase 4: validate & enrich", func() {
		It("defaults name and namespace from alert labels when the LLM omits them", func() {
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-restart","parameters":{}}`}},
			}}
			sel := selector.New(nil, newRAG(), fake)

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Name()).To(Equal("worker-0"))
			Expect(result.Namespace()).To(Equal("payments"))
		})

		It("defaults pod-restart's type parameter to pod", func() {
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-restart","parameters":{}}`}},
			}}
			sel := selector.New(nil, newRAG(), fake)

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Parameters["type"]).To(Equal("pod"))
		})

		It("defaults scale-deployment's replicas from the expected label when present", func() {
			alert.Labels["expected"] = "5"
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"scale-deployment","parameters":{}}`}},
			}}
			sel := selector.New(nil, newRAG(), fake)

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Parameters["replicas"]).To(Equal(5))
		})
	})

	Context("Phase 5: confidence calibration", func() {
		It("awards additive bonuses for reasoning length and resolved name/namespace, capped at 1.0", func() {
			longReasoning := "This pod has been crash looping for over ten minutes due to repeated OOMKilled events observed across multiple restarts, strongly indicating a memory limit misconfiguration rather than a transient failure."
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{
					Name:      "select_remediation",
					Arguments: `{"lambda_function":"pod-restart","parameters":{"name":"worker-0","namespace":"payments"},"reasoning":"` + longReasoning + `"}`,
				}},
			}}
			sel := selector.New(nil, newRAG(), fake)

			result, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Confidence).To(BeNumerically("<=", 1.0))
			Expect(result.Confidence).To(BeNumerically("~", 0.8))
		})

		It("adds only the name/namespace bonus to the base 0.5 when nothing else qualifies", func() {
			bareAlert := &models.Alert{AlertName: "Unknown"}
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-check-status","parameters":{"name":"x","namespace":"y"}}`}},
			}}
			sel := selector.New(nil, newRAG(), fake)

			result, err := sel.Select(context.Background(), bareAlert)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Confidence).To(Equal(0.6))
		})
	})

	Context("Phase 6: indexing", func() {
		It("records the selection into the RAG with success left unset", func() {
			rag := newRAG()
			fake := &llm.FakeClient{Responses: []llm.FakeResponse{
				{ToolCall: &llm.ToolCallChunk{Name: "select_remediation", Arguments: `{"lambda_function":"pod-restart","parameters":{"name":"worker-0","namespace":"payments"}}`}},
			}}
			sel := selector.New(nil, rag, fake)

			_, err := sel.Select(context.Background(), alert)
			Expect(err).NotTo(HaveOccurred())
			Expect(rag.Examples.Len()).To(Equal(1))
		})
	})
})
