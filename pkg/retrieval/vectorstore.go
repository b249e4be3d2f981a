package retrieval

import (
	"container/list"
	"crypto/sha256"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jordigilh/agent-sre/pkg/models"
)

const maxVectorEntries = 5000

// embeddingDim is the fallback embedding's dimensionality, per the
// "deterministic 128-dim hash-bit vector" contract.
const embeddingDim = 128

// EmbeddingFunc produces a semantic embedding for a piece of text. Pluggable
// so a real embedding model can be wired in; HashEmbedding below is used
// when none is configured.
type EmbeddingFunc func(text string) []float64

// HashEmbedding is the deterministic, non-semantic fallback: it folds a
// SHA-256 digest of text into a 128-dim {+1,-1} vector, normalized to unit
// length. Two different strings almost always produce different vectors,
// but no embedding model is involved, so it is not semantic similarity —
// it only keeps identical inputs identical and nothing else.
func HashEmbedding(text string) []float64 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, embeddingDim)
	for i := 0; i < embeddingDim; i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		bit := (sum[byteIdx%len(sum)] >> bitIdx) & 1
		if bit == 1 {
			vec[i] = 1
		} else {
			vec[i] = -1
		}
	}
	return normalize(vec)
}

func normalize(v []float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func embeddingKey(alertName string, labels map[string]string) string {
	return models.ExampleID(alertName, labels)
}

// VectorStore is a bounded-LRU embedding index of AlertEmbeddings.
// Embedding is pluggable via EmbeddingFunc; HashEmbedding is the default.
type VectorStore struct {
	mu        sync.Mutex
	capacity  int
	embedFunc EmbeddingFunc
	order     *list.List
	index     map[string]*list.Element
}

type vectorEntry struct {
	key   string
	entry *models.AlertEmbedding
}

// NewVectorStore builds an empty store bounded to maxVectorEntries. A nil
// embed passes HashEmbedding.
func NewVectorStore(embed EmbeddingFunc) *VectorStore {
	if embed == nil {
		embed = HashEmbedding
	}
	return &VectorStore{
		capacity:  maxVectorEntries,
		embedFunc: embed,
		order:     list.New(),
		index:     make(map[string]*list.Element),
	}
}

// IndexAlert embeds and stores (alert, lambda_function, parameters,
// success) as an AlertEmbedding, evicting the least-recently-used entry if
// the store is at capacity.
func (v *VectorStore) IndexAlert(alert *models.Alert, lambdaFunction string, parameters map[string]interface{}, success *bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := embeddingKey(alert.AlertName, alert.Labels)
	embedding := v.embedFunc(promptableText(alert.AlertName, alert.Labels))

	ae := &models.AlertEmbedding{
		RemediationExample: models.RemediationExample{
			ID:             key,
			AlertName:      alert.AlertName,
			Labels:         alert.Labels,
			LambdaFunction: lambdaFunction,
			Parameters:     parameters,
			Success:        success,
		},
		Embedding: embedding,
	}
	ae.Timestamp = time.Now()

	if el, ok := v.index[key]; ok {
		v.order.MoveToFront(el)
		el.Value.(*vectorEntry).entry = ae
		return
	}

	el := v.order.PushFront(&vectorEntry{key: key, entry: ae})
	v.index[key] = el

	if v.order.Len() > v.capacity {
		oldest := v.order.Back()
		if oldest != nil {
			v.order.Remove(oldest)
			delete(v.index, oldest.Value.(*vectorEntry).key)
		}
	}
}

// SimilaritySearchInput parameterizes SimilaritySearch.
type SimilaritySearchInput struct {
	AlertName      string
	Labels         map[string]string
	TopK           int
	MinSimilarity  float64
	OnlySuccessful bool
}

// SimilaritySearch computes cosine similarity between the query's embedding
// and every stored embedding, returning the top-k at or above
// minSimilarity (ties broken newest-first).
func (v *VectorStore) SimilaritySearch(in SimilaritySearchInput) []ScoredExample {
	query := v.embedFunc(promptableText(in.AlertName, in.Labels))

	v.mu.Lock()
	defer v.mu.Unlock()

	var scored []ScoredExample
	for el := v.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*vectorEntry).entry
		if in.OnlySuccessful && (entry.Success == nil || !*entry.Success) {
			continue
		}
		sim := cosineSimilarity(query, entry.Embedding)
		if sim >= in.MinSimilarity {
			scored = append(scored, ScoredExample{Example: &entry.RemediationExample, Similarity: sim})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Example.Timestamp.After(scored[j].Example.Timestamp)
	})

	topK := in.TopK
	if topK <= 0 || topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK]
}

// Len reports the current number of stored embeddings.
func (v *VectorStore) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.order.Len()
}

func promptableText(alertName string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text := alertName
	for _, k := range keys {
		text += "|" + k + "=" + labels[k]
	}
	return text
}
