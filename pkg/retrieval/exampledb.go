// Package retrieval implements the Example DB and Vector Store that back
// the Remediation Selector's RAG and few-shot phases: a JSON-backed
// similarity index and a bounded-LRU embedding index, plus the prompt
// formatting helpers that turn retrieved examples into prompt text.
package retrieval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jordigilh/agent-sre/pkg/models"
)

const maxExamples = 1000

// exampleFile is the on-disk shape of the Example DB file.
type exampleFile struct {
	Examples  []*models.RemediationExample `json:"examples"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// ExampleDB is a JSON-backed, append-mostly list of RemediationExamples
// bounded to maxExamples, evicting the oldest entries beyond that. Writes
// are serialized by a file-scoped mutex and persisted atomically (write to
// a temp file, then rename), per the spec's "single JSON file, file-scoped
// mutex" shared-resource policy.
type ExampleDB struct {
	mu       sync.Mutex
	path     string
	examples []*models.RemediationExample
}

// NewExampleDB loads path if it exists, or starts empty.
func NewExampleDB(path string) (*ExampleDB, error) {
	db := &ExampleDB{path: path}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, err
	}

	var f exampleFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	db.examples = f.Examples
	return db, nil
}

// AddExample appends example, evicting the oldest entries beyond
// maxExamples, and persists atomically.
func (db *ExampleDB) AddExample(example *models.RemediationExample) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if example.ID == "" {
		example.ID = models.ExampleID(example.AlertName, example.Labels)
	}
	if example.Timestamp.IsZero() {
		example.Timestamp = time.Now()
	}

	db.examples = append(db.examples, example)
	if len(db.examples) > maxExamples {
		sort.Slice(db.examples, func(i, j int) bool {
			return db.examples[i].Timestamp.Before(db.examples[j].Timestamp)
		})
		db.examples = db.examples[len(db.examples)-maxExamples:]
	}

	return db.persistLocked()
}

func (db *ExampleDB) persistLocked() error {
	f := exampleFile{Examples: db.examples, UpdatedAt: time.Now()}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(db.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := db.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, db.path)
}

// Len reports the current number of stored examples.
func (db *ExampleDB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.examples)
}

// FindSimilarInput parameterizes FindSimilarExamples.
type FindSimilarInput struct {
	AlertName      string
	Labels         map[string]string
	TopK           int
	MinSimilarity  float64
	OnlySuccessful bool
}

// ScoredExample pairs a stored example with its similarity score.
type ScoredExample struct {
	Example    *models.RemediationExample
	Similarity float64
}

var bonusKeys = map[string]bool{"alertname": true, "namespace": true, "kind": true}

// FindSimilarExamples scores every stored example with
// 0.6·𝟙[alertname==] + 0.4·label_overlap (label_overlap = matching keys /
// total distinct keys, +0.5 bonus if alertname/namespace/kind match), then
// returns the top-k at or above minSimilarity.
func (db *ExampleDB) FindSimilarExamples(in FindSimilarInput) []ScoredExample {
	db.mu.Lock()
	candidates := make([]*models.RemediationExample, len(db.examples))
	copy(candidates, db.examples)
	db.mu.Unlock()

	var scored []ScoredExample
	for _, ex := range candidates {
		if in.OnlySuccessful && (ex.Success == nil || !*ex.Success) {
			continue
		}
		score := scoreExample(in.AlertName, in.Labels, ex)
		if score >= in.MinSimilarity {
			scored = append(scored, ScoredExample{Example: ex, Similarity: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
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

func scoreExample(alertName string, labels map[string]string, ex *models.RemediationExample) float64 {
	var nameMatch float64
	if alertName != "" && alertName == ex.AlertName {
		nameMatch = 1.0
	}

	overlap := labelOverlap(labels, ex.Labels)
	return 0.6*nameMatch + 0.4*overlap
}

func labelOverlap(a, b map[string]string) float64 {
	distinct := map[string]bool{}
	for k := range a {
		distinct[k] = true
	}
	for k := range b {
		distinct[k] = true
	}
	if len(distinct) == 0 {
		return 0
	}

	var matching int
	var bonus float64
	for k, v := range a {
		if bv, ok := b[k]; ok && bv == v {
			matching++
			if bonusKeys[k] {
				bonus += 0.5
			}
		}
	}

	return float64(matching)/float64(len(distinct)) + bonus
}
