package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/agent-sre/pkg/models"
)

func TestHashEmbedding_DeterministicAndUnitLength(t *testing.T) {
	a := HashEmbedding("PodCrashLooping|namespace=prod")
	b := HashEmbedding("PodCrashLooping|namespace=prod")
	require.Equal(t, a, b)

	var sumSq float64
	for _, v := range a {
		sumSq += v * v
	}
	assert.InDelta(t, 1.0, sumSq, 0.0001)
}

func TestVectorStore_SimilaritySearchReturnsExactMatchFirst(t *testing.T) {
	vs := NewVectorStore(nil)

	vs.IndexAlert(&models.Alert{AlertName: "PodCrashLooping", Labels: map[string]string{"namespace": "prod"}}, "pod-restart", nil, nil)
	vs.IndexAlert(&models.Alert{AlertName: "NodeNotReady", Labels: map[string]string{"namespace": "staging"}}, "pod-restart", nil, nil)

	results := vs.SimilaritySearch(SimilaritySearchInput{
		AlertName: "PodCrashLooping",
		Labels:    map[string]string{"namespace": "prod"},
		TopK:      1,
	})
	require.Len(t, results, 1)
	assert.Equal(t, "PodCrashLooping", results[0].Example.AlertName)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.0001)
}

func TestVectorStore_EvictsLeastRecentlyUsedBeyondCapacity(t *testing.T) {
	vs := NewVectorStore(nil)
	vs.capacity = 2

	vs.IndexAlert(&models.Alert{AlertName: "A"}, "pod-restart", nil, nil)
	vs.IndexAlert(&models.Alert{AlertName: "B"}, "pod-restart", nil, nil)
	vs.IndexAlert(&models.Alert{AlertName: "C"}, "pod-restart", nil, nil)

	assert.Equal(t, 2, vs.Len())
}

func TestVectorStore_OnlySuccessfulFilters(t *testing.T) {
	vs := NewVectorStore(nil)
	failed := false
	vs.IndexAlert(&models.Alert{AlertName: "A"}, "pod-restart", nil, &failed)

	results := vs.SimilaritySearch(SimilaritySearchInput{AlertName: "A", OnlySuccessful: true})
	assert.Empty(t, results)
}
