package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCluster_DenseGroupFormsOneCluster(t *testing.T) {
	points := []point{
		{id: "a", embedding: []float32{1, 0, 0}},
		{id: "b", embedding: []float32{0.99, 0.01, 0}},
		{id: "c", embedding: []float32{0.98, 0.02, 0}},
		{id: "d", embedding: []float32{0, 1, 0}}, // far outlier, noise
	}
	clusters := cluster(points, DefaultClusterDistance, 2)
	assert.Len(t, clusters, 1)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, clusters[0])
}

func TestCluster_BelowMinNeighborsIsNoise(t *testing.T) {
	points := []point{
		{id: "a", embedding: []float32{1, 0}},
		{id: "b", embedding: []float32{0, 1}},
	}
	clusters := cluster(points, DefaultClusterDistance, 2)
	assert.Empty(t, clusters)
}

func TestCluster_EmptyInput(t *testing.T) {
	assert.Empty(t, cluster(nil, DefaultClusterDistance, 1))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, jaccard([]string{"a", "b"}, []string{"b", "a"}))
	assert.InDelta(t, 1.0/3, jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Equal(t, 0.0, jaccard([]string{"a"}, []string{"b"}))
}

func TestOverlapRatio(t *testing.T) {
	assert.Equal(t, 1.0, overlapRatio([]string{"a", "b"}, []string{"a", "b", "c"}))
	assert.InDelta(t, 0.5, overlapRatio([]string{"a", "b"}, []string{"a"}), 1e-9)
	assert.Equal(t, 0.0, overlapRatio(nil, []string{"a"}))
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, cosineDistance([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 1.0, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
}
