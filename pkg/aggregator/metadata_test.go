package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beaconlabs/pulse/pkg/store"
)

func TestCentroidOf_AveragesMemberEmbeddings(t *testing.T) {
	byID := map[string]store.RawFeedback{
		"a": {RawFeedbackID: "a", Embedding: []float32{1, 0, 1}},
		"b": {RawFeedbackID: "b", Embedding: []float32{0, 1, 1}},
	}
	centroid := centroidOf([]string{"a", "b"}, byID)
	assert.Equal(t, []float32{0.5, 0.5, 1}, centroid)
}

func TestCentroidOf_EmptyClusterYieldsNil(t *testing.T) {
	assert.Nil(t, centroidOf(nil, map[string]store.RawFeedback{}))
}

func TestMetadataFor_IncludesCentroidAndClusterSize(t *testing.T) {
	meta := metadataFor([]string{"a", "b"}, []float32{0.5, 0.5})
	assert.Equal(t, []string{"a", "b"}, meta["raw_feedback_ids"])
	assert.Equal(t, 2, meta["cluster_size"])
	assert.Equal(t, []float32{0.5, 0.5}, meta["centroid"])
}
