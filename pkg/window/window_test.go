package window

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beaconlabs/pulse/pkg/store"
)

func TestFilterBySources_EmptyMeansAll(t *testing.T) {
	in := []store.Interaction{{Source: "chat"}, {Source: "email"}}
	out := filterBySources(in, nil)
	assert.Equal(t, in, out)
}

func TestFilterBySources_Restricts(t *testing.T) {
	in := []store.Interaction{{Source: "chat"}, {Source: "email"}, {Source: "chat"}}
	out := filterBySources(in, []string{"chat"})
	assert.Len(t, out, 2)
	for _, i := range out {
		assert.Equal(t, "chat", i.Source)
	}
}

func TestAssembleRerun_ChunksByWindowSize(t *testing.T) {
	all := make([]store.Interaction, 0, 25)
	for i := 0; i < 25; i++ {
		all = append(all, store.Interaction{InteractionID: int64(i), Source: "chat"})
	}
	windows := chunkRerun(all, 10)
	assert.Len(t, windows, 3)
	assert.Len(t, windows[0].Interactions, 10)
	assert.Len(t, windows[1].Interactions, 10)
	assert.Len(t, windows[2].Interactions, 5)
	for _, w := range windows {
		assert.Equal(t, store.StatusPending, w.WriteStatus)
	}
	assert.Equal(t, 3, windows[0].TotalChunks)
}

func TestAssembleRerun_EmptyYieldsNoWindows(t *testing.T) {
	assert.Empty(t, chunkRerun(nil, 10))
}
