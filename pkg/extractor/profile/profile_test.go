package profile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/pulse/pkg/store"
	"github.com/beaconlabs/pulse/pkg/window"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
}

func TestExpirationAt_InfinityWhenNilTTL(t *testing.T) {
	assert.Nil(t, expirationAt(nil))
}

func TestContainsStr(t *testing.T) {
	assert.True(t, containsStr([]string{"a", "b"}, "b"))
	assert.False(t, containsStr([]string{"a", "b"}, "c"))
}

// fakeAdapter is a deterministic stand-in for llmadapter.Adapter: gate
// answers gateResult, extract always returns extractItems, embed returns a
// fixed vector so tests don't need a real embedding backend.
type fakeAdapter struct {
	gateResult   bool
	extractItems []item
}

func (f *fakeAdapter) StructuredGenerate(ctx context.Context, schema json.RawMessage, prompt string) (json.RawMessage, error) {
	if string(schema) == string(gateSchema) {
		return json.Marshal(map[string]bool{"should_extract": f.gateResult})
	}
	return json.Marshal(extractResponse{Items: f.extractItems})
}

func (f *fakeAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func TestRun_GateFalseEmitsEmptyDelta(t *testing.T) {
	a := &fakeAdapter{gateResult: false}
	e := New(nil, a)
	delta, err := e.Run(context.Background(), "user-1", window.Window{
		Interactions: []store.Interaction{{Role: store.RoleUser, Content: "hi", Source: "chat"}},
		WriteStatus:  store.StatusCurrent,
	}, Config{GatePrompt: "should we extract?"}, nil)
	require.NoError(t, err)
	assert.Empty(t, delta.Add)
	assert.Empty(t, delta.Remove)
	assert.Empty(t, delta.Keep)
}

func TestRun_KeepActionRequiresNoStoreWrite(t *testing.T) {
	a := &fakeAdapter{gateResult: true, extractItems: []item{
		{Action: ActionKeep, ProfileID: "p-1"},
	}}
	// No gate prompt configured: gate is skipped entirely. "keep" never
	// reaches apply()'s archive/insert loops, so a nil store is safe here.
	e := New(nil, a)
	delta, err := e.Run(context.Background(), "user-1", window.Window{
		Interactions: []store.Interaction{{Role: store.RoleUser, Content: "hi", Source: "chat"}},
		WriteStatus:  store.StatusCurrent,
	}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1"}, delta.Keep)
	assert.Empty(t, delta.Add)
	assert.Empty(t, delta.Remove)
}
