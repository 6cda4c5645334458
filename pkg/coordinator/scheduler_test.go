package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beaconlabs/pulse/pkg/window"
)

func TestSourceAllowed_EmptyFilterAllowsEverything(t *testing.T) {
	assert.True(t, sourceAllowed("chat", nil))
	assert.True(t, sourceAllowed("anything", []string{}))
}

func TestSourceAllowed_RestrictsToEnabledSources(t *testing.T) {
	assert.True(t, sourceAllowed("chat", []string{"chat", "email"}))
	assert.False(t, sourceAllowed("sms", []string{"chat", "email"}))
}

func TestScopeNames_AreDistinctAcrossComponents(t *testing.T) {
	scopes := map[string]bool{
		profileScope("prefs", "u1"):       true,
		feedbackScope("tone", "v1"):       true,
		aggregatorScope("tone", "v1"):     true,
		successScope("helpfulness", "r1"): true,
	}
	assert.Len(t, scopes, 4)
}

func TestResolveOverrides_AppliesPerExtractorOverridesOverDefaults(t *testing.T) {
	size, stride := 30, 15
	ov := resolveOverrides(nil, &size, &stride, []string{"chat"}, 10, 5)
	assert.Equal(t, window.Overrides{WindowSize: 30, Stride: 15, Sources: []string{"chat"}}, ov)
}

func TestResolveOverrides_FallsBackToDefaultsWhenUnset(t *testing.T) {
	ov := resolveOverrides(nil, nil, nil, nil, 10, 5)
	assert.Equal(t, 10, ov.WindowSize)
	assert.Equal(t, 5, ov.Stride)
}
