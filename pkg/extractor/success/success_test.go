package success

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldSample_Deterministic(t *testing.T) {
	a := ShouldSample("req-1", "eval-a", 0.5)
	b := ShouldSample("req-1", "eval-a", 0.5)
	assert.Equal(t, a, b)
}

func TestShouldSample_ZeroRateNeverSamples(t *testing.T) {
	assert.False(t, ShouldSample("req-1", "eval-a", 0))
}

func TestShouldSample_FullRateAlwaysSamples(t *testing.T) {
	assert.True(t, ShouldSample("req-1", "eval-a", 1))
}

func TestShouldSample_VariesAcrossRequests(t *testing.T) {
	seenTrue, seenFalse := false, false
	for i := 0; i < 200; i++ {
		if ShouldSample(fmt.Sprintf("req-%d", i), "eval-a", 0.5) {
			seenTrue = true
		} else {
			seenFalse = true
		}
	}
	assert.True(t, seenTrue)
	assert.True(t, seenFalse)
}
