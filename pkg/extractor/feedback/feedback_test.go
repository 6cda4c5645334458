package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beaconlabs/pulse/pkg/store"
	"github.com/beaconlabs/pulse/pkg/window"
)

func TestAnySourceMatches(t *testing.T) {
	w := window.Window{Interactions: []store.Interaction{{Source: "chat"}, {Source: "email"}}}
	assert.True(t, anySourceMatches(w, []string{"email"}))
	assert.False(t, anySourceMatches(w, []string{"sms"}))
}

func TestRenderWindow_IncludesEveryInteraction(t *testing.T) {
	w := window.Window{Interactions: []store.Interaction{
		{Role: store.RoleUser, Content: "hello"},
		{Role: store.RoleAgent, Content: "hi there"},
	}}
	out := renderWindow(w)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "hi there")
}
