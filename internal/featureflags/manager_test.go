package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabledBooleanRules(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), "flag %s", name)
	}
	for _, name := range []string{"b", "d", "f"} {
		assert.False(t, m.Enabled(name, 1), "flag %s", name)
	}
	assert.False(t, m.Enabled("unknown", 1))
}

func TestEnabledPercentageRules(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%")

	assert.True(t, m.Enabled("always", 1))
	assert.False(t, m.Enabled("never", 1))

	// The same member lands in the same bucket on every evaluation.
	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", 42))
	}

	// Anonymous viewers stay outside partial rollouts.
	assert.False(t, m.Enabled("canary", 0))
	assert.True(t, m.Enabled("always", 0))
}

func TestRolloutSpreadsAcrossUsers(t *testing.T) {
	m := NewManager("half=50%")

	inside := 0
	for userID := uint(1); userID <= 1000; userID++ {
		if m.Enabled("half", userID) {
			inside++
		}
	}
	// Buckets hash roughly uniformly; a 50% rule should land near half.
	assert.Greater(t, inside, 350)
	assert.Less(t, inside, 650)
}

func TestParseSkipsMalformedPairs(t *testing.T) {
	m := NewManager(" bad ,x=on, y = 20% ,z=off ,w=150%,v=maybe")

	raw := m.Raw()
	require.Len(t, raw, 3)
	assert.Equal(t, "on", raw["x"])
	assert.Equal(t, "20%", raw["y"])
	assert.Equal(t, "off", raw["z"])

	snap := m.Snapshot(123)
	assert.Len(t, snap, 3)
	assert.True(t, snap["x"])
	assert.False(t, snap["z"])
}

func TestNilManagerIsAllOff(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled("anything", 1))
}
