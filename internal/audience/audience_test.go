package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetsAreConsistent(t *testing.T) {
	for _, key := range Keys() {
		t.Run(key, func(t *testing.T) {
			p, err := Lookup(key)
			require.NoError(t, err)
			assert.Equal(t, key, p.Key)

			var sum float64
			for _, w := range p.Weights {
				assert.GreaterOrEqual(t, w, 0.0)
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9)

			th := p.Thresholds
			assert.Greater(t, th.Excellent, th.Good)
			assert.Greater(t, th.Good, th.Fair)
			assert.Greater(t, th.HookExcellent, th.HookGood)
			assert.Greater(t, th.HookGood, th.HookFair)

			for _, goal := range []string{GoalHook, GoalExplainer, GoalCalmBrand} {
				assert.Greater(t, p.PacingFor(goal).Lambda, 0.0)
			}
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("martians")
	assert.Error(t, err)
}

func TestLookupCopiesWeights(t *testing.T) {
	p := MustLookup(Default)
	p.Weights["saliency"] = 99

	again := MustLookup(Default)
	assert.Equal(t, 0.50, again.Weights["saliency"])
}

func TestPacingFallback(t *testing.T) {
	p := MustLookup("children")
	assert.Equal(t, p.Pacing[GoalHook], p.PacingFor("unknown"))
	assert.True(t, ValidGoal(GoalCalmBrand))
	assert.False(t, ValidGoal("loud"))
}
