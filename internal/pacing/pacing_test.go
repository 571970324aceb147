package pacing

import (
	"context"
	"image/color"
	"math"
	"testing"

	"github.com/keagan/adattention/internal/frames"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogramNormalized(t *testing.T) {
	a := New(DefaultConfig())
	h := a.Histogram(frames.Noise(64, 48, 2))
	require.Len(t, h, 512)

	var norm float64
	for _, v := range h {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestDeltaBetweenFrames(t *testing.T) {
	a := New(DefaultConfig())
	red := frames.Solid(32, 32, color.RGBA{R: 250, A: 255})
	blue := frames.Solid(32, 32, color.RGBA{B: 250, A: 255})

	same, err := a.ExtractTransition(context.Background(), frames.Frame{Image: red}, frames.Frame{Image: red})
	require.NoError(t, err)
	assert.Equal(t, 0.0, same)

	cut, err := a.ExtractTransition(context.Background(), frames.Frame{Image: red}, frames.Frame{Image: blue})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, cut, 1e-9)
}

func TestCuts(t *testing.T) {
	cuts := Cuts([]float64{0, 0, 1.4, 0, 0, 0, 1.4, 0})
	assert.Equal(t, []bool{false, false, true, false, false, false, true, false}, cuts)

	assert.Equal(t, []bool{false, false, false}, Cuts([]float64{0.2, 0.2, 0.2}))
	assert.Empty(t, Cuts(nil))
}

func TestCutRate(t *testing.T) {
	a := New(DefaultConfig())
	// window = 4 samples at 2 fps covers [i-2, i+1]
	rate := a.CutRate([]bool{false, false, true, false, false}, 2)
	assert.Equal(t, []float64{0, 0.5, 0.5, 0.5, 0.5}, rate)
}

func TestScorePeaksAtPreferredRate(t *testing.T) {
	a := New(Config{FStar: 0.6, Lambda: 0.4})
	assert.InDelta(t, 1.0, a.Score(0.6), 1e-12)
	assert.Less(t, a.Score(2.0), a.Score(1.0))
	assert.Less(t, a.Score(0), 1.0)

	series := a.Series([]float64{0, 0, 0}, 2)
	for _, v := range series {
		assert.InDelta(t, math.Exp(-0.4*0.36), v, 1e-12)
	}
}
