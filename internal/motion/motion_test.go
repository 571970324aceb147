package motion

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/keagan/adattention/internal/frames"
	"github.com/keagan/adattention/internal/fusion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdenticalFramesHaveZeroEnergy(t *testing.T) {
	est := New(DefaultConfig())
	img := frames.Noise(200, 120, 4)

	energy, err := est.Energy(img, img)
	require.NoError(t, err)
	assert.Equal(t, 0.0, energy)
}

func TestShiftedPatternMoves(t *testing.T) {
	est := New(DefaultConfig())
	grey := frames.Solid(160, 90, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	a := frames.WithSquare(grey, 40, 30, 30, color.White)
	b := frames.WithSquare(grey, 42, 30, 30, color.White)

	p := frames.LumaPlane(a, 160, 0)
	c := frames.LumaPlane(b, 160, 0)
	field, err := est.Flow(p, c)
	require.NoError(t, err)

	var sumU float64
	for _, u := range field.U {
		sumU += u
	}
	assert.Greater(t, sumU, 0.0, "square moved right")

	energy, err := est.Energy(a, b)
	require.NoError(t, err)
	assert.Greater(t, energy, 0.0)
	assert.False(t, math.IsNaN(energy))
}

func TestEnergyIsResolutionIndependent(t *testing.T) {
	est := New(DefaultConfig())
	bright := color.RGBA{R: 255, G: 240, B: 40, A: 255}
	clip := func(w, off int) *image.RGBA {
		h := w * 9 / 16
		grey := frames.Solid(w, h, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		s := h / 4
		return frames.WithSquare(grey, w/8+off, (h-s)/2, s, bright)
	}

	// 160 is the analysis width itself, 640 goes through the resize
	native, err := est.Energy(clip(160, 0), clip(160, 10))
	require.NoError(t, err)
	scaled, err := est.Energy(clip(640, 0), clip(640, 40))
	require.NoError(t, err)

	require.Greater(t, native, 0.0)
	assert.InEpsilon(t, native, scaled, 0.1)

	mid, err := est.Energy(clip(320, 0), clip(320, 20))
	require.NoError(t, err)
	assert.InEpsilon(t, native, mid, 0.1)
}

func TestCrossingObjectReachesMotionRange(t *testing.T) {
	est := New(DefaultConfig())
	// bright square crossing a 160x90 frame in 1.5 s, sampled at 2 fps from 30 fps
	clip := frames.MovingObjectClip(160, 90, 30, 3, 1.5)
	sampled := []*image.RGBA{clip[0], clip[15], clip[30], clip[45]}

	var energies []float64
	for i := 1; i < len(sampled); i++ {
		e, err := est.Energy(sampled[i-1], sampled[i])
		require.NoError(t, err)
		energies = append(energies, e)
	}

	motionRange := fusion.DefaultConfig().Ranges["motion"]
	for i, n := range fusion.Normalize(energies, motionRange, fusion.NormalizeFixed) {
		assert.GreaterOrEqual(t, n, 0.3, "transition %d: raw energy %.5f", i, energies[i])
	}
}

func TestFlowSizeMismatch(t *testing.T) {
	_, err := New(DefaultConfig()).Flow(frames.NewPlane(4, 4), frames.NewPlane(5, 4))
	assert.Error(t, err)
}

func TestAlign(t *testing.T) {
	tests := []struct {
		name        string
		transitions []float64
		frames      int
		want        []float64
	}{
		{"no frames", nil, 0, nil},
		{"single frame", nil, 1, []float64{0}},
		{"two frames", []float64{0.4}, 2, []float64{0.4, 0.4}},
		{"many", []float64{0.1, 0.2, 0.3}, 4, []float64{0.1, 0.1, 0.2, 0.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Align(tt.transitions, tt.frames))
		})
	}
}

func TestExtractTransitionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img := frames.Noise(32, 32, 1)
	_, err := New(DefaultConfig()).ExtractTransition(ctx, frames.Frame{Image: img}, frames.Frame{Image: img})
	assert.ErrorIs(t, err, context.Canceled)
}
