// Package motion estimates dense optical flow between consecutive frames and
// reduces it to a resolution-independent motion energy.
package motion

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/keagan/adattention/internal/frames"
)

// Config controls the flow estimator
type Config struct {
	AnalysisWidth int     // frames are downscaled to this width, aspect kept
	Iterations    int     // Horn-Schunck relaxation passes per pyramid level
	Smoothness    float64 // alpha, in grey levels
	BlurSigma     float64 // pre-smoothing on the analysis grid, in pixels
	MinLevelSize  int     // coarsest pyramid level keeps at least this many pixels per side
}

// DefaultConfig returns the standard estimator settings
func DefaultConfig() Config {
	return Config{
		AnalysisWidth: 160,
		Iterations:    64,
		Smoothness:    15,
		BlurSigma:     1.0,
		MinLevelSize:  12,
	}
}

// Estimator computes motion energy between frame pairs. It is stateless and
// safe for concurrent use.
type Estimator struct {
	cfg Config
}

// New creates an estimator, filling zero fields from DefaultConfig
func New(cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.AnalysisWidth <= 0 {
		cfg.AnalysisWidth = def.AnalysisWidth
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = def.Iterations
	}
	if cfg.Smoothness <= 0 {
		cfg.Smoothness = def.Smoothness
	}
	if cfg.BlurSigma <= 0 {
		cfg.BlurSigma = def.BlurSigma
	}
	if cfg.MinLevelSize <= 0 {
		cfg.MinLevelSize = def.MinLevelSize
	}
	return &Estimator{cfg: cfg}
}

// Name identifies the signal
func (e *Estimator) Name() string { return "motion" }

// Field is a dense flow field in analysis pixels
type Field struct {
	W, H int
	U, V []float64
}

// MeanMagnitude returns the mean flow vector length
func (f *Field) MeanMagnitude() float64 {
	if len(f.U) == 0 {
		return 0
	}
	var sum float64
	for i := range f.U {
		sum += math.Hypot(f.U[i], f.V[i])
	}
	return sum / float64(len(f.U))
}

// Flow estimates dense flow from prev to cur, two planes of equal size. Both
// are smoothed, then Horn-Schunck runs coarse to fine: each level refines the
// upsampled flow of the level below against cur warped by it.
func (e *Estimator) Flow(prev, cur *frames.Plane) (*Field, error) {
	if prev.W != cur.W || prev.H != cur.H {
		return nil, fmt.Errorf("plane size mismatch: %dx%d vs %dx%d", prev.W, prev.H, cur.W, cur.H)
	}

	prevLevels := pyramid(blur(prev, e.cfg.BlurSigma), e.cfg.MinLevelSize)
	curLevels := pyramid(blur(cur, e.cfg.BlurSigma), e.cfg.MinLevelSize)

	var field *Field
	for lvl := len(prevLevels) - 1; lvl >= 0; lvl-- {
		p, c := prevLevels[lvl], curLevels[lvl]
		if field == nil {
			field = &Field{W: p.W, H: p.H, U: make([]float64, p.W*p.H), V: make([]float64, p.W*p.H)}
		} else {
			field = upsample(field, p.W, p.H)
		}

		du, dv := e.hornSchunck(p, warp(c, field))
		for i := range field.U {
			field.U[i] += du[i]
			field.V[i] += dv[i]
		}
	}
	return field, nil
}

// hornSchunck solves for the flow increment between two planes of equal size
func (e *Estimator) hornSchunck(prev, cur *frames.Plane) (u, v []float64) {
	w, h := cur.W, cur.H
	n := w * h
	ex := make([]float64, n)
	ey := make([]float64, n)
	et := make([]float64, n)

	// gradients averaged over the 2x2x2 cube (Horn & Schunck 1981)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			ex[i] = 0.25 * (prev.At(x+1, y) - prev.At(x, y) +
				prev.At(x+1, y+1) - prev.At(x, y+1) +
				cur.At(x+1, y) - cur.At(x, y) +
				cur.At(x+1, y+1) - cur.At(x, y+1))
			ey[i] = 0.25 * (prev.At(x, y+1) - prev.At(x, y) +
				prev.At(x+1, y+1) - prev.At(x+1, y) +
				cur.At(x, y+1) - cur.At(x, y) +
				cur.At(x+1, y+1) - cur.At(x+1, y))
			et[i] = 0.25 * (cur.At(x, y) - prev.At(x, y) +
				cur.At(x+1, y) - prev.At(x+1, y) +
				cur.At(x, y+1) - prev.At(x, y+1) +
				cur.At(x+1, y+1) - prev.At(x+1, y+1))
		}
	}

	u = make([]float64, n)
	v = make([]float64, n)
	nextU := make([]float64, n)
	nextV := make([]float64, n)
	alpha2 := e.cfg.Smoothness * e.cfg.Smoothness

	for iter := 0; iter < e.cfg.Iterations; iter++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				ub := neighbourAverage(u, w, h, x, y)
				vb := neighbourAverage(v, w, h, x, y)
				t := (ex[i]*ub + ey[i]*vb + et[i]) / (alpha2 + ex[i]*ex[i] + ey[i]*ey[i])
				nextU[i] = ub - ex[i]*t
				nextV[i] = vb - ey[i]*t
			}
		}
		u, nextU = nextU, u
		v, nextV = nextV, v
	}
	return u, v
}

// Energy returns mean flow magnitude divided by the analysis diagonal, so the
// value does not depend on the source resolution.
func (e *Estimator) Energy(prev, cur image.Image) (float64, error) {
	p := frames.LumaPlane(prev, e.cfg.AnalysisWidth, 0)
	c := frames.LumaPlane(cur, e.cfg.AnalysisWidth, 0)
	field, err := e.Flow(p, c)
	if err != nil {
		return 0, err
	}
	diag := math.Hypot(float64(c.W), float64(c.H))
	if diag == 0 {
		return 0, nil
	}
	return field.MeanMagnitude() / diag, nil
}

// ExtractTransition returns the motion energy of the prev -> cur transition
func (e *Estimator) ExtractTransition(ctx context.Context, prev, cur frames.Frame) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return e.Energy(prev.Image, cur.Image)
}

// Align maps per-transition values onto frames. Frame i takes the transition
// that ends at it; frame 0 copies frame 1. A single frame gets 0.
func Align(transitions []float64, frameCount int) []float64 {
	if frameCount <= 0 {
		return nil
	}
	out := make([]float64, frameCount)
	if frameCount == 1 || len(transitions) == 0 {
		return out
	}
	for i := 1; i < frameCount; i++ {
		if i-1 < len(transitions) {
			out[i] = transitions[i-1]
		} else {
			out[i] = transitions[len(transitions)-1]
		}
	}
	out[0] = out[1]
	return out
}

// neighbourAverage is the Horn-Schunck Laplacian stencil: 1/6 for edge
// neighbours, 1/12 for diagonals, clamped at borders.
func neighbourAverage(f []float64, w, h, x, y int) float64 {
	at := func(xx, yy int) float64 {
		if xx < 0 {
			xx = 0
		} else if xx >= w {
			xx = w - 1
		}
		if yy < 0 {
			yy = 0
		} else if yy >= h {
			yy = h - 1
		}
		return f[yy*w+xx]
	}
	return (at(x-1, y)+at(x+1, y)+at(x, y-1)+at(x, y+1))/6 +
		(at(x-1, y-1)+at(x+1, y-1)+at(x-1, y+1)+at(x+1, y+1))/12
}
