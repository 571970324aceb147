package motion

import (
	"math"

	"github.com/keagan/adattention/internal/frames"
)

// blur applies a separable Gaussian with radius ceil(3σ), clamping at borders.
// Every frame goes through it on the analysis grid, so frames that were
// already at analysis size and frames that were downscaled end up with the
// same edge profile.
func blur(p *frames.Plane, sigma float64) *frames.Plane {
	if sigma <= 0 {
		return p
	}
	r := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		k := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+r] = k
		sum += k
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := frames.NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var acc float64
			for j := -r; j <= r; j++ {
				acc += kernel[j+r] * p.At(x+j, y)
			}
			tmp.Pix[y*p.W+x] = acc
		}
	}
	out := frames.NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var acc float64
			for j := -r; j <= r; j++ {
				acc += kernel[j+r] * tmp.At(x, y+j)
			}
			out.Pix[y*p.W+x] = acc
		}
	}
	return out
}

// pyramid returns p followed by successive 2×2 averages, stopping before a
// level would drop below minSide pixels on its shorter side.
func pyramid(p *frames.Plane, minSide int) []*frames.Plane {
	levels := []*frames.Plane{p}
	for {
		top := levels[len(levels)-1]
		if min(top.W, top.H)/2 < minSide {
			return levels
		}
		levels = append(levels, downsample(top))
	}
}

func downsample(p *frames.Plane) *frames.Plane {
	out := frames.NewPlane((p.W+1)/2, (p.H+1)/2)
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			out.Pix[y*out.W+x] = (p.At(2*x, 2*y) + p.At(2*x+1, 2*y) +
				p.At(2*x, 2*y+1) + p.At(2*x+1, 2*y+1)) / 4
		}
	}
	return out
}

// upsample resizes f to w×h bilinearly and rescales the vectors to the new grid
func upsample(f *Field, w, h int) *Field {
	sx := float64(f.W) / float64(w)
	sy := float64(f.H) / float64(h)
	u := &frames.Plane{W: f.W, H: f.H, Pix: f.U}
	v := &frames.Plane{W: f.W, H: f.H, Pix: f.V}

	out := &Field{W: w, H: h, U: make([]float64, w*h), V: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			out.U[y*w+x] = bilinear(u, fx, fy) / sx
			out.V[y*w+x] = bilinear(v, fx, fy) / sy
		}
	}
	return out
}

// warp samples p at every pixel displaced by f, so that a perfect flow maps
// cur back onto prev.
func warp(p *frames.Plane, f *Field) *frames.Plane {
	out := frames.NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			i := y*p.W + x
			out.Pix[i] = bilinear(p, float64(x)+f.U[i], float64(y)+f.V[i])
		}
	}
	return out
}

func bilinear(p *frames.Plane, fx, fy float64) float64 {
	x0 := math.Floor(fx)
	y0 := math.Floor(fy)
	ax := fx - x0
	ay := fy - y0
	x, y := int(x0), int(y0)
	return p.At(x, y)*(1-ax)*(1-ay) +
		p.At(x+1, y)*ax*(1-ay) +
		p.At(x, y+1)*(1-ax)*ay +
		p.At(x+1, y+1)*ax*ay
}
