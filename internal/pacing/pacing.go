// Package pacing measures edit pacing: colour-histogram change between
// consecutive frames, detected cuts, and how close the local cut rate is to a
// preferred rate.
package pacing

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/keagan/adattention/internal/frames"
)

// Config controls pacing analysis
type Config struct {
	Bins          int     // histogram bins per RGB channel
	AnalysisWidth int     // frames are downscaled to this width before binning
	Window        float64 // cut-rate averaging window in seconds
	FStar         float64 // preferred cuts per second
	Lambda        float64 // score falloff around FStar
}

// DefaultConfig returns the standard pacing settings (general audience, hook)
func DefaultConfig() Config {
	return Config{
		Bins:          8,
		AnalysisWidth: 160,
		Window:        2.0,
		FStar:         0.5,
		Lambda:        0.5,
	}
}

// Analyzer computes histogram deltas and pacing scores
type Analyzer struct {
	cfg Config
}

// New creates an analyzer, filling zero fields from DefaultConfig
func New(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.Bins <= 0 {
		cfg.Bins = def.Bins
	}
	if cfg.AnalysisWidth <= 0 {
		cfg.AnalysisWidth = def.AnalysisWidth
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Lambda <= 0 {
		cfg.Lambda = def.Lambda
	}
	return &Analyzer{cfg: cfg}
}

// Name identifies the signal
func (a *Analyzer) Name() string { return "pacing" }

// Histogram returns the L2-normalized joint RGB histogram of img
func (a *Analyzer) Histogram(img image.Image) []float64 {
	var small *image.NRGBA
	if img.Bounds().Dx() > a.cfg.AnalysisWidth {
		small = imaging.Resize(img, a.cfg.AnalysisWidth, 0, imaging.Box)
	} else {
		small = imaging.Clone(img)
	}
	bins := a.cfg.Bins
	hist := make([]float64, bins*bins*bins)
	for i := 0; i+3 < len(small.Pix); i += 4 {
		r := int(small.Pix[i]) * bins / 256
		g := int(small.Pix[i+1]) * bins / 256
		b := int(small.Pix[i+2]) * bins / 256
		hist[(r*bins+g)*bins+b]++
	}

	var norm float64
	for _, v := range hist {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range hist {
			hist[i] /= norm
		}
	}
	return hist
}

// Delta is the L2 distance between two normalized histograms
func Delta(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ExtractTransition returns the histogram delta of the prev -> cur transition
func (a *Analyzer) ExtractTransition(ctx context.Context, prev, cur frames.Frame) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return Delta(a.Histogram(prev.Image), a.Histogram(cur.Image)), nil
}

// Cuts flags transitions whose delta exceeds mean + 1 std of the series
func Cuts(deltas []float64) []bool {
	out := make([]bool, len(deltas))
	if len(deltas) == 0 {
		return out
	}
	var mean float64
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))
	var ss float64
	for _, d := range deltas {
		ss += (d - mean) * (d - mean)
	}
	sd := math.Sqrt(ss/float64(len(deltas))) + 1e-6
	for i, d := range deltas {
		out[i] = d > mean+sd
	}
	return out
}

// CutRate is the centred moving average of cut events over the window,
// expressed in cuts per second.
func (a *Analyzer) CutRate(cuts []bool, fps float64) []float64 {
	window := int(fps * a.cfg.Window)
	if window < 1 {
		window = 1
	}
	rate := make([]float64, len(cuts))
	for i := range cuts {
		lo := i - window/2
		hi := i + (window-1)/2
		var events int
		for j := lo; j <= hi; j++ {
			if j >= 0 && j < len(cuts) && cuts[j] {
				events++
			}
		}
		rate[i] = float64(events) / float64(window) * fps
	}
	return rate
}

// Score maps a cut rate onto [0,1], peaking at FStar
func (a *Analyzer) Score(rate float64) float64 {
	d := rate - a.cfg.FStar
	return math.Exp(-a.cfg.Lambda * d * d)
}

// Series turns per-transition deltas into per-transition pacing scores
func (a *Analyzer) Series(deltas []float64, fps float64) []float64 {
	rates := a.CutRate(Cuts(deltas), fps)
	out := make([]float64, len(rates))
	for i, r := range rates {
		out[i] = a.Score(r)
	}
	return out
}
