package saliency

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/keagan/adattention/internal/frames"
)

// Concentration metrics
const (
	MetricTopMass = "top_mass" // share of saliency mass in the brightest pixels
	MetricCenter  = "center"   // share of saliency mass under a centred Gaussian
)

// Config controls the saliency extractor
type Config struct {
	AnalysisSize  int     // side of the square analysis grid
	SmoothKernel  int     // box filter size applied to the log spectrum
	BlurSigma     float64 // Gaussian blur applied to the reconstructed map
	TopFraction   float64 // pixel share counted by the top_mass metric
	FlatThreshold float64 // luma std below which a frame has no structure
	Metric        string
}

// DefaultConfig returns the standard extractor settings
func DefaultConfig() Config {
	return Config{
		AnalysisSize:  64,
		SmoothKernel:  3,
		BlurSigma:     2.5,
		TopFraction:   0.05,
		FlatThreshold: 1.0,
		Metric:        MetricTopMass,
	}
}

// Map is a saliency map normalized to [0,1], row-major
type Map struct {
	W, H int
	Data []float64
}

// Variance returns the population variance of the map values
func (m *Map) Variance() float64 {
	if len(m.Data) == 0 {
		return 0
	}
	var mean float64
	for _, v := range m.Data {
		mean += v
	}
	mean /= float64(len(m.Data))
	var ss float64
	for _, v := range m.Data {
		d := v - mean
		ss += d * d
	}
	return ss / float64(len(m.Data))
}

// Gray returns the map upsampled to w×h as an 8-bit image
func (m *Map) Gray(w, h int) *image.Gray {
	src := image.NewGray16(image.Rect(0, 0, m.W, m.H))
	for i, v := range m.Data {
		u := uint16(math.Round(clamp01(v) * 65535))
		src.Pix[2*i] = uint8(u >> 8)
		src.Pix[2*i+1] = uint8(u)
	}

	resized := imaging.Resize(src, w, h, imaging.Linear)
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = row[x*4]
		}
	}
	return out
}

// Extractor computes saliency maps. It is stateless and safe for concurrent use.
type Extractor struct {
	cfg Config
}

// New creates an extractor, filling zero fields from DefaultConfig
func New(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.AnalysisSize <= 0 {
		cfg.AnalysisSize = def.AnalysisSize
	}
	if cfg.SmoothKernel <= 0 {
		cfg.SmoothKernel = def.SmoothKernel
	}
	if cfg.BlurSigma < 0 {
		cfg.BlurSigma = def.BlurSigma
	}
	if cfg.TopFraction <= 0 || cfg.TopFraction >= 1 {
		cfg.TopFraction = def.TopFraction
	}
	if cfg.Metric == "" {
		cfg.Metric = def.Metric
	}
	return &Extractor{cfg: cfg}
}

// Name identifies the signal
func (e *Extractor) Name() string { return "saliency" }

// Map computes the normalized saliency map of img at analysis resolution.
// Frames without luma structure produce an all-zero map.
func (e *Extractor) Map(img image.Image) *Map {
	n := e.cfg.AnalysisSize
	plane := frames.LumaPlane(img, n, n)
	m := &Map{W: plane.W, H: plane.H}

	if stddev(plane.Pix) < e.cfg.FlatThreshold {
		m.Data = make([]float64, len(plane.Pix))
		return m
	}

	raw := spectralResidual(plane, e.cfg.SmoothKernel)
	blurred := gaussianBlur(raw, plane.W, plane.H, e.cfg.BlurSigma)

	var peak float64
	for _, v := range blurred {
		if v > peak {
			peak = v
		}
	}
	if peak > 0 {
		for i := range blurred {
			blurred[i] /= peak
		}
	}
	m.Data = blurred
	return m
}

// Concentration reduces a map to a score in [0,1]. Uniform maps score 0 and
// maps whose mass sits in a small region approach 1.
func (e *Extractor) Concentration(m *Map) float64 {
	if e.cfg.Metric == MetricCenter {
		return centerConcentration(m)
	}
	return topMassConcentration(m, e.cfg.TopFraction)
}

// ExtractFrame returns the concentration score of one frame
func (e *Extractor) ExtractFrame(ctx context.Context, f frames.Frame) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return e.Concentration(e.Map(f.Image)), nil
}

func topMassConcentration(m *Map, k float64) float64 {
	if len(m.Data) == 0 {
		return 0
	}
	sorted := make([]float64, len(m.Data))
	copy(sorted, m.Data)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	var total float64
	for _, v := range sorted {
		total += v
	}
	if total <= 1e-12 {
		return 0
	}

	top := int(math.Ceil(k * float64(len(sorted))))
	if top < 1 {
		top = 1
	}
	var mass float64
	for _, v := range sorted[:top] {
		mass += v
	}

	share := float64(top) / float64(len(sorted))
	if share >= 1 {
		return 0
	}
	return clamp01((mass/total - share) / (1 - share))
}

// centerConcentration weights the map by a centred Gaussian with sigma equal
// to a quarter of the smaller side.
func centerConcentration(m *Map) float64 {
	var total, weighted float64
	cx := float64(m.W-1) / 2
	cy := float64(m.H-1) / 2
	sigma := math.Min(float64(m.W), float64(m.H)) / 4
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			v := m.Data[y*m.W+x]
			dx, dy := float64(x)-cx, float64(y)-cy
			g := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			total += v
			weighted += v * g
		}
	}
	if total <= 1e-12 {
		return 0
	}
	return clamp01(weighted / total)
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
