// Package fusion normalizes per-frame signals and combines them into an
// attention curve, an overall score and key moments.
package fusion

import (
	"errors"
	"fmt"
	"sort"
)

// Reductions from curve to overall score
const (
	ReduceMean          = "mean"
	ReduceEarlyWeighted = "early_weighted"
)

// earlyEpsilon absorbs float error in timestamps like k/fps
const earlyEpsilon = 1e-9

// ErrNoSignals means no available signal carries a positive weight
var ErrNoSignals = errors.New("no usable signals to fuse")

// TimeDecay scales the curve linearly from Start at the first frame to End at
// the last. The zero value disables it.
type TimeDecay struct {
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
}

// Config holds fusion parameters
type Config struct {
	Weights       map[string]float64
	Ranges        map[string]Range
	Normalization string
	EarlyWindow   float64 // seconds
	BoostSignal   string  // signal boosted inside the early window
	Boost         float64 // multiplier for BoostSignal inside the window, 1 disables
	Reduction     string
	TimeDecay     TimeDecay
	MinProminence float64
	MinSpacing    float64 // seconds
	MaxKeyMoments int
}

// DefaultConfig returns the standard fusion settings
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			"saliency":  0.5,
			"motion":    0.3,
			"relevance": 0.2,
			"pacing":    0.1,
		},
		Ranges: map[string]Range{
			"saliency":  {Lo: 0, Hi: 1},
			"motion":    {Lo: 0, Hi: 0.02},
			"relevance": {Lo: -0.05, Hi: 0.05},
			"pacing":    {Lo: 0, Hi: 1},
		},
		Normalization: NormalizeFixed,
		EarlyWindow:   4.0,
		BoostSignal:   "motion",
		Boost:         1.5,
		Reduction:     ReduceMean,
		MinProminence: 0.05,
		MinSpacing:    1.0,
		MaxKeyMoments: 5,
	}
}

// Point is one sample of the attention curve
type Point struct {
	T     float64 `json:"t"`
	Score float64 `json:"score"`
}

// Result is the fused output
type Result struct {
	Curve       []Point
	Overall     float64
	FirstWindow float64            // mean curve value inside the early window
	Weights     map[string]float64 // effective weights, summing to 1
	SubScores   map[string]float64 // mean normalized value per used signal
	Raw         map[string]float64 // mean raw value per used signal
	Normalized  map[string][]float64
	Early       []bool
	KeyMoments  []KeyMoment
}

// IsEarly reports whether a frame at t lies inside the early window
func IsEarly(t, window float64) bool {
	return t <= window+earlyEpsilon
}

// EffectiveWeights keeps the weights of available signals and rescales them
// to sum to 1. It is the only place unavailable signals are dropped.
func EffectiveWeights(signals []Signal, weights map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64)
	var total float64
	for _, s := range signals {
		w := weights[s.Name]
		if w < 0 {
			return nil, fmt.Errorf("negative weight %v for %s", w, s.Name)
		}
		if !s.Values.Available() || w == 0 {
			continue
		}
		out[s.Name] = w
		total += w
	}
	if total <= 0 {
		return nil, ErrNoSignals
	}
	for k := range out {
		out[k] /= total
	}
	return out, nil
}

// Fuse combines the signals sampled at timestamps into a Result
func Fuse(timestamps []float64, signals []Signal, cfg Config) (*Result, error) {
	n := len(timestamps)
	if n == 0 {
		return nil, fmt.Errorf("no frames to fuse")
	}
	for _, s := range signals {
		if v, ok := s.Values.Get(); ok && len(v) != n {
			return nil, fmt.Errorf("signal %s has %d values for %d frames", s.Name, len(v), n)
		}
	}

	weights, err := EffectiveWeights(signals, cfg.Weights)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Weights:    weights,
		SubScores:  make(map[string]float64),
		Raw:        make(map[string]float64),
		Normalized: make(map[string][]float64),
		Early:      make([]bool, n),
	}
	for i, t := range timestamps {
		res.Early[i] = IsEarly(t, cfg.EarlyWindow)
	}

	// stable order keeps float sums reproducible
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	curve := make([]float64, n)
	for _, name := range names {
		raw := signalValues(signals, name)
		norm := Normalize(raw, cfg.Ranges[name], cfg.Normalization)
		res.Normalized[name] = norm
		res.SubScores[name] = mean(norm)
		res.Raw[name] = mean(raw)

		w := weights[name]
		for i, v := range norm {
			curve[i] += w * v
			if name == cfg.BoostSignal && res.Early[i] && cfg.Boost > 0 {
				curve[i] += w * v * (cfg.Boost - 1)
			}
		}
	}

	decay := decayFactors(cfg.TimeDecay, n)
	res.Curve = make([]Point, n)
	for i := range curve {
		res.Curve[i] = Point{T: timestamps[i], Score: clamp(curve[i]*decay[i], 0, 1)}
	}

	res.FirstWindow = earlyMean(res.Curve, res.Early)
	res.Overall = clamp(reduce(res.Curve, res.Early, cfg.Reduction), 0, 1)
	res.KeyMoments = FindKeyMoments(res.Curve, cfg.MinProminence, cfg.MinSpacing, cfg.MaxKeyMoments)
	return res, nil
}

func reduce(curve []Point, early []bool, mode string) float64 {
	all := make([]float64, len(curve))
	for i, p := range curve {
		all[i] = p.Score
	}
	if mode == ReduceEarlyWeighted {
		hasEarly := false
		for _, e := range early {
			hasEarly = hasEarly || e
		}
		if hasEarly {
			return 0.6*earlyMean(curve, early) + 0.4*mean(all)
		}
	}
	return mean(all)
}

func earlyMean(curve []Point, early []bool) float64 {
	var sum float64
	var count int
	for i, p := range curve {
		if early[i] {
			sum += p.Score
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func decayFactors(d TimeDecay, n int) []float64 {
	out := make([]float64, n)
	if d.Start == 0 && d.End == 0 {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	if n == 1 {
		out[0] = d.Start
		return out
	}
	for i := range out {
		out[i] = d.Start + (d.End-d.Start)*float64(i)/float64(n-1)
	}
	return out
}

func signalValues(signals []Signal, name string) []float64 {
	for _, s := range signals {
		if s.Name == name {
			v, _ := s.Values.Get()
			return v
		}
	}
	return nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
