package fusion

// Normalization modes
const (
	NormalizeFixed = "fixed" // clip to the signal's range, then rescale
	NormalizeMax   = "max"   // divide by the series maximum above the range floor
)

// Range is the expected raw span of a signal
type Range struct {
	Lo float64 `yaml:"lo" json:"lo"`
	Hi float64 `yaml:"hi" json:"hi"`
}

// Normalize maps raw values onto [0,1]
func Normalize(values []float64, r Range, mode string) []float64 {
	out := make([]float64, len(values))
	if mode == NormalizeMax {
		peak := r.Lo
		for _, v := range values {
			if v > peak {
				peak = v
			}
		}
		span := peak - r.Lo
		if span <= 0 {
			return out
		}
		for i, v := range values {
			out[i] = clamp((v-r.Lo)/span, 0, 1)
		}
		return out
	}

	span := r.Hi - r.Lo
	if span <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = (clamp(v, r.Lo, r.Hi) - r.Lo) / span
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
