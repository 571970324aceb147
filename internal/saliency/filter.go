package saliency

import "math"

// boxFilter averages each sample with its k×k neighbourhood, replicating
// edge samples.
func boxFilter(src []float64, w, h, k int) []float64 {
	if k <= 1 {
		out := make([]float64, len(src))
		copy(out, src)
		return out
	}
	r := k / 2
	norm := 1 / float64((2*r+1)*(2*r+1))
	out := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for dy := -r; dy <= r; dy++ {
				yy := clampInt(y+dy, 0, h-1)
				for dx := -r; dx <= r; dx++ {
					sum += src[yy*w+clampInt(x+dx, 0, w-1)]
				}
			}
			out[y*w+x] = sum * norm
		}
	}
	return out
}

// gaussianBlur applies a separable Gaussian with the given sigma
func gaussianBlur(src []float64, w, h int, sigma float64) []float64 {
	if sigma <= 0 {
		out := make([]float64, len(src))
		copy(out, src)
		return out
	}

	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var total float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		total += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= total
	}

	tmp := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for i, kv := range kernel {
				sum += kv * src[y*w+clampInt(x+i-radius, 0, w-1)]
			}
			tmp[y*w+x] = sum
		}
	}

	out := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for i, kv := range kernel {
				sum += kv * tmp[clampInt(y+i-radius, 0, h-1)*w+x]
			}
			out[y*w+x] = sum
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
