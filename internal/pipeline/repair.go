package pipeline

// interpolate fills failed samples linearly between their nearest valid
// neighbours, or copies the nearest one at the edges. It reports false when
// no sample is valid.
func interpolate(values []float64, failed []bool) ([]float64, bool) {
	out := make([]float64, len(values))
	copy(out, values)

	prev := -1
	for i := range out {
		if failed[i] {
			continue
		}
		if prev == -1 {
			for j := 0; j < i; j++ {
				out[j] = out[i]
			}
		} else if i-prev > 1 {
			span := float64(i - prev)
			for j := prev + 1; j < i; j++ {
				f := float64(j-prev) / span
				out[j] = out[prev]*(1-f) + out[i]*f
			}
		}
		prev = i
	}

	if prev == -1 {
		return out, len(values) == 0
	}
	for j := prev + 1; j < len(out); j++ {
		out[j] = out[prev]
	}
	return out, true
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
