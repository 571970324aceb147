package fusion

import "sort"

// KeyMoment is a local maximum of the attention curve
type KeyMoment struct {
	Index      int     `json:"index"`
	T          float64 `json:"t"`
	Score      float64 `json:"score"`
	Prominence float64 `json:"prominence"`
}

// FindKeyMoments returns local maxima with at least minProminence, keeping the
// highest first and dropping any closer than minSpacing seconds to one
// already kept. At most max moments are returned, ordered by time.
func FindKeyMoments(curve []Point, minProminence, minSpacing float64, max int) []KeyMoment {
	var candidates []KeyMoment
	n := len(curve)
	for i := 0; i < n; {
		j := i
		for j+1 < n && curve[j+1].Score == curve[i].Score {
			j++
		}
		v := curve[i].Score
		risesIn := i == 0 || curve[i-1].Score < v
		fallsOut := j == n-1 || curve[j+1].Score < v
		if risesIn && fallsOut && !(i == 0 && j == n-1) {
			p := prominence(curve, i, j)
			if p >= minProminence {
				candidates = append(candidates, KeyMoment{Index: i, T: curve[i].T, Score: v, Prominence: p})
			}
		}
		i = j + 1
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})

	var kept []KeyMoment
	for _, c := range candidates {
		if max > 0 && len(kept) >= max {
			break
		}
		near := false
		for _, k := range kept {
			if abs(c.T-k.T) < minSpacing {
				near = true
				break
			}
		}
		if !near {
			kept = append(kept, c)
		}
	}

	sort.Slice(kept, func(a, b int) bool { return kept[a].Index < kept[b].Index })
	return kept
}

// prominence of the plateau [i, j]: height above the higher of the two
// lowest points reached before meeting a higher sample on each side. A peak
// on the curve edge only has one side.
func prominence(curve []Point, i, j int) float64 {
	v := curve[i].Score

	leftMin, leftOK := v, false
	for k := i - 1; k >= 0 && curve[k].Score <= v; k-- {
		if curve[k].Score < leftMin {
			leftMin = curve[k].Score
		}
		leftOK = true
	}

	rightMin, rightOK := v, false
	for k := j + 1; k < len(curve) && curve[k].Score <= v; k++ {
		if curve[k].Score < rightMin {
			rightMin = curve[k].Score
		}
		rightOK = true
	}

	switch {
	case leftOK && rightOK:
		return v - maxf(leftMin, rightMin)
	case leftOK:
		return v - leftMin
	case rightOK:
		return v - rightMin
	}
	return 0
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
