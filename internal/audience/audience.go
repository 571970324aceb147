// Package audience holds the built-in viewer presets: fusion weights, early
// attention decay, grading thresholds and pacing preferences per age group.
package audience

import (
	"fmt"
	"sort"
)

// Creative goals
const (
	GoalHook      = "hook"
	GoalExplainer = "explainer"
	GoalCalmBrand = "calm_brand"
)

// Default is the preset used when none is selected
const Default = "general"

// TimeDecay scales the curve linearly from Start at the first frame to End at
// the last.
type TimeDecay struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Thresholds grade the overall score and the early-window hook
type Thresholds struct {
	Excellent     float64 `json:"excellent"`
	Good          float64 `json:"good"`
	Fair          float64 `json:"fair"`
	HookExcellent float64 `json:"hook_excellent"`
	HookGood      float64 `json:"hook_good"`
	HookFair      float64 `json:"hook_fair"`
}

// Pacing is the preferred cut rate (cuts per second) and how sharply the
// pacing score falls off around it.
type Pacing struct {
	FStar  float64 `json:"f_star"`
	Lambda float64 `json:"lambda"`
}

// Preset describes one audience
type Preset struct {
	Key         string             `json:"key"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Weights     map[string]float64 `json:"weights"`
	TimeDecay   TimeDecay          `json:"time_decay"`
	Thresholds  Thresholds         `json:"thresholds"`
	Pacing      map[string]Pacing  `json:"pacing_preferences"`
}

// PacingFor returns the pacing preference for goal, falling back to hook
func (p Preset) PacingFor(goal string) Pacing {
	if pref, ok := p.Pacing[goal]; ok {
		return pref
	}
	return p.Pacing[GoalHook]
}

func weights(sal, mot, rel, pace float64) map[string]float64 {
	return map[string]float64{
		"saliency":  sal,
		"motion":    mot,
		"relevance": rel,
		"pacing":    pace,
	}
}

var presets = map[string]Preset{
	"gen_z": {
		Key:         "gen_z",
		Name:        "Gen Z (18-27)",
		Description: "Digital natives, high attention to motion and fast pacing",
		Weights:     weights(0.40, 0.35, 0.15, 0.10),
		TimeDecay:   TimeDecay{Start: 1.3, End: 0.9},
		Thresholds:  Thresholds{0.70, 0.55, 0.40, 0.65, 0.50, 0.35},
		Pacing: map[string]Pacing{
			GoalHook:      {0.6, 0.4},
			GoalExplainer: {0.4, 1.0},
			GoalCalmBrand: {0.3, 0.8},
		},
	},
	"millennial": {
		Key:         "millennial",
		Name:        "Millennials (28-43)",
		Description: "Balanced attention, values both engagement and information",
		Weights:     weights(0.50, 0.25, 0.15, 0.10),
		TimeDecay:   TimeDecay{Start: 1.2, End: 1.0},
		Thresholds:  Thresholds{0.75, 0.60, 0.45, 0.70, 0.55, 0.40},
		Pacing: map[string]Pacing{
			GoalHook:      {0.5, 0.5},
			GoalExplainer: {0.3, 1.2},
			GoalCalmBrand: {0.2, 1.0},
		},
	},
	"gen_x": {
		Key:         "gen_x",
		Name:        "Gen X (44-59)",
		Description: "Prefers clarity and moderate pacing, less tolerance for rapid cuts",
		Weights:     weights(0.55, 0.20, 0.15, 0.10),
		TimeDecay:   TimeDecay{Start: 1.1, End: 1.0},
		Thresholds:  Thresholds{0.75, 0.60, 0.45, 0.70, 0.55, 0.40},
		Pacing: map[string]Pacing{
			GoalHook:      {0.4, 0.6},
			GoalExplainer: {0.25, 1.4},
			GoalCalmBrand: {0.15, 1.2},
		},
	},
	"boomer": {
		Key:         "boomer",
		Name:        "Boomers (60+)",
		Description: "Prefers slower pacing, clear visuals, and less rapid changes",
		Weights:     weights(0.60, 0.15, 0.15, 0.10),
		TimeDecay:   TimeDecay{Start: 1.0, End: 1.0},
		Thresholds:  Thresholds{0.70, 0.55, 0.40, 0.65, 0.50, 0.35},
		Pacing: map[string]Pacing{
			GoalHook:      {0.3, 0.8},
			GoalExplainer: {0.2, 1.5},
			GoalCalmBrand: {0.1, 1.3},
		},
	},
	"children": {
		Key:         "children",
		Name:        "Children (5-17)",
		Description: "Very high attention to motion and fast pacing, shorter attention spans",
		Weights:     weights(0.35, 0.40, 0.15, 0.10),
		TimeDecay:   TimeDecay{Start: 1.4, End: 0.8},
		Thresholds:  Thresholds{0.65, 0.50, 0.35, 0.60, 0.45, 0.30},
		Pacing: map[string]Pacing{
			GoalHook:      {0.7, 0.3},
			GoalExplainer: {0.5, 0.8},
			GoalCalmBrand: {0.4, 0.6},
		},
	},
	"general": {
		Key:         "general",
		Name:        "General Audience",
		Description: "Default settings for mixed demographics",
		Weights:     weights(0.50, 0.25, 0.15, 0.10),
		TimeDecay:   TimeDecay{Start: 1.2, End: 1.0},
		Thresholds:  Thresholds{0.75, 0.60, 0.45, 0.70, 0.55, 0.40},
		Pacing: map[string]Pacing{
			GoalHook:      {0.5, 0.5},
			GoalExplainer: {0.3, 1.2},
			GoalCalmBrand: {0.2, 1.0},
		},
	},
}

// Lookup returns the preset for key. The returned weights map is a copy.
func Lookup(key string) (Preset, error) {
	p, ok := presets[key]
	if !ok {
		return Preset{}, fmt.Errorf("unknown audience %q (known: %v)", key, Keys())
	}
	w := make(map[string]float64, len(p.Weights))
	for k, v := range p.Weights {
		w[k] = v
	}
	p.Weights = w
	return p, nil
}

// MustLookup is Lookup for built-in keys
func MustLookup(key string) Preset {
	p, err := Lookup(key)
	if err != nil {
		panic(err)
	}
	return p
}

// Keys lists preset keys in sorted order
func Keys() []string {
	keys := make([]string, 0, len(presets))
	for k := range presets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidGoal reports whether goal is a known creative goal
func ValidGoal(goal string) bool {
	switch goal {
	case GoalHook, GoalExplainer, GoalCalmBrand:
		return true
	}
	return false
}
