// Package interpret turns scores into a grade and human-readable feedback.
package interpret

import (
	"fmt"
	"math"

	"github.com/keagan/adattention/internal/audience"
)

// pacing tolerances in cuts per second
const (
	pacingAligned   = 0.3
	pacingRecommend = 0.4
	pacingMismatch  = 0.5
)

var goalNames = map[string]string{
	audience.GoalHook:      "Hook (fast-paced, attention-grabbing)",
	audience.GoalExplainer: "Explainer (moderate pacing, informative)",
	audience.GoalCalmBrand: "Calm Brand (slow-paced, contemplative)",
}

var audienceAdvice = map[string]string{
	"gen_z":    "Consider increasing motion and faster pacing - Gen Z responds well to dynamic content",
	"boomer":   "Consider slower pacing and clearer visuals - Boomers prefer less rapid changes",
	"gen_x":    "Balance clarity with engagement - Gen X values both visual clarity and moderate pacing",
	"children": "Maximize motion and fast pacing - Children have high attention to movement and prefer dynamic, fast-paced content",
}

// Input is what the interpreter looks at
type Input struct {
	Overall     float64
	FirstWindow float64
	CutRate     *float64 // average cuts per second, nil without pacing
	Goal        string
	Audience    *audience.Preset // nil uses default thresholds without naming an audience
}

// Explanation is the detailed feedback
type Explanation struct {
	Summary         string   `json:"summary"`
	HookAnalysis    string   `json:"hook_analysis"`
	PacingAnalysis  string   `json:"pacing_analysis,omitempty"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// Interpretation grades an ad
type Interpretation struct {
	Rating     string      `json:"rating"`
	Grade      string      `json:"grade"`
	Prediction string      `json:"performance_prediction"`
	Audience   string      `json:"audience,omitempty"`
	Details    Explanation `json:"detailed_explanation"`
}

// Interpret grades in against the audience thresholds
func Interpret(in Input) Interpretation {
	preset := audience.MustLookup(audience.Default)
	suffix := ""
	if in.Audience != nil {
		preset = *in.Audience
		suffix = " for " + preset.Name
	}
	th := preset.Thresholds
	score, hook := in.Overall, in.FirstWindow

	out := Interpretation{}
	if in.Audience != nil {
		out.Audience = preset.Name
	}

	switch {
	case score >= th.Excellent:
		out.Rating, out.Grade = "Excellent", "A"
		out.Details.Summary = "This ad is highly likely to perform well and capture viewer attention effectively" + suffix + "."
		out.Prediction = "High likelihood of strong performance" + suffix + ": expect above-average view-through rates, engagement, and conversion potential."
	case score >= th.Good:
		out.Rating, out.Grade = "Good", "B"
		out.Details.Summary = "This ad shows solid potential but has room for improvement to maximize engagement" + suffix + "."
		out.Prediction = "Moderate performance expected" + suffix + ": competitive view-through rates with potential for optimization gains."
	case score >= th.Fair:
		out.Rating, out.Grade = "Fair", "C"
		out.Details.Summary = "This ad may struggle to maintain attention and could benefit from significant optimization" + suffix + "."
		out.Prediction = "Below-average performance likely" + suffix + ": may struggle with viewer retention and may need significant revisions."
	default:
		out.Rating, out.Grade = "Needs Improvement", "D"
		out.Details.Summary = "This ad is unlikely to perform well and requires substantial changes to improve engagement" + suffix + "."
		out.Prediction = "Poor performance expected" + suffix + ": high risk of low engagement, view-through, and conversion rates."
	}

	switch {
	case hook >= th.HookExcellent:
		out.Details.HookAnalysis = "Excellent hook - the opening seconds are highly engaging and likely to capture attention immediately."
	case hook >= th.HookGood:
		out.Details.HookAnalysis = "Good hook - the opening captures attention but could be more compelling."
	case hook >= th.HookFair:
		out.Details.HookAnalysis = "Weak hook - the opening may not be strong enough to prevent viewers from skipping."
	default:
		out.Details.HookAnalysis = "Poor hook - the opening fails to grab attention, risking immediate viewer drop-off."
	}

	goal := in.Goal
	if goal == "" {
		goal = audience.GoalHook
	}
	goalName, ok := goalNames[goal]
	if !ok {
		goalName = goal
	}
	target := preset.PacingFor(goal).FStar

	var pacingDiff float64
	if in.CutRate != nil {
		rate := *in.CutRate
		pacingDiff = math.Abs(rate - target)
		switch {
		case pacingDiff <= pacingAligned:
			out.Details.PacingAnalysis = fmt.Sprintf("Pacing aligns well with %s goal (target: %.1f cuts/sec, actual: %.2f cuts/sec).", goalName, target, rate)
		case rate > target:
			out.Details.PacingAnalysis = fmt.Sprintf("Pacing is too fast for %s goal. Consider slowing down cuts (target: %.1f cuts/sec, actual: %.2f cuts/sec).", goalName, target, rate)
		default:
			out.Details.PacingAnalysis = fmt.Sprintf("Pacing is too slow for %s goal. Consider increasing cut frequency (target: %.1f cuts/sec, actual: %.2f cuts/sec).", goalName, target, rate)
		}
	}

	strong := (th.Excellent + th.Good) / 2

	var strengths []string
	if score >= strong {
		strengths = append(strengths, "Strong overall attention capture")
	}
	if hook >= th.HookGood {
		strengths = append(strengths, "Effective opening hook")
	}
	if in.CutRate != nil && pacingDiff <= pacingAligned {
		strengths = append(strengths, "Well-matched pacing for creative goal")
	}
	if score >= th.Fair && hook < score*0.9 {
		strengths = append(strengths, "Maintains engagement beyond initial hook")
	}
	if len(strengths) == 0 {
		strengths = append(strengths, "Identified areas for improvement")
	}

	var weaknesses []string
	if hook < th.HookGood {
		weaknesses = append(weaknesses, "Weak opening hook - the early window needs more impact")
	}
	if score < th.Good {
		weaknesses = append(weaknesses, "Overall attention score below optimal threshold")
	}
	if in.CutRate != nil && pacingDiff > pacingMismatch {
		weaknesses = append(weaknesses, fmt.Sprintf("Pacing doesn't match %s goal effectively", goalName))
	}
	if hook > score*1.2 {
		weaknesses = append(weaknesses, "Attention drops significantly after initial hook")
	}
	if len(weaknesses) == 0 {
		weaknesses = append(weaknesses, "Minor optimizations possible")
	}

	var recs []string
	if hook < th.HookGood {
		recs = append(recs, "Strengthen the opening 3-5 seconds with more compelling visuals, motion, or contrast")
	}
	if in.CutRate != nil && pacingDiff > pacingRecommend {
		if *in.CutRate > target {
			recs = append(recs, fmt.Sprintf("Reduce cut frequency to better match %s pacing (aim for ~%.1f cuts/sec)", goalName, target))
		} else {
			recs = append(recs, fmt.Sprintf("Increase cut frequency to create more dynamic pacing (aim for ~%.1f cuts/sec)", target))
		}
	}
	if score < strong {
		recs = append(recs, "Increase visual saliency in key frames - use contrast, color, and composition to draw attention")
	}
	if hook < score*0.85 {
		recs = append(recs, "Maintain engagement throughout - avoid attention drop-off after the hook")
	}
	if in.Audience != nil {
		if advice, ok := audienceAdvice[preset.Key]; ok {
			recs = append(recs, advice)
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "Continue monitoring performance and A/B test variations")
	}

	out.Details.Strengths = strengths
	out.Details.Weaknesses = weaknesses
	out.Details.Recommendations = recs
	return out
}
