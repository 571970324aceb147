// Package report serializes scorecards and renders the curve plot and the
// saliency overlay video.
package report

import (
	"encoding/json"
	"time"

	"github.com/keagan/adattention/internal/fusion"
	"github.com/keagan/adattention/internal/interpret"
)

// FrameFailure records one frame whose extraction failed and was filled in
type FrameFailure struct {
	Signal string  `json:"signal"`
	Index  int     `json:"index"`
	T      float64 `json:"t"`
	Error  string  `json:"error"`
}

// RunInfo identifies a run. It is the only part of a scorecard that differs
// between runs over the same input and settings.
type RunInfo struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Source    string            `json:"source"`
	Files     map[string]string `json:"files,omitempty"`
}

// Scorecard is the structured result of one analysis
type Scorecard struct {
	OverallScore         float64            `json:"overall_score"`
	SaliencyScore        float64            `json:"saliency_score"`
	MotionScore          float64            `json:"motion_score"`
	RelevanceScore       *float64           `json:"relevance_score"`
	PacingScore          *float64           `json:"pacing_score"`
	FirstWindowRetention float64            `json:"first_window_retention"`
	Weights              map[string]float64 `json:"weights"`
	KeyMoments           []float64          `json:"key_moments"`
	KeyMomentDetails     []fusion.KeyMoment `json:"key_moment_details"`
	Curve                []fusion.Point     `json:"curve"`

	EarlyWindow    float64            `json:"early_window"`
	MotionBoost    float64            `json:"motion_boost"`
	Reduction      string             `json:"reduction"`
	SampleFPS      float64            `json:"sample_fps"`
	FramesAnalyzed int                `json:"frames_analyzed"`
	RelevanceUsed  bool               `json:"relevance_used"`
	PacingUsed     bool               `json:"pacing_used"`
	AvgCutRate     *float64           `json:"avg_cut_rate,omitempty"`
	Audience       string             `json:"audience,omitempty"`
	Goal           string             `json:"goal,omitempty"`
	Raw            map[string]float64 `json:"raw"`
	Warnings       []string           `json:"warnings"`
	FrameFailures  []FrameFailure     `json:"frame_failures"`

	Interpretation *interpret.Interpretation `json:"interpretation,omitempty"`
	Run            *RunInfo                  `json:"run,omitempty"`
}

// FromFusion fills the score fields of a scorecard from a fusion result
func FromFusion(res *fusion.Result) *Scorecard {
	sc := &Scorecard{
		OverallScore:         res.Overall,
		SaliencyScore:        res.SubScores["saliency"],
		MotionScore:          res.SubScores["motion"],
		FirstWindowRetention: res.FirstWindow,
		Weights:              res.Weights,
		KeyMoments:           make([]float64, 0, len(res.KeyMoments)),
		KeyMomentDetails:     res.KeyMoments,
		Curve:                res.Curve,
		FramesAnalyzed:       len(res.Curve),
		Raw:                  res.Raw,
		Warnings:             []string{},
		FrameFailures:        []FrameFailure{},
	}
	if sc.KeyMomentDetails == nil {
		sc.KeyMomentDetails = []fusion.KeyMoment{}
	}
	for _, km := range res.KeyMoments {
		sc.KeyMoments = append(sc.KeyMoments, km.T)
	}
	if v, ok := res.SubScores["relevance"]; ok {
		sc.RelevanceScore = &v
		sc.RelevanceUsed = true
	}
	if v, ok := res.SubScores["pacing"]; ok {
		sc.PacingScore = &v
		sc.PacingUsed = true
	}
	return sc
}

// Marshal returns the indented JSON document
func (s *Scorecard) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Stable returns the document without run identity, for comparing runs
func (s *Scorecard) Stable() ([]byte, error) {
	c := *s
	c.Run = nil
	return c.Marshal()
}
