package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/keagan/adattention/internal/frames"
	"github.com/keagan/adattention/internal/report"
)

// Signal names
const (
	SignalSaliency  = "saliency"
	SignalMotion    = "motion"
	SignalRelevance = "relevance"
	SignalPacing    = "pacing"
)

// FrameExtractor reduces a single frame to a scalar
type FrameExtractor interface {
	Name() string
	ExtractFrame(ctx context.Context, f frames.Frame) (float64, error)
}

// TransitionExtractor reduces a pair of consecutive frames to a scalar
type TransitionExtractor interface {
	Name() string
	ExtractTransition(ctx context.Context, prev, cur frames.Frame) (float64, error)
}

// ErrTooManyFailures means a required signal failed on more frames than the
// configured threshold allows.
var ErrTooManyFailures = errors.New("too many frame extraction failures")

// FrameError is a failed extraction on one frame (or the transition into it)
type FrameError struct {
	Signal string
	Index  int
	Err    error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s extraction failed on frame %d: %v", e.Signal, e.Index, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// AnalyzeOptions selects per-run behaviour on top of the loaded config
type AnalyzeOptions struct {
	Input     string
	OutputDir string // empty skips rendering
	FPS       float64
	Relevance bool
	Pacing    bool
	Audience  string // empty disables presets
	Goal      string
}

// Result is the outcome of one analysis
type Result struct {
	Scorecard *report.Scorecard
	Artifacts *report.Artifacts
	Frames    int
}
