package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keagan/adattention/internal/audience"
	"github.com/keagan/adattention/internal/config"
	"github.com/keagan/adattention/internal/frames"
	"github.com/keagan/adattention/internal/fusion"
	"github.com/keagan/adattention/internal/interpret"
	"github.com/keagan/adattention/internal/metrics"
	"github.com/keagan/adattention/internal/motion"
	"github.com/keagan/adattention/internal/pacing"
	"github.com/keagan/adattention/internal/relevance"
	"github.com/keagan/adattention/internal/report"
	"github.com/keagan/adattention/internal/saliency"
	"github.com/keagan/adattention/pkg/util"
	"github.com/rs/zerolog"
)

// Deps are the collaborators a pipeline needs beyond its config
type Deps struct {
	Decoder frames.Decoder
	Encoder report.VideoEncoder // nil only when overlays are skipped
	Metrics *metrics.Metrics    // optional

	// RelevanceEncoder replaces the ONNX model when set
	RelevanceEncoder relevance.Encoder
	Prompts          *relevance.PromptSet
}

// Pipeline scores videos: sample, extract, fuse, render. A Pipeline may run
// several analyses concurrently; each run owns its frames.
type Pipeline struct {
	logger   zerolog.Logger
	cfg      *config.Config
	deps     Deps
	saliency *saliency.Extractor
	motion   *motion.Estimator
	renderer *report.Renderer
	metrics  *metrics.Metrics
	workers  int

	relMu     sync.Mutex
	relLoaded bool
	rel       *relevance.Extractor
	relErr    error
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Decoder == nil {
		return nil, fmt.Errorf("pipeline requires a decoder")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	workers := cfg.Concurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Pipeline{
		logger: logger.With().Str("component", "pipeline").Logger(),
		cfg:    cfg,
		deps:   deps,
		saliency: saliency.New(saliency.Config{
			AnalysisSize:  cfg.Saliency.AnalysisSize,
			SmoothKernel:  cfg.Saliency.SmoothKernel,
			BlurSigma:     cfg.Saliency.BlurSigma,
			TopFraction:   cfg.Saliency.TopFraction,
			FlatThreshold: cfg.Saliency.FlatThreshold,
			Metric:        cfg.Saliency.Metric,
		}),
		motion: motion.New(motion.Config{
			AnalysisWidth: cfg.Motion.AnalysisWidth,
			Iterations:    cfg.Motion.Iterations,
			Smoothness:    cfg.Motion.Smoothness,
			BlurSigma:     cfg.Motion.BlurSigma,
			MinLevelSize:  cfg.Motion.MinLevelSize,
		}),
		renderer: report.NewRenderer(logger, report.Config{
			OverlayAlpha: cfg.Render.OverlayAlpha,
			OutputFPS:    cfg.Render.OutputFPS,
			PlotWidth:    cfg.Render.PlotWidth,
			PlotHeight:   cfg.Render.PlotHeight,
			SkipOverlay:  cfg.Render.SkipOverlay,
		}, deps.Encoder),
		metrics: deps.Metrics,
		workers: workers,
	}, nil
}

// Close releases the relevance model if one was loaded
func (p *Pipeline) Close() error {
	p.relMu.Lock()
	defer p.relMu.Unlock()
	if p.rel != nil {
		err := p.rel.Close()
		p.rel = nil
		return err
	}
	return nil
}

// Analyze runs the full scoring pipeline on one video
func (p *Pipeline) Analyze(ctx context.Context, opts AnalyzeOptions) (*Result, error) {
	p.metrics.AnalysisStarted()
	res, err := p.analyze(ctx, opts)
	switch {
	case err == nil:
		p.metrics.AnalysisFinished("ok", res.Scorecard.OverallScore)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		p.metrics.AnalysisFinished("canceled", 0)
	default:
		p.metrics.AnalysisFinished("error", 0)
	}
	return res, err
}

func (p *Pipeline) analyze(ctx context.Context, opts AnalyzeOptions) (*Result, error) {
	start := time.Now()
	if opts.Input == "" {
		return nil, fmt.Errorf("input path cannot be empty")
	}

	fps := opts.FPS
	if fps == 0 {
		fps = p.cfg.Sampler.FPS
	}
	goal := opts.Goal
	if goal == "" {
		goal = p.cfg.Goal
	}
	if goal == "" {
		goal = audience.GoalHook
	}
	if !audience.ValidGoal(goal) {
		return nil, fmt.Errorf("unknown goal %q", goal)
	}

	var preset *audience.Preset
	if opts.Audience != "" {
		pr, err := audience.Lookup(opts.Audience)
		if err != nil {
			return nil, err
		}
		preset = &pr
	}

	p.logger.Info().
		Str("input", opts.Input).
		Float64("fps", fps).
		Bool("relevance", opts.Relevance).
		Bool("pacing", opts.Pacing).
		Str("audience", opts.Audience).
		Msg("starting analysis")

	// Stage 1: sample frames
	stageStart := time.Now()
	sampler, err := frames.NewSampler(p.logger, p.deps.Decoder, fps, p.cfg.Sampler.MaxFrames)
	if err != nil {
		return nil, err
	}
	fs, err := sampler.Sample(ctx, opts.Input)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", opts.Input, err)
	}
	p.metrics.AddFramesSampled(len(fs))
	p.metrics.ObserveStage("sample", time.Since(stageStart))
	p.logger.Info().Int("frames", len(fs)).Msg("frames sampled")

	var warnings []string
	stages := stageSet{saliency: p.saliency, motion: p.motion}

	if opts.Relevance {
		rel, err := p.relevanceExtractor()
		if err != nil {
			p.logger.Warn().Err(err).Msg("relevance disabled, fusing remaining signals")
			warnings = append(warnings, fmt.Sprintf("relevance unavailable: %v", err))
		} else {
			stages.relevance = rel
		}
	}

	pacingPreset := audience.MustLookup(audience.Default)
	if preset != nil {
		pacingPreset = *preset
	}
	var pace *pacing.Analyzer
	if opts.Pacing {
		if len(fs) < 2 {
			warnings = append(warnings, "pacing needs at least two frames, disabled")
		} else {
			pref := pacingPreset.PacingFor(goal)
			pace = pacing.New(pacing.Config{
				Bins:          p.cfg.Pacing.Bins,
				AnalysisWidth: p.cfg.Motion.AnalysisWidth,
				Window:        p.cfg.Pacing.Window,
				FStar:         pref.FStar,
				Lambda:        pref.Lambda,
			})
			stages.pacing = pace
		}
	}

	// Stage 2: per-frame extraction
	stageStart = time.Now()
	ex, err := p.extract(ctx, fs, stages)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	p.metrics.ObserveStage("extract", time.Since(stageStart))

	// Stage 3: repair, align, fuse
	stageStart = time.Now()
	n := len(fs)
	failures := []report.FrameFailure{}

	sal, err := p.repair(ex.saliency, fs, true, &failures, &warnings)
	if err != nil {
		return nil, err
	}
	mot, err := p.repair(ex.motion, fs, true, &failures, &warnings)
	if err != nil {
		return nil, err
	}

	signals := []fusion.Signal{
		{Name: SignalSaliency, Values: fusion.Some(sal)},
		{Name: SignalMotion, Values: fusion.Some(motion.Align(mot, n))},
		{Name: SignalRelevance, Values: fusion.None()},
		{Name: SignalPacing, Values: fusion.None()},
	}

	if ex.relevance != nil {
		rel, err := p.repair(ex.relevance, fs, false, &failures, &warnings)
		if err != nil {
			return nil, err
		}
		if rel != nil {
			signals[2].Values = fusion.Some(rel)
		}
	}

	var avgCutRate *float64
	if ex.pacing != nil {
		deltas, err := p.repair(ex.pacing, fs, false, &failures, &warnings)
		if err != nil {
			return nil, err
		}
		if deltas != nil {
			rate := effectiveRate(fs, fps)
			signals[3].Values = fusion.Some(motion.Align(pace.Series(deltas, rate), n))
			avg := mean(pace.CutRate(pacing.Cuts(deltas), rate))
			avgCutRate = &avg
		}
	}

	timestamps := make([]float64, n)
	for i, f := range fs {
		timestamps[i] = f.Timestamp
	}

	fres, err := fusion.Fuse(timestamps, signals, p.fusionConfig(preset))
	if err != nil {
		return nil, fmt.Errorf("fuse: %w", err)
	}
	p.metrics.ObserveStage("fuse", time.Since(stageStart))

	sc := report.FromFusion(fres)
	sc.EarlyWindow = p.cfg.Fusion.EarlyWindow
	sc.MotionBoost = p.cfg.Fusion.MotionBoost
	sc.Reduction = p.cfg.Fusion.Reduction
	sc.SampleFPS = fps
	sc.Goal = goal
	sc.AvgCutRate = avgCutRate
	sc.Warnings = append(sc.Warnings, warnings...)
	sc.FrameFailures = failures
	if preset != nil {
		sc.Audience = preset.Key
	}
	interp := interpret.Interpret(interpret.Input{
		Overall:     fres.Overall,
		FirstWindow: fres.FirstWindow,
		CutRate:     avgCutRate,
		Goal:        goal,
		Audience:    preset,
	})
	sc.Interpretation = &interp
	sc.Run = &report.RunInfo{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Source:    opts.Input,
	}

	result := &Result{Scorecard: sc, Frames: n}

	// Stage 4: artifacts
	if opts.OutputDir != "" {
		stageStart = time.Now()
		maps := make([]*saliency.Map, n)
		for i, m := range ex.maps {
			if m == nil {
				m = &saliency.Map{W: 1, H: 1, Data: []float64{0}}
			}
			maps[i] = m
		}
		arts, err := p.renderer.Render(ctx, opts.OutputDir, report.Input{
			Scorecard: sc,
			Frames:    fs,
			Maps:      maps,
		})
		if err != nil {
			return nil, err
		}
		result.Artifacts = arts
		p.metrics.ObserveStage("render", time.Since(stageStart))
	}

	p.logger.Info().
		Str("run", sc.Run.ID).
		Float64("overall", sc.OverallScore).
		Int("key_moments", len(sc.KeyMoments)).
		Int("warnings", len(sc.Warnings)).
		Str("elapsed", util.FormatDuration(time.Since(start))).
		Msg("analysis complete")

	return result, nil
}

// repair interpolates failed samples. A required signal over the failure
// threshold is fatal; an optional one is dropped with a warning (nil values).
func (p *Pipeline) repair(s *series, fs []frames.Frame, required bool, failures *[]report.FrameFailure, warnings *[]string) ([]float64, error) {
	total := len(s.values)
	failed := countTrue(s.failed)
	if failed == 0 {
		return s.values, nil
	}

	filled, ok := interpolate(s.values, s.failed)
	rate := float64(failed) / float64(total)
	if !ok || rate > p.cfg.Fusion.FailureThreshold {
		err := fmt.Errorf("%w: %s failed on %d of %d samples", ErrTooManyFailures, s.name, failed, total)
		if required {
			return nil, err
		}
		p.logger.Warn().Err(err).Msg("dropping optional signal")
		*warnings = append(*warnings, fmt.Sprintf("%s dropped: %v", s.name, err))
		return nil, nil
	}

	for i, bad := range s.failed {
		if !bad {
			continue
		}
		ff := report.FrameFailure{Signal: s.name, Error: s.errs[i].Error()}
		var fe *FrameError
		if errors.As(s.errs[i], &fe) {
			ff.Index = fe.Index
			ff.T = fs[fe.Index].Timestamp
		}
		*failures = append(*failures, ff)
	}
	*warnings = append(*warnings, fmt.Sprintf("%s: %d of %d samples interpolated", s.name, failed, total))
	return filled, nil
}

// relevanceExtractor loads the relevance model once and shares it between
// runs. A load failure is remembered too.
func (p *Pipeline) relevanceExtractor() (*relevance.Extractor, error) {
	p.relMu.Lock()
	defer p.relMu.Unlock()
	if p.relLoaded {
		return p.rel, p.relErr
	}
	p.relLoaded = true

	rc := p.cfg.Relevance
	if p.deps.RelevanceEncoder != nil {
		prompts := p.deps.Prompts
		if prompts == nil {
			loaded, err := relevance.LoadPrompts(rc.PromptsPath)
			if err != nil {
				p.relErr = fmt.Errorf("%w: %v", relevance.ErrUnavailable, err)
				return nil, p.relErr
			}
			prompts = loaded
		}
		p.rel, p.relErr = relevance.New(p.logger, p.deps.RelevanceEncoder, prompts)
		return p.rel, p.relErr
	}

	p.rel, p.relErr = relevance.Open(p.logger, relevance.Config{
		ModelPath:    rc.ModelPath,
		LibraryPath:  rc.LibraryPath,
		PromptsPath:  rc.PromptsPath,
		InputName:    rc.InputName,
		OutputName:   rc.OutputName,
		EmbeddingDim: rc.EmbeddingDim,
	})
	return p.rel, p.relErr
}

func (p *Pipeline) fusionConfig(preset *audience.Preset) fusion.Config {
	fc := p.cfg.Fusion
	cfg := fusion.Config{
		Weights:       make(map[string]float64, len(fc.Weights)),
		Ranges:        make(map[string]fusion.Range, len(fc.Ranges)),
		Normalization: fc.Normalization,
		EarlyWindow:   fc.EarlyWindow,
		BoostSignal:   SignalMotion,
		Boost:         fc.MotionBoost,
		Reduction:     fc.Reduction,
		MinProminence: fc.MinProminence,
		MinSpacing:    fc.MinSpacing,
		MaxKeyMoments: fc.MaxKeyMoments,
	}
	for k, v := range fc.Weights {
		cfg.Weights[k] = v
	}
	for k, r := range fc.Ranges {
		cfg.Ranges[k] = fusion.Range{Lo: r[0], Hi: r[1]}
	}
	if preset != nil {
		cfg.Weights = preset.Weights
		cfg.TimeDecay = fusion.TimeDecay(preset.TimeDecay)
	}
	return cfg
}

// effectiveRate is the achieved sampling rate, which is below the requested
// one when the source has fewer frames per second.
func effectiveRate(fs []frames.Frame, requested float64) float64 {
	if len(fs) < 2 {
		return requested
	}
	span := fs[len(fs)-1].Timestamp - fs[0].Timestamp
	if span <= 0 {
		return requested
	}
	return float64(len(fs)-1) / span
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
