package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/keagan/adattention/internal/frames"
	"github.com/keagan/adattention/internal/saliency"
	"golang.org/x/sync/errgroup"
)

// series collects one signal's raw values with per-sample failures
type series struct {
	name   string
	values []float64
	failed []bool
	errs   []error
}

func newSeries(name string, n int) *series {
	if n < 0 {
		n = 0
	}
	return &series{
		name:   name,
		values: make([]float64, n),
		failed: make([]bool, n),
		errs:   make([]error, n),
	}
}

func (s *series) set(i int, v float64, err error) {
	if err != nil {
		s.failed[i] = true
		s.errs[i] = err
		return
	}
	s.values[i] = v
}

// extraction holds every raw signal of a run, indexed by frame. Transition
// series are indexed by the frame the transition ends at, minus one.
type extraction struct {
	saliency  *series
	maps      []*saliency.Map
	motion    *series
	relevance *series
	pacing    *series
}

type stageSet struct {
	saliency  *saliency.Extractor
	motion    TransitionExtractor
	relevance FrameExtractor // nil when disabled
	pacing    TransitionExtractor
}

// extract runs all extractors over fs on a bounded worker pool. Each job
// writes only its own indices, so results stay in frame order and a failing
// frame cannot disturb its neighbours. Only cancellation aborts the pool.
func (p *Pipeline) extract(ctx context.Context, fs []frames.Frame, stages stageSet) (*extraction, error) {
	n := len(fs)
	ex := &extraction{
		saliency: newSeries(SignalSaliency, n),
		maps:     make([]*saliency.Map, n),
		motion:   newSeries(SignalMotion, n-1),
	}
	if stages.relevance != nil {
		ex.relevance = newSeries(SignalRelevance, n)
	}
	if stages.pacing != nil {
		ex.pacing = newSeries(SignalPacing, n-1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range fs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.extractFrame(gctx, ex, fs, i, stages)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ex, nil
}

func (p *Pipeline) extractFrame(ctx context.Context, ex *extraction, fs []frames.Frame, i int, stages stageSet) {
	f := fs[i]

	var m *saliency.Map
	v, err := guard(func() (float64, error) {
		m = stages.saliency.Map(f.Image)
		return stages.saliency.Concentration(m), nil
	})
	p.record(ex.saliency, i, i, v, err)
	ex.maps[i] = m

	if stages.relevance != nil {
		v, err := guard(func() (float64, error) {
			return stages.relevance.ExtractFrame(ctx, f)
		})
		p.record(ex.relevance, i, i, v, err)
	}

	if i == 0 {
		return
	}
	prev := fs[i-1]

	v, err = guard(func() (float64, error) {
		return stages.motion.ExtractTransition(ctx, prev, f)
	})
	p.record(ex.motion, i-1, i, v, err)

	if stages.pacing != nil {
		v, err := guard(func() (float64, error) {
			return stages.pacing.ExtractTransition(ctx, prev, f)
		})
		p.record(ex.pacing, i-1, i, v, err)
	}
}

func (p *Pipeline) record(s *series, slot, frame int, v float64, err error) {
	if err != nil && ctxErr(err) {
		return
	}
	if err != nil {
		err = &FrameError{Signal: s.name, Index: frame, Err: err}
		p.metrics.IncFrameFailure(s.name)
		p.logger.Warn().Err(err).Str("signal", s.name).Int("frame", frame).Msg("frame extraction failed")
	} else {
		p.logger.Debug().Str("signal", s.name).Int("frame", frame).Float64("value", v).Msg("extracted")
	}
	s.set(slot, v, err)
}

// guard turns an extractor panic into an error for that frame only
func guard(fn func() (float64, error)) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
