package frames

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"
)

// timeEpsilon absorbs floating point error when comparing frame timestamps
// against the sampling grid.
const timeEpsilon = 1e-6

// Sampler picks frames from a decoded video at a target rate
type Sampler struct {
	logger    zerolog.Logger
	decoder   Decoder
	rate      float64
	maxFrames int
}

// NewSampler creates a sampler emitting roughly rate frames per second.
// maxFrames <= 0 means unlimited.
func NewSampler(logger zerolog.Logger, decoder Decoder, rate float64, maxFrames int) (*Sampler, error) {
	if decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("sample rate must be > 0, got %v", rate)
	}
	return &Sampler{
		logger:    logger.With().Str("component", "sampler").Logger(),
		decoder:   decoder,
		rate:      rate,
		maxFrames: maxFrames,
	}, nil
}

// Rate returns the target sampling rate in frames per second
func (s *Sampler) Rate() float64 {
	return s.rate
}

// Open starts decoding path. The returned Stream owns the decode handle until
// it reaches the end, fails, or is closed.
func (s *Sampler) Open(ctx context.Context, path string) (*Stream, error) {
	if path == "" {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("path is empty")}
	}

	src, err := s.decoder.Open(ctx, path)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DecodeError{Path: path, Err: err}
	}

	info := src.Info()
	if info.FPS <= 0 {
		src.Close()
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("source reports invalid frame rate %v", info.FPS)}
	}

	s.logger.Debug().
		Str("path", path).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("native_fps", info.FPS).
		Float64("rate", s.rate).
		Msg("sampling video")

	return &Stream{
		ctx:       ctx,
		path:      path,
		src:       src,
		nativeFPS: info.FPS,
		grid:      newSelector(s.rate),
		maxFrames: s.maxFrames,
	}, nil
}

// Sample decodes path and collects every sampled frame
func (s *Sampler) Sample(ctx context.Context, path string) ([]Frame, error) {
	stream, err := s.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out []Frame
	for {
		f, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}

	s.logger.Info().
		Str("path", path).
		Int("frames", len(out)).
		Msg("sampling complete")

	return out, nil
}

// Stream is a lazy, forward-only sequence of sampled frames. It is not safe
// for concurrent use and cannot be rewound; reopen the source instead.
type Stream struct {
	ctx       context.Context
	path      string
	src       FrameSource
	nativeFPS float64
	grid      *selector
	maxFrames int

	sourceIndex int
	emitted     int
	closed      bool
}

// Next returns the next sampled frame, io.EOF after the last one, or an error.
// The decode handle is released as soon as the stream ends or fails.
func (st *Stream) Next() (Frame, error) {
	if st.closed {
		return Frame{}, io.EOF
	}

	for {
		if err := st.ctx.Err(); err != nil {
			st.Close()
			return Frame{}, err
		}

		if st.maxFrames > 0 && st.emitted >= st.maxFrames {
			st.Close()
			return Frame{}, io.EOF
		}

		img, err := st.src.ReadFrame()
		if errors.Is(err, io.EOF) {
			st.Close()
			if st.emitted == 0 {
				return Frame{}, fmt.Errorf("%w: %s", ErrEmptyVideo, st.path)
			}
			return Frame{}, io.EOF
		}
		if err != nil {
			st.Close()
			if ctxErr := st.ctx.Err(); ctxErr != nil {
				return Frame{}, ctxErr
			}
			return Frame{}, &DecodeError{Path: st.path, Err: err}
		}

		t := float64(st.sourceIndex) / st.nativeFPS
		st.sourceIndex++

		if !st.grid.accept(t) {
			continue
		}

		f := Frame{Index: st.emitted, Timestamp: t, Image: img}
		st.emitted++
		return f, nil
	}
}

// Emitted returns how many frames have been produced so far
func (st *Stream) Emitted() int {
	return st.emitted
}

// Close releases the decode handle. It is safe to call more than once.
func (st *Stream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	return st.src.Close()
}

// selector implements the sampling policy: a source frame at time t is kept
// when t reaches the next point of the 1/rate grid; the grid then advances to
// the first point strictly after t. Source frames are never emitted twice and
// the output rate never exceeds the native rate.
type selector struct {
	rate float64
	next float64
}

func newSelector(rate float64) *selector {
	return &selector{rate: rate}
}

func (s *selector) accept(t float64) bool {
	if t+timeEpsilon < s.next {
		return false
	}
	s.next = (math.Floor(t*s.rate+timeEpsilon) + 1) / s.rate
	return true
}
