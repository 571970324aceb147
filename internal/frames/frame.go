package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Frame is one sampled picture of the source video. Frames are immutable once
// emitted by a Stream; downstream stages only read Image.
type Frame struct {
	Index     int     // position in the sampled sequence
	Timestamp float64 // seconds from video start
	Image     *image.RGBA
}

// Width returns the frame width in pixels
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// SourceInfo describes the decoded stream of a FrameSource
type SourceInfo struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64 // seconds, 0 when unknown
}

// FrameSource yields every decoded source frame in presentation order.
// ReadFrame returns io.EOF after the last frame.
type FrameSource interface {
	Info() SourceInfo
	ReadFrame() (*image.RGBA, error)
	Close() error
}

// Decoder opens a video path as a FrameSource
type Decoder interface {
	Open(ctx context.Context, path string) (FrameSource, error)
}

// ErrEmptyVideo is returned when a video decodes to zero usable frames
var ErrEmptyVideo = errors.New("video produced no frames")

// DecodeError reports an unreadable path or a container/codec that could not
// be opened or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
