package report

import (
	"context"
	"image"

	"github.com/keagan/adattention/internal/ffmpeg"
)

// FrameWriter receives overlay frames in order
type FrameWriter interface {
	WriteFrame(img *image.RGBA) error
	Close() error
	Abort()
}

// VideoEncoder opens a video file for sequential frame writes
type VideoEncoder interface {
	OpenVideo(ctx context.Context, path string, width, height int, fps float64) (FrameWriter, error)
}

// FFmpegEncoder encodes overlays to H.264 mp4 through ffmpeg
type FFmpegEncoder struct {
	Exec *ffmpeg.Executor
}

// OpenVideo starts an ffmpeg encode session
func (f FFmpegEncoder) OpenVideo(ctx context.Context, path string, width, height int, fps float64) (FrameWriter, error) {
	w, err := f.Exec.EncodeRawVideo(ctx, ffmpeg.EncodeOptions{
		Output: path,
		Width:  width,
		Height: height,
		FPS:    fps,
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}
