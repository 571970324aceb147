package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/keagan/adattention/internal/frames"
)

// RawVideoReader streams decoded RGBA frames out of an ffmpeg process.
// It implements frames.FrameSource.
type RawVideoReader struct {
	info      frames.SourceInfo
	frameSize int
	pipe      *io.PipeReader
	cancel    context.CancelFunc
	done      chan error
	closed    bool
}

// OpenRawVideo probes path and starts decoding its first video stream at the
// native frame rate, one rgba frame per ReadFrame call.
func (e *Executor) OpenRawVideo(ctx context.Context, path string) (*RawVideoReader, error) {
	info, err := e.ProbeVideo(ctx, path)
	if err != nil {
		return nil, &frames.DecodeError{Path: path, Err: err}
	}
	if info.FPS <= 0 {
		return nil, &frames.DecodeError{Path: path, Err: fmt.Errorf("unknown frame rate")}
	}

	runCtx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	args := []string{
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-an", "-sn",
		"-vsync", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}

	r := &RawVideoReader{
		info: frames.SourceInfo{
			Width:    info.Width,
			Height:   info.Height,
			FPS:      info.FPS,
			Duration: info.Duration.Seconds(),
		},
		frameSize: info.Width * info.Height * 4,
		pipe:      pr,
		cancel:    cancel,
		done:      make(chan error, 1),
	}

	e.logger.Debug().
		Str("input", path).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("opening raw video decoder")

	go func() {
		err := e.Run(runCtx, RunOptions{
			Args:   args,
			Stdout: pw,
			LogHandler: func(line string) {
				e.logger.Debug().Str("ffmpeg", line).Msg("decode output")
			},
		})
		pw.CloseWithError(err)
		r.done <- err
	}()

	return r, nil
}

// Info describes the decoded stream
func (r *RawVideoReader) Info() frames.SourceInfo {
	return r.info
}

// ReadFrame returns the next decoded frame or io.EOF
func (r *RawVideoReader) ReadFrame() (*image.RGBA, error) {
	if r.closed {
		return nil, io.EOF
	}

	img := image.NewRGBA(image.Rect(0, 0, r.info.Width, r.info.Height))
	_, err := io.ReadFull(r.pipe, img.Pix)
	switch {
	case err == nil:
		return img, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// a trailing partial frame is dropped
		return nil, io.EOF
	default:
		return nil, err
	}
}

// Close stops the decoder and waits for the ffmpeg process to exit
func (r *RawVideoReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()
	r.pipe.Close()
	<-r.done
	return nil
}

// Decoder adapts the executor to frames.Decoder
func (e *Executor) Decoder() frames.Decoder {
	return rawDecoder{exec: e}
}

type rawDecoder struct {
	exec *Executor
}

func (d rawDecoder) Open(ctx context.Context, path string) (frames.FrameSource, error) {
	return d.exec.OpenRawVideo(ctx, path)
}
