package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"io"
)

// EncodeOptions configures a raw-frame encode session
type EncodeOptions struct {
	Output       string
	Width        int
	Height       int
	FPS          float64
	CRF          int
	Preset       string
	ProgressFunc ProgressFunc
}

// RawVideoWriter feeds RGBA frames to an ffmpeg H.264 encoder
type RawVideoWriter struct {
	width, height int
	pipe          *io.PipeWriter
	cancel        context.CancelFunc
	done          chan error
	finished      bool
}

// EncodeRawVideo starts an ffmpeg process that reads rgba frames from stdin
// and writes an mp4 to opts.Output.
func (e *Executor) EncodeRawVideo(ctx context.Context, opts EncodeOptions) (*RawVideoWriter, error) {
	if err := validateEncodeOptions(opts); err != nil {
		return nil, fmt.Errorf("invalid encode options: %w", err)
	}

	crf := opts.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	preset := opts.Preset
	if preset == "" {
		preset = DefaultPreset
	}

	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", fmt.Sprintf("%g", opts.FPS),
		"-i", "pipe:0",
		"-an",
	}
	if filter := evenPadFilter(opts.Width, opts.Height); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-c:v", DefaultVideoCodec,
		"-pix_fmt", "yuv420p",
		"-crf", fmt.Sprintf("%d", crf),
		"-preset", preset,
		// bit-exact output for identical input frames
		"-threads", "1",
		"-fflags", "+bitexact",
		"-flags:v", "+bitexact",
		"-movflags", "+faststart",
		"-f", "mp4",
		opts.Output,
	)

	runCtx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	w := &RawVideoWriter{
		width:  opts.Width,
		height: opts.Height,
		pipe:   pw,
		cancel: cancel,
		done:   make(chan error, 1),
	}

	e.logger.Info().
		Str("output", opts.Output).
		Int("width", opts.Width).
		Int("height", opts.Height).
		Float64("fps", opts.FPS).
		Msg("starting raw video encode")

	go func() {
		err := e.Run(runCtx, RunOptions{
			Args:            args,
			Stdin:           pr,
			ProgressHandler: opts.ProgressFunc,
			LogHandler: func(line string) {
				e.logger.Debug().Str("ffmpeg", line).Msg("encode output")
			},
		})
		pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

// WriteFrame appends one frame; its size must match the encode dimensions
func (w *RawVideoWriter) WriteFrame(img *image.RGBA) error {
	if w.finished {
		return fmt.Errorf("encoder already closed")
	}
	b := img.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), w.width, w.height)
	}

	if img.Stride == w.width*4 && b.Min == (image.Point{}) {
		_, err := w.pipe.Write(img.Pix[:w.width*w.height*4])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := w.pipe.Write(img.Pix[off : off+w.width*4]); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the stream and waits for ffmpeg to finish the file
func (w *RawVideoWriter) Close() error {
	if w.finished {
		return nil
	}
	w.finished = true
	w.pipe.Close()
	err := <-w.done
	w.cancel()
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}
	return nil
}

// Abort kills the encoder; the partial output must be discarded by the caller
func (w *RawVideoWriter) Abort() {
	if w.finished {
		return
	}
	w.finished = true
	w.cancel()
	w.pipe.CloseWithError(context.Canceled)
	<-w.done
}

// evenPadFilter pads odd dimensions by one pixel; yuv420p needs even sizes
func evenPadFilter(width, height int) string {
	if width%2 == 0 && height%2 == 0 {
		return ""
	}
	return fmt.Sprintf("pad=%d:%d", width+width%2, height+height%2)
}

func validateEncodeOptions(opts EncodeOptions) error {
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		return fmt.Errorf("FPS must be positive")
	}
	if opts.CRF < 0 || opts.CRF > 51 {
		return fmt.Errorf("CRF must be between 0 and 51")
	}
	return nil
}
