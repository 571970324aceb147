package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options locates the ffmpeg binaries and tunes execution
type Options struct {
	FFmpegPath  string
	FFprobePath string
	Threads     int
}

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath(opts.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
	}, nil
}

// Run executes ffmpeg with the given arguments and streams progress
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// Build args with threads BEFORE other arguments
	baseArgs := []string{"-y", "-hide_banner", "-loglevel", "info"}
	if opts.Stdin == nil {
		baseArgs = append(baseArgs, "-nostdin")
	}

	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}

	baseArgs = append(baseArgs, "-progress", "pipe:2")
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}
	// stop waiting on pipe copies once the process has been killed
	cmd.WaitDelay = 5 * time.Second

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	tail := &lineTail{max: 8}

	// Stream stderr (progress + logs)
	go func() {
		defer wg.Done()
		e.streamOutput(stderr, opts.ProgressHandler, func(line string) {
			tail.add(line)
			if opts.LogHandler != nil {
				opts.LogHandler(line)
			}
		})
	}()

	// Stream stdout
	var copyErr error
	go func() {
		defer wg.Done()
		if opts.Stdout != nil {
			_, copyErr = io.Copy(opts.Stdout, stdout)
			if copyErr != nil {
				// unblock the process if the consumer went away
				_, _ = io.Copy(io.Discard, stdout)
			}
			return
		}
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg execution failed: %w: %s", err, tail.String())
	}
	if copyErr != nil && !errors.Is(copyErr, io.ErrClosedPipe) {
		return fmt.Errorf("ffmpeg output copy failed: %w", copyErr)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// streamOutput parses ffmpeg output and calls handlers
func (e *Executor) streamOutput(r io.Reader, progressHandler func(*Progress), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()

		// Parse progress lines
		if strings.HasPrefix(line, "frame=") {
			fmt.Sscanf(line, "frame=%d", &progressData.Frame)
		} else if strings.HasPrefix(line, "fps=") {
			fmt.Sscanf(line, "fps=%f", &progressData.FPS)
		} else if strings.HasPrefix(line, "bitrate=") {
			progressData.Bitrate = valueOf(line)
		} else if strings.HasPrefix(line, "out_time=") {
			progressData.Time = valueOf(line)
		} else if strings.HasPrefix(line, "speed=") {
			progressData.Speed = valueOf(line)
		} else if strings.HasPrefix(line, "progress=") {
			// End of progress block
			if progressHandler != nil && progressData.Frame > 0 {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		} else if logHandler != nil && !isProgressKey(line) {
			logHandler(line)
		}
	}
}

func valueOf(line string) string {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

var progressKeys = []string{
	"total_size=", "out_time_us=", "out_time_ms=", "dup_frames=", "drop_frames=", "stream_",
}

func isProgressKey(line string) bool {
	for _, k := range progressKeys {
		if strings.HasPrefix(line, k) {
			return true
		}
	}
	return false
}

// lineTail keeps the last few log lines for error messages
type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[1:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "; ")
}
