package ffmpeg

import (
	"io"
	"time"
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Frames     int
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)

	// Stdin, when set, is streamed to the ffmpeg process (e.g. "-i pipe:0").
	Stdin io.Reader
	// Stdout, when set, receives raw process output instead of the log handler.
	Stdout io.Writer
}

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "medium"
	DefaultVideoCodec = "libx264"
)

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)
