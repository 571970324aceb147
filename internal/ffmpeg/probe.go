package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/keagan/adattention/pkg/util"
)

// ProbeVideo extracts metadata from a video file
func (e *Executor) ProbeVideo(ctx context.Context, filePath string) (*VideoInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(filePath, output)
}

func parseProbeOutput(filePath string, output []byte) (*VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{
		FilePath: filePath,
	}

	// Parse duration
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(dur * float64(time.Second))
	}

	// Parse bitrate
	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	hasVideo := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if hasVideo {
				continue
			}
			hasVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName

			// Prefer the average rate; r_frame_rate is the container's guess
			info.FPS = util.ParseFrameRate(stream.AvgFrameRate)
			if info.FPS <= 0 {
				info.FPS = util.ParseFrameRate(stream.RFrameRate)
			}
			if n, err := strconv.Atoi(stream.NbFrames); err == nil {
				info.Frames = n
			}
		case "audio":
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
		}
	}

	if !hasVideo {
		return nil, fmt.Errorf("no video stream in %s", filePath)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid video dimensions %dx%d", info.Width, info.Height)
	}

	return info, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		BitRate      string `json:"bit_rate"`
	} `json:"streams"`
}
