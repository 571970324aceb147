package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/keagan/adattention/internal/frames"
	"github.com/keagan/adattention/internal/saliency"
	"github.com/keagan/adattention/pkg/util"
	"github.com/rs/zerolog"
)

// Artifact file names inside the output directory
const (
	ReportFile  = "report.json"
	PlotFile    = "attention_curve.png"
	OverlayFile = "overlay.mp4"
)

// RenderError reports a failed artifact write. Nothing from the failed run is
// left in the output directory.
type RenderError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s (%s): %v", e.Artifact, e.Path, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Config controls rendering
type Config struct {
	OverlayAlpha float64
	OutputFPS    float64
	PlotWidth    float64 // inches
	PlotHeight   float64 // inches
	SkipOverlay  bool
}

// DefaultConfig returns the standard render settings
func DefaultConfig() Config {
	return Config{
		OverlayAlpha: 0.5,
		OutputFPS:    2,
		PlotWidth:    8,
		PlotHeight:   3,
	}
}

// Input is everything needed to render one run
type Input struct {
	Scorecard *Scorecard
	Frames    []frames.Frame
	Maps      []*saliency.Map // parallel to Frames
}

// Artifacts lists the final paths of the written files
type Artifacts struct {
	Dir     string
	Report  string
	Plot    string
	Overlay string
}

// Renderer writes run artifacts into an output directory
type Renderer struct {
	logger  zerolog.Logger
	cfg     Config
	encoder VideoEncoder
}

// NewRenderer creates a renderer. encoder may be nil when overlays are skipped.
func NewRenderer(logger zerolog.Logger, cfg Config, encoder VideoEncoder) *Renderer {
	def := DefaultConfig()
	if cfg.OutputFPS <= 0 {
		cfg.OutputFPS = def.OutputFPS
	}
	if cfg.PlotWidth <= 0 {
		cfg.PlotWidth = def.PlotWidth
	}
	if cfg.PlotHeight <= 0 {
		cfg.PlotHeight = def.PlotHeight
	}
	return &Renderer{
		logger:  logger.With().Str("component", "renderer").Logger(),
		cfg:     cfg,
		encoder: encoder,
	}
}

// Render stages every artifact in a hidden directory under outDir and moves
// them into place only once all of them were written.
func (r *Renderer) Render(ctx context.Context, outDir string, in Input) (*Artifacts, error) {
	start := time.Now()
	if in.Scorecard == nil {
		return nil, &RenderError{Artifact: ReportFile, Path: outDir, Err: fmt.Errorf("no scorecard")}
	}
	if !r.cfg.SkipOverlay && len(in.Maps) != len(in.Frames) {
		return nil, &RenderError{Artifact: OverlayFile, Path: outDir, Err: fmt.Errorf("%d maps for %d frames", len(in.Maps), len(in.Frames))}
	}

	if err := util.EnsureDir(outDir); err != nil {
		return nil, &RenderError{Artifact: "output directory", Path: outDir, Err: err}
	}

	stage := filepath.Join(outDir, ".render-"+uuid.NewString())
	if err := os.Mkdir(stage, 0755); err != nil {
		return nil, &RenderError{Artifact: "output directory", Path: outDir, Err: err}
	}
	defer os.RemoveAll(stage)

	final := &Artifacts{
		Dir:    outDir,
		Report: filepath.Join(outDir, ReportFile),
		Plot:   filepath.Join(outDir, PlotFile),
	}
	if !r.cfg.SkipOverlay {
		final.Overlay = filepath.Join(outDir, OverlayFile)
	}

	if in.Scorecard.Run != nil {
		in.Scorecard.Run.Files = map[string]string{
			"report": final.Report,
			"plot":   final.Plot,
		}
		if final.Overlay != "" {
			in.Scorecard.Run.Files["overlay"] = final.Overlay
		}
	}

	var staged []string

	plotPath := filepath.Join(stage, PlotFile)
	var buf bytes.Buffer
	if err := PlotCurve(&buf, in.Scorecard, r.cfg.PlotWidth, r.cfg.PlotHeight); err != nil {
		return nil, &RenderError{Artifact: PlotFile, Path: plotPath, Err: err}
	}
	if err := os.WriteFile(plotPath, buf.Bytes(), 0644); err != nil {
		return nil, &RenderError{Artifact: PlotFile, Path: plotPath, Err: err}
	}
	staged = append(staged, PlotFile)

	if !r.cfg.SkipOverlay {
		overlayPath := filepath.Join(stage, OverlayFile)
		if err := r.renderOverlay(ctx, overlayPath, in); err != nil {
			return nil, &RenderError{Artifact: OverlayFile, Path: overlayPath, Err: err}
		}
		staged = append(staged, OverlayFile)
	}

	reportPath := filepath.Join(stage, ReportFile)
	data, err := in.Scorecard.Marshal()
	if err != nil {
		return nil, &RenderError{Artifact: ReportFile, Path: reportPath, Err: err}
	}
	if err := os.WriteFile(reportPath, data, 0644); err != nil {
		return nil, &RenderError{Artifact: ReportFile, Path: reportPath, Err: err}
	}
	staged = append(staged, ReportFile)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// report.json goes last so its presence marks a complete set
	for _, name := range staged {
		if err := os.Rename(filepath.Join(stage, name), filepath.Join(outDir, name)); err != nil {
			return nil, &RenderError{Artifact: name, Path: filepath.Join(outDir, name), Err: err}
		}
	}

	r.logger.Info().
		Str("dir", outDir).
		Int("frames", len(in.Frames)).
		Dur("elapsed", time.Since(start)).
		Msg("artifacts written")

	return final, nil
}

func (r *Renderer) renderOverlay(ctx context.Context, path string, in Input) error {
	if r.encoder == nil {
		return fmt.Errorf("no video encoder configured")
	}
	if len(in.Frames) == 0 {
		return fmt.Errorf("no frames")
	}

	w, h := in.Frames[0].Width(), in.Frames[0].Height()
	writer, err := r.encoder.OpenVideo(ctx, path, w, h, r.cfg.OutputFPS)
	if err != nil {
		return fmt.Errorf("open encoder: %w", err)
	}

	for i, f := range in.Frames {
		if err := ctx.Err(); err != nil {
			writer.Abort()
			return err
		}
		heat := in.Maps[i].Gray(f.Width(), f.Height())
		if err := writer.WriteFrame(Blend(f.Image, heat, r.cfg.OverlayAlpha)); err != nil {
			writer.Abort()
			return fmt.Errorf("frame %d: %w", f.Index, err)
		}
	}

	if err := writer.Close(); err != nil {
		return err
	}
	r.logger.Debug().Str("path", path).Int("frames", len(in.Frames)).Msg("overlay encoded")
	return nil
}
