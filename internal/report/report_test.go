package report

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keagan/adattention/internal/frames"
	"github.com/keagan/adattention/internal/fusion"
	"github.com/keagan/adattention/internal/saliency"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureEncoder keeps copies of written frames and writes a stub file
type captureEncoder struct {
	frames  []*image.RGBA
	failAt  int
	fps     float64
	w, h    int
	aborted bool
}

type captureWriter struct {
	enc  *captureEncoder
	path string
}

func (c *captureEncoder) OpenVideo(ctx context.Context, path string, width, height int, fps float64) (FrameWriter, error) {
	c.fps, c.w, c.h = fps, width, height
	if err := os.WriteFile(path, []byte("partial"), 0644); err != nil {
		return nil, err
	}
	return &captureWriter{enc: c, path: path}, nil
}

func (w *captureWriter) WriteFrame(img *image.RGBA) error {
	if w.enc.failAt > 0 && len(w.enc.frames)+1 == w.enc.failAt {
		return errors.New("disk full")
	}
	cp := image.NewRGBA(img.Bounds())
	copy(cp.Pix, img.Pix)
	w.enc.frames = append(w.enc.frames, cp)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func (w *captureWriter) Abort() { w.enc.aborted = true }

func testInput(t *testing.T) Input {
	t.Helper()
	ext := saliency.New(saliency.DefaultConfig())
	grey := frames.Solid(64, 48, color.RGBA{R: 128, G: 128, B: 128, A: 255})

	var in Input
	var ts []float64
	for i := 0; i < 4; i++ {
		img := grey
		if i < 2 {
			img = frames.WithSquare(grey, 10+i*20, 16, 12, color.White)
		}
		f := frames.Frame{Index: i, Timestamp: float64(i) / 2, Image: img}
		in.Frames = append(in.Frames, f)
		in.Maps = append(in.Maps, ext.Map(img))
		ts = append(ts, f.Timestamp)
	}

	res, err := fusion.Fuse(ts, []fusion.Signal{
		{Name: "saliency", Values: fusion.Some([]float64{0.8, 0.6, 0, 0})},
		{Name: "motion", Values: fusion.Some([]float64{0.01, 0.01, 0.005, 0})},
		{Name: "relevance", Values: fusion.None()},
	}, fusion.DefaultConfig())
	require.NoError(t, err)

	in.Scorecard = FromFusion(res)
	in.Scorecard.EarlyWindow = 1.0
	in.Scorecard.Run = &RunInfo{ID: "run-1", CreatedAt: time.Unix(0, 0).UTC(), Source: "synthetic"}
	return in
}

func TestRenderWritesArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	enc := &captureEncoder{}
	r := NewRenderer(zerolog.Nop(), DefaultConfig(), enc)

	in := testInput(t)
	arts, err := r.Render(context.Background(), dir, in)
	require.NoError(t, err)

	for _, p := range []string{arts.Report, arts.Plot, arts.Overlay} {
		assert.FileExists(t, p)
	}

	png, err := os.ReadFile(arts.Plot)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	data, err := os.ReadFile(arts.Report)
	require.NoError(t, err)
	for _, field := range []string{`"overall_score"`, `"saliency_score"`, `"motion_score"`, `"relevance_score": null`, `"weights"`, `"key_moments"`, `"curve"`} {
		assert.Contains(t, string(data), field)
	}

	assert.Len(t, enc.frames, 4)
	assert.Equal(t, 2.0, enc.fps)
	assert.Equal(t, 64, enc.w)
	assert.Equal(t, 48, enc.h)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".render-"), "staging dir left behind")
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	in1 := testInput(t)
	in2 := testInput(t)
	in2.Scorecard.Run.ID = "run-2"

	enc1, enc2 := &captureEncoder{}, &captureEncoder{}
	_, err := NewRenderer(zerolog.Nop(), DefaultConfig(), enc1).Render(context.Background(), t.TempDir(), in1)
	require.NoError(t, err)
	_, err = NewRenderer(zerolog.Nop(), DefaultConfig(), enc2).Render(context.Background(), t.TempDir(), in2)
	require.NoError(t, err)

	a, err := in1.Scorecard.Stable()
	require.NoError(t, err)
	b, err := in2.Scorecard.Stable()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.Len(t, enc2.frames, len(enc1.frames))
	for i := range enc1.frames {
		assert.Equal(t, enc1.frames[i].Pix, enc2.frames[i].Pix)
	}
}

func TestRenderFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	enc := &captureEncoder{failAt: 3}
	r := NewRenderer(zerolog.Nop(), DefaultConfig(), enc)

	_, err := r.Render(context.Background(), dir, testInput(t))
	require.Error(t, err)

	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, OverlayFile, rerr.Artifact)
	assert.True(t, enc.aborted)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRenderUnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	r := NewRenderer(zerolog.Nop(), DefaultConfig(), &captureEncoder{})
	_, err := r.Render(context.Background(), filepath.Join(file, "out"), testInput(t))

	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "output directory", rerr.Artifact)
}

func TestRenderSkipOverlay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipOverlay = true
	arts, err := NewRenderer(zerolog.Nop(), cfg, nil).Render(context.Background(), t.TempDir(), testInput(t))
	require.NoError(t, err)
	assert.Empty(t, arts.Overlay)
	assert.FileExists(t, arts.Report)
	assert.NoFileExists(t, filepath.Join(arts.Dir, OverlayFile))
}

func TestBlend(t *testing.T) {
	src := frames.Solid(2, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	heat := image.NewGray(image.Rect(0, 0, 2, 1))
	heat.Pix[0] = 0
	heat.Pix[1] = 255

	same := Blend(src, heat, 0)
	assert.Equal(t, src.Pix, same.Pix)

	full := Blend(src, heat, 1)
	assert.Equal(t, []uint8{0, 0, 128, 255, 128, 0, 0, 255}, full.Pix)

	half := Blend(src, heat, 0.5)
	assert.Equal(t, uint8(100), half.Pix[0])
	assert.Equal(t, uint8(89), half.Pix[2])
}

func TestStableOmitsRun(t *testing.T) {
	sc := &Scorecard{OverallScore: 0.5, Run: &RunInfo{ID: "abc", Source: "/tmp/x.mp4"}}
	data, err := sc.Stable()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abc")
	assert.NotNil(t, sc.Run)
}
