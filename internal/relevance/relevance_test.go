package relevance

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/keagan/adattention/internal/frames"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// colorEncoder embeds an image as its mean RGB
type colorEncoder struct {
	fail   map[int]bool
	calls  int
	closed bool
}

func (c *colorEncoder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	c.calls++
	r, g, b, _ := img.At(0, 0).RGBA()
	if c.fail[int(r>>8)] {
		return nil, errors.New("boom")
	}
	return []float32{float32(r >> 8), float32(g >> 8), float32(b >> 8)}, nil
}

func (c *colorEncoder) Close() error {
	c.closed = true
	return nil
}

func testPrompts() *PromptSet {
	return &PromptSet{
		Desirable:   []Prompt{{Text: "an eye-catching ad", Embedding: []float32{1, 0, 0}}},
		Undesirable: []Prompt{{Text: "a boring ad", Embedding: []float32{0, 0, 1}}},
	}
}

func TestExtractFrameDelta(t *testing.T) {
	enc := &colorEncoder{}
	ext, err := New(zerolog.Nop(), enc, testPrompts())
	require.NoError(t, err)

	red, err := ext.ExtractFrame(context.Background(), frames.Frame{Image: frames.Solid(8, 8, color.RGBA{R: 255, A: 255})})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, red, 1e-9)

	blue, err := ext.ExtractFrame(context.Background(), frames.Frame{Image: frames.Solid(8, 8, color.RGBA{B: 255, A: 255})})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, blue, 1e-9)

	grey, err := ext.ExtractFrame(context.Background(), frames.Frame{Image: frames.Solid(8, 8, color.RGBA{R: 90, G: 90, B: 90, A: 255})})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, grey, 1e-9)

	require.NoError(t, ext.Close())
	assert.True(t, enc.closed)
}

func TestExtractFrameEncoderError(t *testing.T) {
	enc := &colorEncoder{fail: map[int]bool{255: true}}
	ext, err := New(zerolog.Nop(), enc, testPrompts())
	require.NoError(t, err)

	_, err = ext.ExtractFrame(context.Background(), frames.Frame{Index: 3, Image: frames.Solid(4, 4, color.White)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 3")
}

func TestDimensionMismatch(t *testing.T) {
	prompts := &PromptSet{
		Desirable:   []Prompt{{Text: "a", Embedding: []float32{1, 0}}},
		Undesirable: []Prompt{{Text: "b", Embedding: []float32{0, 1}}},
	}
	ext, err := New(zerolog.Nop(), &colorEncoder{}, prompts)
	require.NoError(t, err)

	_, err = ext.ExtractFrame(context.Background(), frames.Frame{Image: frames.Solid(4, 4, color.White)})
	assert.Error(t, err)
}

func TestPromptValidation(t *testing.T) {
	tests := []struct {
		name string
		set  *PromptSet
	}{
		{"nil", nil},
		{"no undesirable", &PromptSet{Desirable: []Prompt{{Text: "a", Embedding: []float32{1}}}}},
		{"empty embedding", &PromptSet{
			Desirable:   []Prompt{{Text: "a"}},
			Undesirable: []Prompt{{Text: "b"}},
		}},
		{"dim mismatch", &PromptSet{
			Desirable:   []Prompt{{Text: "a", Embedding: []float32{1, 0}}},
			Undesirable: []Prompt{{Text: "b", Embedding: []float32{1}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.set.Validate())
		})
	}
}

func TestLoadPrompts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	data, err := json.Marshal(testPrompts())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	set, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Dim())

	good, bad := set.Texts()
	assert.Equal(t, []string{"an eye-catching ad"}, good)
	assert.Equal(t, []string{"a boring ad"}, bad)
}

func TestOpenReportsUnavailable(t *testing.T) {
	_, err := Open(zerolog.Nop(), Config{})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = Open(zerolog.Nop(), Config{PromptsPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.ErrorIs(t, err, ErrUnavailable)

	path := filepath.Join(t.TempDir(), "prompts.json")
	data, err := json.Marshal(testPrompts())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Open(zerolog.Nop(), Config{
		PromptsPath: path,
		ModelPath:   filepath.Join(t.TempDir(), "missing.onnx"),
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewWithoutEncoder(t *testing.T) {
	_, err := New(zerolog.Nop(), nil, testPrompts())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPreprocessLayout(t *testing.T) {
	data := preprocess(frames.Solid(50, 30, color.White))
	require.Len(t, data, 3*clipInputSize*clipInputSize)

	plane := clipInputSize * clipInputSize
	assert.InDelta(t, (1-clipMean[0])/clipStd[0], data[0], 1e-5)
	assert.InDelta(t, (1-clipMean[1])/clipStd[1], data[plane], 1e-5)
	assert.InDelta(t, (1-clipMean[2])/clipStd[2], data[2*plane+plane-1], 1e-5)
}
