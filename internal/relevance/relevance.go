// Package relevance scores frames against desirable and undesirable ad
// prompts in a shared image/text embedding space.
package relevance

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/keagan/adattention/internal/frames"
	"github.com/rs/zerolog"
)

// ErrUnavailable means the encoder or its model could not be loaded. Callers
// treat the signal as absent rather than failing the run.
var ErrUnavailable = errors.New("relevance extractor unavailable")

// Encoder embeds an image into the prompt embedding space
type Encoder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	Close() error
}

// Config locates the model and prompt embeddings
type Config struct {
	ModelPath    string `yaml:"model_path"`
	LibraryPath  string `yaml:"onnx_library"`
	PromptsPath  string `yaml:"prompts_path"`
	InputName    string `yaml:"input_name"`
	OutputName   string `yaml:"output_name"`
	EmbeddingDim int    `yaml:"embedding_dim"`
}

// DefaultConfig returns names matching a CLIP ViT-B/32 vision export
func DefaultConfig() Config {
	return Config{
		InputName:    "pixel_values",
		OutputName:   "image_embeds",
		EmbeddingDim: 512,
	}
}

// Extractor computes per-frame relevance deltas. The encoder is shared by all
// workers and only read after construction.
type Extractor struct {
	logger  zerolog.Logger
	encoder Encoder
	prompts *PromptSet
}

// New builds an extractor around an already loaded encoder
func New(logger zerolog.Logger, encoder Encoder, prompts *PromptSet) (*Extractor, error) {
	if encoder == nil {
		return nil, fmt.Errorf("%w: no encoder", ErrUnavailable)
	}
	if err := prompts.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{
		logger:  logger.With().Str("extractor", "relevance").Logger(),
		encoder: encoder,
		prompts: prompts,
	}, nil
}

// Open loads prompt embeddings and the ONNX image encoder. Any missing piece
// is reported as ErrUnavailable.
func Open(logger zerolog.Logger, cfg Config) (*Extractor, error) {
	if cfg.PromptsPath == "" {
		return nil, fmt.Errorf("%w: no prompt embeddings configured", ErrUnavailable)
	}
	prompts, err := LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = prompts.Dim()
	}

	enc, err := NewONNXEncoder(logger, cfg)
	if err != nil {
		return nil, err
	}

	ext, err := New(logger, enc, prompts)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return ext, nil
}

// Name identifies the signal
func (e *Extractor) Name() string { return "relevance" }

// ExtractFrame embeds one frame and returns mean similarity to the desirable
// prompts minus mean similarity to the undesirable ones.
func (e *Extractor) ExtractFrame(ctx context.Context, f frames.Frame) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	emb, err := e.encoder.Embed(ctx, f.Image)
	if err != nil {
		return 0, fmt.Errorf("embed frame %d: %w", f.Index, err)
	}
	if len(emb) != e.prompts.Dim() {
		return 0, fmt.Errorf("embedding dim %d does not match prompts dim %d", len(emb), e.prompts.Dim())
	}

	vec := normalize(emb)
	delta := meanSimilarity(vec, e.prompts.Desirable) - meanSimilarity(vec, e.prompts.Undesirable)

	e.logger.Debug().
		Int("frame", f.Index).
		Float64("delta", delta).
		Msg("relevance scored")

	return delta, nil
}

// Close releases the encoder
func (e *Extractor) Close() error {
	return e.encoder.Close()
}

func meanSimilarity(vec []float64, prompts []Prompt) float64 {
	var sum float64
	for _, p := range prompts {
		sum += dot(vec, p.unit)
	}
	return sum / float64(len(prompts))
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		out[i] = float64(x)
		norm += out[i] * out[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
