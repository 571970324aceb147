package relevance

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

const clipInputSize = 224

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// the ONNX environment is process-wide; encoders share it
var (
	envMu   sync.Mutex
	envRefs int
)

// ONNXEncoder runs a CLIP vision tower exported to ONNX. The session is
// created once and shared by concurrent Embed calls.
type ONNXEncoder struct {
	logger  zerolog.Logger
	session *ort.DynamicAdvancedSession
	inShape ort.Shape
	outDim  int
	closed  sync.Once
}

// NewONNXEncoder loads the model at cfg.ModelPath. A missing model, shared
// library or session failure is reported as ErrUnavailable.
func NewONNXEncoder(logger zerolog.Logger, cfg Config) (*ONNXEncoder, error) {
	def := DefaultConfig()
	if cfg.InputName == "" {
		cfg.InputName = def.InputName
	}
	if cfg.OutputName == "" {
		cfg.OutputName = def.OutputName
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = def.EmbeddingDim
	}

	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: no model configured", ErrUnavailable)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model file not found: %s", ErrUnavailable, cfg.ModelPath)
	}

	if err := acquireEnvironment(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ONNX runtime: %v", ErrUnavailable, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("%w: error creating session options: %v", ErrUnavailable, err)
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(runtime.NumCPU())

	sess, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		options,
	)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("%w: failed to create session: %v", ErrUnavailable, err)
	}

	logger.Info().
		Str("model", cfg.ModelPath).
		Str("input", cfg.InputName).
		Str("output", cfg.OutputName).
		Int("dim", cfg.EmbeddingDim).
		Msg("image encoder loaded")

	return &ONNXEncoder{
		logger:  logger.With().Str("encoder", "onnx").Logger(),
		session: sess,
		inShape: ort.NewShape(1, 3, clipInputSize, clipInputSize),
		outDim:  cfg.EmbeddingDim,
	}, nil
}

// Embed returns the image embedding of img
func (e *ONNXEncoder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := ort.NewTensor(e.inShape, preprocess(img))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.outDim)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := e.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	emb := make([]float32, e.outDim)
	copy(emb, output.GetData())
	return emb, nil
}

// Close destroys the session and drops this encoder's hold on the runtime
func (e *ONNXEncoder) Close() error {
	var err error
	e.closed.Do(func() {
		e.logger.Info().Msg("closing image encoder session")
		err = e.session.Destroy()
		if rerr := releaseEnvironment(); err == nil {
			err = rerr
		}
	})
	return err
}

// preprocess resizes to 224x224 and lays out CHW float32 with CLIP
// normalization.
func preprocess(img image.Image) []float32 {
	resized := resize.Resize(clipInputSize, clipInputSize, img, resize.Bilinear)
	b := resized.Bounds()
	plane := clipInputSize * clipInputSize
	data := make([]float32, 3*plane)

	idx := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			data[idx] = (float32(r>>8)/255 - clipMean[0]) / clipStd[0]
			data[plane+idx] = (float32(g>>8)/255 - clipMean[1]) / clipStd[1]
			data[2*plane+idx] = (float32(bl>>8)/255 - clipMean[2]) / clipStd[2]
			idx++
		}
	}
	return data
}

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return err
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}
