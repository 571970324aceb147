package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/keagan/adattention/pkg/util"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// envPrefix namespaces environment overrides
const envPrefix = "ADATTENTION_"

// Config holds all application configuration
type Config struct {
	// Core settings
	OutputDir   string `yaml:"output_dir"`
	Concurrency int    `yaml:"concurrency"`
	Audience    string `yaml:"audience"`
	Goal        string `yaml:"goal"`

	Sampler   SamplerConfig   `yaml:"sampler"`
	Saliency  SaliencyConfig  `yaml:"saliency"`
	Motion    MotionConfig    `yaml:"motion"`
	Relevance RelevanceConfig `yaml:"relevance"`
	Pacing    PacingConfig    `yaml:"pacing"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Render    RenderConfig    `yaml:"render"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Server    ServerConfig    `yaml:"server"`
}

type SamplerConfig struct {
	FPS       float64 `yaml:"fps"`
	MaxFrames int     `yaml:"max_frames"`
}

type SaliencyConfig struct {
	AnalysisSize  int     `yaml:"analysis_size"`
	SmoothKernel  int     `yaml:"smooth_kernel"`
	BlurSigma     float64 `yaml:"blur_sigma"`
	TopFraction   float64 `yaml:"top_fraction"`
	FlatThreshold float64 `yaml:"flat_threshold"`
	Metric        string  `yaml:"metric"`
}

type MotionConfig struct {
	AnalysisWidth int     `yaml:"analysis_width"`
	Iterations    int     `yaml:"iterations"`
	Smoothness    float64 `yaml:"smoothness"`
	BlurSigma     float64 `yaml:"blur_sigma"`
	MinLevelSize  int     `yaml:"min_level_size"`
}

type RelevanceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ModelPath    string `yaml:"model_path"`
	LibraryPath  string `yaml:"onnx_library"`
	PromptsPath  string `yaml:"prompts_path"`
	InputName    string `yaml:"input_name"`
	OutputName   string `yaml:"output_name"`
	EmbeddingDim int    `yaml:"embedding_dim"`
}

type PacingConfig struct {
	Enabled bool    `yaml:"enabled"`
	Bins    int     `yaml:"bins"`
	Window  float64 `yaml:"window"`
}

// Range is a [lo, hi] pair
type Range [2]float64

type FusionConfig struct {
	Weights          map[string]float64 `yaml:"weights"`
	Ranges           map[string]Range   `yaml:"ranges"`
	Normalization    string             `yaml:"normalization"`
	EarlyWindow      float64            `yaml:"early_window"`
	MotionBoost      float64            `yaml:"motion_boost"`
	Reduction        string             `yaml:"reduction"`
	MinProminence    float64            `yaml:"min_prominence"`
	MinSpacing       float64            `yaml:"min_spacing"`
	MaxKeyMoments    int                `yaml:"max_key_moments"`
	FailureThreshold float64            `yaml:"failure_threshold"`
}

type RenderConfig struct {
	OverlayAlpha float64 `yaml:"overlay_alpha"`
	OutputFPS    float64 `yaml:"output_fps"`
	PlotWidth    float64 `yaml:"plot_width"`
	PlotHeight   float64 `yaml:"plot_height"`
	SkipOverlay  bool    `yaml:"skip_overlay"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ProbePath  string `yaml:"probe_path"`
	Threads    int    `yaml:"threads"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	LogFormat   string `yaml:"log_format"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
	DataDir     string `yaml:"data_dir"`
}

// Load reads configuration from file or returns defaults, then applies
// ADATTENTION_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; with no paths ".env" is tried.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Save writes configuration to file, replacing any previous version atomically
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return util.WriteFileAtomic(path, data, 0644)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		OutputDir:   "./out",
		Concurrency: 0,
		Goal:        "hook",
		Sampler: SamplerConfig{
			FPS: 2,
		},
		Saliency: SaliencyConfig{
			AnalysisSize:  64,
			SmoothKernel:  3,
			BlurSigma:     2.5,
			TopFraction:   0.05,
			FlatThreshold: 1.0,
			Metric:        "top_mass",
		},
		Motion: MotionConfig{
			AnalysisWidth: 160,
			Iterations:    64,
			Smoothness:    15,
			BlurSigma:     1.0,
			MinLevelSize:  12,
		},
		Relevance: RelevanceConfig{
			ModelPath:    "./models/clip-vit-b32-vision.onnx",
			PromptsPath:  "./models/prompts.json",
			InputName:    "pixel_values",
			OutputName:   "image_embeds",
			EmbeddingDim: 512,
		},
		Pacing: PacingConfig{
			Bins:   8,
			Window: 2.0,
		},
		Fusion: FusionConfig{
			Weights: map[string]float64{
				"saliency":  0.5,
				"motion":    0.3,
				"relevance": 0.2,
				"pacing":    0.1,
			},
			Ranges: map[string]Range{
				"saliency":  {0, 1},
				"motion":    {0, 0.02},
				"relevance": {-0.05, 0.05},
				"pacing":    {0, 1},
			},
			Normalization:    "fixed",
			EarlyWindow:      4.0,
			MotionBoost:      1.5,
			Reduction:        "mean",
			MinProminence:    0.05,
			MinSpacing:       1.0,
			MaxKeyMoments:    5,
			FailureThreshold: 0.25,
		},
		Render: RenderConfig{
			OverlayAlpha: 0.5,
			OutputFPS:    2,
			PlotWidth:    8,
			PlotHeight:   3,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			LogFormat:   "json",
			MaxUploadMB: 512,
			DataDir:     "./data",
		},
	}
}

// Validate rejects settings that cannot produce a meaningful score
func (c *Config) Validate() error {
	var errs []error
	if c.Sampler.FPS <= 0 {
		errs = append(errs, fmt.Errorf("sampler.fps must be > 0, got %v", c.Sampler.FPS))
	}
	if c.Sampler.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("sampler.max_frames must be >= 0"))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 0"))
	}
	for name, w := range c.Fusion.Weights {
		if w < 0 {
			errs = append(errs, fmt.Errorf("fusion.weights.%s must be >= 0, got %v", name, w))
		}
	}
	for name, r := range c.Fusion.Ranges {
		if r[1] <= r[0] {
			errs = append(errs, fmt.Errorf("fusion.ranges.%s: hi must exceed lo", name))
		}
	}
	if c.Fusion.EarlyWindow < 0 {
		errs = append(errs, fmt.Errorf("fusion.early_window must be >= 0"))
	}
	if c.Fusion.MotionBoost < 1 {
		errs = append(errs, fmt.Errorf("fusion.motion_boost must be >= 1 (1 disables)"))
	}
	switch c.Fusion.Reduction {
	case "mean", "early_weighted":
	default:
		errs = append(errs, fmt.Errorf("fusion.reduction must be mean or early_weighted, got %q", c.Fusion.Reduction))
	}
	switch c.Fusion.Normalization {
	case "fixed", "max":
	default:
		errs = append(errs, fmt.Errorf("fusion.normalization must be fixed or max, got %q", c.Fusion.Normalization))
	}
	if c.Fusion.FailureThreshold < 0 || c.Fusion.FailureThreshold > 1 {
		errs = append(errs, fmt.Errorf("fusion.failure_threshold must be within [0,1]"))
	}
	if c.Render.OverlayAlpha < 0 || c.Render.OverlayAlpha > 1 {
		errs = append(errs, fmt.Errorf("render.overlay_alpha must be within [0,1], got %v", c.Render.OverlayAlpha))
	}
	if c.Render.OutputFPS <= 0 {
		errs = append(errs, fmt.Errorf("render.output_fps must be > 0"))
	}
	switch c.Saliency.Metric {
	case "top_mass", "center":
	default:
		errs = append(errs, fmt.Errorf("saliency.metric must be top_mass or center, got %q", c.Saliency.Metric))
	}
	return errors.Join(errs...)
}

// applyEnv overrides fields from ADATTENTION_* variables
func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v := os.Getenv(envPrefix + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(envPrefix + key); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	num("FPS", &c.Sampler.FPS)
	str("OUTPUT_DIR", &c.OutputDir)
	integer("CONCURRENCY", &c.Concurrency)
	boolean("RELEVANCE", &c.Relevance.Enabled)
	str("MODEL_PATH", &c.Relevance.ModelPath)
	str("PROMPTS_PATH", &c.Relevance.PromptsPath)
	str("ONNX_LIBRARY", &c.Relevance.LibraryPath)
	num("EARLY_WINDOW", &c.Fusion.EarlyWindow)
	str("AUDIENCE", &c.Audience)
	str("FFMPEG_PATH", &c.FFmpeg.BinaryPath)
	str("SERVER_ADDR", &c.Server.Addr)

	return errors.Join(errs...)
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".adattention", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
