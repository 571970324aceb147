package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2.0, cfg.Sampler.FPS)
	assert.Equal(t, 4.0, cfg.Fusion.EarlyWindow)
	assert.Equal(t, 1.5, cfg.Fusion.MotionBoost)
	assert.Equal(t, "mean", cfg.Fusion.Reduction)
	assert.Equal(t, Range{0, 0.02}, cfg.Fusion.Ranges["motion"])
	assert.Equal(t, 15.0, cfg.Motion.Smoothness)
	assert.Equal(t, 1.0, cfg.Motion.BlurSigma)
	assert.Equal(t, 0.25, cfg.Fusion.FailureThreshold)
	assert.Equal(t, 0.5, cfg.Render.OverlayAlpha)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
sampler:
  fps: 5
fusion:
  early_window: 3
  weights:
    saliency: 1
    motion: 1
render:
  overlay_alpha: 0.3
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Sampler.FPS)
	assert.Equal(t, 3.0, cfg.Fusion.EarlyWindow)
	assert.Equal(t, 0.3, cfg.Render.OverlayAlpha)
	assert.Equal(t, 1.0, cfg.Fusion.Weights["motion"])
	assert.Equal(t, 64, cfg.Saliency.AnalysisSize, "untouched fields keep defaults")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Sampler, cfg.Sampler)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sampler: [1, 2"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ADATTENTION_FPS", "4")
	t.Setenv("ADATTENTION_RELEVANCE", "true")
	t.Setenv("ADATTENTION_EARLY_WINDOW", "5")
	t.Setenv("ADATTENTION_OUTPUT_DIR", "/tmp/ads")
	t.Setenv("ADATTENTION_CONCURRENCY", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4.0, cfg.Sampler.FPS)
	assert.True(t, cfg.Relevance.Enabled)
	assert.Equal(t, 5.0, cfg.Fusion.EarlyWindow)
	assert.Equal(t, "/tmp/ads", cfg.OutputDir)
	assert.Equal(t, 3, cfg.Concurrency)
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("ADATTENTION_FPS", "fast")
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADATTENTION_AUDIENCE=gen_z\n"), 0644))
	t.Setenv("ADATTENTION_AUDIENCE", "")
	os.Unsetenv("ADATTENTION_AUDIENCE")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gen_z", cfg.Audience)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero fps", func(c *Config) { c.Sampler.FPS = 0 }},
		{"negative weight", func(c *Config) { c.Fusion.Weights["motion"] = -0.1 }},
		{"negative early window", func(c *Config) { c.Fusion.EarlyWindow = -1 }},
		{"alpha above one", func(c *Config) { c.Render.OverlayAlpha = 1.5 }},
		{"unknown reduction", func(c *Config) { c.Fusion.Reduction = "median" }},
		{"inverted range", func(c *Config) { c.Fusion.Ranges["motion"] = Range{1, 0} }},
		{"boost below one", func(c *Config) { c.Fusion.MotionBoost = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Audience = "boomer"
	require.NoError(t, cfg.Save(path))
	cfg.Motion.Smoothness = 20
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "boomer", loaded.Audience)
	assert.Equal(t, 20.0, loaded.Motion.Smoothness)
	assert.Equal(t, 12, loaded.Motion.MinLevelSize)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestContext(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "elsewhere"
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Equal(t, "./out", FromContext(context.Background()).OutputDir)
}
