package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, 3, cfg.Clone.MaxIterations)
	assert.Equal(t, 0.85, cfg.Clone.QualityThreshold)
	assert.Equal(t, 0.8, cfg.Clone.RegressionRatio)
	assert.Equal(t, int64(1280), cfg.Renderer.ViewportWidth)
	assert.Equal(t, time.Second, cfg.Renderer.SettleDelay)
}

func TestLoad_File(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
log_level: debug
generator:
  provider: ollama
  model: llava
  base_url: http://gpu:11434
  timeout: 90s
renderer:
  settle_delay: 250ms
clone:
  max_iterations: 5
  require_assets_for_accept: false
  weights:
    visual: 1
    content: 0
    asset: 0
`)))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "ollama", cfg.Generator.Provider)
	assert.Equal(t, 90*time.Second, cfg.Generator.Timeout)
	assert.Equal(t, "http://gpu:11434", cfg.Generator.Client().BaseURL)
	assert.Equal(t, "llava", cfg.Generator.Client().Model)
	assert.Equal(t, 250*time.Millisecond, cfg.Renderer.SettleDelay)
	assert.Equal(t, 5, cfg.Clone.MaxIterations)
	assert.False(t, cfg.Clone.RequireAssetsForAccept)
	assert.Equal(t, 1.0, cfg.Clone.Weights.Visual)
	assert.Equal(t, 0.0, cfg.Clone.Weights.Content)
	assert.Equal(t, 0.85, cfg.Clone.QualityThreshold, "unset keys keep their defaults")
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("RECLONE_CLONE_MAX_ITERATIONS", "7")
	t.Setenv("RECLONE_SERVER_ADDR", ":9090")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	v := viper.New()
	BindEnv(v)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Clone.MaxIterations)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "sk-test", cfg.Generator.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad provider", func(c *Config) { c.Generator.Provider = "gpt" }, "generator.provider"},
		{"negative iterations", func(c *Config) { c.Clone.MaxIterations = -1 }, "max_iterations"},
		{"threshold above one", func(c *Config) { c.Clone.QualityThreshold = 1.5 }, "quality_threshold"},
		{"negative weight", func(c *Config) { c.Clone.Weights.Asset = -0.1 }, "weights"},
		{"negative concurrency", func(c *Config) { c.Server.MaxConcurrent = -1 }, "max_concurrent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
