// Package config holds the settings shared by the CLI and the HTTP server.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/reclone/internal/generator"
	"github.com/valpere/reclone/internal/orchestrator"
	"github.com/valpere/reclone/internal/renderer"
	"github.com/valpere/reclone/internal/scraper"
)

// EnvPrefix is prepended to every environment variable, so clone.max_iterations
// is read from RECLONE_CLONE_MAX_ITERATIONS.
const EnvPrefix = "RECLONE"

type Config struct {
	LogLevel       string              `mapstructure:"log_level"`
	LogFormat      string              `mapstructure:"log_format"`
	DBPath         string              `mapstructure:"db"`
	NoHistory      bool                `mapstructure:"no_history"`
	DetectLanguage bool                `mapstructure:"detect_language"`
	Generator      GeneratorConfig     `mapstructure:"generator"`
	Renderer       renderer.Options    `mapstructure:"renderer"`
	Scraper        scraper.Options     `mapstructure:"scraper"`
	Clone          orchestrator.Config `mapstructure:"clone"`
	Server         ServerConfig        `mapstructure:"server"`
}

type GeneratorConfig struct {
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// Client returns the settings passed to the generator client.
func (g GeneratorConfig) Client() generator.Config {
	return generator.Config{
		APIKey:  g.APIKey,
		Model:   g.Model,
		BaseURL: g.BaseURL,
		Timeout: g.Timeout,
	}
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	CloneTimeout    time.Duration `mapstructure:"clone_timeout"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:       "info",
		LogFormat:      "text",
		DBPath:         "./data/reclone.db",
		DetectLanguage: true,
		Generator: GeneratorConfig{
			Provider:          "openrouter",
			Timeout:           300 * time.Second,
			RequestsPerMinute: 20,
		},
		Renderer: renderer.Options{
			Timeout:            60 * time.Second,
			ViewportWidth:      1280,
			ViewportHeight:     720,
			SettleDelay:        time.Second,
			ConcurrentSessions: 2,
		},
		Scraper: scraper.Options{
			Timeout:            60 * time.Second,
			ViewportWidth:      1280,
			ViewportHeight:     720,
			SettleDelay:        1500 * time.Millisecond,
			ConcurrentSessions: 2,
			RespectRobots:      true,
		},
		Clone: orchestrator.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    15 * time.Minute,
			CloneTimeout:    10 * time.Minute,
			MaxConcurrent:   2,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// SetDefaults registers every default with v so that environment variables
// and config files can override individual keys.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("db", d.DBPath)
	v.SetDefault("no_history", d.NoHistory)
	v.SetDefault("detect_language", d.DetectLanguage)

	v.SetDefault("generator.provider", d.Generator.Provider)
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.model", "")
	v.SetDefault("generator.base_url", "")
	v.SetDefault("generator.timeout", d.Generator.Timeout)
	v.SetDefault("generator.requests_per_minute", d.Generator.RequestsPerMinute)

	v.SetDefault("renderer.timeout", d.Renderer.Timeout)
	v.SetDefault("renderer.viewport_width", d.Renderer.ViewportWidth)
	v.SetDefault("renderer.viewport_height", d.Renderer.ViewportHeight)
	v.SetDefault("renderer.settle_delay", d.Renderer.SettleDelay)
	v.SetDefault("renderer.concurrent_sessions", d.Renderer.ConcurrentSessions)
	v.SetDefault("renderer.disable_headless", d.Renderer.DisableHeadless)

	v.SetDefault("scraper.timeout", d.Scraper.Timeout)
	v.SetDefault("scraper.viewport_width", d.Scraper.ViewportWidth)
	v.SetDefault("scraper.viewport_height", d.Scraper.ViewportHeight)
	v.SetDefault("scraper.settle_delay", d.Scraper.SettleDelay)
	v.SetDefault("scraper.user_agent", d.Scraper.UserAgent)
	v.SetDefault("scraper.concurrent_sessions", d.Scraper.ConcurrentSessions)
	v.SetDefault("scraper.disable_headless", d.Scraper.DisableHeadless)
	v.SetDefault("scraper.respect_robots", d.Scraper.RespectRobots)

	v.SetDefault("clone.max_iterations", d.Clone.MaxIterations)
	v.SetDefault("clone.quality_threshold", d.Clone.QualityThreshold)
	v.SetDefault("clone.accept_asset_min", d.Clone.AcceptAssetMin)
	v.SetDefault("clone.require_assets_for_accept", d.Clone.RequireAssetsForAccept)
	v.SetDefault("clone.regression_ratio", d.Clone.RegressionRatio)
	v.SetDefault("clone.minor_refine_above", d.Clone.MinorRefineAbove)
	v.SetDefault("clone.weights.visual", d.Clone.Weights.Visual)
	v.SetDefault("clone.weights.content", d.Clone.Weights.Content)
	v.SetDefault("clone.weights.asset", d.Clone.Weights.Asset)
	v.SetDefault("clone.initial_temperature", d.Clone.InitialTemperature)
	v.SetDefault("clone.refine_temperature", d.Clone.RefineTemperature)
	v.SetDefault("clone.max_tokens", d.Clone.MaxTokens)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.clone_timeout", d.Server.CloneTimeout)
	v.SetDefault("server.max_concurrent", d.Server.MaxConcurrent)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
}

// BindEnv makes v read RECLONE_* variables. The provider's own API key
// variables are accepted as a fallback for generator.api_key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("generator.api_key", EnvPrefix+"_GENERATOR_API_KEY", "OPENROUTER_API_KEY", "ANTHROPIC_API_KEY")
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q: want text or json", c.LogFormat)
	}

	switch c.Generator.Provider {
	case "openrouter", "ollama", "anthropic":
	default:
		return fmt.Errorf("invalid generator.provider %q: want openrouter, ollama or anthropic", c.Generator.Provider)
	}

	cl := c.Clone
	if cl.MaxIterations < 0 {
		return fmt.Errorf("clone.max_iterations must not be negative, got %d", cl.MaxIterations)
	}
	for name, val := range map[string]float64{
		"clone.quality_threshold":  cl.QualityThreshold,
		"clone.accept_asset_min":   cl.AcceptAssetMin,
		"clone.regression_ratio":   cl.RegressionRatio,
		"clone.minor_refine_above": cl.MinorRefineAbove,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, val)
		}
	}
	w := cl.Weights
	if w.Visual < 0 || w.Content < 0 || w.Asset < 0 {
		return fmt.Errorf("clone.weights must not be negative, got %+v", w)
	}

	if c.Server.MaxConcurrent < 0 {
		return fmt.Errorf("server.max_concurrent must not be negative, got %d", c.Server.MaxConcurrent)
	}
	return nil
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return level, nil
}
