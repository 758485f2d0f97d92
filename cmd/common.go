/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/valpere/reclone/internal/config"
	"github.com/valpere/reclone/internal/detector"
	"github.com/valpere/reclone/internal/generator"
	"github.com/valpere/reclone/internal/metrics"
	"github.com/valpere/reclone/internal/orchestrator"
	"github.com/valpere/reclone/internal/renderer"
	"github.com/valpere/reclone/internal/scraper"
	"github.com/valpere/reclone/internal/store"
)

// flagKeys maps command line flags to config keys. A flag that was set
// explicitly wins over the config file and environment.
var flagKeys = map[string]string{
	"log-level":         "log_level",
	"log-format":        "log_format",
	"db":                "db",
	"no-history":        "no_history",
	"provider":          "generator.provider",
	"model":             "generator.model",
	"base-url":          "generator.base_url",
	"api-key":           "generator.api_key",
	"max-iterations":    "clone.max_iterations",
	"quality-threshold": "clone.quality_threshold",
	"detect-language":   "detect_language",
	"no-headless":       "renderer.disable_headless",
	"addr":              "server.addr",
	"max-concurrent":    "server.max_concurrent",
}

// bindFlags binds the flags of the running command. Commands share flag
// names, so binding happens once the command is known.
func bindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// addGeneratorFlags registers the generator and loop flags shared by clone
// and serve.
func addGeneratorFlags(flags *pflag.FlagSet) {
	d := config.Default()

	flags.String("provider", d.Generator.Provider, "Generator provider: openrouter, ollama or anthropic")
	flags.String("model", "", "Generator model (provider default if empty)")
	flags.String("base-url", "", "Generator API base URL (provider default if empty)")
	flags.String("api-key", "", "Generator API key (or RECLONE_GENERATOR_API_KEY, OPENROUTER_API_KEY, ANTHROPIC_API_KEY)")
	flags.Int("max-iterations", d.Clone.MaxIterations, "Refinement iterations after the first candidate")
	flags.Float64("quality-threshold", d.Clone.QualityThreshold, "Visual similarity that ends refinement early")
	flags.Bool("detect-language", d.DetectLanguage, "Detect the page language and keep the clone in it")
	flags.Bool("no-headless", false, "Show the Chrome window while rendering and scraping")
}

// buildGenerator constructs the configured generator, paced to the
// configured request rate.
func buildGenerator(c config.GeneratorConfig) (generator.Generator, error) {
	gen, err := generator.New(c.Provider, c.Client())
	if err != nil {
		return nil, err
	}
	return generator.NewPaced(gen, c.RequestsPerMinute, time.Minute), nil
}

// buildOrchestrator wires the generator, renderer, metrics and language
// detector into an orchestrator. reg may be nil to skip metrics.
func buildOrchestrator(c *config.Config, reg prometheus.Registerer) (*orchestrator.Orchestrator, error) {
	gen, err := buildGenerator(c.Generator)
	if err != nil {
		return nil, err
	}

	rend := renderer.NewChromedpRenderer(c.Renderer).WithLogger(logger)

	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, orchestrator.WithMetrics(metrics.New(reg)))
	}
	if c.DetectLanguage {
		opts = append(opts, orchestrator.WithLanguageDetector(detector.New()))
	}

	logger.Debug("orchestrator ready",
		"provider", gen.Name(),
		"max_iterations", c.Clone.MaxIterations,
		"quality_threshold", c.Clone.QualityThreshold,
	)
	return orchestrator.New(gen, rend, c.Clone, opts...), nil
}

func buildScraper(c *config.Config) *scraper.ChromedpScraper {
	opts := c.Scraper
	if c.Renderer.DisableHeadless {
		opts.DisableHeadless = true
	}
	return scraper.NewChromedpScraper(opts).WithLogger(logger)
}

// openHistory opens the session database, or returns nil when history is
// disabled.
func openHistory(c *config.Config) (*store.Store, error) {
	if c.NoHistory || c.DBPath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
