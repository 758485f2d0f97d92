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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/valpere/reclone/internal/config"
	"github.com/valpere/reclone/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cloning HTTP API",
	Long: `Serve the cloning HTTP API.

Endpoints:
  GET  /health
  POST /clone                 {"url": "..."} or {"document": {...}}
  GET  /sessions
  GET  /sessions/{id}
  GET  /sessions/{id}/html
  GET  /sessions/{id}/report  (?format=md for markdown)
  GET  /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		orch, err := buildOrchestrator(cfg, reg)
		if err != nil {
			return err
		}

		opts := []server.Option{
			server.WithLogger(logger),
			server.WithGatherer(reg),
			server.WithMaxConcurrent(cfg.Server.MaxConcurrent),
			server.WithCloneTimeout(cfg.Server.CloneTimeout),
		}
		db, err := openHistory(cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
			opts = append(opts, server.WithHistory(db))
		}

		srv := &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      server.New(orch, buildScraper(cfg), opts...).Router(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", cfg.Server.Addr, "history", db != nil)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	d := config.Default()
	serveCmd.Flags().String("addr", d.Server.Addr, "Listen address")
	serveCmd.Flags().Int("max-concurrent", d.Server.MaxConcurrent, "Clone sessions run at once")
	addGeneratorFlags(serveCmd.Flags())
}
