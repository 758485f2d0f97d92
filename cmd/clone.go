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
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valpere/reclone/internal"
	"github.com/valpere/reclone/internal/report"
	"github.com/valpere/reclone/internal/scraper"
	"github.com/valpere/reclone/internal/store"
)

var (
	cloneURL     string
	cloneInput   string
	cloneOutput  string
	cloneReport  string
	saveDocument string
)

var cloneCmd = &cobra.Command{
	Use:   "clone",
	Short: "Recreate a webpage as a static HTML file",
	Long: `Recreate a webpage as a single static HTML document.

The page is either scraped live (--url) or loaded from a document file
written by "reclone scrape" (--input). The generated HTML is written to
--output even when cloning fails, in which case it is an error page.

Examples:
  reclone clone --url https://example.com --output example.html
  reclone clone --input example.yaml --output example.html --report example.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (cloneURL == "") == (cloneInput == "") {
			return fmt.Errorf("exactly one of --url or --input is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		doc, err := loadDocument(ctx)
		if err != nil {
			return err
		}
		if saveDocument != "" {
			if err := scraper.SaveFile(saveDocument, doc); err != nil {
				return fmt.Errorf("failed to save document: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Saved scraped document to %s\n", saveDocument)
		}

		orch, err := buildOrchestrator(cfg, nil)
		if err != nil {
			return err
		}

		db, err := openHistory(cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		fmt.Fprintf(os.Stderr, "Cloning %s (up to %d refinements)\n", doc.URL, orch.Config().MaxIterations)
		res := orch.Clone(ctx, doc)

		if db != nil {
			if err := db.SaveResult(context.WithoutCancel(ctx), res); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to save session: %v\n", err)
			}
		}

		if err := writeFile(cloneOutput, []byte(res.HTML)); err != nil {
			return err
		}
		if cloneReport != "" {
			sess, cands := store.FromResult(res)
			if err := writeFile(cloneReport, report.Markdown(sess, cands)); err != nil {
				return err
			}
		}

		if !res.Success {
			return fmt.Errorf("clone failed (%s): %s", res.StopReason, res.Error)
		}

		fmt.Printf("Successfully cloned %s to %s\n", doc.URL, cloneOutput)
		fmt.Printf("Session:              %s\n", res.SessionID)
		fmt.Printf("Stopped by:           %s after %d candidate(s)\n", res.StopReason, res.Iterations)
		fmt.Printf("Visual similarity:    %.3f\n", res.VisualSimilarity)
		fmt.Printf("Content completeness: %.3f\n", res.ContentCompleteness)
		fmt.Printf("Asset score:          %.3f\n", res.AssetScore)
		if res.Error != "" {
			fmt.Fprintf(os.Stderr, "Refinement ended early: %s\n", res.Error)
		}
		return nil
	},
}

func loadDocument(ctx context.Context) (*internal.ScrapedDocument, error) {
	if cloneInput != "" {
		doc, err := scraper.LoadFile(cloneInput)
		if err != nil {
			return nil, fmt.Errorf("failed to load document: %w", err)
		}
		return doc, nil
	}

	fmt.Fprintf(os.Stderr, "Scraping %s\n", cloneURL)
	doc, err := buildScraper(cfg).Scrape(ctx, cloneURL)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape page: %w", err)
	}
	return doc, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(cloneCmd)

	cloneCmd.Flags().StringVarP(&cloneURL, "url", "u", "", "URL of the page to clone")
	cloneCmd.Flags().StringVarP(&cloneInput, "input", "i", "", "Scraped document file (YAML or JSON)")
	cloneCmd.Flags().StringVarP(&cloneOutput, "output", "o", "", "Output HTML file (required)")
	cloneCmd.Flags().StringVar(&cloneReport, "report", "", "Write a markdown session report to this file")
	cloneCmd.Flags().StringVar(&saveDocument, "save-document", "", "Save the scraped document to this YAML file")
	addGeneratorFlags(cloneCmd.Flags())

	cloneCmd.MarkFlagsMutuallyExclusive("url", "input")
	cloneCmd.MarkFlagRequired("output")
}
