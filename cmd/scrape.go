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

	"github.com/spf13/cobra"

	"github.com/valpere/reclone/internal/assets"
	"github.com/valpere/reclone/internal/detector"
	"github.com/valpere/reclone/internal/scraper"
)

var scrapeOutput string

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Scrape a page into a document file",
	Long: `Scrape a page and save the text inventory, visual context and screenshot
to a YAML document that "reclone clone --input" can read later.

The screenshot is written next to the document as a PNG file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		doc, err := buildScraper(cfg).Scrape(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to scrape page: %w", err)
		}
		if err := scraper.SaveFile(scrapeOutput, doc); err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}

		fmt.Printf("Scraped %s to %s\n", doc.URL, scrapeOutput)
		fmt.Printf("Title:      %s\n", doc.Title)
		fmt.Printf("Images:     %s\n", assets.Classify(doc.Visual.Images).Summary())
		fmt.Printf("Headings:   %d\n", len(doc.Text.Headings))
		fmt.Printf("Paragraphs: %d\n", len(doc.Text.Paragraphs))
		if lang, ok := detector.New().DetectPage(doc.Text); ok {
			fmt.Printf("Language:   %s\n", lang)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVarP(&scrapeOutput, "output", "o", "page.yaml", "Output document file")
	scrapeCmd.Flags().Bool("no-headless", false, "Show the Chrome window while scraping")
}
