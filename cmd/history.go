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
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/reclone/internal/report"
	"github.com/valpere/reclone/internal/store"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded clone sessions",
	Long:  `List, inspect, and delete clone sessions recorded in the SQLite history.`,
}

func openStore() (*store.Store, error) {
	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent clone sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		sessions, err := db.ListSessions(context.Background(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tOK\tSTOP\tITER\tVISUAL\tCONTENT\tASSET\tURL")
		for _, s := range sessions {
			url := s.URL
			if len(url) > 50 {
				url = url[:47] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%d\t%.3f\t%.3f\t%.3f\t%s\n",
				s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Success, s.StopReason,
				s.Iterations, s.Visual, s.Content, s.Asset, url)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the report of a clone session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		sess, err := db.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		cands, err := db.GetCandidates(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load candidates: %w", err)
		}

		md := report.Markdown(sess, cands)
		switch historyFormat {
		case "md":
			_, err = os.Stdout.Write(md)
		case "html":
			_, err = fmt.Fprintln(os.Stdout, report.Page("Clone report "+sess.ID, md))
		case "page":
			_, err = fmt.Fprintln(os.Stdout, sess.HTML)
		default:
			return fmt.Errorf("unknown format %q: want md, html or page", historyFormat)
		}
		return err
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total sessions:    %d\n", stats.TotalSessions)
		fmt.Printf("Successful:        %d\n", stats.Successful)
		fmt.Printf("Failed:            %d\n", stats.Failed)
		fmt.Printf("Total candidates:  %d\n", stats.TotalCandidates)
		fmt.Printf("Avg visual:        %.3f\n", stats.AvgVisual)
		fmt.Printf("Avg iterations:    %.2f\n", stats.AvgIterations)

		reasons := make([]string, 0, len(stats.ByStopReason))
		for r := range stats.ByStopReason {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Printf("  %-16s %d\n", r+":", stats.ByStopReason[r])
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a clone session by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteSession(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		fmt.Printf("Deleted session: %s\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all recorded sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		start := time.Now()
		n, err := db.Clear(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Printf("Cleared %d sessions in %s.\n", n, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of sessions to list (0 for all)")
	historyShowCmd.Flags().StringVarP(&historyFormat, "format", "f", "md", "Output format: md, html or page")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}
