// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/flowd-org/ptylogin/internal/coredb"
	"github.com/flowd-org/ptylogin/internal/events"
	"github.com/spf13/cobra"
)

func NewJournalCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "journal",
		Short: "Inspect runs recorded with login --journal",
	}
	c.AddCommand(newJournalListCmd(), newJournalShowCmd(), newJournalStatsCmd())
	return c
}

func withJournalDB(ctx context.Context, fn func(db *coredb.DB) error) error {
	db, err := coredb.Open(ctx, coredb.Options{})
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func newJournalListCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List journaled runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournalDB(cmd.Context(), func(db *coredb.DB) error {
				runs, err := coredb.NewJournal(db, 0).Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					if runs == nil {
						runs = []coredb.RunSummary{}
					}
					return writeReport(cmd.OutOrStdout(), runs, "json", "")
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No journaled runs.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN ID\tEVENTS\tSTARTED\tLAST EVENT")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.RunID, r.Events, r.StartedAt.Format(time.RFC3339), r.LastAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")
	c.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return c
}

func newJournalShowCmd() *cobra.Command {
	var jsonOut bool
	c := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Replay the events of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			return withJournalDB(cmd.Context(), func(db *coredb.DB) error {
				out := cmd.OutOrStdout()
				found := false
				err := coredb.NewJournal(db, 0).ForEach(cmd.Context(), runID, 0, func(e coredb.JournalEntry) error {
					found = true
					if jsonOut {
						_, err := fmt.Fprintf(out, "%s\n", e.Payload)
						return err
					}
					var ev events.RunEvent
					if err := json.Unmarshal(e.Payload, &ev); err != nil {
						return fmt.Errorf("decode journal entry %d: %w", e.Seq, err)
					}
					_, err := fmt.Fprintf(out, "%s %s\n", e.Timestamp.Format(time.RFC3339), events.FormatText(ev))
					return err
				})
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("run %s not found in journal", runID)
				}
				return nil
			})
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Print stored events as NDJSON")
	return c
}

func newJournalStatsCmd() *cobra.Command {
	var output string
	c := &cobra.Command{
		Use:   "stats",
		Short: "Show journal storage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat("output", output, "text", "json", "yaml"); err != nil {
				return err
			}
			return withJournalDB(cmd.Context(), func(db *coredb.DB) error {
				stats, err := coredb.CollectStorageStats(cmd.Context(), db)
				if err != nil {
					return err
				}
				if output != "text" {
					return writeReport(cmd.OutOrStdout(), stats, output, "")
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "Path:\t%s\n", stats.Path)
				fmt.Fprintf(tw, "Schema:\tv%d\n", stats.SchemaVersion)
				fmt.Fprintf(tw, "Runs:\t%d\n", stats.Runs)
				fmt.Fprintf(tw, "Events:\t%d\n", stats.Events)
				fmt.Fprintf(tw, "Journal:\t%d / %d bytes\n", stats.JournalBytes, stats.JournalMaxBytes)
				fmt.Fprintf(tw, "Database:\t%d / %d bytes\n", stats.BytesUsed, stats.MaxBytes)
				fmt.Fprintf(tw, "Eviction:\t%t\n", stats.EvictionActive)
				return tw.Flush()
			})
		},
	}
	c.Flags().StringVarP(&output, "output", "o", "text", "Output format (text|json|yaml)")
	return c
}
