package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/redlinehq/redline/internal/telemetry"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved review runs",
	Long:  `List, show, export, and prune review runs saved in the local run database.`,
}

var runsListLimit int

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		summaries, err := store.ListRuns(context.Background(), runsListLimit)
		if err != nil {
			return err
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(summaries) == 0 {
			fmt.Printf("%s\n", gray("No saved runs."))
			return nil
		}

		for _, s := range summaries {
			stateColor := color.New(color.FgGreen).SprintFunc()
			if s.State != "succeeded" {
				stateColor = color.New(color.FgYellow).SprintFunc()
			}
			fmt.Printf("%s  %s  %s  %d comments  %s\n",
				s.StartedAt.Local().Format("2006-01-02 15:04"),
				s.RunID,
				stateColor(s.State),
				s.CommentCount,
				gray(s.DocumentName))
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one saved run in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(context.Background(), args[0])
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Run "+run.RunID+" ==="))
		fmt.Printf("Document: %s\n", run.DocumentName)
		fmt.Printf("State:    %s\n", run.State)
		fmt.Printf("Started:  %s\n", run.Record.StartedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Duration: %s\n", run.Record.CompletedAt.Sub(run.Record.StartedAt).Round(time.Millisecond))
		fmt.Printf("Summary:  %s\n\n", run.Summary)

		fc := run.Record.FinalCounts
		fmt.Printf("%s extracted %d, after dedup %d, after filtering %d, generated %d, kept %d\n\n",
			cyan("Counts:"), fc.Extracted, fc.AfterDedup, fc.AfterFiltering, fc.Generated, fc.Kept)

		fmt.Printf("%s\n", cyan("Stages:"))
		for _, s := range run.Record.Stages {
			line := fmt.Sprintf("  %-20s %4d -> %-4d %6dms", s.StageName, s.InputCount, s.OutputCount, s.DurationMs)
			if s.Error != "" {
				line += "  " + color.New(color.FgRed).Sprint(s.Error)
			}
			fmt.Println(line)
		}
		fmt.Println()

		for i, c := range run.Comments {
			fmt.Printf("%s %s\n", levelColor(c.Level)(fmt.Sprintf("[%d]", i+1)), c.Header)
			fmt.Printf("    %s %s\n", gray(fmt.Sprintf("[%d:%d]", c.StartOffset, c.EndOffset)), quoteExcerpt(c.QuotedText))
			fmt.Printf("    %s\n\n", c.Description)
		}
		return nil
	},
}

var (
	runsExportFormat string
	runsExportOut    string
)

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's telemetry record",
	Long: `Export the sealed execution record of one run, either as indented
JSON (the default) or as msgpack for compact storage and regression
tooling.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(context.Background(), args[0])
		if err != nil {
			return err
		}

		out := os.Stdout
		if runsExportOut != "" {
			f, err := os.Create(runsExportOut)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		return telemetry.Export(out, run.Record, telemetry.ExportFormat(runsExportFormat))
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete one saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteRun(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted run %s\n", args[0])
		return nil
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.RetentionDays <= 0 {
			fmt.Println("Retention is disabled (retention_days = 0); nothing to prune.")
			return nil
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
		pruned, err := store.PruneRuns(context.Background(), cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d runs older than %d days\n", pruned, cfg.RetentionDays)
		return nil
	},
}

func init() {
	runsListCmd.Flags().IntVarP(&runsListLimit, "limit", "n", 20, "maximum runs to list (0 = all)")
	runsExportCmd.Flags().StringVar(&runsExportFormat, "format", "json", "export format: json or msgpack")
	runsExportCmd.Flags().StringVarP(&runsExportOut, "out", "o", "", "output file (default: stdout)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsPruneCmd)
	rootCmd.AddCommand(runsCmd)
}
