package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/redlinehq/redline/internal/anchor"
	"github.com/redlinehq/redline/internal/dedup"
	"github.com/redlinehq/redline/internal/oracle"
	"github.com/redlinehq/redline/internal/pipeline"
	"github.com/redlinehq/redline/internal/storage"
	"github.com/redlinehq/redline/internal/types"
)

var (
	reviewNoSave      bool
	reviewJSON        bool
	reviewInteractive bool
	reviewMaxComments int
)

var reviewCmd = &cobra.Command{
	Use:   "review <file>",
	Short: "Review a document and produce anchored comments",
	Long: `Run the full review pipeline over a document.

The document is sent to the model for issue extraction; each reported
issue is anchored to an exact character range in the original text,
deduplicated, filtered, annotated, and finally reviewed. The run always
completes: if a pipeline stage fails, its fallback keeps the remaining
stages going and the result is marked as degraded.

The completed run is saved to the local run database unless --no-save
is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		doc := types.NewDocument(string(data))

		client, err := oracle.NewClient(&oracle.Config{
			Model:              cfg.Model,
			AnnotateModel:      cfg.AnnotateModel,
			MaxConcurrentCalls: cfg.MaxConcurrentCalls,
			CallsPerSecond:     cfg.CallsPerSecond,
		})
		if err != nil {
			return err
		}

		resolver := anchor.NewResolver()
		resolver.TokenOverlapThreshold = cfg.TokenOverlapThreshold

		maxComments := cfg.MaxComments
		if reviewMaxComments > 0 {
			maxComments = reviewMaxComments
		}

		orch := pipeline.New(client, pipeline.Config{
			MaxComments:        maxComments,
			MaxConcurrentTasks: cfg.MaxConcurrentTasks,
			Dedup: dedup.Config{
				SeverityWeight:   cfg.SeverityWeight,
				ImportanceWeight: cfg.ImportanceWeight,
			},
			Resolver: resolver,
		})

		result := orch.Run(ctx, doc, nil)

		if !reviewNoSave {
			if err := saveResult(ctx, args[0], result); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save run: %v\n", err)
			}
		}

		if reviewJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printResult(doc, result)

		if reviewInteractive && len(result.Comments) > 0 {
			return runWalkthrough(doc, result.Comments)
		}
		return nil
	},
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewNoSave, "no-save", false, "do not save the run to the database")
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "print the full result as JSON")
	reviewCmd.Flags().BoolVarP(&reviewInteractive, "interactive", "i", false, "step through comments interactively")
	reviewCmd.Flags().IntVar(&reviewMaxComments, "max-comments", 0, "override the comment cap for this run")
	rootCmd.AddCommand(reviewCmd)
}

func saveResult(ctx context.Context, path string, result *pipeline.Result) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return store.SaveRun(ctx, &storage.SavedRun{
		RunID:        result.Telemetry.RunID,
		DocumentName: filepath.Base(path),
		State:        string(result.State),
		Summary:      result.Summary,
		Analysis:     result.Analysis,
		Comments:     result.Comments,
		Record:       result.Telemetry,
	})
}

func printResult(doc *types.Document, result *pipeline.Result) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Review Result ==="))

	stateColor := color.New(color.FgGreen).SprintFunc()
	if result.State != pipeline.StateSucceeded {
		stateColor = color.New(color.FgYellow).SprintFunc()
	}
	fmt.Printf("State:   %s\n", stateColor(string(result.State)))
	fmt.Printf("Run:     %s\n", gray(result.Telemetry.RunID))
	fmt.Printf("Summary: %s\n\n", result.Summary)

	if len(result.Comments) == 0 {
		fmt.Printf("%s\n\n", gray("No comments."))
		return
	}

	for i, c := range result.Comments {
		fmt.Printf("%s %s\n", levelColor(c.Level)(fmt.Sprintf("[%d]", i+1)), c.Header)
		fmt.Printf("    %s %s\n", gray(fmt.Sprintf("[%d:%d]", c.StartOffset, c.EndOffset)), quoteExcerpt(c.QuotedText))
		fmt.Printf("    %s\n\n", c.Description)
	}

	if result.Analysis != "" {
		fmt.Printf("%s\n%s\n\n", cyan("Analysis:"), result.Analysis)
	}
}

// levelColor maps a comment level to its display color
func levelColor(level types.Level) func(a ...interface{}) string {
	switch level {
	case types.LevelCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case types.LevelWarning:
		return color.New(color.FgYellow).SprintFunc()
	case types.LevelSuggestion:
		return color.New(color.FgCyan).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

// quoteExcerpt truncates long quotes for single-line display
func quoteExcerpt(s string) string {
	const maxLen = 80
	runes := []rune(s)
	if len(runes) <= maxLen {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%q...", string(runes[:maxLen]))
}
