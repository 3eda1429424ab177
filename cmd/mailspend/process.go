package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mailspend/mailspend/internal/analyzer"
	"github.com/mailspend/mailspend/internal/cli"
	"github.com/mailspend/mailspend/internal/config"
	"github.com/mailspend/mailspend/internal/engine"
	"github.com/mailspend/mailspend/internal/extract"
	"github.com/mailspend/mailspend/internal/reconcile"
	"github.com/mailspend/mailspend/internal/rules"
	"github.com/mailspend/mailspend/internal/signal"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract purchases from imported emails",
		Long: `Run the extraction pipeline over emails that have not been processed yet.

Each email is classified, optionally sent to the configured analysis
provider, and merged into the purchase history. Newsletters and service
announcements are filtered before any provider call.`,
		RunE: runProcess,
	}

	cmd.Flags().StringP("user", "u", "", "User whose emails to process")
	cmd.Flags().IntP("limit", "l", 500, "Maximum number of emails to process")
	cmd.Flags().Int("concurrency", 5, "Parallel analysis calls per group (3-10)")
	cmd.Flags().Duration("batch-delay", 0, "Pause between analysis groups (default 1s)")
	cmd.Flags().Bool("no-ai", false, "Skip the analysis provider and extract with rules only")

	_ = viper.BindPFlag("process.limit", cmd.Flags().Lookup("limit"))
	_ = viper.BindPFlag("process.concurrency", cmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("process.batch_delay", cmd.Flags().Lookup("batch-delay"))
	_ = viper.BindPFlag("process.no_ai", cmd.Flags().Lookup("no-ai"))

	return cmd
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	user, err := requireUser(cmd)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ruleSet, err := rules.Load(config.RulesPath())
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	scorer, err := signal.NewScorer(ruleSet.Signal)
	if err != nil {
		return fmt.Errorf("failed to build scorer: %w", err)
	}
	extractor, err := extract.NewExtractor(ruleSet.Extract)
	if err != nil {
		return fmt.Errorf("failed to build extractor: %w", err)
	}
	reconciler := reconcile.NewReconciler(store, ruleSet.Roles, reconcile.Config{})

	var analysis engine.Analyzer
	if !viper.GetBool("process.no_ai") {
		if cfg := config.LoadAnalyzerConfig(); cfg != nil {
			adapter, buildErr := analyzer.NewAdapter(*cfg, store)
			if buildErr != nil {
				return fmt.Errorf("failed to build analyzer: %w", buildErr)
			}
			defer adapter.Close()
			analysis = adapter
		} else {
			slog.Info(cli.FormatWarning("No analysis provider configured - extracting with rules only"))
		}
	}

	eng := engine.New(store, analysis, scorer, extractor, reconciler)

	emails, err := store.GetEmailsToProcess(ctx, user, viper.GetInt("process.limit"))
	if err != nil {
		return fmt.Errorf("failed to load emails: %w", err)
	}
	if len(emails) == 0 {
		slog.Info(cli.FormatSuccess("Nothing to process"))
		return nil
	}

	slog.Info(cli.FormatTitle("Processing emails"))
	slog.Info("Batch", "user", user, "emails", len(emails))

	bar := cli.NewProgressBar(len(emails), os.Stderr, "Processing emails...")
	opts := engine.BatchOptions{
		Concurrency: viper.GetInt("process.concurrency"),
		BatchDelay:  viper.GetDuration("process.batch_delay"),
		OnProgress: func(n int) {
			_ = bar.Add(n)
		},
	}

	summary, err := eng.ProcessBatch(ctx, user, emails, opts)
	if err != nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	displayBatchSummary(summary)
	return nil
}

func displayBatchSummary(summary *engine.BatchSummary) {
	content := fmt.Sprintf(`Processed: %d
Extracted: %d new purchases
Merged:    %d into existing records
Filtered:  %d newsletters / announcements
Failed:    %d
Duration:  %s`,
		summary.Processed,
		summary.Extracted,
		summary.Merged,
		summary.Filtered,
		summary.Failed,
		summary.ProcessingTime.Round(10*time.Millisecond))

	slog.Info(cli.RenderBox("Batch Summary", content))

	const maxShown = 5
	for i, err := range summary.Errors {
		if i == maxShown {
			slog.Warn(fmt.Sprintf("... and %d more errors", len(summary.Errors)-maxShown))
			break
		}
		slog.Warn(cli.FormatWarning(err.Error()))
	}
}
