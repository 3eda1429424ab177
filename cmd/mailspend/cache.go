package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mailspend/mailspend/internal/analyzer"
	"github.com/mailspend/mailspend/internal/cli"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the analysis cache",
		Long: `🗄️  Analysis Cache

Analysis results are cached in the database so reprocessing an inbox does
not repeat provider calls. Entries older than the freshness window are
re-analyzed on demand; cleanup removes them outright. The in-process
memory tier lives only as long as a single process and is not shown here.`,
	}

	// Add subcommands
	cmd.AddCommand(cacheStatsCmd())
	cmd.AddCommand(cacheCleanupCmd())

	return cmd
}

// cacheFreshness resolves the configured freshness window.
func cacheFreshness() time.Duration {
	if v := viper.GetDuration("analysis.freshness"); v > 0 {
		return v
	}
	return analyzer.DefaultFreshness
}

func cacheStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show analysis cache statistics",
		RunE:  runCacheStats,
	}

	cmd.Flags().StringP("user", "u", "", "User whose cache to inspect")

	return cmd
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
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

	freshness := cacheFreshness()
	stats, err := store.GetAnalysisStats(ctx, user, freshness)
	if err != nil {
		return fmt.Errorf("failed to load cache stats: %w", err)
	}

	emails, err := store.CountEmails(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to count emails: %w", err)
	}

	content := fmt.Sprintf(`Emails:   %d imported
Analyses: %d stored
Fresh:    %d (analyzed within %s)
Stale:    %d
Filtered: %d (never sent to a provider)`,
		emails,
		stats.Total,
		stats.Fresh,
		freshness,
		stats.Stale,
		stats.Filtered)

	slog.Info(cli.RenderBox("Analysis Cache", content))
	return nil
}

func cacheCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete analyses older than the freshness window",
		RunE:  runCacheCleanup,
	}

	cmd.Flags().Duration("older-than", 0, "Override the freshness window (e.g. 720h)")

	return cmd
}

func runCacheCleanup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	window, _ := cmd.Flags().GetDuration("older-than")
	if window <= 0 {
		window = cacheFreshness()
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	pruned, err := store.PruneAnalyses(ctx, time.Now().UTC().Add(-window))
	if err != nil {
		return fmt.Errorf("failed to prune analyses: %w", err)
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("Pruned %d analyses older than %s", pruned, window)))
	return nil
}
