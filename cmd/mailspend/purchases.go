package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mailspend/mailspend/internal/cli"
	"github.com/mailspend/mailspend/internal/export"
	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/service"
)

func purchasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purchases",
		Short: "Inspect and manage extracted purchases",
		Long: `📦 Purchase History

Purchases are assembled from order confirmations, shipping notices and
cancellation emails. Records are never deleted by the pipeline itself;
cancellations and mistakes are flagged as excluded so they drop out of
summaries but stay auditable.`,
	}

	// Add subcommands
	cmd.AddCommand(purchasesListCmd())
	cmd.AddCommand(purchasesSummaryCmd())
	cmd.AddCommand(purchasesExcludeCmd())
	cmd.AddCommand(purchasesDeleteCmd())
	cmd.AddCommand(purchasesExportCmd())

	return cmd
}

func purchasesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List purchases",
		RunE:  runPurchasesList,
	}

	cmd.Flags().StringP("user", "u", "", "User whose purchases to list")
	cmd.Flags().String("vendor", "", "Filter by vendor")
	cmd.Flags().String("from", "", "Earliest purchase date (format: 2006-01-02)")
	cmd.Flags().String("to", "", "Latest purchase date (format: 2006-01-02)")
	cmd.Flags().Bool("include-excluded", false, "Include excluded purchases")
	cmd.Flags().IntP("limit", "l", 50, "Maximum rows to show")

	return cmd
}

func runPurchasesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	user, err := requireUser(cmd)
	if err != nil {
		return err
	}

	filter, err := purchaseFilterFromFlags(cmd)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	purchases, err := store.GetPurchasesByUser(ctx, user, filter)
	if err != nil {
		return fmt.Errorf("failed to load purchases: %w", err)
	}

	if len(purchases) == 0 {
		fmt.Println(cli.InfoStyle.Render("No purchases found. Run 'mailspend process' first.")) //nolint:forbidigo // User-facing output
		return nil
	}

	fmt.Println(cli.FormatTitle("Purchases")) //nolint:forbidigo // User-facing output
	fmt.Println()                             //nolint:forbidigo // User-facing output

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("Date"),
		headerStyle.Render("Vendor"),
		headerStyle.Render("Amount"),
		headerStyle.Render("Status"),
		headerStyle.Render("Order ID"),
		headerStyle.Render("Emails"),
		headerStyle.Render("ID")); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		strings.Repeat("─", 10),
		strings.Repeat("─", 18),
		strings.Repeat("─", 10),
		strings.Repeat("─", 9),
		strings.Repeat("─", 16),
		strings.Repeat("─", 6),
		strings.Repeat("─", 12)); err != nil {
		return fmt.Errorf("failed to write separator: %w", err)
	}

	for _, p := range purchases {
		status := string(p.Status)
		if p.IsExcluded {
			status += " (excluded)"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			p.Date.Format("2006-01-02"),
			p.Vendor,
			formatAmount(p.Amount, p.Currency),
			status,
			p.OrderID,
			1+len(p.RelatedEmailIDs),
			p.ID); err != nil {
			return fmt.Errorf("failed to write purchase row: %w", err)
		}
	}

	return nil
}

func purchasesSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize purchases by vendor, status and currency",
		RunE:  runPurchasesSummary,
	}

	cmd.Flags().StringP("user", "u", "", "User whose purchases to summarize")
	cmd.Flags().String("from", "", "Earliest purchase date (format: 2006-01-02)")
	cmd.Flags().String("to", "", "Latest purchase date (format: 2006-01-02)")
	cmd.Flags().Bool("include-excluded", false, "Include excluded purchases")

	return cmd
}

func runPurchasesSummary(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	user, err := requireUser(cmd)
	if err != nil {
		return err
	}

	filter, err := purchaseFilterFromFlags(cmd)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	purchases, err := store.GetPurchasesByUser(ctx, user, filter)
	if err != nil {
		return fmt.Errorf("failed to load purchases: %w", err)
	}
	if len(purchases) == 0 {
		slog.Info(cli.FormatWarning("No purchases found"))
		return nil
	}

	totals := make(map[string]float64)
	statuses := make(map[model.PurchaseStatus]int)
	vendors := make(map[string]int)
	aiCount := 0
	for _, p := range purchases {
		totals[p.Currency] += p.Amount
		statuses[p.Status]++
		vendors[p.Vendor]++
		if p.AIAnalyzed {
			aiCount++
		}
	}

	content := fmt.Sprintf("Purchases: %d (%d AI-analyzed)\n\nTotals:\n", len(purchases), aiCount)
	for _, code := range sortedKeys(totals) {
		content += fmt.Sprintf("  %s\n", formatAmount(totals[code], code))
	}

	content += "\nBy status:\n"
	for _, status := range []model.PurchaseStatus{model.StatusConfirmed, model.StatusShipped, model.StatusDelivered, model.StatusCancelled} {
		if n := statuses[status]; n > 0 {
			content += fmt.Sprintf("  %-10s %d\n", status, n)
		}
	}

	content += "\nTop vendors:\n"
	for i, v := range topVendors(vendors, 5) {
		content += fmt.Sprintf("%d. %s (%d purchases)\n", i+1, v.name, v.count)
	}

	slog.Info(cli.RenderBox("Purchase Summary", content))
	return nil
}

func purchasesExcludeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exclude <purchase-id>",
		Short: "Exclude a purchase from summaries and exports",
		Long: `Flag a purchase as excluded, or re-include it with --undo.

Excluded purchases stay in the database and stay visible with
--include-excluded; they just stop counting.`,
		Args: cobra.ExactArgs(1),
		RunE: runPurchasesExclude,
	}

	cmd.Flags().String("reason", model.ExclusionManual, "Reason recorded on the record")
	cmd.Flags().Bool("undo", false, "Re-include a previously excluded purchase")

	return cmd
}

func runPurchasesExclude(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	reason, _ := cmd.Flags().GetString("reason")
	undo, _ := cmd.Flags().GetBool("undo")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if undo {
		reason = ""
	}
	if err := store.SetPurchaseExcluded(ctx, id, !undo, reason); err != nil {
		return fmt.Errorf("failed to update purchase: %w", err)
	}

	if undo {
		slog.Info(cli.FormatSuccess(fmt.Sprintf("Purchase %s re-included", id)))
	} else {
		slog.Info(cli.FormatSuccess(fmt.Sprintf("Purchase %s excluded (%s)", id, reason)))
	}
	return nil
}

func purchasesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <purchase-id>",
		Short: "Permanently delete a purchase record",
		Long: `Delete a purchase record outright.

Prefer 'purchases exclude' for cancellations and extraction mistakes;
deletion is for records that should never have existed.`,
		Args: cobra.ExactArgs(1),
		RunE: runPurchasesDelete,
	}

	cmd.Flags().Bool("yes", false, "Confirm deletion")

	return cmd
}

func runPurchasesDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	confirmed, _ := cmd.Flags().GetBool("yes")
	if !confirmed {
		return fmt.Errorf("refusing to delete %s without --yes", id)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeletePurchase(ctx, id); err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("Purchase %s deleted", id)))
	return nil
}

func purchasesExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export purchases to an XLSX or CSV file",
		RunE:  runPurchasesExport,
	}

	cmd.Flags().StringP("user", "u", "", "User whose purchases to export")
	cmd.Flags().String("format", "xlsx", "Output format (xlsx, csv)")
	cmd.Flags().StringP("output", "o", "", "Output path (default: mailspend-purchases.<format>)")
	cmd.Flags().String("from", "", "Earliest purchase date (format: 2006-01-02)")
	cmd.Flags().String("to", "", "Latest purchase date (format: 2006-01-02)")
	cmd.Flags().Bool("include-excluded", false, "Include excluded purchases")

	return cmd
}

func runPurchasesExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	user, err := requireUser(cmd)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != "xlsx" && format != "csv" {
		return fmt.Errorf("unsupported format %q (want xlsx or csv)", format)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = "mailspend-purchases." + format
	}

	opts := export.Options{}
	opts.IncludeExcluded, _ = cmd.Flags().GetBool("include-excluded")
	if opts.From, err = dateFlag(cmd, "from"); err != nil {
		return err
	}
	if opts.To, err = dateFlag(cmd, "to"); err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := export.NewService(store, nil)

	var data []byte
	switch format {
	case "xlsx":
		data, err = svc.ExportXLSX(ctx, user, opts)
	case "csv":
		data, err = svc.ExportCSV(ctx, user, opts)
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if err := os.WriteFile(output, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("Exported to %s (%d bytes)", output, len(data))))
	return nil
}

// purchaseFilterFromFlags builds the storage filter shared by the list and
// summary subcommands.
func purchaseFilterFromFlags(cmd *cobra.Command) (service.PurchaseFilter, error) {
	filter := service.PurchaseFilter{}

	filter.IncludeExcluded, _ = cmd.Flags().GetBool("include-excluded")
	if f := cmd.Flags().Lookup("vendor"); f != nil {
		filter.Vendor = f.Value.String()
	}
	if f := cmd.Flags().Lookup("limit"); f != nil {
		filter.Limit, _ = cmd.Flags().GetInt("limit")
	}

	from, err := dateFlag(cmd, "from")
	if err != nil {
		return filter, err
	}
	to, err := dateFlag(cmd, "to")
	if err != nil {
		return filter, err
	}
	filter.StartDate = from
	if to != nil {
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.EndDate = &end
	}

	return filter, nil
}

func dateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s date %q (want 2006-01-02): %w", name, value, err)
	}
	return &t, nil
}

// formatAmount renders an amount with its currency symbol, falling back to a
// plain suffix for unknown codes.
func formatAmount(amount float64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	p := message.NewPrinter(language.English)
	return p.Sprintf("%v", currency.Symbol(unit.Amount(amount)))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type vendorCount struct {
	name  string
	count int
}

func topVendors(vendors map[string]int, limit int) []vendorCount {
	counts := make([]vendorCount, 0, len(vendors))
	for name, count := range vendors {
		counts = append(counts, vendorCount{name: name, count: count})
	}

	sort.Slice(counts, func(i, j int) bool { return counts[i].count > counts[j].count })

	if len(counts) > limit {
		counts = counts[:limit]
	}

	return counts
}
