package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailspend/mailspend/internal/cli"
	"github.com/mailspend/mailspend/internal/config"
	"github.com/mailspend/mailspend/internal/rules"
)

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Show the effective classification and extraction rules",
		Long: `Print the rule tables the pipeline runs with.

Built-in tables are always present; a YAML file at rules.path in the
config adds entries on top of them. Overrides can only add, never remove.`,
		RunE: runRules,
	}
}

func runRules(_ *cobra.Command, _ []string) error {
	path := config.RulesPath()
	ruleSet, err := rules.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	if path != "" {
		slog.Info("Rules loaded", "overrides", path)
	} else {
		slog.Info("Rules loaded", "overrides", "none (built-in only)")
	}

	sig := ruleSet.Signal
	signalContent := fmt.Sprintf(`Personal subject patterns: %d
Service keywords (%d, +%d each, cap %d):
  %s

Newsletter keywords (%d, +%d each, cap %d):
  %s

ESP domains (+%d): %s
No-reply patterns (+%d): %d patterns
Unsubscribe markers (+%d): %s
Many links (+%d over %d links)`,
		len(sig.PersonalSubject),
		len(sig.ServiceKeywords), sig.ServiceWeight, sig.ServiceCap,
		wrapList(sig.ServiceKeywords),
		len(sig.NewsletterKeywords), sig.NewsletterWeight, sig.NewsletterCap,
		wrapList(sig.NewsletterKeywords),
		sig.ESPWeight, wrapList(sig.ESPDomains),
		sig.NoReplyWeight, len(sig.NoReplyPatterns),
		sig.UnsubscribeWeight, wrapList(sig.UnsubscribeMarkers),
		sig.ManyLinksWeight, sig.LinkThreshold)
	slog.Info(cli.RenderBox("Signal Rules", signalContent))

	ext := ruleSet.Extract
	vendorNames := make([]string, 0, len(ext.Vendors))
	for _, v := range ext.Vendors {
		vendorNames = append(vendorNames, v.Name)
	}
	extractContent := fmt.Sprintf(`Strong keywords (%d):
  %s

Medium keywords (%d):
  %s

Negative keywords (%d):
  %s

Vendors (%d): %s
Commerce domains (%d): %s
Amount contexts (%d): %s
Order ID patterns: %d
Tracking patterns: %d
Status patterns: %d
Payment patterns: %d
Item patterns: %d`,
		len(ext.StrongKeywords), wrapList(ext.StrongKeywords),
		len(ext.MediumKeywords), wrapList(ext.MediumKeywords),
		len(ext.NegativeKeywords), wrapList(ext.NegativeKeywords),
		len(ext.Vendors), wrapList(vendorNames),
		len(ext.CommerceDomains), wrapList(ext.CommerceDomains),
		len(ext.AmountContexts), wrapList(ext.AmountContexts),
		len(ext.OrderIDPatterns),
		len(ext.TrackingPatterns),
		len(ext.StatusPatterns),
		len(ext.PaymentPatterns),
		len(ext.ItemPatterns))
	slog.Info(cli.RenderBox("Extract Rules", extractContent))

	roles := ruleSet.Roles
	roleContent := fmt.Sprintf(`Cancellation: %s
Shipping:     %s
Order:        %s`,
		wrapList(roles.Cancellation),
		wrapList(roles.Shipping),
		wrapList(roles.Order))
	slog.Info(cli.RenderBox("Role Rules", roleContent))

	return nil
}

// wrapList joins entries with commas, wrapping so boxes stay readable.
func wrapList(items []string) string {
	const perLine = 6
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			if i%perLine == 0 {
				b.WriteString(",\n  ")
			} else {
				b.WriteString(", ")
			}
		}
		b.WriteString(item)
	}
	return b.String()
}
