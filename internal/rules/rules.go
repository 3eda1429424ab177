// Package rules holds the data-driven keyword and pattern tables that drive
// email classification, purchase extraction, and reconciliation. Scorers and
// extractors interpret these tables; they carry no keyword lists of their own.
//
// Default tables are compiled in. Load merges a user YAML file on top, which
// can only add entries; the built-in tables are never removed by an override.
package rules

import (
	"fmt"
	"os"

	"github.com/mailspend/mailspend/internal/model"
	"gopkg.in/yaml.v3"
)

// SignalRules drives the email-type scorer.
type SignalRules struct {
	// PersonalSubject patterns short-circuit classification: a subject hit
	// marks the email primary at full confidence, no further scoring.
	PersonalSubject []string

	ServiceKeywords    []string
	NewsletterKeywords []string
	ESPDomains         []string
	NoReplyPatterns    []string
	UnsubscribeMarkers []string

	ServiceWeight     int
	ServiceCap        int
	NewsletterWeight  int
	NewsletterCap     int
	ESPWeight         int
	NoReplyWeight     int
	UnsubscribeWeight int
	ManyLinksWeight   int
	LinkThreshold     int
}

// VendorRule maps a canonical vendor name to the substrings that identify it.
type VendorRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// StatusPattern maps a regex to the purchase status it implies.
type StatusPattern struct {
	Status  model.PurchaseStatus `yaml:"status"`
	Pattern string               `yaml:"pattern"`
}

// PaymentPattern maps a regex to a canonical payment method name.
type PaymentPattern struct {
	Method  string `yaml:"method"`
	Pattern string `yaml:"pattern"`
}

// ExtractRules drives the regex extractor. Keyword tiers feed the purchase
// score; the pattern lists are ordered and first-match-wins per field.
type ExtractRules struct {
	StrongKeywords   []string
	MediumKeywords   []string
	NegativeKeywords []string

	Vendors         []VendorRule
	CommerceDomains []string

	AmountContexts   []string
	OrderIDPatterns  []string
	TrackingPatterns []string
	StatusPatterns   []StatusPattern
	PaymentPatterns  []PaymentPattern
	ItemPatterns     []string
}

// RoleRules drives per-email role classification during reconciliation.
// Tiers are checked in struct order; cancellation always wins.
type RoleRules struct {
	Cancellation []string
	Shipping     []string
	Order        []string
}

// Set is the complete rule configuration consumed by the pipeline.
type Set struct {
	Signal  SignalRules
	Extract ExtractRules
	Roles   RoleRules
}

// overrides is the YAML shape of a user rule file. Every field appends to the
// corresponding default table.
type overrides struct {
	Signal struct {
		PersonalSubject    []string `yaml:"personal_subject"`
		ServiceKeywords    []string `yaml:"service_keywords"`
		NewsletterKeywords []string `yaml:"newsletter_keywords"`
		ESPDomains         []string `yaml:"esp_domains"`
		NoReplyPatterns    []string `yaml:"noreply_patterns"`
		UnsubscribeMarkers []string `yaml:"unsubscribe_markers"`
	} `yaml:"signal"`
	Extract struct {
		StrongKeywords   []string         `yaml:"strong_keywords"`
		MediumKeywords   []string         `yaml:"medium_keywords"`
		NegativeKeywords []string         `yaml:"negative_keywords"`
		Vendors          []VendorRule     `yaml:"vendors"`
		CommerceDomains  []string         `yaml:"commerce_domains"`
		AmountContexts   []string         `yaml:"amount_contexts"`
		OrderIDPatterns  []string         `yaml:"order_id_patterns"`
		TrackingPatterns []string         `yaml:"tracking_patterns"`
		StatusPatterns   []StatusPattern  `yaml:"status_patterns"`
		PaymentPatterns  []PaymentPattern `yaml:"payment_patterns"`
		ItemPatterns     []string         `yaml:"item_patterns"`
	} `yaml:"extract"`
	Roles struct {
		Cancellation []string `yaml:"cancellation"`
		Shipping     []string `yaml:"shipping"`
		Order        []string `yaml:"order"`
	} `yaml:"roles"`
}

// Load returns the default rule set merged with the YAML override file at
// path. An empty path or a missing file yields the defaults unchanged.
func Load(path string) (*Set, error) {
	set := Default()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}

	var ov overrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}

	set.merge(&ov)
	return set, nil
}

func (s *Set) merge(ov *overrides) {
	s.Signal.PersonalSubject = append(s.Signal.PersonalSubject, ov.Signal.PersonalSubject...)
	s.Signal.ServiceKeywords = append(s.Signal.ServiceKeywords, ov.Signal.ServiceKeywords...)
	s.Signal.NewsletterKeywords = append(s.Signal.NewsletterKeywords, ov.Signal.NewsletterKeywords...)
	s.Signal.ESPDomains = append(s.Signal.ESPDomains, ov.Signal.ESPDomains...)
	s.Signal.NoReplyPatterns = append(s.Signal.NoReplyPatterns, ov.Signal.NoReplyPatterns...)
	s.Signal.UnsubscribeMarkers = append(s.Signal.UnsubscribeMarkers, ov.Signal.UnsubscribeMarkers...)

	s.Extract.StrongKeywords = append(s.Extract.StrongKeywords, ov.Extract.StrongKeywords...)
	s.Extract.MediumKeywords = append(s.Extract.MediumKeywords, ov.Extract.MediumKeywords...)
	s.Extract.NegativeKeywords = append(s.Extract.NegativeKeywords, ov.Extract.NegativeKeywords...)
	s.Extract.Vendors = append(s.Extract.Vendors, ov.Extract.Vendors...)
	s.Extract.CommerceDomains = append(s.Extract.CommerceDomains, ov.Extract.CommerceDomains...)
	s.Extract.AmountContexts = append(s.Extract.AmountContexts, ov.Extract.AmountContexts...)
	s.Extract.OrderIDPatterns = append(s.Extract.OrderIDPatterns, ov.Extract.OrderIDPatterns...)
	s.Extract.TrackingPatterns = append(s.Extract.TrackingPatterns, ov.Extract.TrackingPatterns...)
	s.Extract.StatusPatterns = append(s.Extract.StatusPatterns, ov.Extract.StatusPatterns...)
	s.Extract.PaymentPatterns = append(s.Extract.PaymentPatterns, ov.Extract.PaymentPatterns...)
	s.Extract.ItemPatterns = append(s.Extract.ItemPatterns, ov.Extract.ItemPatterns...)

	s.Roles.Cancellation = append(s.Roles.Cancellation, ov.Roles.Cancellation...)
	s.Roles.Shipping = append(s.Roles.Shipping, ov.Roles.Shipping...)
	s.Roles.Order = append(s.Roles.Order, ov.Roles.Order...)
}
