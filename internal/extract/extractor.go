// Package extract derives purchase candidates from raw email text using
// ordered, data-driven pattern tables. It serves two roles in the pipeline:
// the standalone heuristic path when no external analyzer is available, and
// the field filler for partial analyzer results.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/rules"
	"golang.org/x/text/width"
)

// Scoring weights for the keyword tiers. An email with any strong completion
// phrase is floored at 0.4; three or more marketing phrases cap the score at
// 0.3 no matter what else matched. The cap is re-applied after the order-id
// and tracking boosts so heavily promotional text can never pass as a
// purchase on boosts alone.
const (
	strongWeight   = 0.5
	mediumWeight   = 0.2
	negativeWeight = 0.4
	strongFloor    = 0.4
	negativeCap    = 0.3
	negativeLimit  = 3

	orderBoost    = 1.2
	trackingBoost = 1.1

	// Candidate amounts outside (0, maxCandidate] are treated as noise.
	maxCandidate = 1_000_000

	minTrackingLen = 9
)

// Result is the outcome of one extraction. Amount == 0 means no purchase was
// found regardless of Score.
type Result struct {
	Vendor         string
	Currency       string
	OrderID        string
	TrackingNumber string
	PaymentMethod  string
	Status         model.PurchaseStatus
	Items          []model.PurchaseItem
	Amount         float64
	Score          float64
}

// HasPurchase reports whether the extraction produced a plausible amount.
func (r Result) HasPurchase() bool {
	return r.Amount > 0
}

type statusPattern struct {
	re     *regexp.Regexp
	status model.PurchaseStatus
}

type paymentPattern struct {
	re     *regexp.Regexp
	method string
}

type amountPattern struct {
	re *regexp.Regexp
}

// Extractor runs the pattern tables against email text. All patterns are
// compiled once at construction; Extract is deterministic and safe for
// concurrent use.
type Extractor struct {
	rules    rules.ExtractRules
	amounts  []amountPattern
	orderIDs []*regexp.Regexp
	tracking []*regexp.Regexp
	statuses []statusPattern
	payments []paymentPattern
	items    []*regexp.Regexp
}

// NewExtractor compiles the extraction rule set.
func NewExtractor(r rules.ExtractRules) (*Extractor, error) {
	e := &Extractor{rules: r}

	for _, ctx := range r.AmountContexts {
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(ctx) +
			`[^0-9¥￥$€£\r\n]{0,16}?([¥￥$€£]|usd|jpy|eur|gbp)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(円|yen|usd|jpy|eur|gbp)?`)
		if err != nil {
			return nil, fmt.Errorf("compiling amount context %q: %w", ctx, err)
		}
		e.amounts = append(e.amounts, amountPattern{re: re})
	}

	var err error
	if e.orderIDs, err = compileAll(r.OrderIDPatterns, "order id"); err != nil {
		return nil, err
	}
	if e.tracking, err = compileAll(r.TrackingPatterns, "tracking"); err != nil {
		return nil, err
	}
	if e.items, err = compileAll(r.ItemPatterns, "item"); err != nil {
		return nil, err
	}

	for _, sp := range r.StatusPatterns {
		re, err := regexp.Compile(sp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling status pattern %q: %w", sp.Pattern, err)
		}
		e.statuses = append(e.statuses, statusPattern{re: re, status: sp.Status})
	}

	for _, pp := range r.PaymentPatterns {
		re, err := regexp.Compile(pp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling payment pattern %q: %w", pp.Pattern, err)
		}
		e.payments = append(e.payments, paymentPattern{re: re, method: pp.Method})
	}

	return e, nil
}

func compileAll(patterns []string, kind string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling %s pattern %q: %w", kind, p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// Extract scores the email text and pulls out candidate purchase fields.
// Full-width digits and currency symbols are folded to their narrow forms
// first so the ASCII patterns match Japanese mail.
func (e *Extractor) Extract(body, subject, from string) Result {
	text := width.Fold.String(subject + "\n" + body)
	lower := strings.ToLower(text)

	var res Result
	strong := countHits(lower, e.rules.StrongKeywords)
	medium := countHits(lower, e.rules.MediumKeywords)
	negative := countHits(lower, e.rules.NegativeKeywords)

	score := strongWeight*float64(strong) + mediumWeight*float64(medium) - negativeWeight*float64(negative)
	if strong > 0 && score < strongFloor {
		score = strongFloor
	}
	if negative >= negativeLimit && score > negativeCap {
		score = negativeCap
	}
	score = clamp01(score)

	res.Vendor = e.detectVendor(from, text)
	res.Amount, res.Currency = e.extractAmount(text)
	res.OrderID = firstMatch(e.orderIDs, text)
	res.TrackingNumber = e.extractTracking(text)

	for _, sp := range e.statuses {
		if sp.re.MatchString(text) {
			res.Status = sp.status
			break
		}
	}
	for _, pp := range e.payments {
		if pp.re.MatchString(text) {
			res.PaymentMethod = pp.method
			break
		}
	}
	res.Items = e.extractItems(width.Fold.String(body))

	if res.OrderID != "" {
		score *= orderBoost
	}
	if res.TrackingNumber != "" {
		score *= trackingBoost
	}
	score = clamp01(score)
	if negative >= negativeLimit && score > negativeCap {
		score = negativeCap
	}
	res.Score = score

	return res
}

func countHits(lower string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	return hits
}

func (e *Extractor) detectVendor(from, text string) string {
	search := strings.ToLower(from + "\n" + text)
	for _, v := range e.rules.Vendors {
		for _, p := range v.Patterns {
			if strings.Contains(search, strings.ToLower(p)) {
				return v.Name
			}
		}
	}

	// Unknown sender: accept the domain itself as the vendor, but only for
	// domains on the commerce allow-list. Arbitrary senders never become
	// vendors on their own.
	domain := senderDomain(strings.ToLower(from))
	if domain == "" {
		return ""
	}
	for _, d := range e.rules.CommerceDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return d
		}
	}
	return ""
}

// extractAmount collects every context-qualified numeric candidate in
// (0, maxCandidate] and returns the maximum: context-qualified totals are
// assumed to be supersets of line items, so the largest match is taken as
// the grand total.
func (e *Extractor) extractAmount(text string) (float64, string) {
	var best float64
	currency := ""

	for _, ap := range e.amounts {
		for _, m := range ap.re.FindAllStringSubmatch(text, -1) {
			value, err := parseAmount(m[2])
			if err != nil || value <= 0 || value > maxCandidate {
				continue
			}
			if value > best {
				best = value
				currency = currencyFrom(m[1], m[3])
			}
		}
	}

	if best == 0 {
		return 0, ""
	}
	if currency == "" {
		currency = "JPY"
	}
	return best, currency
}

func (e *Extractor) extractTracking(text string) string {
	for _, re := range e.tracking {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m[1]) >= minTrackingLen {
				return m[1]
			}
		}
	}
	return ""
}

// extractItems runs the item patterns in order and keeps the matches of the
// first pattern that produces any. Capture convention: group 1 is the item
// name, group 2 (optional) the quantity, group 3 (optional) the unit price.
func (e *Extractor) extractItems(body string) []model.PurchaseItem {
	for _, re := range e.items {
		matches := re.FindAllStringSubmatch(body, -1)
		if len(matches) == 0 {
			continue
		}

		items := make([]model.PurchaseItem, 0, len(matches))
		for _, m := range matches {
			item := model.PurchaseItem{Name: strings.TrimSpace(m[1]), Quantity: 1}
			if item.Name == "" {
				continue
			}
			if len(m) > 2 && m[2] != "" {
				if qty, err := strconv.Atoi(m[2]); err == nil && qty > 0 {
					item.Quantity = qty
				}
			}
			if len(m) > 3 && m[3] != "" {
				if price, err := parseAmount(m[3]); err == nil {
					item.Price = price
				}
			}
			items = append(items, item)
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

func firstMatch(res []*regexp.Regexp, text string) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func parseAmount(raw string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
}

func currencyFrom(prefix, suffix string) string {
	switch prefix {
	case "¥", "￥":
		return "JPY"
	case "$":
		return "USD"
	case "€":
		return "EUR"
	case "£":
		return "GBP"
	}
	switch strings.ToLower(suffix) {
	case "円", "yen", "jpy":
		return "JPY"
	case "usd":
		return "USD"
	case "eur":
		return "EUR"
	case "gbp":
		return "GBP"
	}
	if prefix != "" {
		return strings.ToUpper(prefix)
	}
	return ""
}

func senderDomain(sender string) string {
	at := strings.LastIndex(sender, "@")
	if at < 0 || at == len(sender)-1 {
		return ""
	}
	return strings.TrimRight(sender[at+1:], "> ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
