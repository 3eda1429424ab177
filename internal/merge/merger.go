// Package merge combines external analyzer output with regex extraction into
// a single purchase candidate, applying the acceptance thresholds that decide
// whether an email yields a record at all.
package merge

import (
	"github.com/mailspend/mailspend/internal/extract"
	"github.com/mailspend/mailspend/internal/model"
)

// Acceptance gates. Analyzer results are trusted at a lower confidence than
// the regex path because they carry structured fields the heuristics can
// verify against.
const (
	minAnalyzerConfidence = 0.3
	minRegexScore         = 0.5
)

// Merger resolves one email's analyzer result and regex extraction into a
// purchase candidate.
type Merger struct{}

// NewMerger returns a Merger.
func NewMerger() *Merger {
	return &Merger{}
}

// Merge applies the acceptance policy. The analyzer result wins when it
// claims a purchase at sufficient confidence, with regex output filling any
// field it left empty; otherwise the regex extraction stands alone and must
// clear the higher score threshold. The boolean reports whether a candidate
// was produced.
func (m *Merger) Merge(ai *model.AnalysisResult, regex extract.Result) (model.PurchaseCandidate, bool) {
	if ai != nil && ai.Purchase != nil && ai.Purchase.IsPurchase && ai.Purchase.Confidence >= minAnalyzerConfidence {
		return m.mergeAnalyzer(ai, regex)
	}
	return m.regexOnly(regex)
}

func (m *Merger) mergeAnalyzer(ai *model.AnalysisResult, regex extract.Result) (model.PurchaseCandidate, bool) {
	p := ai.Purchase
	cand := model.PurchaseCandidate{
		Vendor:         p.Vendor,
		Amount:         p.Amount,
		Currency:       p.Currency,
		OrderID:        p.OrderID,
		TrackingNumber: p.TrackingNumber,
		Category:       ai.Category,
		Items:          p.Items,
		Status:         regex.Status,
		PaymentMethod:  regex.PaymentMethod,
		Confidence:     p.Confidence,
		AIAnalyzed:     true,
	}

	if cand.Vendor == "" {
		cand.Vendor = regex.Vendor
	}
	if cand.Amount == 0 {
		cand.Amount = regex.Amount
	}
	if cand.Currency == "" {
		cand.Currency = regex.Currency
	}
	if cand.OrderID == "" {
		cand.OrderID = regex.OrderID
	}
	if cand.TrackingNumber == "" {
		cand.TrackingNumber = regex.TrackingNumber
	}
	if len(cand.Items) == 0 {
		cand.Items = regex.Items
	}

	if cand.Vendor == "" || cand.Amount <= 0 || cand.Amount > model.MaxPurchaseAmount {
		return model.PurchaseCandidate{}, false
	}
	if cand.Currency == "" {
		cand.Currency = "JPY"
	}
	return cand, true
}

func (m *Merger) regexOnly(regex extract.Result) (model.PurchaseCandidate, bool) {
	if regex.Score < minRegexScore || !regex.HasPurchase() || regex.Vendor == "" {
		return model.PurchaseCandidate{}, false
	}
	if regex.Amount > model.MaxPurchaseAmount {
		return model.PurchaseCandidate{}, false
	}

	return model.PurchaseCandidate{
		Vendor:         regex.Vendor,
		Amount:         regex.Amount,
		Currency:       regex.Currency,
		OrderID:        regex.OrderID,
		TrackingNumber: regex.TrackingNumber,
		Items:          regex.Items,
		Status:         regex.Status,
		PaymentMethod:  regex.PaymentMethod,
		Confidence:     regex.Score,
		AIAnalyzed:     false,
	}, true
}
