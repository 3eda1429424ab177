package model

import "time"

// PurchaseStatus tracks where a purchase sits in its lifecycle.
type PurchaseStatus string

// Purchase status constants.
const (
	StatusConfirmed PurchaseStatus = "Confirmed"
	StatusShipped   PurchaseStatus = "Shipped"
	StatusDelivered PurchaseStatus = "Delivered"
	StatusCancelled PurchaseStatus = "Cancelled"
)

// Exclusion reasons recorded when a purchase is flagged rather than deleted.
const (
	ExclusionCancelled         = "cancelled"
	ExclusionCancellationEmail = "cancellation_email"
	ExclusionManual            = "manual"
)

// MaxPurchaseAmount is the sanity bound on extracted amounts. Anything above
// it is treated as extraction noise, not a real purchase.
const MaxPurchaseAmount = 10_000_000

// PurchaseItem is one line item of a purchase.
type PurchaseItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// PurchaseRecord is the canonical record of one real-world purchase. Multiple
// emails (order confirmation, shipping notice, cancellation) may feed the same
// record; RelatedEmailIDs accumulates them and is append-only. Records are
// never deleted by the pipeline, only flagged IsExcluded.
type PurchaseRecord struct {
	Date            time.Time
	ID              string
	UserID          string
	EmailID         string
	OrderID         string
	Vendor          string
	Currency        string
	TrackingNumber  string
	Category        string
	PaymentMethod   string
	ExclusionReason string
	Status          PurchaseStatus
	// SourceRole is the role of the email whose fields are currently
	// primary; merges from lower-precedence emails only fill gaps.
	SourceRole      EmailRole
	Items           []PurchaseItem
	RelatedEmailIDs []string
	Amount          float64
	Confidence      float64
	AIAnalyzed      bool
	IsExcluded      bool
}

// HasRelatedEmail reports whether id is already linked to the record, either
// as the originating email or a merged one.
func (p *PurchaseRecord) HasRelatedEmail(id string) bool {
	if p.EmailID == id {
		return true
	}
	for _, rid := range p.RelatedEmailIDs {
		if rid == id {
			return true
		}
	}
	return false
}

// AddRelatedEmail links another source email to the record. Duplicates are
// ignored so RelatedEmailIDs stays a set.
func (p *PurchaseRecord) AddRelatedEmail(id string) {
	if id == "" || p.HasRelatedEmail(id) {
		return
	}
	p.RelatedEmailIDs = append(p.RelatedEmailIDs, id)
}

// PurchaseCandidate is a merged extraction result that has not yet been
// reconciled against stored purchases. It carries content only; identity
// (record ID, user, source email, date) is assigned during reconciliation.
type PurchaseCandidate struct {
	Vendor         string
	Currency       string
	OrderID        string
	TrackingNumber string
	PaymentMethod  string
	Category       string
	Status         PurchaseStatus
	Items          []PurchaseItem
	Amount         float64
	Confidence     float64
	AIAnalyzed     bool
}
