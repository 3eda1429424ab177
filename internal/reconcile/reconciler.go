// Package reconcile turns merged purchase candidates into stored purchase
// records. It owns deduplication across the emails of one real-world purchase
// (confirmation, shipping notice, cancellation) and the exclusion flow for
// cancelled orders.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/rules"
	"github.com/mailspend/mailspend/internal/service"
)

// Defaults for Config fields left at their zero value.
const (
	defaultDateWindow      = 7 * 24 * time.Hour
	defaultAmountTolerance = 1.0
)

// Config tunes the duplicate-matching windows.
type Config struct {
	// DateWindow is how far apart two emails may be and still describe the
	// same purchase when matched by vendor and amount.
	DateWindow time.Duration

	// AmountTolerance is the maximum amount difference for an order-number
	// match. Covers rounding differences between confirmation and receipt.
	AmountTolerance float64
}

// Result reports what Reconcile did with a candidate.
type Result struct {
	// Purchase is the stored record the email ended up in. For cancellations
	// that matched an order this is the cancelled record, not the
	// cancellation email's own record.
	Purchase *model.PurchaseRecord

	// IsNew reports that a record was created for this email.
	IsNew bool

	// IsDuplicate reports that the email was folded into an existing record
	// (or had already been processed).
	IsDuplicate bool
}

// Reconciler matches candidates against stored purchases and writes the
// outcome. Safe for concurrent use.
type Reconciler struct {
	store  service.Storage
	roles  *RoleClassifier
	locks  *keyedMutex
	logger *slog.Logger
	cfg    Config
}

// NewReconciler returns a Reconciler over the given storage. Zero-value
// Config fields fall back to the package defaults.
func NewReconciler(store service.Storage, roleRules rules.RoleRules, cfg Config) *Reconciler {
	if cfg.DateWindow <= 0 {
		cfg.DateWindow = defaultDateWindow
	}
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = defaultAmountTolerance
	}
	return &Reconciler{
		store:  store,
		roles:  NewRoleClassifier(roleRules),
		locks:  newKeyedMutex(),
		logger: slog.Default().With("component", "reconciler"),
		cfg:    cfg,
	}
}

// Reconcile folds one email's candidate into the user's purchase history.
// Matching runs in order: same email already processed, cancellation against
// its order, same order number, same tracking number, then same vendor and
// amount within the date window. The first match wins; otherwise a new record
// is created.
//
// Every matching path requires vendor equality, so serializing per
// (user, vendor) is enough to keep concurrent workers from double-inserting
// the same purchase.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, email model.EmailMessage, cand model.PurchaseCandidate) (*Result, error) {
	if userID == "" || email.ID == "" {
		return nil, fmt.Errorf("reconcile requires a user ID and email ID")
	}
	if cand.Vendor == "" || cand.Amount <= 0 {
		return nil, fmt.Errorf("candidate from email %s has no vendor or amount", email.ID)
	}

	unlock := r.locks.lock(lockKey(userID, cand.Vendor))
	defer unlock()

	// An email is reconciled at most once, no matter how often it is
	// reprocessed.
	existing, err := r.store.GetPurchaseByEmailID(ctx, userID, email.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking purchase for email %s: %w", email.ID, err)
	}
	if existing != nil {
		return &Result{Purchase: existing, IsDuplicate: true}, nil
	}

	role := r.roles.Classify(email.Subject, email.Body)
	if role == model.RoleCancellation {
		return r.reconcileCancellation(ctx, userID, email, cand)
	}

	purchases, err := r.store.GetPurchasesByUser(ctx, userID, service.PurchaseFilter{IncludeExcluded: true})
	if err != nil {
		return nil, fmt.Errorf("loading purchases for user %s: %w", userID, err)
	}

	// The email may have been merged into another record on a previous run.
	for i := range purchases {
		if purchases[i].HasRelatedEmail(email.ID) {
			rec := purchases[i]
			return &Result{Purchase: &rec, IsDuplicate: true}, nil
		}
	}

	if target := r.matchOrder(purchases, cand); target != nil {
		r.mergeFields(target, cand, role, email)
		if err := r.store.SavePurchase(ctx, target); err != nil {
			return nil, fmt.Errorf("merging email %s into purchase %s: %w", email.ID, target.ID, err)
		}
		r.logger.Debug("merged by order number",
			"email_id", email.ID, "purchase_id", target.ID, "order_id", target.OrderID)
		return &Result{Purchase: target, IsDuplicate: true}, nil
	}

	if target := r.matchTracking(purchases, cand); target != nil {
		target.AddRelatedEmail(email.ID)
		if err := r.store.SavePurchase(ctx, target); err != nil {
			return nil, fmt.Errorf("linking email %s to purchase %s: %w", email.ID, target.ID, err)
		}
		r.logger.Debug("linked by tracking number",
			"email_id", email.ID, "purchase_id", target.ID)
		return &Result{Purchase: target, IsDuplicate: true}, nil
	}

	if target := r.matchAmountDate(purchases, cand, email.Timestamp); target != nil {
		target.AddRelatedEmail(email.ID)
		if err := r.store.SavePurchase(ctx, target); err != nil {
			return nil, fmt.Errorf("linking email %s to purchase %s: %w", email.ID, target.ID, err)
		}
		r.logger.Debug("linked by vendor and amount",
			"email_id", email.ID, "purchase_id", target.ID)
		return &Result{Purchase: target, IsDuplicate: true}, nil
	}

	rec := r.newRecord(userID, email, cand, role)
	if err := r.store.SavePurchase(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving purchase for email %s: %w", email.ID, err)
	}
	r.logger.Debug("created purchase",
		"email_id", email.ID, "purchase_id", rec.ID, "vendor", rec.Vendor, "amount", rec.Amount)
	return &Result{Purchase: rec, IsNew: true}, nil
}

// reconcileCancellation excludes the matching order, records the cancellation
// email itself as an excluded record, and commits both in one transaction.
// Without an order-number match only the cancellation email is recorded.
func (r *Reconciler) reconcileCancellation(ctx context.Context, userID string, email model.EmailMessage, cand model.PurchaseCandidate) (*Result, error) {
	own := r.newRecord(userID, email, cand, model.RoleCancellation)
	own.Status = model.StatusCancelled
	own.IsExcluded = true
	own.ExclusionReason = model.ExclusionCancellationEmail

	var target *model.PurchaseRecord
	if cand.OrderID != "" {
		purchases, err := r.store.GetPurchasesByUser(ctx, userID, service.PurchaseFilter{IncludeExcluded: true})
		if err != nil {
			return nil, fmt.Errorf("loading purchases for user %s: %w", userID, err)
		}
		for i := range purchases {
			p := &purchases[i]
			if isCancellationRecord(p) {
				continue
			}
			if p.OrderID == cand.OrderID && p.Vendor == cand.Vendor {
				target = p
				break
			}
		}
	}

	if target == nil {
		if err := r.store.SavePurchase(ctx, own); err != nil {
			return nil, fmt.Errorf("saving cancellation record for email %s: %w", email.ID, err)
		}
		r.logger.Debug("recorded unmatched cancellation",
			"email_id", email.ID, "order_id", cand.OrderID, "vendor", cand.Vendor)
		return &Result{Purchase: own, IsNew: true}, nil
	}

	target.Status = model.StatusCancelled
	target.IsExcluded = true
	target.ExclusionReason = model.ExclusionCancelled
	target.AddRelatedEmail(email.ID)

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning cancellation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.SavePurchase(ctx, target); err != nil {
		return nil, fmt.Errorf("cancelling purchase %s: %w", target.ID, err)
	}
	if err := tx.SavePurchase(ctx, own); err != nil {
		return nil, fmt.Errorf("saving cancellation record for email %s: %w", email.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cancellation of purchase %s: %w", target.ID, err)
	}

	r.logger.Info("cancelled purchase",
		"purchase_id", target.ID, "order_id", target.OrderID, "email_id", email.ID)
	return &Result{Purchase: target, IsDuplicate: true}, nil
}

// matchOrder finds a purchase with the same order number and vendor whose
// amount is within tolerance.
func (r *Reconciler) matchOrder(purchases []model.PurchaseRecord, cand model.PurchaseCandidate) *model.PurchaseRecord {
	if cand.OrderID == "" {
		return nil
	}
	for i := range purchases {
		p := &purchases[i]
		if isCancellationRecord(p) {
			continue
		}
		if p.OrderID == cand.OrderID && p.Vendor == cand.Vendor &&
			math.Abs(p.Amount-cand.Amount) < r.cfg.AmountTolerance {
			return p
		}
	}
	return nil
}

// matchTracking finds a purchase with the same tracking number and vendor.
func (r *Reconciler) matchTracking(purchases []model.PurchaseRecord, cand model.PurchaseCandidate) *model.PurchaseRecord {
	if cand.TrackingNumber == "" {
		return nil
	}
	for i := range purchases {
		p := &purchases[i]
		if isCancellationRecord(p) {
			continue
		}
		if p.TrackingNumber == cand.TrackingNumber && p.Vendor == cand.Vendor {
			return p
		}
	}
	return nil
}

// matchAmountDate finds a purchase with the same vendor and amount dated
// within the configured window of ts.
func (r *Reconciler) matchAmountDate(purchases []model.PurchaseRecord, cand model.PurchaseCandidate, ts time.Time) *model.PurchaseRecord {
	for i := range purchases {
		p := &purchases[i]
		if isCancellationRecord(p) {
			continue
		}
		if p.Vendor != cand.Vendor || math.Abs(p.Amount-cand.Amount) >= 1e-9 {
			continue
		}
		delta := p.Date.Sub(ts)
		if delta < 0 {
			delta = -delta
		}
		if delta <= r.cfg.DateWindow {
			return p
		}
	}
	return nil
}

// isCancellationRecord reports whether p is the bookkeeping record of a
// cancellation email rather than a purchase. Those never win duplicate
// matches; later emails belong on the order they cancelled.
func isCancellationRecord(p *model.PurchaseRecord) bool {
	return p.ExclusionReason == model.ExclusionCancellationEmail
}

// mergeFields folds cand into an order-number match. A higher-precedence role
// takes over the record's fields wholesale, keeping the existing tracking
// number when the new email lacks one. A lower or equal role only fills gaps.
// Status never moves backwards through the lifecycle.
func (r *Reconciler) mergeFields(p *model.PurchaseRecord, cand model.PurchaseCandidate, role model.EmailRole, email model.EmailMessage) {
	// A shipping notice implies Shipped even when no status line was
	// extracted, mirroring the defaulting on insert.
	incoming := cand.Status
	if incoming == "" && role == model.RoleShipping {
		incoming = model.StatusShipped
	}

	if role.Precedence() > p.SourceRole.Precedence() {
		p.Amount = cand.Amount
		p.Confidence = cand.Confidence
		p.AIAnalyzed = cand.AIAnalyzed
		p.SourceRole = role
		if cand.Currency != "" {
			p.Currency = cand.Currency
		}
		if cand.TrackingNumber != "" {
			p.TrackingNumber = cand.TrackingNumber
		}
		if len(cand.Items) > 0 {
			p.Items = cand.Items
		}
		if cand.PaymentMethod != "" {
			p.PaymentMethod = cand.PaymentMethod
		}
		if cand.Category != "" {
			p.Category = cand.Category
		}
		if !email.Timestamp.IsZero() {
			p.Date = email.Timestamp
		}
	} else {
		if p.TrackingNumber == "" {
			p.TrackingNumber = cand.TrackingNumber
		}
		if len(p.Items) == 0 {
			p.Items = cand.Items
		}
		if p.PaymentMethod == "" {
			p.PaymentMethod = cand.PaymentMethod
		}
		if p.Currency == "" {
			p.Currency = cand.Currency
		}
		if p.Category == "" {
			p.Category = cand.Category
		}
	}

	if statusRank(incoming) > statusRank(p.Status) {
		p.Status = incoming
	}
	p.AddRelatedEmail(email.ID)
}

// newRecord builds a fresh purchase record from a candidate. Shipping notices
// without an explicit status start at Shipped, everything else at Confirmed.
func (r *Reconciler) newRecord(userID string, email model.EmailMessage, cand model.PurchaseCandidate, role model.EmailRole) *model.PurchaseRecord {
	date := email.Timestamp
	if date.IsZero() {
		date = time.Now().UTC()
	}

	status := cand.Status
	if status == "" {
		if role == model.RoleShipping {
			status = model.StatusShipped
		} else {
			status = model.StatusConfirmed
		}
	}

	currency := cand.Currency
	if currency == "" {
		currency = "JPY"
	}

	return &model.PurchaseRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		EmailID:         email.ID,
		OrderID:         cand.OrderID,
		Vendor:          cand.Vendor,
		Amount:          cand.Amount,
		Currency:        currency,
		Date:            date,
		Items:           cand.Items,
		Status:          status,
		TrackingNumber:  cand.TrackingNumber,
		PaymentMethod:   cand.PaymentMethod,
		Category:        cand.Category,
		Confidence:      cand.Confidence,
		AIAnalyzed:      cand.AIAnalyzed,
		SourceRole:      role,
		RelatedEmailIDs: []string{},
	}
}

// statusRank orders statuses along the purchase lifecycle.
func statusRank(s model.PurchaseStatus) int {
	switch s {
	case model.StatusConfirmed:
		return 1
	case model.StatusShipped:
		return 2
	case model.StatusDelivered:
		return 3
	case model.StatusCancelled:
		return 4
	default:
		return 0
	}
}

func lockKey(userID, vendor string) string {
	return userID + "|" + strings.ToLower(vendor)
}
