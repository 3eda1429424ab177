package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/rules"
	"github.com/mailspend/mailspend/internal/service"
	"github.com/mailspend/mailspend/internal/testutil"
)

func newTestReconciler(t *testing.T) (*Reconciler, service.Storage) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	r := NewReconciler(db.Storage, rules.Default().Roles, Config{})
	return r, db.Storage
}

func orderEmail(id, orderID string, ts time.Time) (model.EmailMessage, model.PurchaseCandidate) {
	email := testutil.NewEmail(id).
		Subject("ご注文の確認").
		Body("ご注文ありがとうございます。注文番号: " + orderID).
		At(ts).
		Build()
	cand := model.PurchaseCandidate{
		Vendor:     "Amazon",
		Amount:     3980,
		Currency:   "JPY",
		OrderID:    orderID,
		Status:     model.StatusConfirmed,
		Confidence: 0.9,
		AIAnalyzed: true,
	}
	return email, cand
}

func shippingEmail(id, orderID, tracking string, ts time.Time) (model.EmailMessage, model.PurchaseCandidate) {
	email := testutil.NewEmail(id).
		Subject("発送のお知らせ").
		Body("商品を発送しました。追跡番号: " + tracking).
		At(ts).
		Build()
	cand := model.PurchaseCandidate{
		Vendor:         "Amazon",
		Amount:         3980,
		Currency:       "JPY",
		OrderID:        orderID,
		TrackingNumber: tracking,
		Confidence:     0.7,
	}
	return email, cand
}

func cancellationEmail(id, orderID string, ts time.Time) (model.EmailMessage, model.PurchaseCandidate) {
	email := testutil.NewEmail(id).
		Subject("ご注文のキャンセルについて").
		Body("ご注文はキャンセルされました。注文番号: " + orderID).
		At(ts).
		Build()
	cand := model.PurchaseCandidate{
		Vendor:     "Amazon",
		Amount:     3980,
		Currency:   "JPY",
		OrderID:    orderID,
		Confidence: 0.8,
	}
	return email, cand
}

func TestReconcile_CreatesNewPurchase(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	email, cand := orderEmail("email-1", "ORD-100", ts)
	res, err := r.Reconcile(ctx, "user-1", email, cand)
	require.NoError(t, err)

	assert.True(t, res.IsNew)
	assert.False(t, res.IsDuplicate)
	require.NotNil(t, res.Purchase)
	assert.NotEmpty(t, res.Purchase.ID)
	assert.Equal(t, "email-1", res.Purchase.EmailID)
	assert.Equal(t, "Amazon", res.Purchase.Vendor)
	assert.Equal(t, model.StatusConfirmed, res.Purchase.Status)
	assert.Equal(t, model.RoleOrder, res.Purchase.SourceRole)
	assert.True(t, res.Purchase.Date.Equal(ts))

	stored, err := store.GetPurchaseByID(ctx, res.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Purchase.OrderID, stored.OrderID)
}

func TestReconcile_DefaultsForSparseCandidates(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	t.Run("currency defaults to JPY", func(t *testing.T) {
		email := testutil.NewEmail("email-jpy").Subject("ご注文の確認").Build()
		cand := model.PurchaseCandidate{Vendor: "Rakuten", Amount: 500, Confidence: 0.6}

		res, err := r.Reconcile(ctx, "user-1", email, cand)
		require.NoError(t, err)
		assert.Equal(t, "JPY", res.Purchase.Currency)
	})

	t.Run("shipping role starts at Shipped", func(t *testing.T) {
		email := testutil.NewEmail("email-ship").
			Subject("発送のお知らせ").
			Body("商品を発送しました。").
			Build()
		cand := model.PurchaseCandidate{Vendor: "Yodobashi", Amount: 800, Confidence: 0.6}

		res, err := r.Reconcile(ctx, "user-1", email, cand)
		require.NoError(t, err)
		assert.Equal(t, model.StatusShipped, res.Purchase.Status)
		assert.Equal(t, model.RoleShipping, res.Purchase.SourceRole)
	})

	t.Run("candidate without vendor or amount rejected", func(t *testing.T) {
		email := testutil.NewEmail("email-bad").Build()

		_, err := r.Reconcile(ctx, "user-1", email, model.PurchaseCandidate{Amount: 100})
		assert.Error(t, err)

		_, err = r.Reconcile(ctx, "user-1", email, model.PurchaseCandidate{Vendor: "X"})
		assert.Error(t, err)
	})
}

func TestReconcile_IdempotentByEmailID(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	email, cand := orderEmail("email-1", "ORD-100", ts)

	first, err := r.Reconcile(ctx, "user-1", email, cand)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	second, err := r.Reconcile(ctx, "user-1", email, cand)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.Purchase.ID, second.Purchase.ID)

	purchases, err := store.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{IncludeExcluded: true})
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
}

func TestReconcile_OrderMatchMergesShippingNotice(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	order, orderCand := orderEmail("email-order", "ORD-100", ts)
	first, err := r.Reconcile(ctx, "user-1", order, orderCand)
	require.NoError(t, err)

	shipping, shippingCand := shippingEmail("email-ship", "ORD-100", "123456789012", ts.Add(24*time.Hour))
	second, err := r.Reconcile(ctx, "user-1", shipping, shippingCand)
	require.NoError(t, err)

	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.Purchase.ID, second.Purchase.ID)

	merged, err := store.GetPurchaseByID(ctx, first.Purchase.ID)
	require.NoError(t, err)

	// The shipping notice fills gaps but the order confirmation stays primary.
	assert.Equal(t, model.RoleOrder, merged.SourceRole)
	assert.Equal(t, 0.9, merged.Confidence)
	assert.Equal(t, "123456789012", merged.TrackingNumber)
	assert.Equal(t, model.StatusShipped, merged.Status)
	assert.Contains(t, merged.RelatedEmailIDs, "email-ship")

	purchases, err := store.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
}

func TestReconcile_OrderConfirmationTakesOverFromShipping(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := db.Storage
	// Wider tolerance so a shipping notice rounding the total still matches.
	r := NewReconciler(store, rules.Default().Roles, Config{AmountTolerance: 10})
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	// Shipping notice arrives first (out-of-order delivery).
	shipping, shippingCand := shippingEmail("email-ship", "ORD-100", "123456789012", ts.Add(24*time.Hour))
	shippingCand.Amount = 3975
	first, err := r.Reconcile(ctx, "user-1", shipping, shippingCand)
	require.NoError(t, err)
	require.Equal(t, model.RoleShipping, first.Purchase.SourceRole)

	// Order confirmation with the authoritative amount arrives second.
	order, orderCand := orderEmail("email-order", "ORD-100", ts)
	second, err := r.Reconcile(ctx, "user-1", order, orderCand)
	require.NoError(t, err)
	assert.True(t, second.IsDuplicate)

	merged, err := store.GetPurchaseByID(ctx, first.Purchase.ID)
	require.NoError(t, err)

	assert.Equal(t, model.RoleOrder, merged.SourceRole)
	assert.Equal(t, float64(3980), merged.Amount)
	assert.Equal(t, 0.9, merged.Confidence)
	// Tracking from the earlier shipping notice is preserved.
	assert.Equal(t, "123456789012", merged.TrackingNumber)
	// Status does not move backwards from Shipped to Confirmed.
	assert.Equal(t, model.StatusShipped, merged.Status)
	assert.True(t, merged.Date.Equal(ts))
}

func TestReconcile_OrderMatchRespectsAmountTolerance(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	order, orderCand := orderEmail("email-1", "ORD-100", ts)
	_, err := r.Reconcile(ctx, "user-1", order, orderCand)
	require.NoError(t, err)

	// Same order number but a very different amount: not the same purchase.
	other, otherCand := orderEmail("email-2", "ORD-100", ts.Add(time.Hour))
	otherCand.Amount = 9800
	res, err := r.Reconcile(ctx, "user-1", other, otherCand)
	require.NoError(t, err)
	assert.True(t, res.IsNew)

	purchases, err := store.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	assert.Len(t, purchases, 2)
}

func TestReconcile_TrackingMatchLinksWithoutFieldMerge(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	shipping, shippingCand := shippingEmail("email-1", "ORD-100", "123456789012", ts)
	first, err := r.Reconcile(ctx, "user-1", shipping, shippingCand)
	require.NoError(t, err)

	// Delivery update: no order number, same tracking number, different amount
	// estimate. It links to the record without rewriting its fields.
	update := testutil.NewEmail("email-2").
		Subject("配達完了のお知らせ").
		Body("お荷物をお届けしました。追跡番号: 123456789012").
		At(ts.Add(48 * time.Hour)).
		Build()
	updateCand := model.PurchaseCandidate{
		Vendor:         "Amazon",
		Amount:         3900,
		TrackingNumber: "123456789012",
		Confidence:     0.5,
	}

	res, err := r.Reconcile(ctx, "user-1", update, updateCand)
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, first.Purchase.ID, res.Purchase.ID)

	merged, err := store.GetPurchaseByID(ctx, first.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(3980), merged.Amount)
	assert.Contains(t, merged.RelatedEmailIDs, "email-2")
}

func TestReconcile_AmountAndDateWindow(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	first := testutil.NewEmail("email-1").
		Subject("ご購入ありがとうございます").
		Body("お支払いが完了しました。").
		At(ts).
		Build()
	firstCand := model.PurchaseCandidate{Vendor: "Mercari", Amount: 2500, Confidence: 0.6}
	res1, err := r.Reconcile(ctx, "user-1", first, firstCand)
	require.NoError(t, err)

	// Same vendor and amount three days later: same purchase.
	within := testutil.NewEmail("email-2").
		Subject("レシート").
		Body("お支払いが完了しました。").
		At(ts.Add(3 * 24 * time.Hour)).
		Build()
	res2, err := r.Reconcile(ctx, "user-1", within, firstCand)
	require.NoError(t, err)
	assert.True(t, res2.IsDuplicate)
	assert.Equal(t, res1.Purchase.ID, res2.Purchase.ID)

	// Same vendor and amount a month later: a separate purchase.
	later := testutil.NewEmail("email-3").
		Subject("レシート").
		Body("お支払いが完了しました。").
		At(ts.Add(30 * 24 * time.Hour)).
		Build()
	res3, err := r.Reconcile(ctx, "user-1", later, firstCand)
	require.NoError(t, err)
	assert.True(t, res3.IsNew)

	purchases, err := store.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	assert.Len(t, purchases, 2)
}

func TestReconcile_CancellationExcludesOrder(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	order, orderCand := orderEmail("email-order", "ORD-100", ts)
	created, err := r.Reconcile(ctx, "user-1", order, orderCand)
	require.NoError(t, err)

	cancel, cancelCand := cancellationEmail("email-cancel", "ORD-100", ts.Add(2*time.Hour))
	res, err := r.Reconcile(ctx, "user-1", cancel, cancelCand)
	require.NoError(t, err)

	assert.True(t, res.IsDuplicate)
	assert.Equal(t, created.Purchase.ID, res.Purchase.ID)

	// The order record is excluded, not deleted.
	cancelled, err := store.GetPurchaseByID(ctx, created.Purchase.ID)
	require.NoError(t, err)
	assert.True(t, cancelled.IsExcluded)
	assert.Equal(t, model.ExclusionCancelled, cancelled.ExclusionReason)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Contains(t, cancelled.RelatedEmailIDs, "email-cancel")

	// The cancellation email got its own excluded record.
	own, err := store.GetPurchaseByEmailID(ctx, "user-1", "email-cancel")
	require.NoError(t, err)
	assert.True(t, own.IsExcluded)
	assert.Equal(t, model.ExclusionCancellationEmail, own.ExclusionReason)

	// Neither shows up in default listings.
	visible, err := store.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := store.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{IncludeExcluded: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReconcile_CancellationWithoutMatch(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	cancel, cancelCand := cancellationEmail("email-cancel", "ORD-404", ts)
	res, err := r.Reconcile(ctx, "user-1", cancel, cancelCand)
	require.NoError(t, err)

	assert.True(t, res.IsNew)
	assert.True(t, res.Purchase.IsExcluded)
	assert.Equal(t, model.ExclusionCancellationEmail, res.Purchase.ExclusionReason)
	assert.Equal(t, model.StatusCancelled, res.Purchase.Status)

	visible, err := store.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestReconcile_LaterEmailAttachesToCancelledOrder(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	order, orderCand := orderEmail("email-order", "ORD-100", ts)
	created, err := r.Reconcile(ctx, "user-1", order, orderCand)
	require.NoError(t, err)

	cancel, cancelCand := cancellationEmail("email-cancel", "ORD-100", ts.Add(time.Hour))
	_, err = r.Reconcile(ctx, "user-1", cancel, cancelCand)
	require.NoError(t, err)

	// A straggling shipping notice for the cancelled order attaches to the
	// excluded record instead of creating a fresh purchase.
	shipping, shippingCand := shippingEmail("email-ship", "ORD-100", "123456789012", ts.Add(2*time.Hour))
	res, err := r.Reconcile(ctx, "user-1", shipping, shippingCand)
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, created.Purchase.ID, res.Purchase.ID)

	merged, err := store.GetPurchaseByID(ctx, created.Purchase.ID)
	require.NoError(t, err)
	assert.True(t, merged.IsExcluded)
	assert.Equal(t, model.StatusCancelled, merged.Status)

	visible, err := store.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestReconcile_ConcurrentSameOrder(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			email, cand := orderEmail(fmt.Sprintf("email-%d", n), "ORD-100", ts)
			if _, err := r.Reconcile(ctx, "user-1", email, cand); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent reconcile failed: %v", err)
	}

	purchases, err := store.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{IncludeExcluded: true})
	require.NoError(t, err)
	require.Len(t, purchases, 1, "concurrent emails for one order must collapse to one record")

	// Every email is accounted for on the single record.
	rec := purchases[0]
	for i := 0; i < workers; i++ {
		assert.True(t, rec.HasRelatedEmail(fmt.Sprintf("email-%d", i)))
	}
}

func TestReconcile_UsersAreIsolated(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	email1, cand := orderEmail("email-1", "ORD-100", ts)
	_, err := r.Reconcile(ctx, "user-1", email1, cand)
	require.NoError(t, err)

	// The same order number for another user is a separate purchase.
	email2, cand2 := orderEmail("email-2", "ORD-100", ts)
	res, err := r.Reconcile(ctx, "user-2", email2, cand2)
	require.NoError(t, err)
	assert.True(t, res.IsNew)

	for _, user := range []string{"user-1", "user-2"} {
		purchases, err := store.GetPurchasesByUser(ctx, user, service.PurchaseFilter{})
		require.NoError(t, err)
		assert.Len(t, purchases, 1)
	}
}
