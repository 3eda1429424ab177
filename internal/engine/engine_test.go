package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mailspend/mailspend/internal/extract"
	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/reconcile"
	"github.com/mailspend/mailspend/internal/rules"
	"github.com/mailspend/mailspend/internal/service"
	"github.com/mailspend/mailspend/internal/signal"
	"github.com/mailspend/mailspend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAnalyzer returns canned results keyed by email ID and records how many
// calls were in flight at once.
type stubAnalyzer struct {
	results  map[string]*model.AnalysisResult
	err      error
	delay    time.Duration
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req service.AnalyzeRequest) (*model.AnalysisResult, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if cur <= p || s.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	s.calls.Add(1)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.err != nil {
		return nil, s.err
	}
	if r, ok := s.results[req.EmailID]; ok {
		return r, nil
	}
	return &model.AnalysisResult{
		EmailType: "other",
		Category:  "misc",
		Priority:  "low",
		Summary:   "nothing of note",
	}, nil
}

func newTestEngine(t *testing.T, analyzer Analyzer) (*ExtractionEngine, *testutil.TestDB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	ruleSet := rules.Default()

	scorer, err := signal.NewScorer(ruleSet.Signal)
	require.NoError(t, err)
	extractor, err := extract.NewExtractor(ruleSet.Extract)
	require.NoError(t, err)
	reconciler := reconcile.NewReconciler(db.Storage, ruleSet.Roles, reconcile.Config{})

	return New(db.Storage, analyzer, scorer, extractor, reconciler), db
}

func purchaseAnalysis(orderID string, amount float64) *model.AnalysisResult {
	return &model.AnalysisResult{
		EmailType: "purchase",
		Category:  "shopping",
		Priority:  "low",
		Summary:   "Order confirmation.",
		Purchase: &model.PurchaseAnalysis{
			IsPurchase: true,
			Confidence: 0.9,
			Vendor:     "Amazon",
			Amount:     amount,
			Currency:   "JPY",
			OrderID:    orderID,
		},
	}
}

func fastOptions() BatchOptions {
	return BatchOptions{Concurrency: 3, BatchDelay: time.Millisecond}
}

func TestProcessBatch_MixedEmails(t *testing.T) {
	ctx := context.Background()

	stub := &stubAnalyzer{
		results: map[string]*model.AnalysisResult{
			"email-order": purchaseAnalysis("ORD-500", 3980),
		},
	}
	engine, db := newTestEngine(t, stub)

	emails := []model.EmailMessage{
		testutil.NewEmail("email-news").
			From("news@mail.rakuten.co.jp").
			Subject("今週のセール情報").
			Body("今だけの限定クーポン！配信停止はこちら: https://example.com/unsubscribe").
			Build(),
		testutil.NewEmail("email-order").
			From("order@amazon.co.jp").
			Subject("ご注文の確認").
			Body("ご注文ありがとうございます。合計: ¥3,980 ご注文番号: ORD-500").
			Build(),
		testutil.NewEmail("email-chat").
			From("colleague@example.com").
			Subject("明日の打ち合わせについて").
			Body("明日14時にお伺いします。").
			Build(),
	}

	opts := fastOptions()
	var progressed int
	opts.OnProgress = func(n int) { progressed += n }

	summary, err := engine.ProcessBatch(ctx, "user-1", emails, opts)
	require.NoError(t, err)

	assert.Equal(t, 3, progressed)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Filtered)
	assert.Equal(t, 1, summary.Extracted)
	assert.Equal(t, 0, summary.Merged)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Errors)

	// The newsletter was recorded as filtered, not analyzed.
	stored, err := db.Storage.GetAnalysis(ctx, "user-1", "email-news")
	require.NoError(t, err)
	assert.True(t, stored.WasFiltered)
	assert.NotEmpty(t, stored.FilterReason)
	assert.Nil(t, stored.Result)

	// The purchase email produced one record.
	purchases, err := db.Storage.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, "Amazon", purchases[0].Vendor)
	assert.Equal(t, "ORD-500", purchases[0].OrderID)
	assert.True(t, purchases[0].AIAnalyzed)

	// Only primary emails reached the analyzer.
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestProcessBatch_ConcurrentOrderAndShippingMerge(t *testing.T) {
	ctx := context.Background()

	shipping := purchaseAnalysis("ORD-500", 3980)
	shipping.Purchase.TrackingNumber = "JP123456789012"

	stub := &stubAnalyzer{
		results: map[string]*model.AnalysisResult{
			"email-order": purchaseAnalysis("ORD-500", 3980),
			"email-ship":  shipping,
		},
	}
	engine, db := newTestEngine(t, stub)

	emails := []model.EmailMessage{
		testutil.NewEmail("email-order").
			From("order@amazon.co.jp").
			Subject("ご注文の確認").
			Body("ご注文ありがとうございます。合計: ¥3,980 ご注文番号: ORD-500").
			At(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)).
			Build(),
		testutil.NewEmail("email-ship").
			From("ship@amazon.co.jp").
			Subject("発送のお知らせ").
			Body("商品を発送しました。追跡番号: JP123456789012 ご注文番号: ORD-500").
			At(time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)).
			Build(),
	}

	// Both emails land in the same fan-out group; the reconciler must still
	// produce a single merged record.
	summary, err := engine.ProcessBatch(ctx, "user-1", emails, fastOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Extracted)
	assert.Equal(t, 1, summary.Merged)

	purchases, err := db.Storage.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	require.Len(t, purchases, 1)

	p := purchases[0]
	assert.Equal(t, "ORD-500", p.OrderID)
	assert.Equal(t, model.StatusShipped, p.Status)
	assert.Equal(t, "JP123456789012", p.TrackingNumber)
	assert.True(t, p.HasRelatedEmail("email-order"))
	assert.True(t, p.HasRelatedEmail("email-ship"))
}

func TestProcessBatch_AnalyzerFailureDegradesToExtraction(t *testing.T) {
	ctx := context.Background()

	stub := &stubAnalyzer{err: errors.New("provider down")}
	engine, db := newTestEngine(t, stub)

	emails := []model.EmailMessage{
		testutil.NewEmail("email-order").
			From("order@amazon.co.jp").
			Subject("ご注文の確認").
			Body("ご注文ありがとうございます。合計: ¥3,980 ご注文番号: ORD-500").
			Build(),
		testutil.NewEmail("email-chat").
			From("colleague@example.com").
			Subject("明日の打ち合わせについて").
			Body("明日14時にお伺いします。").
			Build(),
	}

	summary, err := engine.ProcessBatch(ctx, "user-1", emails, fastOptions())
	require.NoError(t, err)

	// The failure is reported but the purchase still lands via extraction.
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Extracted)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, summary.Errors, 2)

	purchases, err := db.Storage.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, "Amazon", purchases[0].Vendor)
	assert.False(t, purchases[0].AIAnalyzed)
}

func TestProcessBatch_NilAnalyzer(t *testing.T) {
	ctx := context.Background()

	engine, db := newTestEngine(t, nil)

	emails := []model.EmailMessage{
		testutil.NewEmail("email-order").
			From("order@amazon.co.jp").
			Subject("ご注文確認 Order #12345").
			Body("ご注文ありがとうございます。合計 ¥3,980").
			Build(),
	}

	summary, err := engine.ProcessBatch(ctx, "user-1", emails, fastOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Extracted)
	assert.Empty(t, summary.Errors)

	purchases, err := db.Storage.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	require.Len(t, purchases, 1)

	p := purchases[0]
	assert.Equal(t, "Amazon", p.Vendor)
	assert.Equal(t, "12345", p.OrderID)
	assert.InDelta(t, 3980.0, p.Amount, 1e-9)
	assert.Equal(t, "JPY", p.Currency)
	assert.Equal(t, model.StatusConfirmed, p.Status)
	assert.False(t, p.AIAnalyzed)
}

func TestProcessBatch_FanOutBounded(t *testing.T) {
	ctx := context.Background()

	results := make(map[string]*model.AnalysisResult)
	emails := make([]model.EmailMessage, 0, 7)
	for i := 1; i <= 7; i++ {
		id := fmt.Sprintf("email-%d", i)
		orderID := fmt.Sprintf("ORD-%d", i)
		results[id] = purchaseAnalysis(orderID, float64(1000*i))
		emails = append(emails, testutil.NewEmail(id).
			From("order@amazon.co.jp").
			Subject("ご注文の確認").
			Body(fmt.Sprintf("ご注文ありがとうございます。合計: ¥%d ご注文番号: %s", 1000*i, orderID)).
			Build())
	}

	stub := &stubAnalyzer{results: results, delay: 20 * time.Millisecond}
	engine, db := newTestEngine(t, stub)

	summary, err := engine.ProcessBatch(ctx, "user-1", emails, fastOptions())
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Processed)
	assert.Equal(t, 7, summary.Extracted)
	assert.Equal(t, int32(7), stub.calls.Load())
	assert.LessOrEqual(t, stub.peak.Load(), int32(3), "fan-out exceeded the configured concurrency")

	purchases, err := db.Storage.GetPurchasesByUser(ctx, "user-1", service.PurchaseFilter{})
	require.NoError(t, err)
	assert.Len(t, purchases, 7)
}

func TestProcessBatch_Empty(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	summary, err := engine.ProcessBatch(context.Background(), "user-1", nil, DefaultBatchOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
}

func TestExtractPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts a purchase", func(t *testing.T) {
		stub := &stubAnalyzer{
			results: map[string]*model.AnalysisResult{
				"email-1": purchaseAnalysis("ORD-1", 3980),
			},
		}
		engine, _ := newTestEngine(t, stub)

		resp, err := engine.ExtractPurchase(ctx, ExtractRequest{
			EmailID:   "email-1",
			UserID:    "user-1",
			Subject:   "ご注文の確認",
			From:      "order@amazon.co.jp",
			EmailBody: "ご注文ありがとうございます。合計: ¥3,980 ご注文番号: ORD-1",
			Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		assert.True(t, resp.Extracted)
		assert.True(t, resp.IsNew)
		assert.False(t, resp.IsDuplicate)
		assert.True(t, resp.AIAnalyzed)
		require.NotNil(t, resp.Purchase)
		assert.Equal(t, "Amazon", resp.Purchase.Vendor)
		assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	})

	t.Run("repeat extraction is idempotent", func(t *testing.T) {
		stub := &stubAnalyzer{
			results: map[string]*model.AnalysisResult{
				"email-1": purchaseAnalysis("ORD-1", 3980),
			},
		}
		engine, _ := newTestEngine(t, stub)

		req := ExtractRequest{
			EmailID:   "email-1",
			UserID:    "user-1",
			Subject:   "ご注文の確認",
			From:      "order@amazon.co.jp",
			EmailBody: "ご注文ありがとうございます。合計: ¥3,980 ご注文番号: ORD-1",
		}

		first, err := engine.ExtractPurchase(ctx, req)
		require.NoError(t, err)
		require.True(t, first.IsNew)

		second, err := engine.ExtractPurchase(ctx, req)
		require.NoError(t, err)
		assert.True(t, second.Extracted)
		assert.False(t, second.IsNew)
		assert.True(t, second.IsDuplicate)
		assert.Equal(t, first.Purchase.ID, second.Purchase.ID)
	})

	t.Run("filtered email yields nothing", func(t *testing.T) {
		engine, db := newTestEngine(t, nil)

		resp, err := engine.ExtractPurchase(ctx, ExtractRequest{
			EmailID:   "email-news",
			UserID:    "user-1",
			Subject:   "今週のセール情報",
			From:      "news@mail.rakuten.co.jp",
			EmailBody: "今だけの限定クーポン！配信停止はこちら: https://example.com/unsubscribe",
		})
		require.NoError(t, err)
		assert.False(t, resp.Extracted)
		assert.Nil(t, resp.Purchase)

		stored, err := db.Storage.GetAnalysis(ctx, "user-1", "email-news")
		require.NoError(t, err)
		assert.True(t, stored.WasFiltered)
	})

	t.Run("missing identifiers rejected", func(t *testing.T) {
		engine, _ := newTestEngine(t, nil)

		_, err := engine.ExtractPurchase(ctx, ExtractRequest{UserID: "user-1"})
		require.Error(t, err)
	})
}

func TestBatchOptionsNormalize(t *testing.T) {
	tests := []struct {
		name        string
		in          BatchOptions
		concurrency int
		delay       time.Duration
	}{
		{"zero values get defaults", BatchOptions{}, 5, time.Second},
		{"below minimum clamped up", BatchOptions{Concurrency: 1, BatchDelay: time.Millisecond}, 3, time.Millisecond},
		{"above maximum clamped down", BatchOptions{Concurrency: 99, BatchDelay: time.Second}, 10, time.Second},
		{"in range untouched", BatchOptions{Concurrency: 8, BatchDelay: 2 * time.Second}, 8, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.normalize()
			assert.Equal(t, tt.concurrency, got.Concurrency)
			assert.Equal(t, tt.delay, got.BatchDelay)
		})
	}
}
