// Package engine wires the extraction pipeline together: signal scoring,
// external analysis, candidate merging and purchase reconciliation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mailspend/mailspend/internal/extract"
	"github.com/mailspend/mailspend/internal/merge"
	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/reconcile"
	"github.com/mailspend/mailspend/internal/service"
	"github.com/mailspend/mailspend/internal/signal"
)

// Concurrency bounds for the analyzer fan-out.
const (
	minConcurrency = 3
	maxConcurrency = 10
)

// ExtractionEngine orchestrates purchase extraction for single emails and
// batches.
type ExtractionEngine struct {
	store      service.Storage
	analyzer   Analyzer
	scorer     *signal.Scorer
	extractor  *extract.Extractor
	merger     *merge.Merger
	reconciler *reconcile.Reconciler
}

// New creates an extraction engine with the given dependencies. analyzer may
// be nil, in which case every email takes the extraction-only path.
func New(store service.Storage, analyzer Analyzer, scorer *signal.Scorer, extractor *extract.Extractor, reconciler *reconcile.Reconciler) *ExtractionEngine {
	return &ExtractionEngine{
		store:      store,
		analyzer:   analyzer,
		scorer:     scorer,
		extractor:  extractor,
		merger:     merge.NewMerger(),
		reconciler: reconciler,
	}
}

// BatchOptions configures batch processing behavior.
type BatchOptions struct {
	Concurrency int           // Parallel analyzer calls per group
	BatchDelay  time.Duration // Pause between groups

	// OnProgress, when set, is called once per completed email. Calls are
	// serialized.
	OnProgress func(n int)
}

// DefaultBatchOptions returns sensible defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		Concurrency: 5,
		BatchDelay:  time.Second,
	}
}

// normalize clamps options into their supported ranges.
func (o BatchOptions) normalize() BatchOptions {
	if o.Concurrency == 0 {
		o.Concurrency = 5
	}
	if o.Concurrency < minConcurrency {
		o.Concurrency = minConcurrency
	}
	if o.Concurrency > maxConcurrency {
		o.Concurrency = maxConcurrency
	}
	if o.BatchDelay == 0 {
		o.BatchDelay = time.Second
	}
	return o
}

// BatchSummary contains statistics about one batch run.
type BatchSummary struct {
	Processed      int
	Extracted      int
	Merged         int
	Filtered       int
	Failed         int
	Errors         []error
	ProcessingTime time.Duration
}

// ExtractRequest is the single-email extraction boundary.
type ExtractRequest struct {
	Timestamp time.Time
	EmailID   string
	UserID    string
	Subject   string
	From      string
	EmailBody string
}

// ExtractResponse reports the outcome of a single-email extraction.
type ExtractResponse struct {
	Purchase    *model.PurchaseRecord
	Confidence  float64
	Extracted   bool
	IsNew       bool
	IsDuplicate bool
	AIAnalyzed  bool
}

// emailOutcome is the per-email result inside a batch group.
type emailOutcome struct {
	result      *reconcile.Result
	analysisErr error
	storeErr    error
}

// ProcessBatch runs the full pipeline over a batch of emails. Per-email
// failures are collected into the summary; they never abort the batch.
func (e *ExtractionEngine) ProcessBatch(ctx context.Context, userID string, emails []model.EmailMessage, opts BatchOptions) (*BatchSummary, error) {
	start := time.Now()
	opts = opts.normalize()

	summary := &BatchSummary{}

	if len(emails) == 0 {
		slog.Info("No emails to process")
		return summary, nil
	}

	slog.Info("Starting batch processing",
		"user_id", userID,
		"emails", len(emails),
		"concurrency", opts.Concurrency)

	// Fast reject first so newsletters and service mail never occupy an
	// analyzer slot.
	remaining := make([]model.EmailMessage, 0, len(emails))
	for _, email := range emails {
		class := e.scorer.Classify(email)
		if class.Type == model.EmailTypePrimary {
			remaining = append(remaining, email)
			continue
		}

		summary.Processed++
		summary.Filtered++
		reason := filterReason(class)
		if err := e.store.SaveAnalysis(ctx, &model.StoredAnalysis{
			EmailID:      email.ID,
			UserID:       userID,
			From:         email.From,
			Subject:      email.Subject,
			WasFiltered:  true,
			FilterReason: reason,
		}); err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("email %s: failed to record filter: %w", email.ID, err))
		}
		slog.Debug("email filtered",
			"email_id", email.ID,
			"type", class.Type,
			"confidence", class.Confidence)
		if opts.OnProgress != nil {
			opts.OnProgress(1)
		}
	}

	// Fan out the rest in fixed-size groups. Each group joins before the
	// next starts, with a pacing delay between groups.
	for groupStart := 0; groupStart < len(remaining); groupStart += opts.Concurrency {
		if groupStart > 0 {
			select {
			case <-ctx.Done():
				summary.ProcessingTime = time.Since(start)
				return summary, ctx.Err()
			case <-time.After(opts.BatchDelay):
			}
		}

		group := remaining[groupStart:min(groupStart+opts.Concurrency, len(remaining))]

		outcomes := make([]emailOutcome, len(group))
		var wg sync.WaitGroup
		wg.Add(len(group))
		for i, email := range group {
			go func(idx int, em model.EmailMessage) {
				defer wg.Done()
				outcomes[idx] = e.processEmail(ctx, userID, em)
			}(i, email)
		}
		wg.Wait()

		for _, out := range outcomes {
			summary.Processed++
			if out.analysisErr != nil {
				summary.Errors = append(summary.Errors, out.analysisErr)
			}
			switch {
			case out.storeErr != nil:
				summary.Failed++
				summary.Errors = append(summary.Errors, out.storeErr)
			case out.result == nil:
				// No purchase in this email.
			case out.result.IsNew:
				summary.Extracted++
			default:
				summary.Merged++
			}
			if opts.OnProgress != nil {
				opts.OnProgress(1)
			}
		}
	}

	summary.ProcessingTime = time.Since(start)

	slog.Info("Batch processing complete",
		"processed", summary.Processed,
		"extracted", summary.Extracted,
		"merged", summary.Merged,
		"filtered", summary.Filtered,
		"failed", summary.Failed,
		"duration", summary.ProcessingTime)

	return summary, nil
}

// ExtractPurchase runs the pipeline for a single email and reports what
// happened to it.
func (e *ExtractionEngine) ExtractPurchase(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	if req.EmailID == "" || req.UserID == "" {
		return nil, fmt.Errorf("email ID and user ID are required")
	}

	email := model.EmailMessage{
		ID:        req.EmailID,
		Subject:   req.Subject,
		From:      req.From,
		Body:      req.EmailBody,
		Timestamp: req.Timestamp,
	}

	class := e.scorer.Classify(email)
	if class.Type != model.EmailTypePrimary {
		if err := e.store.SaveAnalysis(ctx, &model.StoredAnalysis{
			EmailID:      email.ID,
			UserID:       req.UserID,
			From:         email.From,
			Subject:      email.Subject,
			WasFiltered:  true,
			FilterReason: filterReason(class),
		}); err != nil {
			slog.Warn("failed to record filter", "email_id", email.ID, "error", err)
		}
		return &ExtractResponse{}, nil
	}

	out := e.processEmail(ctx, req.UserID, email)
	if out.storeErr != nil {
		return nil, out.storeErr
	}
	if out.result == nil {
		return &ExtractResponse{}, nil
	}

	rec := out.result.Purchase
	return &ExtractResponse{
		Purchase:    rec,
		Extracted:   true,
		IsNew:       out.result.IsNew,
		IsDuplicate: out.result.IsDuplicate,
		AIAnalyzed:  rec.AIAnalyzed,
		Confidence:  rec.Confidence,
	}, nil
}

// processEmail runs one primary email through analysis, merging and
// reconciliation. An analysis failure degrades the email to the
// extraction-only path rather than failing it.
func (e *ExtractionEngine) processEmail(ctx context.Context, userID string, email model.EmailMessage) emailOutcome {
	var out emailOutcome

	var ai *model.AnalysisResult
	if e.analyzer != nil {
		result, err := e.analyzer.Analyze(ctx, service.AnalyzeRequest{
			EmailID: email.ID,
			UserID:  userID,
			Subject: email.Subject,
			From:    email.From,
			Body:    email.Body,
		})
		if err != nil {
			out.analysisErr = fmt.Errorf("email %s: analysis failed: %w", email.ID, err)
			slog.Warn("analysis unavailable, falling back to extraction",
				"email_id", email.ID,
				"error", err)
		} else {
			ai = result
		}
	}

	regex := e.extractor.Extract(email.Body, email.Subject, email.From)

	cand, ok := e.merger.Merge(ai, regex)
	if !ok {
		return out
	}

	result, err := e.reconciler.Reconcile(ctx, userID, email, cand)
	if err != nil {
		out.storeErr = fmt.Errorf("email %s: reconcile failed: %w", email.ID, err)
		return out
	}

	out.result = result
	return out
}

// filterReason renders a classification into the persisted filter reason.
func filterReason(class model.ClassificationResult) string {
	if len(class.Reasons) > 0 {
		return string(class.Type) + ": " + strings.Join(class.Reasons, "; ")
	}
	return string(class.Type)
}
