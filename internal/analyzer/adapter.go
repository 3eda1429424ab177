package analyzer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mailspend/mailspend/internal/common"
	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/service"
)

// DefaultFreshness is how long a persisted analysis stays authoritative.
// Older results are treated as misses and the email is re-analyzed.
const DefaultFreshness = 30 * 24 * time.Hour

// defaultMaxBodySize is the character budget for email bodies in prompts.
const defaultMaxBodySize = 4000

// Adapter turns raw provider clients into the analysis service the pipeline
// consumes, layering rate limiting, retries and a two-tier response cache on
// top of the Client interface.
type Adapter struct {
	client      Client
	store       service.Storage
	cache       *analysisCache
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
	freshness   time.Duration
	maxBody     int
}

// NewAdapter creates an analysis adapter for the configured provider. The
// store provides the persistent cache tier.
func NewAdapter(cfg Config, store service.Storage) (*Adapter, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis client: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	freshness := cfg.Freshness
	if freshness == 0 {
		freshness = DefaultFreshness
	}

	maxBody := cfg.MaxBodySize
	if maxBody == 0 {
		maxBody = defaultMaxBodySize
	}

	return &Adapter{
		client:      client,
		store:       store,
		cache:       newAnalysisCache(cfg.CacheTTL),
		logger:      slog.Default().With("component", "analyzer"),
		rateLimiter: newRateLimiter(cfg.RateLimit),
		retryOpts:   retryOpts,
		freshness:   freshness,
		maxBody:     maxBody,
	}, nil
}

// Analyze returns the structured analysis for one email. Lookup order is the
// persistent store (subject to the freshness window), then the in-process
// cache, then a fresh provider call written through to both tiers.
func (a *Adapter) Analyze(ctx context.Context, req service.AnalyzeRequest) (*model.AnalysisResult, error) {
	if req.EmailID == "" || req.UserID == "" {
		return nil, fmt.Errorf("email ID and user ID are required")
	}

	stored, err := a.store.GetAnalysis(ctx, req.UserID, req.EmailID)
	switch {
	case err == nil:
		if stored.Result != nil && time.Since(stored.AnalyzedAt) < a.freshness {
			a.logger.Debug("analysis store hit", "email_id", req.EmailID)
			a.cache.set(req.EmailID, stored.Result)
			return stored.Result, nil
		}
		// Stale and filtered entries fall through to re-analysis.
	case !errors.Is(err, sql.ErrNoRows):
		a.logger.Warn("analysis store lookup failed",
			"email_id", req.EmailID,
			"error", err)
	}

	if result, found := a.cache.get(req.EmailID); found {
		a.logger.Debug("analysis cache hit", "email_id", req.EmailID)
		return result, nil
	}

	if err := a.rateLimiter.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	prompt := buildPrompt(req, a.maxBody)

	var result *model.AnalysisResult
	err = common.WithRetry(ctx, func() error {
		raw, clientErr := a.client.Analyze(ctx, prompt)
		if clientErr != nil {
			a.logger.Warn("analysis attempt failed",
				"email_id", req.EmailID,
				"error", clientErr)
			return &common.RetryableError{Err: clientErr, Retryable: true}
		}

		parsed, parseErr := parseAnalysis(raw)
		if parseErr != nil {
			a.logger.Warn("analysis response rejected",
				"email_id", req.EmailID,
				"error", parseErr)
			return &common.RetryableError{Err: parseErr, Retryable: true}
		}

		result = parsed
		return nil
	}, a.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	a.cache.set(req.EmailID, result)

	if saveErr := a.store.SaveAnalysis(ctx, &model.StoredAnalysis{
		EmailID:    req.EmailID,
		UserID:     req.UserID,
		From:       req.From,
		Subject:    req.Subject,
		Result:     result,
		AnalyzedAt: time.Now().UTC(),
	}); saveErr != nil {
		a.logger.Warn("failed to persist analysis",
			"email_id", req.EmailID,
			"error", saveErr)
	}

	a.logger.Info("email analyzed",
		"email_id", req.EmailID,
		"email_type", result.EmailType,
		"is_purchase", result.Purchase != nil && result.Purchase.IsPurchase)

	return result, nil
}

// Close stops background goroutines and releases provider resources.
func (a *Adapter) Close() error {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.rateLimiter != nil {
		a.rateLimiter.Close()
	}
	if closer, ok := a.client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
