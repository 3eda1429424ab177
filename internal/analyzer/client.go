package analyzer

import (
	"context"
	"time"
)

// Client defines the interface for analysis providers. Analyze sends one
// prompt and returns the raw text of the model's reply; parsing and schema
// validation happen in the adapter so every provider is held to the same
// output contract.
type Client interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

// Config holds configuration for the analysis adapter.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	Freshness   time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
	MaxBodySize int
}
