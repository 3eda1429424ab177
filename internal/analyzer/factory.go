package analyzer

import (
	"fmt"
	"strings"
)

// NewClient creates a raw provider client based on the provided configuration.
// Most callers want NewAdapter, which layers caching, rate limiting and
// retries on top of the client.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	case "gemini":
		return newGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported analysis provider: %s", cfg.Provider)
	}
}
