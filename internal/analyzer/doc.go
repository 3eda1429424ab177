// Package analyzer sends emails to an external language model for structured
// analysis. It supports multiple providers including Anthropic, OpenAI and
// Gemini, with retry logic, rate limiting and a two-tier response cache
// (in-process TTL map plus the persistent analysis store).
package analyzer
