// Package config resolves application configuration from viper and the
// environment.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mailspend/mailspend/internal/analyzer"
)

// DatabasePath resolves the SQLite database location.
func DatabasePath() string {
	path := viper.GetString("database.path")
	if path == "" {
		path = "~/.local/share/mailspend/mailspend.db"
	}
	return ExpandPath(path)
}

// RulesPath resolves the optional YAML rule override file. Empty means
// built-in rules only.
func RulesPath() string {
	return ExpandPath(viper.GetString("rules.path"))
}

// LoadAnalyzerConfig assembles the analysis provider configuration.
// Precedence: viper (config file or MAILSPEND_ env vars), then the provider's
// conventional API key variable. A nil return means no provider is configured
// and the pipeline runs in extraction-only mode.
func LoadAnalyzerConfig() *analyzer.Config {
	provider := viper.GetString("analysis.provider")
	if provider == "" {
		return nil
	}

	cfg := &analyzer.Config{
		Provider:    provider,
		APIKey:      viper.GetString("analysis.api_key"),
		Model:       viper.GetString("analysis.model"),
		MaxRetries:  viper.GetInt("analysis.max_retries"),
		RetryDelay:  viper.GetDuration("analysis.retry_delay"),
		CacheTTL:    viper.GetDuration("analysis.cache_ttl"),
		Freshness:   viper.GetDuration("analysis.freshness"),
		RateLimit:   viper.GetInt("analysis.rate_limit"),
		Temperature: viper.GetFloat64("analysis.temperature"),
		MaxTokens:   viper.GetInt("analysis.max_tokens"),
		MaxBodySize: viper.GetInt("analysis.max_body_size"),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = apiKeyFromEnv(provider)
	}
	return cfg
}

func apiKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
