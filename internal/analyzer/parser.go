package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mailspend/mailspend/internal/model"
)

// parseAnalysis validates one raw provider reply against the analysis schema
// and decodes it. Any deviation from the contract is an error; callers decide
// whether to retry or fall back.
func parseAnalysis(raw string) (*model.AnalysisResult, error) {
	content := cleanMarkdownWrapper(raw)

	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if err := analysisSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response failed schema validation: %w", err)
	}

	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}

	return &result, nil
}

// cleanMarkdownWrapper strips a markdown code fence from around a JSON reply.
// Models wrap output in ```json fences despite instructions not to.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, "```") {
		return content
	}

	// Drop the opening fence and its optional language tag.
	if idx := strings.Index(content, "\n"); idx >= 0 {
		content = content[idx+1:]
	} else {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
	}

	// Drop the closing fence.
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}

	return strings.TrimSpace(content)
}
