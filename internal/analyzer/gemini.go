package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiClient implements the Client interface for the Google Gemini API.
type geminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// newGeminiClient creates a new Gemini API client.
func newGeminiClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(float32(temperature))
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"

	return &geminiClient{
		client: client,
		model:  model,
	}, nil
}

// Analyze sends an analysis request to Gemini and returns the raw reply.
// Gemini has no separate system role in this API shape, so the system prompt
// is prepended to the user prompt.
func (c *geminiClient) Analyze(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(systemPrompt+"\n\n"+prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no text parts in Gemini response")
	}

	return sb.String(), nil
}

// Close releases the underlying API connection.
func (c *geminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
