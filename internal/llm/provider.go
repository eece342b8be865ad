// Package llm provides a single narrow capability — completing a text
// prompt — behind a dual-provider factory (Anthropic Claude and Google
// Gemini), adapted from the teacher's broader multi-modal ContentRequest
// provider abstraction down to the Extractor's one actual use: "send
// page text plus instructions, get back a JSON string".
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/hoistscout/hoistscout-core/internal/common"
)

// ProviderType identifies which backend served a Complete call.
type ProviderType string

const (
	ProviderClaude ProviderType = "claude"
	ProviderGemini ProviderType = "gemini"
)

// Extractor is the capability the extraction pipeline depends on. It
// deliberately exposes nothing provider-specific: no message history,
// no tool use, no streaming — just prompt in, text out.
type Extractor interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Factory builds and memoizes provider clients, and implements Extractor
// by routing to whichever provider is configured as default.
type Factory struct {
	claudeConfig common.ClaudeConfig
	geminiConfig common.GeminiConfig
	llmConfig    common.LLMConfig
	logger       arbor.ILogger

	claudeClient anthropic.Client
	claudeReady  bool
	geminiClient *genai.Client
}

// NewFactory builds a provider Factory. Clients are created lazily on
// first use so a worker configured for Claude only never needs a valid
// Gemini API key (and vice versa).
func NewFactory(claudeConfig common.ClaudeConfig, geminiConfig common.GeminiConfig, llmConfig common.LLMConfig, logger arbor.ILogger) *Factory {
	return &Factory{
		claudeConfig: claudeConfig,
		geminiConfig: geminiConfig,
		llmConfig:    llmConfig,
		logger:       logger,
	}
}

// Complete sends prompt to the configured default provider and returns
// its raw text response, retrying transient (rate limit) failures with
// exponential backoff up to llmConfig.MaxRetries times.
func (f *Factory) Complete(ctx context.Context, prompt string) (string, error) {
	provider := f.llmConfig.DefaultProvider
	if provider == "" {
		provider = common.LLMProviderClaude
	}

	maxRetries := f.llmConfig.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var text string
		var err error

		switch provider {
		case common.LLMProviderGemini:
			text, err = f.completeGemini(ctx, prompt)
		default:
			text, err = f.completeClaude(ctx, prompt)
		}

		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == maxRetries {
			break
		}

		backoff := time.Duration(1<<attempt) * 2 * time.Second
		f.logger.Warn().
			Str("provider", string(provider)).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("retrying LLM completion")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", fmt.Errorf("llm completion failed after retries: %w", lastErr)
}

func (f *Factory) completeClaude(ctx context.Context, prompt string) (string, error) {
	client, err := f.claudeClientFor(ctx)
	if err != nil {
		return "", err
	}

	maxTokens := f.claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(f.claudeConfig.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude completion failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from claude")
	}
	return text.String(), nil
}

func (f *Factory) completeGemini(ctx context.Context, prompt string) (string, error) {
	client, err := f.geminiClientFor(ctx)
	if err != nil {
		return "", err
	}

	contents := genai.Text(prompt)
	temp := f.geminiConfig.Temperature
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(temp)}

	resp, err := client.Models.GenerateContent(ctx, f.geminiConfig.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty text in gemini response")
	}
	return text, nil
}

func (f *Factory) claudeClientFor(ctx context.Context) (anthropic.Client, error) {
	if f.claudeReady {
		return f.claudeClient, nil
	}
	if f.claudeConfig.APIKey == "" {
		return anthropic.Client{}, fmt.Errorf("claude api key not configured")
	}
	f.claudeClient = anthropic.NewClient(option.WithAPIKey(f.claudeConfig.APIKey))
	f.claudeReady = true
	return f.claudeClient, nil
}

func (f *Factory) geminiClientFor(ctx context.Context) (*genai.Client, error) {
	if f.geminiClient != nil {
		return f.geminiClient, nil
	}
	if f.geminiConfig.APIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  f.geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	f.geminiClient = client
	return client, nil
}

// isRetryable reports whether err looks like a transient provider-side
// failure (rate limiting, quota) worth retrying, per spec.md's
// ErrorCategoryTransient classification.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") ||
		strings.Contains(s, "RESOURCE_EXHAUSTED") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "quota") ||
		strings.Contains(s, "overloaded")
}
