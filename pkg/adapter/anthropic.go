package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicAdapter implements Provider for Claude models.
type AnthropicAdapter struct {
	client anthropic.Client
	cfg    ProviderConfig
	last   lastCall
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter(cfg ProviderConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client: anthropic.NewClient(opts...),
		cfg:    cfg.withDefaults(defaultAnthropicModel),
	}, nil
}

// Metadata returns the provider description.
func (a *AnthropicAdapter) Metadata() Metadata {
	return a.cfg.metadata("claude", "anthropic")
}

// Usage returns the usage reported with the last message.
func (a *AnthropicAdapter) Usage() (Usage, error) {
	return a.last.get()
}

// Generate sends a prompt to Claude and returns the concatenated text blocks.
func (a *AnthropicAdapter) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	a.last.reset()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.cfg.Model),
		MaxTokens:   int64(a.cfg.maxTokens(opts)),
		Temperature: anthropic.Float(a.cfg.temperature(opts)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", &AdapterError{Provider: "claude", Status: status, Err: fmt.Errorf("anthropic API error: %w", err)}
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	a.last.record(resp.Usage.InputTokens, resp.Usage.OutputTokens, 0)
	return content, nil
}
