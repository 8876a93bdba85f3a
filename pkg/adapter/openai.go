package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4-turbo"

// OpenAIAdapter implements Provider for OpenAI chat models. It also backs
// any OpenAI-compatible endpoint reachable through a base URL.
type OpenAIAdapter struct {
	client openai.Client
	cfg    ProviderConfig
	name   string
	vendor string
	last   lastCall
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(cfg ProviderConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	return newOpenAICompatible(cfg.withDefaults(defaultOpenAIModel), "openai", "openai"), nil
}

func newOpenAICompatible(cfg ProviderConfig, name, vendor string) *OpenAIAdapter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		name:   name,
		vendor: vendor,
	}
}

// Metadata returns the provider description.
func (a *OpenAIAdapter) Metadata() Metadata {
	return a.cfg.metadata(a.name, a.vendor)
}

// Usage returns the usage reported with the last completion.
func (a *OpenAIAdapter) Usage() (Usage, error) {
	return a.last.get()
}

// Generate sends a chat completion request and returns the first choice.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	a.last.reset()

	var messages []openai.ChatCompletionMessageParamUnion
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.cfg.Model),
		Messages:    messages,
		Temperature: openai.Float(a.cfg.temperature(opts)),
		MaxTokens:   openai.Int(int64(a.cfg.maxTokens(opts))),
	})
	if err != nil {
		return "", &AdapterError{Provider: a.name, Status: apiStatus(err), Err: fmt.Errorf("%s API error: %w", a.name, err)}
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", a.name)
	}

	a.last.record(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func apiStatus(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
