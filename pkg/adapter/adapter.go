package adapter

import (
	"context"
	"errors"
)

// ErrUsageUnavailable is returned by Usage when the vendor did not report
// token counts for the most recent call, or when no call has been made.
var ErrUsageUnavailable = errors.New("usage not reported by provider")

// Provider defines the capability every vendor transport exposes.
//
// A Provider is built once per session with immutable configuration. Usage
// reflects only the most recent Generate call, so a Provider must not be
// shared between concurrent sessions.
type Provider interface {
	// Generate sends a prompt to the model and returns the response text.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Metadata describes the provider and its configured parameters.
	Metadata() Metadata

	// Usage returns token usage for the most recent Generate call.
	Usage() (Usage, error)
}

// GenerateOptions carries per-call overrides. Nil fields fall back to the
// provider's configured values.
type GenerateOptions struct {
	SystemPrompt string
	Temperature  *float64
	MaxTokens    *int
}

// ProviderInfo holds display metadata about a provider.
type ProviderInfo struct {
	Name         string
	Vendor       string
	DefaultModel string
}

// Providers lists the built-in providers in display order.
func Providers() []ProviderInfo {
	return []ProviderInfo{
		{Name: "openai", Vendor: "openai", DefaultModel: defaultOpenAIModel},
		{Name: "claude", Vendor: "anthropic", DefaultModel: defaultAnthropicModel},
		{Name: "gemini", Vendor: "google", DefaultModel: defaultGoogleModel},
		{Name: "huggingface", Vendor: "huggingface", DefaultModel: defaultHuggingFaceModel},
		{Name: "deepseek", Vendor: "deepseek", DefaultModel: defaultDeepSeekModel},
		{Name: "mock", Vendor: "mock", DefaultModel: defaultMockModel},
	}
}
