package adapter

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGoogleModel = "gemini-1.5-pro"

// GoogleAdapter implements Provider for Gemini models.
type GoogleAdapter struct {
	client *genai.Client
	cfg    ProviderConfig
	last   lastCall
}

// NewGoogleAdapter creates a new Google Gemini adapter.
func NewGoogleAdapter(ctx context.Context, cfg ProviderConfig) (*GoogleAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{
		client: client,
		cfg:    cfg.withDefaults(defaultGoogleModel),
	}, nil
}

// Metadata returns the provider description.
func (a *GoogleAdapter) Metadata() Metadata {
	return a.cfg.metadata("gemini", "google")
}

// Usage returns the usage metadata attached to the last response.
func (a *GoogleAdapter) Usage() (Usage, error) {
	return a.last.get()
}

// Generate sends a prompt to Gemini and returns the first candidate's text.
func (a *GoogleAdapter) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	a.last.reset()

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(a.cfg.temperature(opts))),
		MaxOutputTokens: int32(a.cfg.maxTokens(opts)),
	}
	if opts.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.cfg.Model, genai.Text(prompt), genCfg)
	if err != nil {
		return "", &AdapterError{Provider: "gemini", Err: fmt.Errorf("google API error: %w", err)}
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("google returned no candidates")
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	if meta := resp.UsageMetadata; meta != nil {
		a.last.record(int64(meta.PromptTokenCount), int64(meta.CandidatesTokenCount), int64(meta.TotalTokenCount))
	}
	return content, nil
}
