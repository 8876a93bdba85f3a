package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultDeepSeekModel   = "deepseek-chat"
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// DeepSeekAdapter implements Provider for DeepSeek models.
// DeepSeek uses an OpenAI-compatible API format.
type DeepSeekAdapter struct {
	cfg        ProviderConfig
	httpClient *http.Client
	last       lastCall
}

// deepseekRequest represents the OpenAI-compatible request format.
type deepseekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature"`
}

// deepseekMessage represents a chat message.
type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// deepseekResponse represents the OpenAI-compatible response format.
type deepseekResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeekAdapter creates a new DeepSeek adapter.
func NewDeepSeekAdapter(cfg ProviderConfig) (*DeepSeekAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDeepSeekBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &DeepSeekAdapter{
		cfg:        cfg.withDefaults(defaultDeepSeekModel),
		httpClient: &http.Client{},
	}, nil
}

// Metadata returns the provider description.
func (a *DeepSeekAdapter) Metadata() Metadata {
	return a.cfg.metadata("deepseek", "deepseek")
}

// Usage returns the usage block of the last response.
func (a *DeepSeekAdapter) Usage() (Usage, error) {
	return a.last.get()
}

// Generate sends a prompt to DeepSeek and returns the first choice.
func (a *DeepSeekAdapter) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	a.last.reset()

	var messages []deepseekMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, deepseekMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, deepseekMessage{Role: "user", Content: prompt})

	reqBody := deepseekRequest{
		Model:       a.cfg.Model,
		Messages:    messages,
		MaxTokens:   a.cfg.maxTokens(opts),
		Temperature: a.cfg.temperature(opts),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepseek API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var deepseekResp deepseekResponse
	if err := json.Unmarshal(body, &deepseekResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &AdapterError{Provider: "deepseek", Status: resp.StatusCode,
				Err: fmt.Errorf("deepseek API returned status %d: %s", resp.StatusCode, string(body))}
		}
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if deepseekResp.Error != nil {
		return "", &AdapterError{Provider: "deepseek", Status: resp.StatusCode,
			Err: fmt.Errorf("deepseek API error: %s (type: %s, code: %s)",
				deepseekResp.Error.Message, deepseekResp.Error.Type, deepseekResp.Error.Code)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &AdapterError{Provider: "deepseek", Status: resp.StatusCode,
			Err: fmt.Errorf("deepseek API returned status %d: %s", resp.StatusCode, string(body))}
	}

	if len(deepseekResp.Choices) == 0 {
		return "", fmt.Errorf("deepseek returned no choices")
	}

	if u := deepseekResp.Usage; u != nil {
		a.last.record(int64(u.PromptTokens), int64(u.CompletionTokens), int64(u.TotalTokens))
	}
	return deepseekResp.Choices[0].Message.Content, nil
}
