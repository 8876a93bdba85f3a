package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapterUsageOnlyAfterSuccess(t *testing.T) {
	m := NewMockAdapterWithResponses(map[string]string{"hi": "hello"}, "")
	m.ReportedUsage = &Usage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7}

	_, err := m.Usage()
	require.ErrorIs(t, err, ErrUsageUnavailable)

	out, err := m.Generate(context.Background(), "hi", GenerateOptions{SystemPrompt: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "be brief", m.LastOpts.SystemPrompt)

	usage, err := m.Usage()
	require.NoError(t, err)
	assert.Equal(t, 7, usage.TotalTokens)

	m.Err = errors.New("boom")
	_, err = m.Generate(context.Background(), "hi", GenerateOptions{})
	require.Error(t, err)
	_, err = m.Usage()
	assert.ErrorIs(t, err, ErrUsageUnavailable)
}

func TestMockAdapterMetadata(t *testing.T) {
	meta := NewMockAdapter().WithModel("mock-2").Metadata()
	assert.Equal(t, Metadata{
		Provider:    "mock",
		Model:       "mock-2",
		Temperature: 0.1,
		MaxTokens:   4096,
		Type:        "local",
		Vendor:      "mock",
	}, meta)
}

func TestProviderConfigOverrides(t *testing.T) {
	cfg := ProviderConfig{}.withDefaults("m")
	temp := 0.0
	tokens := 12

	assert.Equal(t, 0.1, cfg.temperature(GenerateOptions{}))
	assert.Equal(t, 0.0, cfg.temperature(GenerateOptions{Temperature: &temp}))
	assert.Equal(t, 4096, cfg.maxTokens(GenerateOptions{}))
	assert.Equal(t, 12, cfg.maxTokens(GenerateOptions{MaxTokens: &tokens}))
}

func TestLastCallRecomputesTotal(t *testing.T) {
	var l lastCall
	l.record(10, 5, 0)
	usage, err := l.get()
	require.NoError(t, err)
	assert.Equal(t, Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, usage)

	l.record(0, 0, 0)
	_, err = l.get()
	assert.ErrorIs(t, err, ErrUsageUnavailable)
}

func chatServer(t *testing.T, status int, body map[string]any, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(content string, usage map[string]any) map[string]any {
	body := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
	if usage != nil {
		body["usage"] = usage
	}
	return body
}

func TestDeepSeekAdapterReportsUsage(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, http.StatusOK, completion("pong", map[string]any{
		"prompt_tokens": 11, "completion_tokens": 2, "total_tokens": 13,
	}), &seen)

	a, err := NewDeepSeekAdapter(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	out, err := a.Generate(context.Background(), "ping", GenerateOptions{SystemPrompt: "sys"})
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, "deepseek-chat", seen["model"])
	assert.Len(t, seen["messages"], 2)

	usage, err := a.Usage()
	require.NoError(t, err)
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 2, TotalTokens: 13}, usage)
}

func TestDeepSeekAdapterWithoutUsage(t *testing.T) {
	srv := chatServer(t, http.StatusOK, completion("pong", nil), nil)
	a, err := NewDeepSeekAdapter(ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), "ping", GenerateOptions{})
	require.NoError(t, err)
	_, err = a.Usage()
	assert.ErrorIs(t, err, ErrUsageUnavailable)
}

func TestDeepSeekAdapterErrorStatus(t *testing.T) {
	srv := chatServer(t, http.StatusUnauthorized, map[string]any{
		"error": map[string]any{"message": "bad key", "type": "auth", "code": "invalid_api_key"},
	}, nil)
	a, err := NewDeepSeekAdapter(ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), "ping", GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Contains(t, err.Error(), "bad key")
}

func TestHuggingFaceAdapterUsesRouterProtocol(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, http.StatusOK, completion("hola", map[string]any{
		"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6,
	}), &seen)

	a, err := NewHuggingFaceAdapter(ProviderConfig{APIKey: "hf", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := a.Generate(context.Background(), "hi", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hola", out)
	assert.Equal(t, "deepseek-ai/DeepSeek-R1:novita", seen["model"])

	meta := a.Metadata()
	assert.Equal(t, "huggingface", meta.Provider)
	assert.Equal(t, "huggingface", meta.Vendor)

	usage, err := a.Usage()
	require.NoError(t, err)
	assert.Equal(t, 6, usage.TotalTokens)
}

func TestConstructorsRequireCredentials(t *testing.T) {
	_, err := NewOpenAIAdapter(ProviderConfig{})
	assert.Error(t, err)
	_, err = NewAnthropicAdapter(ProviderConfig{})
	assert.Error(t, err)
	_, err = NewHuggingFaceAdapter(ProviderConfig{})
	assert.Error(t, err)
	_, err = NewDeepSeekAdapter(ProviderConfig{})
	assert.Error(t, err)
	_, err = NewGoogleAdapter(context.Background(), ProviderConfig{})
	assert.Error(t, err)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), "nope", ProviderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai")

	p, err := New(context.Background(), "mock", ProviderConfig{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", p.Metadata().Model)
}

func jsonServer(t *testing.T, check func(r *http.Request, body map[string]any), status int, reply any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		check(r, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIAdapterReportsUsage(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, http.StatusOK, completion("pong", map[string]any{
		"prompt_tokens": 9, "completion_tokens": 4, "total_tokens": 13,
	}), &seen)

	a, err := NewOpenAIAdapter(ProviderConfig{APIKey: "k", BaseURL: srv.URL, MaxTokens: 256})
	require.NoError(t, err)

	temp := 0.0
	out, err := a.Generate(context.Background(), "ping", GenerateOptions{SystemPrompt: "sys", Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, "gpt-4-turbo", seen["model"])
	assert.Equal(t, 0.0, seen["temperature"])
	assert.Equal(t, 256.0, seen["max_tokens"])
	assert.Len(t, seen["messages"], 2)

	usage, err := a.Usage()
	require.NoError(t, err)
	assert.Equal(t, Usage{InputTokens: 9, OutputTokens: 4, TotalTokens: 13}, usage)
	assert.Equal(t, "openai", a.Metadata().Provider)
}

func TestOpenAIAdapterErrorStatus(t *testing.T) {
	srv := chatServer(t, http.StatusUnauthorized, map[string]any{
		"error": map[string]any{"message": "bad key", "type": "invalid_request_error", "code": "invalid_api_key"},
	}, nil)
	a, err := NewOpenAIAdapter(ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), "ping", GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	_, err = a.Usage()
	assert.ErrorIs(t, err, ErrUsageUnavailable)
}

func TestAnthropicAdapterReportsUsage(t *testing.T) {
	var seen map[string]any
	srv := jsonServer(t, func(r *http.Request, body map[string]any) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		seen = body
	}, http.StatusOK, map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-sonnet-4-20250514",
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content": []map[string]any{
			{"type": "text", "text": "hel"},
			{"type": "text", "text": "lo"},
		},
		"usage": map[string]any{"input_tokens": 11, "output_tokens": 3},
	})

	a, err := NewAnthropicAdapter(ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := a.Generate(context.Background(), "hi", GenerateOptions{SystemPrompt: "sys"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "claude-sonnet-4-20250514", seen["model"])
	assert.Equal(t, 4096.0, seen["max_tokens"])
	assert.NotEmpty(t, seen["system"])

	usage, err := a.Usage()
	require.NoError(t, err)
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 3, TotalTokens: 14}, usage)

	meta := a.Metadata()
	assert.Equal(t, "claude", meta.Provider)
	assert.Equal(t, "anthropic", meta.Vendor)
}

func TestAnthropicAdapterErrorStatus(t *testing.T) {
	srv := jsonServer(t, func(*http.Request, map[string]any) {}, http.StatusUnauthorized, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "authentication_error", "message": "invalid x-api-key"},
	})
	a, err := NewAnthropicAdapter(ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), "hi", GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestGoogleAdapterReportsUsage(t *testing.T) {
	var seen map[string]any
	srv := jsonServer(t, func(r *http.Request, body map[string]any) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-1.5-pro:generateContent"), r.URL.Path)
		seen = body
	}, http.StatusOK, map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": "bon"}, {"text": "jour"}}},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 5, "candidatesTokenCount": 2, "totalTokenCount": 7},
	})

	a, err := NewGoogleAdapter(context.Background(), ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	out, err := a.Generate(context.Background(), "hello", GenerateOptions{SystemPrompt: "sys"})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out)
	assert.Contains(t, seen, "systemInstruction")
	require.IsType(t, map[string]any{}, seen["generationConfig"])
	assert.Equal(t, 4096.0, seen["generationConfig"].(map[string]any)["maxOutputTokens"])

	usage, err := a.Usage()
	require.NoError(t, err)
	assert.Equal(t, Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7}, usage)
	assert.Equal(t, "gemini", a.Metadata().Provider)
}

func TestGoogleAdapterWithoutUsage(t *testing.T) {
	srv := jsonServer(t, func(*http.Request, map[string]any) {}, http.StatusOK, map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": "ok"}}},
		}},
	})
	a, err := NewGoogleAdapter(context.Background(), ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), "hello", GenerateOptions{})
	require.NoError(t, err)
	_, err = a.Usage()
	assert.ErrorIs(t, err, ErrUsageUnavailable)
}
