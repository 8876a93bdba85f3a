package adapter

import (
	"context"
	"fmt"
	"strings"
)

// New builds the named provider.
func New(ctx context.Context, name string, cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return NewOpenAIAdapter(cfg)
	case "claude", "anthropic":
		return NewAnthropicAdapter(cfg)
	case "gemini", "google":
		return NewGoogleAdapter(ctx, cfg)
	case "huggingface", "hf":
		return NewHuggingFaceAdapter(cfg)
	case "deepseek":
		return NewDeepSeekAdapter(cfg)
	case "mock":
		m := NewMockAdapter()
		if cfg.Model != "" {
			m.WithModel(cfg.Model)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (options: %s)", name, strings.Join(Names(), ", "))
	}
}

// Names returns the canonical provider names.
func Names() []string {
	infos := Providers()
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}
