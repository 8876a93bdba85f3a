package adapter

import "fmt"

const (
	defaultHuggingFaceModel   = "deepseek-ai/DeepSeek-R1:novita"
	defaultHuggingFaceBaseURL = "https://router.huggingface.co/v1"
)

// NewHuggingFaceAdapter creates a provider for the HuggingFace router, which
// speaks the OpenAI chat completions protocol.
func NewHuggingFaceAdapter(cfg ProviderConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("huggingface token is required (set HF_TOKEN)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHuggingFaceBaseURL
	}
	return newOpenAICompatible(cfg.withDefaults(defaultHuggingFaceModel), "huggingface", "huggingface"), nil
}
