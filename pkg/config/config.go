package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zen-systems/llmrun/pkg/adapter"
	"github.com/zen-systems/llmrun/pkg/execlog"
	"github.com/zen-systems/llmrun/pkg/pricing"
)

const (
	dirName = ".llmrun"

	EngineHTTP  = "http"
	EngineJudge = "judge"

	defaultEvalTimeout = 60 * time.Second
)

// Config holds the application configuration.
type Config struct {
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	HuggingFaceToken string
	DeepSeekAPIKey   string

	LogDir      string
	PricingFile string
	// Models maps a provider name to the model used when none is requested.
	Models map[string]string
	// BaseURLs maps a provider name to an alternate API endpoint, such as a
	// proxy or a self-hosted OpenAI-compatible server.
	BaseURLs   map[string]string
	Evaluation EvaluationConfig
	ConfigDir  string
}

// EvaluationConfig selects and configures the evaluation engine.
type EvaluationConfig struct {
	Engine        string
	Endpoint      string
	JudgeProvider string
	JudgeModel    string
	Timeout       time.Duration
}

// FileConfig represents the structure of ~/.llmrun/config.yaml
type FileConfig struct {
	APIKeys     APIKeysConfig     `yaml:"api_keys"`
	LogDir      string            `yaml:"log_dir"`
	PricingFile string            `yaml:"pricing_file"`
	Models      map[string]string `yaml:"models"`
	BaseURLs    map[string]string `yaml:"base_urls"`
	Evaluation  struct {
		Engine        string `yaml:"engine"`
		Endpoint      string `yaml:"endpoint"`
		JudgeProvider string `yaml:"judge_provider"`
		JudgeModel    string `yaml:"judge_model"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"evaluation"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	OpenAI      string `yaml:"openai"`
	Anthropic   string `yaml:"anthropic"`
	Google      string `yaml:"google"`
	HuggingFace string `yaml:"huggingface"`
	DeepSeek    string `yaml:"deepseek"`
}

// Load reads configuration from ./.env, ~/.llmrun/config.yaml and the
// environment. Real environment variables win over .env, which wins over
// the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return LoadFrom(configDir)
}

// LoadFrom builds the configuration from config.yaml in dir and the
// environment.
func LoadFrom(dir string) (*Config, error) {
	file, err := loadFileConfig(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		OpenAIAPIKey:     getEnvOrDefault("OPENAI_API_KEY", file.APIKeys.OpenAI),
		AnthropicAPIKey:  getEnvOrDefault("ANTHROPIC_API_KEY", file.APIKeys.Anthropic),
		GoogleAPIKey:     getEnvOrDefault("GOOGLE_API_KEY", file.APIKeys.Google),
		HuggingFaceToken: getEnvOrDefault("HF_TOKEN", file.APIKeys.HuggingFace),
		DeepSeekAPIKey:   getEnvOrDefault("DEEPSEEK_API_KEY", file.APIKeys.DeepSeek),
		LogDir:           getEnvOrDefault("LLMRUN_LOG_DIR", orDefault(file.LogDir, execlog.DefaultDir)),
		PricingFile:      getEnvOrDefault("LLMRUN_PRICING_FILE", file.PricingFile),
		Models:           make(map[string]string, len(file.Models)),
		BaseURLs:         make(map[string]string, len(file.BaseURLs)),
		ConfigDir:        dir,
		Evaluation: EvaluationConfig{
			Engine:        strings.ToLower(file.Evaluation.Engine),
			Endpoint:      getEnvOrDefault("LLMRUN_EVAL_ENDPOINT", file.Evaluation.Endpoint),
			JudgeProvider: file.Evaluation.JudgeProvider,
			JudgeModel:    file.Evaluation.JudgeModel,
			Timeout:       defaultEvalTimeout,
		},
	}
	for provider, model := range file.Models {
		cfg.Models[strings.ToLower(provider)] = model
	}
	for provider, url := range file.BaseURLs {
		cfg.BaseURLs[strings.ToLower(provider)] = url
	}

	if t := file.Evaluation.Timeout; t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("invalid evaluation timeout %q: %w", t, err)
		}
		cfg.Evaluation.Timeout = d
	}

	switch cfg.Evaluation.Engine {
	case "":
		cfg.Evaluation.Engine = EngineHTTP
		if cfg.Evaluation.Endpoint == "" && cfg.Evaluation.JudgeProvider != "" {
			cfg.Evaluation.Engine = EngineJudge
		}
	case EngineHTTP, EngineJudge:
	default:
		return nil, fmt.Errorf("unknown evaluation engine %q (options: %s, %s)", cfg.Evaluation.Engine, EngineHTTP, EngineJudge)
	}

	return cfg, nil
}

// APIKey returns the credential for the named provider.
func (c *Config) APIKey(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return c.OpenAIAPIKey
	case "claude", "anthropic":
		return c.AnthropicAPIKey
	case "gemini", "google":
		return c.GoogleAPIKey
	case "huggingface", "hf":
		return c.HuggingFaceToken
	case "deepseek":
		return c.DeepSeekAPIKey
	default:
		return ""
	}
}

// HasProvider reports whether the named provider can be constructed.
func (c *Config) HasProvider(name string) bool {
	if strings.EqualFold(name, "mock") {
		return true
	}
	return c.APIKey(name) != ""
}

// ProviderConfig builds the settings for the named provider. An empty model
// falls back to the configured default for that provider, then to the
// provider's own default.
func (c *Config) ProviderConfig(name, model string) adapter.ProviderConfig {
	if model == "" {
		model = c.Models[strings.ToLower(name)]
	}
	return adapter.ProviderConfig{
		APIKey:  c.APIKey(name),
		Model:   model,
		BaseURL: c.BaseURLs[strings.ToLower(name)],
	}
}

// PricingTable returns the built-in prices with any configured overrides.
func (c *Config) PricingTable() (pricing.Table, error) {
	table := pricing.DefaultTable()
	if c.PricingFile == "" {
		return table, nil
	}
	overrides, err := pricing.LoadTable(c.PricingFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing overrides: %w", err)
	}
	return table.Merge(overrides), nil
}

// loadFileConfig reads the config file. A missing file is an empty config.
func loadFileConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName), nil
}
