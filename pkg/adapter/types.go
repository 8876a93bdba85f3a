package adapter

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 4096
)

// Usage captures normalized token usage.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Metadata describes a configured provider.
type Metadata struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Type        string  `json:"type"`
	Vendor      string  `json:"vendor"`
}

// ProviderConfig holds the immutable settings a provider is built with.
type ProviderConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string
}

// withDefaults fills unset fields.
func (c ProviderConfig) withDefaults(model string) ProviderConfig {
	if c.Model == "" {
		c.Model = model
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

func (c ProviderConfig) temperature(opts GenerateOptions) float64 {
	if opts.Temperature != nil {
		return *opts.Temperature
	}
	return c.Temperature
}

func (c ProviderConfig) maxTokens(opts GenerateOptions) int {
	if opts.MaxTokens != nil && *opts.MaxTokens > 0 {
		return *opts.MaxTokens
	}
	return c.MaxTokens
}

func (c ProviderConfig) metadata(provider, vendor string) Metadata {
	return Metadata{
		Provider:    provider,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Type:        "api",
		Vendor:      vendor,
	}
}

// lastCall holds the vendor-reported usage of the most recent call.
type lastCall struct {
	usage    Usage
	reported bool
}

func (l *lastCall) reset() {
	*l = lastCall{}
}

func (l *lastCall) record(input, output, total int64) {
	if input == 0 && output == 0 && total == 0 {
		l.reported = false
		return
	}
	if total == 0 {
		total = input + output
	}
	l.usage = Usage{InputTokens: int(input), OutputTokens: int(output), TotalTokens: int(total)}
	l.reported = true
}

func (l *lastCall) get() (Usage, error) {
	if !l.reported {
		return Usage{}, ErrUsageUnavailable
	}
	return l.usage, nil
}
