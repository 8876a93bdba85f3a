package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelAliases maps short names to canonical models and lists the models
// each provider is known to serve.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// LoadAliases reads model aliases from a YAML file.
func LoadAliases(path string) (*ModelAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	aliases := &ModelAliases{}
	if err := yaml.Unmarshal(data, aliases); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	aliases.init()
	return aliases, nil
}

// LoadUserAliases reads models.yaml from dir and layers it over the
// defaults. A missing file yields the defaults.
func LoadUserAliases(dir string) (*ModelAliases, error) {
	aliases := DefaultAliases()
	user, err := LoadAliases(filepath.Join(dir, "models.yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return aliases, nil
	}
	if err != nil {
		return nil, err
	}

	for alias, model := range user.Aliases {
		aliases.Aliases[alias] = model
	}
	for provider, models := range user.Providers {
		aliases.Providers[strings.ToLower(provider)] = models
	}
	return aliases, nil
}

func (a *ModelAliases) init() {
	if a.Aliases == nil {
		a.Aliases = make(map[string]string)
	}
	if a.Providers == nil {
		a.Providers = make(map[string][]string)
	}
}

// Resolve returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// ValidateModel checks that model is listed for provider. Providers with no
// list accept any model, since vendors add models faster than lists change.
func (a *ModelAliases) ValidateModel(provider, model string) error {
	if a == nil {
		return nil
	}
	models, ok := a.Providers[strings.ToLower(provider)]
	if !ok || len(models) == 0 {
		return nil
	}
	for _, m := range models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q not in %s provider list", model, provider)
}

// ProviderFor returns the provider that lists model, or "".
func (a *ModelAliases) ProviderFor(model string) string {
	if a == nil {
		return ""
	}
	for _, provider := range a.ProviderNames() {
		for _, m := range a.Providers[provider] {
			if m == model {
				return provider
			}
		}
	}
	return ""
}

// ProviderNames returns the providers with a model list, sorted.
func (a *ModelAliases) ProviderNames() []string {
	if a == nil {
		return nil
	}
	names := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// AliasNames returns the known aliases, sorted.
func (a *ModelAliases) AliasNames() []string {
	if a == nil {
		return nil
	}
	names := make([]string, 0, len(a.Aliases))
	for alias := range a.Aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// DefaultAliases returns the built-in aliases.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			"fast":     "gpt-4o-mini",
			"smart":    "gpt-4o",
			"quality":  "claude-sonnet-4-20250514",
			"haiku":    "claude-haiku-3-20240307",
			"research": "gemini-1.5-pro",
			"flash":    "gemini-1.5-flash",
			"cheap":    "deepseek-chat",
			"reason":   "deepseek-reasoner",
		},
		Providers: map[string][]string{},
	}
}
