// Package pricing attributes cost to token usage from a per-model price table.
package pricing

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Currency is the currency every price in a Table is expressed in.
const Currency = "USD"

const tokensPerUnit = 1_000_000

// MaxPrice bounds a per-million-token price accepted from configuration.
const MaxPrice = 1_000_000.0

// Price is the cost in USD per one million tokens.
type Price struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// Table maps exact model identifiers to prices.
type Table map[string]Price

// Breakdown is the cost attributed to one call.
type Breakdown struct {
	InputCost        float64 `json:"input_cost"`
	OutputCost       float64 `json:"output_cost"`
	TotalCost        float64 `json:"total_cost"`
	Currency         string  `json:"currency"`
	PricingAvailable bool    `json:"pricing_available"`
}

// DefaultTable returns the built-in prices (USD per 1M tokens, January 2025).
func DefaultTable() Table {
	return Table{
		// OpenAI
		"gpt-4-turbo":   {Input: 10.00, Output: 30.00},
		"gpt-4":         {Input: 30.00, Output: 60.00},
		"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
		"gpt-4o":        {Input: 5.00, Output: 15.00},
		"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
		// Anthropic
		"claude-sonnet-4-20250514":   {Input: 3.00, Output: 15.00},
		"claude-opus-3-20240229":     {Input: 15.00, Output: 75.00},
		"claude-sonnet-3-5-20240229": {Input: 3.00, Output: 15.00},
		"claude-haiku-3-20240307":    {Input: 0.25, Output: 1.25},
		// Google
		"gemini-1.5-pro":   {Input: 1.25, Output: 5.00},
		"gemini-1.5-flash": {Input: 0.075, Output: 0.30},
		"gemini-pro":       {Input: 0.50, Output: 1.50},
		// DeepSeek
		"deepseek-chat": {Input: 0.27, Output: 1.10},
		// HuggingFace router, free tier
		"deepseek-ai/DeepSeek-R1:novita": {Input: 0, Output: 0},
	}
}

// Merge returns a copy of t with overrides applied on top.
func (t Table) Merge(overrides Table) Table {
	out := make(Table, len(t)+len(overrides))
	for model, p := range t {
		out[model] = p
	}
	for model, p := range overrides {
		out[model] = p
	}
	return out
}

// Validate rejects negative, non-finite or implausibly large prices.
func (t Table) Validate() error {
	for model, p := range t {
		for _, v := range []float64{p.Input, p.Output} {
			if v < 0 || v > MaxPrice || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("invalid price for %q: %v", model, v)
			}
		}
	}
	return nil
}

// LoadTable reads price overrides from a YAML file of the form
//
//	gpt-4o:
//	  input: 2.5
//	  output: 10
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Calculator computes cost breakdowns against a read-only price table.
type Calculator struct {
	table Table
}

// NewCalculator creates a calculator over a copy of table. A nil table
// prices every model at zero.
func NewCalculator(table Table) *Calculator {
	return &Calculator{table: Table{}.Merge(table)}
}

// Lookup returns the price for an exact model identifier.
func (c *Calculator) Lookup(model string) (Price, bool) {
	p, ok := c.table[model]
	return p, ok
}

// Models returns the priced model identifiers, sorted.
func (c *Calculator) Models() []string {
	models := make([]string, 0, len(c.table))
	for m := range c.table {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Calculate prices a call. Unknown models use a zero price and report
// PricingAvailable=false. Negative token counts are treated as zero. A price
// that does not yield a finite cost is treated as unknown.
func (c *Calculator) Calculate(model string, inputTokens, outputTokens int) Breakdown {
	price, ok := c.Lookup(model)

	inputCost := float64(max(inputTokens, 0)) / tokensPerUnit * price.Input
	outputCost := float64(max(outputTokens, 0)) / tokensPerUnit * price.Output
	if !representable(inputCost) || !representable(outputCost) || !representable(inputCost+outputCost) {
		return Breakdown{Currency: Currency}
	}

	return Breakdown{
		InputCost:        round(inputCost, 6),
		OutputCost:       round(outputCost, 6),
		TotalCost:        round(inputCost+outputCost, 6),
		Currency:         Currency,
		PricingAvailable: ok,
	}
}

// FormatCost renders a cost for display, e.g. "$0.0006".
func FormatCost(cost float64) string {
	s := strconv.FormatFloat(cost, 'f', 6, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return "$" + s
}

// representable reports whether v is finite, non-negative and survives
// rounding to six decimals.
func representable(v float64) bool {
	return v >= 0 && !math.IsInf(v*1e6, 0) && !math.IsNaN(v)
}

func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
