package cost

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rates holds token pricing for the vision providers.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
	// FallbackPer1K prices unknown models as a flat rate per thousand tokens.
	FallbackPer1K float64 `yaml:"fallback_per_1k" mapstructure:"fallback_per_1k"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Cost prices a single call. Provider responses often carry a dated model ID
// ("gpt-4.1-2025-04-14"), so the longest configured prefix wins.
func (c *Calculator) Cost(model string, input, output int64) decimal.Decimal {
	rate, ok := c.lookup(model)
	if !ok {
		total := decimal.NewFromInt(input + output)
		return total.Div(thousand).Mul(decimal.NewFromFloat(c.rates.FallbackPer1K))
	}

	in := decimal.NewFromInt(input).Div(million).Mul(decimal.NewFromFloat(rate.Input))
	out := decimal.NewFromInt(output).Div(million).Mul(decimal.NewFromFloat(rate.Output))
	return in.Add(out)
}

// Known reports whether the model has explicit pricing.
func (c *Calculator) Known(model string) bool {
	_, ok := c.lookup(model)
	return ok
}

func (c *Calculator) lookup(model string) (ModelRate, bool) {
	if rate, ok := c.rates.Models[model]; ok {
		return rate, true
	}
	var (
		best    ModelRate
		bestLen int
	)
	for name, rate := range c.rates.Models {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			best, bestLen = rate, len(name)
		}
	}
	return best, bestLen > 0
}

// Merge overlays configured model rates on top of r. A zero fallback keeps the
// existing fallback.
func (r Rates) Merge(models map[string]ModelRate, fallbackPer1K float64) Rates {
	out := Rates{
		Models:        make(map[string]ModelRate, len(r.Models)+len(models)),
		FallbackPer1K: r.FallbackPer1K,
	}
	for k, v := range r.Models {
		out.Models[k] = v
	}
	for k, v := range models {
		out.Models[k] = v
	}
	if fallbackPer1K > 0 {
		out.FallbackPer1K = fallbackPer1K
	}
	return out
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
			"gpt-4.1":                    {Input: 2.00, Output: 8.00},
			"gpt-4.1-mini":               {Input: 0.40, Output: 1.60},
			"gpt-4.1-nano":               {Input: 0.10, Output: 0.40},
			"gpt-4o":                     {Input: 2.50, Output: 10.00},
		},
		FallbackPer1K: 0.003,
	}
}
