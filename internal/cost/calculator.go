// Package cost prices oracle token usage.
package cost

// Rates holds per-provider pricing keyed by model name.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for oracle usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rate returns the pricing for a provider's model.
func (c *Calculator) Rate(provider, model string) (ModelRate, bool) {
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "gemini":
		table = c.rates.Gemini
	}
	rate, ok := table[model]
	return rate, ok
}

// Oracle computes the cost of one generation call. Unknown models cost 0.
func (c *Calculator) Oracle(provider, model string, input, output int64) float64 {
	rate, ok := c.Rate(provider, model)
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 5.00, Output: 25.00},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
		},
	}
}

// Merge returns r with every model priced in over replaced or added.
func (r Rates) Merge(over Rates) Rates {
	return Rates{
		Anthropic: mergeTable(r.Anthropic, over.Anthropic),
		Gemini:    mergeTable(r.Gemini, over.Gemini),
	}
}

func mergeTable(base, over map[string]ModelRate) map[string]ModelRate {
	out := make(map[string]ModelRate, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
