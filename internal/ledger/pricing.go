package ledger

import "strings"

// modelPrice is the USD cost per 1K tokens for a model family.
type modelPrice struct {
	Prompt float64
	Output float64
}

// modelPrices maps model name prefixes to their per-1K-token prices. Lookup
// tries the longest matching prefix first and falls back to defaultPrice
// for unknown models.
var modelPrices = map[string]modelPrice{
	"gemini-2.5-pro":   {Prompt: 0.00125, Output: 0.01},
	"gemini-2.5-flash": {Prompt: 0.0003, Output: 0.0025},
	"gemini-2.0-flash": {Prompt: 0.0001, Output: 0.0004},
	"gemini-1.5-pro":   {Prompt: 0.00125, Output: 0.005},
	"gemini-1.5-flash": {Prompt: 0.000075, Output: 0.0003},
}

var defaultPrice = modelPrice{Prompt: 0.00125, Output: 0.01}

// priceFor returns the price entry for the given model name.
func priceFor(model string) modelPrice {
	best, bestLen := defaultPrice, 0
	for prefix, price := range modelPrices {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = price, len(prefix)
		}
	}
	return best
}

// Cost computes the USD cost of a request against the given model.
func Cost(model string, promptTokens, outputTokens int) float64 {
	price := priceFor(model)
	return float64(promptTokens)/1000*price.Prompt + float64(outputTokens)/1000*price.Output
}
