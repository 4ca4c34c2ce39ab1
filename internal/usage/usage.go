// Package usage implements the token/cost accounting the Request Handler
// attaches to every Usage Record: a whitespace-token heuristic for backends
// that do not report counts, and a per-model price table for cost_micro_usd.
// Adapted from the teacher's usage.Tracker/Cost, narrowed to what the core's
// Usage Record needs (the teacher's dashboard rollups and provider billing
// fetch live in product UI, out of this core's scope).
package usage

import (
	"math"
	"strings"
)

// tokensPerWhitespaceWord is the spec's documented heuristic: ~1.3 tokens
// per whitespace-delimited word, used whenever a backend does not report
// its own prompt/completion token counts.
const tokensPerWhitespaceWord = 1.3

// EstimateTokens approximates the token count of text when the backend
// that produced it did not report one.
func EstimateTokens(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return int(math.Ceil(float64(len(words)) * tokensPerWhitespaceWord))
}

// Price is a model's per-million-token cost, in whole US dollars.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// PriceTable maps model id to Price. Unlisted models cost nothing, the
// same conservative default the teacher's dashboard uses for
// not-yet-priced models.
type PriceTable map[string]Price

// CostMicroUSD converts a prompt/completion token pair into
// micro-dollars (1e-6 USD), the UsageRecord.CostMicroUSD unit, using the
// price entry for modelID if one exists.
func (t PriceTable) CostMicroUSD(modelID string, promptTokens, completionTokens int) int64 {
	price, ok := t[modelID]
	if !ok {
		return 0
	}
	usd := float64(promptTokens)*price.InputPerMillion/1_000_000 +
		float64(completionTokens)*price.OutputPerMillion/1_000_000
	return int64(math.Round(usd * 1_000_000))
}
