package ai

import "math"

// ModelPricing carries the per-million-token rates for a generation model.
type ModelPricing struct {
	DisplayName string
	InputPer1M  float64
	OutputPer1M float64
	MaxTokens   int
}

const DefaultGenerationModel = "claude-3-5-sonnet-20241022"

var pricing = map[string]ModelPricing{
	"claude-3-5-sonnet-20241022": {DisplayName: "Claude 3.5 Sonnet", InputPer1M: 3.00, OutputPer1M: 15.00, MaxTokens: 200000},
	"claude-3-5-haiku-20241022":  {DisplayName: "Claude 3.5 Haiku", InputPer1M: 0.80, OutputPer1M: 4.00, MaxTokens: 200000},
	"claude-3-opus-20240229":     {DisplayName: "Claude 3 Opus", InputPer1M: 15.00, OutputPer1M: 75.00, MaxTokens: 200000},
}

// InputBudget returns the model's input token limit, net of the output
// reservation. Unknown models get the smallest published window.
func InputBudget(model string) int {
	if rates, ok := pricing[model]; ok {
		return rates.MaxTokens - maxOutputTokens
	}
	return 200000 - maxOutputTokens
}

// Cost returns the USD price of one exchange, rounded to six decimals.
// Unknown models cost zero rather than failing the request they already
// served.
func Cost(model string, inputTokens, outputTokens int) float64 {
	rates, ok := pricing[model]
	if !ok {
		return 0
	}
	cost := float64(inputTokens)/1_000_000*rates.InputPer1M +
		float64(outputTokens)/1_000_000*rates.OutputPer1M
	return math.Round(cost*1e6) / 1e6
}
