package observers

import "github.com/cloudwego/eino/components/model"

// Pricing is the USD cost per 1M text tokens.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

var defaultPricing = map[string]Pricing{
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
}

// ResolvePricing is zero for models without a price entry.
func ResolvePricing(modelID string) Pricing {
	return defaultPricing[modelID]
}

// ComputeCost converts token usage to USD.
func ComputeCost(usage *model.TokenUsage, p Pricing) (input, output, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	input = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	output = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	return input, output, input + output
}
