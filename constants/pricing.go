package constants

// ModelPricing holds USD prices per million tokens for a vision model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Pricing is the per-model price table used by the cost estimator.
// Values mirror published list prices; estimates derived from them are
// approximations, not billing figures.
var Pricing = map[string]ModelPricing{
	"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":     {InputPerMillion: 2.00, OutputPerMillion: 8.00},
}

// DefaultPricing is used when the configured model is not in the table.
var DefaultPricing = ModelPricing{InputPerMillion: 2.50, OutputPerMillion: 10.00}

// PricingFor returns the price entry for model, falling back to DefaultPricing.
func PricingFor(model string) ModelPricing {
	if p, ok := Pricing[model]; ok {
		return p
	}
	return DefaultPricing
}
