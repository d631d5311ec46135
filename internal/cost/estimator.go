package cost

import (
	"encoding/base64"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tiptally/tiptally/constants"
)

// Estimate is a rough projection of what one extraction call costs.
// Token counts are derived from payload-size ratios, not from the
// provider's meter; treat CostUSD as an approximation, never a billing
// figure.
type Estimate struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Estimator derives call-cost estimates for a fixed model. The prompt
// token count is measured once with tiktoken; image and response tokens
// use fixed byte ratios (base64 size / 3 for input, raw size / 4 for
// output).
type Estimator struct {
	pricing      constants.ModelPricing
	promptTokens int
}

var (
	tokenizerMu sync.Mutex
	tokenizers  = map[string]*tiktoken.Tiktoken{}
)

// encodingFor returns a tokenizer for model, falling back to cl100k_base
// for models tiktoken does not know. Tokenizers are cached per model so
// estimators for different models never share an encoding.
func encodingFor(model string) *tiktoken.Tiktoken {
	tokenizerMu.Lock()
	defer tokenizerMu.Unlock()

	if tkm, ok := tokenizers[model]; ok {
		return tkm
	}
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}
	tokenizers[model] = tkm
	return tkm
}

// NewWithPromptTokens builds an estimator from a pre-measured prompt
// token count, bypassing the tokenizer.
func NewWithPromptTokens(model string, promptTokens int) *Estimator {
	return &Estimator{pricing: constants.PricingFor(model), promptTokens: promptTokens}
}

func NewEstimator(model, instruction string) *Estimator {
	e := &Estimator{pricing: constants.PricingFor(model)}
	if tkm := encodingFor(model); tkm != nil {
		e.promptTokens = len(tkm.Encode(instruction, nil, nil))
	} else {
		// tokenizer unavailable: same ratio the output side uses
		e.promptTokens = len(instruction) / 4
	}
	return e
}

// Estimate is a pure function of the normalized image size and the
// serialized result size.
func (e *Estimator) Estimate(imageBytes, resultBytes int) Estimate {
	inputTokens := base64.StdEncoding.EncodedLen(imageBytes)/3 + e.promptTokens
	outputTokens := resultBytes / 4

	cost := float64(inputTokens)/1e6*e.pricing.InputPerMillion +
		float64(outputTokens)/1e6*e.pricing.OutputPerMillion

	return Estimate{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
	}
}
