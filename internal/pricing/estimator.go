// Package pricing turns token counts and per-1K-token price tables into
// monetary estimates. All arithmetic is decimal so repeated estimates never
// accumulate binary floating-point drift.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/af-corp/promptlab/internal/registry"
)

// Estimate is a derived, non-authoritative cost approximation. Known is
// false when either price is missing; callers render "cost unavailable"
// instead of a misleading $0.00.
type Estimate struct {
	Cost  decimal.Decimal
	Known bool
}

// ForDefinition computes the estimate for a single definition:
// input/1000 * input_price + output/1000 * output_price.
func ForDefinition(def registry.ModelDefinition, inputTokens, outputTokens int) (Estimate, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return Estimate{}, fmt.Errorf("token counts must be non-negative: input=%d output=%d", inputTokens, outputTokens)
	}
	if def.InputPrice == nil || def.OutputPrice == nil {
		return Estimate{}, nil
	}
	// Shift(-3) divides by 1000 exactly; Div would round at the division
	// precision limit.
	inputCost := def.InputPrice.Mul(decimal.NewFromInt(int64(inputTokens))).Shift(-3)
	outputCost := def.OutputPrice.Mul(decimal.NewFromInt(int64(outputTokens))).Shift(-3)
	return Estimate{Cost: inputCost.Add(outputCost), Known: true}, nil
}

// Estimator resolves pricing through the model registry.
type Estimator struct {
	registry *registry.Registry
}

func NewEstimator(r *registry.Registry) *Estimator {
	return &Estimator{registry: r}
}

// Estimate looks up modelName and computes its cost estimate. An unknown
// model fails with registry.ErrModelNotFound; it is never silently mapped to
// another model.
func (e *Estimator) Estimate(modelName string, inputTokens, outputTokens int) (Estimate, error) {
	def, err := e.registry.Get(modelName)
	if err != nil {
		return Estimate{}, err
	}
	return ForDefinition(def, inputTokens, outputTokens)
}

// Projections scales a base estimate to workshop-relevant volumes, for the
// "what would this cost at 1000x" discussion.
func Projections(base decimal.Decimal) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"10x":   base.Mul(decimal.NewFromInt(10)),
		"100x":  base.Mul(decimal.NewFromInt(100)),
		"1000x": base.Mul(decimal.NewFromInt(1000)),
	}
}
