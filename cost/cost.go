// Package cost computes USD costs for model invocations from a registry
// price table and a token usage breakdown (spec §4.J).
package cost

import (
	"github.com/shopspring/decimal"

	"github.com/vllora/gateway/gwmodel"
)

const tokenUnit = 1_000_000 // prices are quoted per million tokens

// Calculate derives a Cost from usage and a model's price table. Cached-read
// tokens are billed at CachedInput (falling back to Input when unset);
// cached-write tokens are billed at CachedInputWrite (falling back to
// Input). Non-cached input tokens are InputTokens - CachedInputTokens,
// floored at zero so a provider reporting CachedInputTokens > InputTokens
// never yields a negative cost.
func Calculate(usage gwmodel.Usage, prices gwmodel.PriceTable) gwmodel.Cost {
	cachedInputPrice := prices.Input
	if prices.CachedInput != nil {
		cachedInputPrice = *prices.CachedInput
	}
	cachedWritePrice := prices.Input
	if prices.CachedInputWrite != nil {
		cachedWritePrice = *prices.CachedInputWrite
	}

	plainInput := usage.InputTokens - usage.CachedInputTokens
	if plainInput < 0 {
		plainInput = 0
	}

	inputCost := perToken(plainInput, prices.Input)
	cachedInputCost := perToken(usage.CachedInputTokens, cachedInputPrice)
	cachedWriteCost := perToken(usage.CachedInputWriteTokens, cachedWritePrice)
	outputCost := perToken(usage.OutputTokens+usage.ReasoningTokens, prices.Output)

	total := inputCost.Add(cachedInputCost).Add(cachedWriteCost).Add(outputCost)

	return gwmodel.Cost{
		InputCost:            inputCost,
		CachedInputCost:      cachedInputCost,
		CachedInputWriteCost: cachedWriteCost,
		OutputCost:           outputCost,
		Total:                total,
	}
}

func perToken(tokens int, pricePerMillion decimal.Decimal) decimal.Decimal {
	if tokens == 0 {
		return decimal.Zero
	}
	return pricePerMillion.Mul(decimal.NewFromInt(int64(tokens))).Div(decimal.NewFromInt(tokenUnit))
}

// Sum folds a sequence of per-attempt costs into a request-level total.
func Sum(costs ...gwmodel.Cost) gwmodel.Cost {
	total := gwmodel.Cost{
		InputCost:            decimal.Zero,
		CachedInputCost:      decimal.Zero,
		CachedInputWriteCost: decimal.Zero,
		OutputCost:           decimal.Zero,
		Total:                decimal.Zero,
	}
	for _, c := range costs {
		total = total.Add(c)
	}
	return total
}
