package cost

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/gwmodel"
)

func TestCalculateAllZeroPrices(t *testing.T) {
	usage := gwmodel.Usage{InputTokens: 1000, OutputTokens: 500}
	got := Calculate(usage, gwmodel.PriceTable{Input: decimal.Zero, Output: decimal.Zero})
	require.True(t, got.Total.IsZero())
}

func TestCalculateCachedFallsBackToInput(t *testing.T) {
	usage := gwmodel.Usage{InputTokens: 1000, CachedInputTokens: 1000}
	prices := gwmodel.PriceTable{Input: decimal.NewFromFloat(1), Output: decimal.NewFromFloat(2)}
	got := Calculate(usage, prices)
	require.True(t, got.CachedInputCost.Equal(got.InputCost.Add(decimal.NewFromFloat(0.001))))
	want := decimal.NewFromFloat(1).Mul(decimal.NewFromInt(1000)).Div(decimal.NewFromInt(tokenUnit))
	require.True(t, got.CachedInputCost.Equal(want), "got %s want %s", got.CachedInputCost, want)
}

func TestCalculateTotalIsSumOfComponents(t *testing.T) {
	usage := gwmodel.Usage{
		InputTokens:            2000,
		CachedInputTokens:      500,
		CachedInputWriteTokens: 100,
		OutputTokens:           300,
		ReasoningTokens:        50,
	}
	half := decimal.NewFromFloat(0.5)
	prices := gwmodel.PriceTable{
		Input:            decimal.NewFromFloat(3),
		Output:           decimal.NewFromFloat(15),
		CachedInput:      &half,
		CachedInputWrite: &half,
	}
	got := Calculate(usage, prices)
	sum := got.InputCost.Add(got.CachedInputCost).Add(got.CachedInputWriteCost).Add(got.OutputCost)
	require.True(t, got.Total.Equal(sum))
}

func TestSumAccumulatesAcrossAttempts(t *testing.T) {
	c1 := gwmodel.Cost{Total: decimal.NewFromFloat(0.1)}
	c2 := gwmodel.Cost{Total: decimal.NewFromFloat(0.2)}
	got := Sum(c1, c2)
	require.True(t, got.Total.Equal(decimal.NewFromFloat(0.3)))
}
