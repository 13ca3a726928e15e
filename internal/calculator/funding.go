package calculator

import (
	"github.com/shopspring/decimal"

	"LiquidSentinel/internal/hyperliquid"
)

// FundingTotal sums the USDC paid (negative) or received (positive) as funding.
func FundingTotal(entries []hyperliquid.UserFunding) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Delta.USDC)
	}
	return total
}

// FundingByCoin splits FundingTotal per coin.
func FundingByCoin(entries []hyperliquid.UserFunding) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, e := range entries {
		out[e.Delta.Coin] = out[e.Delta.Coin].Add(e.Delta.USDC)
	}
	return out
}
