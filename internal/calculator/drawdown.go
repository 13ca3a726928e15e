package calculator

import (
	"errors"

	"github.com/shopspring/decimal"

	"LiquidSentinel/internal/hyperliquid"
)

// ValueRange returns the highest and lowest values of a history series.
func ValueRange(points []hyperliquid.PortfolioHistoryPoint) (high, low decimal.Decimal, err error) {
	if len(points) == 0 {
		return decimal.Zero, decimal.Zero, errors.New("no history points provided")
	}
	high, low = points[0].Value, points[0].Value
	for _, p := range points[1:] {
		high = decimal.Max(high, p.Value)
		low = decimal.Min(low, p.Value)
	}
	return high, low, nil
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction of the
// running peak. Points are assumed to be in time order. Non-positive peaks are
// skipped since a fraction of them is meaningless.
func MaxDrawdown(points []hyperliquid.PortfolioHistoryPoint) (decimal.Decimal, error) {
	if len(points) == 0 {
		return decimal.Zero, errors.New("no history points provided")
	}
	peak := points[0].Value
	worst := decimal.Zero
	for _, p := range points {
		if p.Value.GreaterThan(peak) {
			peak = p.Value
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(p.Value).Div(peak)
		if dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst.Round(6), nil
}
