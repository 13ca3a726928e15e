package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"LiquidSentinel/internal/hyperliquid"
	"LiquidSentinel/internal/model"
)

// Positions values every open position at the current mid. When a coin has no
// mid the mark falls back to positionValue / |size|.
func Positions(state *hyperliquid.ClearinghouseState, mids hyperliquid.Mids) []model.PositionView {
	if state == nil {
		return nil
	}
	views := make([]model.PositionView, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		p := ap.Position
		if p.Szi.IsZero() {
			continue
		}
		size := p.Szi.Abs()
		side := "long"
		if p.Szi.IsNegative() {
			side = "short"
		}

		mark, ok := mids[p.Coin]
		if !ok {
			mark = p.PositionValue.Div(size)
		}
		notional := size.Mul(mark)

		upnl := p.UnrealizedPnl
		if ok && p.EntryPx.Valid {
			upnl = mark.Sub(p.EntryPx.Decimal).Mul(p.Szi)
		}

		views = append(views, model.PositionView{
			Coin:             p.Coin,
			Side:             side,
			Size:             size,
			EntryPrice:       p.EntryPx.Decimal,
			MarkPrice:        mark,
			Notional:         notional,
			UnrealizedPnl:    upnl,
			Leverage:         p.Leverage.Value,
			LeverageType:     p.Leverage.Type,
			LiquidationPrice: p.LiquidationPx,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Notional.GreaterThan(views[j].Notional) })
	return views
}

// Margin extracts the account-level summary. spot may be nil.
func Margin(state *hyperliquid.ClearinghouseState, spot *hyperliquid.SpotClearinghouseState) model.MarginView {
	var mv model.MarginView
	if state != nil {
		mv.AccountValue = state.MarginSummary.AccountValue
		mv.MarginUsed = state.MarginSummary.TotalMarginUsed
		mv.Withdrawable = state.Withdrawable
	}
	if spot != nil {
		for _, b := range spot.Balances {
			if b.Coin == "USDC" {
				mv.SpotUSDC = b.Total
			}
		}
	}
	return mv
}

// UnrealizedTotal sums unrealized PnL across positions.
func UnrealizedTotal(positions []model.PositionView) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.UnrealizedPnl)
	}
	return total
}
