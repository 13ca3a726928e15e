package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"LiquidSentinel/internal/hyperliquid"
	"LiquidSentinel/internal/model"
)

// SummarizeFills aggregates fills into totals and a per-coin breakdown sorted by volume.
// A fill counts as a win or loss only when it closed something, i.e. has a non-zero closedPnl.
func SummarizeFills(fills []hyperliquid.Fill) model.FillStats {
	stats := model.FillStats{Count: len(fills)}
	byCoin := make(map[string]*model.CoinStats)

	for _, f := range fills {
		notional := f.Notional()
		stats.Volume = stats.Volume.Add(notional)
		stats.Fees = stats.Fees.Add(f.Fee)
		stats.RealizedPnl = stats.RealizedPnl.Add(f.ClosedPnl)

		switch f.ClosedPnl.Sign() {
		case 1:
			stats.Wins++
		case -1:
			stats.Losses++
		}

		if stats.FirstAt == 0 || f.Time < stats.FirstAt {
			stats.FirstAt = f.Time
		}
		if f.Time > stats.LastAt {
			stats.LastAt = f.Time
		}

		cs, ok := byCoin[f.Coin]
		if !ok {
			cs = &model.CoinStats{Coin: f.Coin}
			byCoin[f.Coin] = cs
		}
		cs.Count++
		cs.Volume = cs.Volume.Add(notional)
		cs.Fees = cs.Fees.Add(f.Fee)
		cs.RealizedPnl = cs.RealizedPnl.Add(f.ClosedPnl)
	}

	stats.NetPnl = stats.RealizedPnl.Sub(stats.Fees)
	if closed := stats.Wins + stats.Losses; closed > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.Wins)).Div(decimal.NewFromInt(int64(closed))).Round(4)
	}

	stats.ByCoin = make([]model.CoinStats, 0, len(byCoin))
	for _, cs := range byCoin {
		stats.ByCoin = append(stats.ByCoin, *cs)
	}
	sort.Slice(stats.ByCoin, func(i, j int) bool {
		if c := stats.ByCoin[i].Volume.Cmp(stats.ByCoin[j].Volume); c != 0 {
			return c > 0
		}
		return stats.ByCoin[i].Coin < stats.ByCoin[j].Coin
	})
	return stats
}
