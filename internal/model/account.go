package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the aggregated view of one tracked account.
type AccountSnapshot struct {
	Address      string          `json:"address"`
	TakenAt      time.Time       `json:"taken_at"`
	Fills        FillStats       `json:"fills"`
	Positions    []PositionView  `json:"positions"`
	Margin       MarginView      `json:"margin"`
	OpenOrders   int             `json:"open_orders"`
	FundingTotal decimal.Decimal `json:"funding_total"`
	MaxDrawdown  decimal.Decimal `json:"max_drawdown"` // fraction of peak account value, 0..1
	Warnings     []string        `json:"warnings,omitempty"`
}

// FillStats summarizes trade executions over the lookback window.
type FillStats struct {
	Count       int             `json:"count"`
	Volume      decimal.Decimal `json:"volume"`
	Fees        decimal.Decimal `json:"fees"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
	NetPnl      decimal.Decimal `json:"net_pnl"` // realized minus fees
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	WinRate     decimal.Decimal `json:"win_rate"`
	FirstAt     int64           `json:"first_at,omitempty"` // unix ms
	LastAt      int64           `json:"last_at,omitempty"`
	ByCoin      []CoinStats     `json:"by_coin"`
}

// CoinStats is the per-coin slice of FillStats.
type CoinStats struct {
	Coin        string          `json:"coin"`
	Count       int             `json:"count"`
	Volume      decimal.Decimal `json:"volume"`
	Fees        decimal.Decimal `json:"fees"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
}

// PositionView is an open perpetual position valued at the current mid.
type PositionView struct {
	Coin             string              `json:"coin"`
	Side             string              `json:"side"` // "long" or "short"
	Size             decimal.Decimal     `json:"size"`
	EntryPrice       decimal.Decimal     `json:"entry_price"`
	MarkPrice        decimal.Decimal     `json:"mark_price"`
	Notional         decimal.Decimal     `json:"notional"`
	UnrealizedPnl    decimal.Decimal     `json:"unrealized_pnl"`
	Leverage         int                 `json:"leverage"`
	LeverageType     string              `json:"leverage_type"`
	LiquidationPrice decimal.NullDecimal `json:"liquidation_price"`
}

// MarginView is the account-level margin summary.
type MarginView struct {
	AccountValue decimal.Decimal `json:"account_value"`
	MarginUsed   decimal.Decimal `json:"margin_used"`
	Withdrawable decimal.Decimal `json:"withdrawable"`
	SpotUSDC     decimal.Decimal `json:"spot_usdc"`
}

// AccountResult pairs an address with its snapshot or the reason it failed.
type AccountResult struct {
	Address  string           `json:"address"`
	Snapshot *AccountSnapshot `json:"snapshot,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// OK reports whether the account was collected.
func (r AccountResult) OK() bool { return r.Snapshot != nil && r.Error == "" }
