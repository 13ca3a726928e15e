package hyperliquid

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Fill is a single user trade execution.
type Fill struct {
	Coin          string          `json:"coin"`
	Price         decimal.Decimal `json:"px"`
	Size          decimal.Decimal `json:"sz"`
	Side          string          `json:"side"` // "B" buy, "A" sell
	Time          int64           `json:"time"` // unix milliseconds
	StartPosition decimal.Decimal `json:"startPosition"`
	Direction     string          `json:"dir"`
	ClosedPnl     decimal.Decimal `json:"closedPnl"`
	Hash          string          `json:"hash"`
	OrderID       int64           `json:"oid"`
	Crossed       bool            `json:"crossed"`
	Fee           decimal.Decimal `json:"fee"`
	FeeToken      string          `json:"feeToken,omitempty"`
	TradeID       int64           `json:"tid,omitempty"`
}

// Notional returns price times size.
func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Size)
}

// ClearinghouseState is the perpetual margin account of a user.
type ClearinghouseState struct {
	MarginSummary              MarginSummary   `json:"marginSummary"`
	CrossMarginSummary         MarginSummary   `json:"crossMarginSummary"`
	CrossMaintenanceMarginUsed decimal.Decimal `json:"crossMaintenanceMarginUsed"`
	Withdrawable               decimal.Decimal `json:"withdrawable"`
	AssetPositions             []AssetPosition `json:"assetPositions"`
	Time                       int64           `json:"time"`
}

// MarginSummary aggregates account value and margin usage.
type MarginSummary struct {
	AccountValue    decimal.Decimal `json:"accountValue"`
	TotalNtlPos     decimal.Decimal `json:"totalNtlPos"`
	TotalRawUsd     decimal.Decimal `json:"totalRawUsd"`
	TotalMarginUsed decimal.Decimal `json:"totalMarginUsed"`
}

// AssetPosition wraps one open perpetual position.
type AssetPosition struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

// Position is an open perpetual position. Szi is signed: negative means short.
type Position struct {
	Coin           string              `json:"coin"`
	Szi            decimal.Decimal     `json:"szi"`
	EntryPx        decimal.NullDecimal `json:"entryPx"`
	PositionValue  decimal.Decimal     `json:"positionValue"`
	UnrealizedPnl  decimal.Decimal     `json:"unrealizedPnl"`
	ReturnOnEquity decimal.Decimal     `json:"returnOnEquity"`
	LiquidationPx  decimal.NullDecimal `json:"liquidationPx"`
	MarginUsed     decimal.Decimal     `json:"marginUsed"`
	MaxLeverage    int                 `json:"maxLeverage"`
	Leverage       Leverage            `json:"leverage"`
	CumFunding     struct {
		AllTime     decimal.Decimal `json:"allTime"`
		SinceOpen   decimal.Decimal `json:"sinceOpen"`
		SinceChange decimal.Decimal `json:"sinceChange"`
	} `json:"cumFunding"`
}

// Leverage describes the margin mode of a position.
type Leverage struct {
	Type   string          `json:"type"` // "cross" or "isolated"
	Value  int             `json:"value"`
	RawUsd decimal.Decimal `json:"rawUsd"`
}

// SpotClearinghouseState lists spot token balances.
type SpotClearinghouseState struct {
	Balances []SpotBalance `json:"balances"`
}

// SpotBalance is a single spot token holding.
type SpotBalance struct {
	Coin     string          `json:"coin"`
	Token    int64           `json:"token"`
	Total    decimal.Decimal `json:"total"`
	Hold     decimal.Decimal `json:"hold"`
	EntryNtl decimal.Decimal `json:"entryNtl"`
}

// PortfolioPeriod is one named window ("day", "week", "allTime", ...) of
// portfolio history. The API encodes it as a [name, metrics] tuple.
type PortfolioPeriod struct {
	Period  string
	Metrics PortfolioMetrics
}

// UnmarshalJSON decodes the tuple representation returned by the API.
func (p *PortfolioPeriod) UnmarshalJSON(data []byte) error {
	var payload []json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("hyperliquid: decode portfolio period: %w", err)
	}
	if len(payload) != 2 {
		return errPortfolioPeriodMalformed
	}
	if err := json.Unmarshal(payload[0], &p.Period); err != nil {
		return fmt.Errorf("hyperliquid: decode portfolio period name: %w", err)
	}
	if err := json.Unmarshal(payload[1], &p.Metrics); err != nil {
		return fmt.Errorf("hyperliquid: decode portfolio metrics: %w", err)
	}
	return nil
}

// MarshalJSON keeps the tuple shape so cached snapshots round-trip.
func (p PortfolioPeriod) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Period, p.Metrics})
}

// PortfolioMetrics holds the time series of one portfolio window.
type PortfolioMetrics struct {
	AccountValueHistory []PortfolioHistoryPoint `json:"accountValueHistory"`
	PnlHistory          []PortfolioHistoryPoint `json:"pnlHistory"`
	Volume              decimal.Decimal         `json:"vlm"`
}

// PortfolioHistoryPoint is a [time, value] tuple.
type PortfolioHistoryPoint struct {
	Time  int64
	Value decimal.Decimal
}

// UnmarshalJSON decodes the tuple representation returned by the API.
func (p *PortfolioHistoryPoint) UnmarshalJSON(data []byte) error {
	var payload []json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("hyperliquid: decode portfolio history point: %w", err)
	}
	if len(payload) != 2 {
		return errHistoryPointMalformed
	}
	if err := json.Unmarshal(payload[0], &p.Time); err != nil {
		return fmt.Errorf("hyperliquid: decode history timestamp: %w", err)
	}
	if err := json.Unmarshal(payload[1], &p.Value); err != nil {
		return fmt.Errorf("hyperliquid: decode history value: %w", err)
	}
	return nil
}

// MarshalJSON keeps the tuple shape.
func (p PortfolioHistoryPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Time, p.Value})
}

// FindPeriod returns the named window, if present.
func FindPeriod(periods []PortfolioPeriod, name string) (PortfolioMetrics, bool) {
	for _, p := range periods {
		if p.Period == name {
			return p.Metrics, true
		}
	}
	return PortfolioMetrics{}, false
}

// UserFunding is one funding payment applied to a user's position.
type UserFunding struct {
	Time  int64  `json:"time"`
	Hash  string `json:"hash"`
	Delta struct {
		Type        string          `json:"type"`
		Coin        string          `json:"coin"`
		USDC        decimal.Decimal `json:"usdc"`
		Szi         decimal.Decimal `json:"szi"`
		FundingRate decimal.Decimal `json:"fundingRate"`
		NSamples    *int64          `json:"nSamples"`
	} `json:"delta"`
}

// FundingRate is one historical funding rate sample for a coin.
type FundingRate struct {
	Coin        string          `json:"coin"`
	FundingRate decimal.Decimal `json:"fundingRate"`
	Premium     decimal.Decimal `json:"premium"`
	Time        int64           `json:"time"`
}

// OpenOrder is a resting order.
type OpenOrder struct {
	Coin      string          `json:"coin"`
	LimitPx   decimal.Decimal `json:"limitPx"`
	OrderID   int64           `json:"oid"`
	Side      string          `json:"side"`
	Size      decimal.Decimal `json:"sz"`
	OrigSize  decimal.Decimal `json:"origSz"`
	Timestamp int64           `json:"timestamp"`
}

// Mids maps coin to current mid price.
type Mids map[string]decimal.Decimal
