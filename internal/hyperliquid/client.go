// Package hyperliquid is a rate-limited client for the Hyperliquid info API.
package hyperliquid

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"LiquidSentinel/internal/ratelimit"
)

// Doer executes a single admitted info request.
type Doer interface {
	Execute(ctx context.Context, req Request, out any) error
}

// PageConfig bounds the paginated feeds.
type PageConfig struct {
	FillsPageCap   int
	FundingPageCap int
	MaxPages       int
	PageDelay      time.Duration
}

// Client exposes one typed method per info query. Every call resolves its
// weight, waits for admission at the gate, then hands off to the executor.
type Client struct {
	gate    *ratelimit.Gate
	doer    Doer
	weights ratelimit.WeightTable
	pages   PageConfig
	logger  *zap.Logger
}

// NewClient wires a client from its parts.
func NewClient(gate *ratelimit.Gate, doer Doer, weights ratelimit.WeightTable, pages PageConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pages.FillsPageCap <= 0 {
		pages.FillsPageCap = FillsPageCap
	}
	if pages.FundingPageCap <= 0 {
		pages.FundingPageCap = FundingPageCap
	}
	if pages.MaxPages <= 0 {
		pages.MaxPages = DefaultMaxPages
	}
	return &Client{
		gate:    gate,
		doer:    doer,
		weights: weights,
		pages:   pages,
		logger:  logger,
	}
}

// Budget reports the current state of the shared weight budget.
func (c *Client) Budget() ratelimit.Usage {
	return c.gate.Ledger().Snapshot()
}

func (c *Client) sendInfo(ctx context.Context, reqType string, payload, result any) error {
	weight := c.weights.Resolve(reqType)
	if err := c.gate.Admit(ctx, weight); err != nil {
		return fmt.Errorf("admit %s: %w", reqType, err)
	}
	return c.doer.Execute(ctx, Request{Type: reqType, Weight: weight, Body: payload}, result)
}

// FetchAllFills walks userFillsByTime from start until the feed is exhausted
// or maxPages pages were read. maxPages <= 0 uses the configured ceiling.
func (c *Client) FetchAllFills(ctx context.Context, user string, start int64, end *int64, maxPages int) ([]Fill, error) {
	if maxPages <= 0 {
		maxPages = c.pages.MaxPages
	}
	fetch := func(ctx context.Context, from int64, to *int64) ([]Fill, error) {
		return c.UserFillsByTime(ctx, user, from, to, false)
	}
	fills, err := Walk(ctx, fetch, func(f Fill) int64 { return f.Time }, start, end, WalkOptions{
		PageCap:   c.pages.FillsPageCap,
		MaxPages:  maxPages,
		PageDelay: c.pages.PageDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch fills for %s: %w", user, err)
	}
	c.logger.Debug("Fills fetched", zap.String("user", user), zap.Int("count", len(fills)))
	return fills, nil
}

// FetchAllFunding walks userFunding the same way as FetchAllFills.
func (c *Client) FetchAllFunding(ctx context.Context, user string, start int64, end *int64, maxPages int) ([]UserFunding, error) {
	if maxPages <= 0 {
		maxPages = c.pages.MaxPages
	}
	fetch := func(ctx context.Context, from int64, to *int64) ([]UserFunding, error) {
		return c.UserFunding(ctx, user, from, to)
	}
	funding, err := Walk(ctx, fetch, func(f UserFunding) int64 { return f.Time }, start, end, WalkOptions{
		PageCap:   c.pages.FundingPageCap,
		MaxPages:  maxPages,
		PageDelay: c.pages.PageDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch funding for %s: %w", user, err)
	}
	return funding, nil
}
