package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"LiquidSentinel/internal/calculator"
	"LiquidSentinel/internal/hyperliquid"
	"LiquidSentinel/internal/model"
)

// Options tunes a collection run.
type Options struct {
	Lookback    time.Duration // how far back fills and funding are walked
	MaxPages    int
	Parallelism int
}

// Collector fetches account data and turns it into snapshots.
type Collector struct {
	fetcher Fetcher
	opts    Options
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, opts Options, clock clockwork.Clock, logger *zap.Logger) *Collector {
	if opts.Lookback <= 0 {
		opts.Lookback = 30 * 24 * time.Hour
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{fetcher: fetcher, opts: opts, clock: clock, logger: logger}
}

// CollectAll snapshots every address. A failing account is reported in its
// result and does not cancel the others. Results keep the input order.
func (c *Collector) CollectAll(ctx context.Context, addresses []string) []model.AccountResult {
	results := make([]model.AccountResult, len(addresses))

	mids, err := c.fetcher.AllMids(ctx)
	if err != nil {
		c.logger.Warn("Mid prices unavailable, using position values", zap.Error(err))
	}

	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			results[i].Address = addr
			snap, err := c.collect(ctx, addr, mids)
			if err != nil {
				results[i].Error = err.Error()
				c.logger.Warn("Account collection failed", zap.String("address", addr), zap.Error(err))
				return nil
			}
			if mids == nil {
				snap.Warnings = append(snap.Warnings, "mid prices unavailable")
			}
			results[i].Snapshot = snap
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Collect snapshots a single address.
func (c *Collector) Collect(ctx context.Context, address string) (*model.AccountSnapshot, error) {
	mids, err := c.fetcher.AllMids(ctx)
	if err != nil {
		c.logger.Warn("Mid prices unavailable, using position values", zap.Error(err))
	}
	return c.collect(ctx, address, mids)
}

func (c *Collector) collect(ctx context.Context, address string, mids hyperliquid.Mids) (*model.AccountSnapshot, error) {
	now := c.clock.Now()
	state, err := c.fetcher.ClearinghouseState(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch clearinghouse state: %w", err)
	}

	snap := &model.AccountSnapshot{
		Address: address,
		TakenAt: now,
	}
	warn := func(what string, err error) {
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s: %v", what, err))
	}

	spot, err := c.fetcher.SpotClearinghouseState(ctx, address)
	if err != nil {
		warn("spot balances", err)
	}
	snap.Positions = calculator.Positions(state, mids)
	snap.Margin = calculator.Margin(state, spot)

	start := now.Add(-c.opts.Lookback).UnixMilli()
	fills, err := c.fetcher.FetchAllFills(ctx, address, start, nil, c.opts.MaxPages)
	if err != nil {
		warn("fills", err)
	}
	snap.Fills = calculator.SummarizeFills(fills)

	funding, err := c.fetcher.FetchAllFunding(ctx, address, start, nil, c.opts.MaxPages)
	if err != nil {
		warn("funding", err)
	}
	snap.FundingTotal = calculator.FundingTotal(funding)

	periods, err := c.fetcher.Portfolio(ctx, address)
	if err != nil {
		warn("portfolio", err)
	} else if all, ok := hyperliquid.FindPeriod(periods, "allTime"); ok {
		if dd, err := calculator.MaxDrawdown(all.AccountValueHistory); err == nil {
			snap.MaxDrawdown = dd
		}
	}

	orders, err := c.fetcher.OpenOrders(ctx, address)
	if err != nil {
		warn("open orders", err)
	}
	snap.OpenOrders = len(orders)

	// A cancelled cycle must not pass for a degraded snapshot.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return snap, nil
}
