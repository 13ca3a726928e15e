package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"LiquidSentinel/internal/metrics"
)

// GateConfig tunes admission pacing.
type GateConfig struct {
	// MinSpacing is the minimum gap between two consecutive grants.
	MinSpacing time.Duration
	// SafetyMargin is added to computed readiness times to absorb clock drift.
	SafetyMargin time.Duration
	// MaxWait caps a single sleep so waiters re-check the ledger periodically.
	MaxWait time.Duration
}

// Gate admits requests only while the ledger has room for their weight.
// Checking and recording happen under one lock so concurrent callers
// can never jointly exceed the limit.
type Gate struct {
	mu        sync.Mutex
	ledger    *Ledger
	cfg       GateConfig
	clock     clockwork.Clock
	logger    *zap.Logger
	lastGrant time.Time
}

// NewGate creates a gate over ledger.
func NewGate(ledger *Ledger, cfg GateConfig, clock clockwork.Clock, logger *zap.Logger) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Second
	}
	return &Gate{
		ledger: ledger,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// Ledger returns the ledger the gate draws from.
func (g *Gate) Ledger() *Ledger { return g.ledger }

// Admit blocks until weight fits in the budget, records it, and returns.
// It fails immediately with *ConfigurationError when weight can never fit,
// and returns ctx.Err() if ctx ends first.
func (g *Gate) Admit(ctx context.Context, weight int) error {
	limit := g.ledger.Limit()
	if weight <= 0 || weight > limit {
		return &ConfigurationError{Weight: weight, Limit: limit}
	}

	start := g.clock.Now()
	logged := false
	for {
		granted, wait, changed, err := g.tryAdmit(ctx, weight)
		if err != nil {
			return err
		}
		if granted {
			waited := g.clock.Since(start)
			metrics.AdmissionsTotal.Inc()
			metrics.AdmittedWeightTotal.Add(float64(weight))
			metrics.AdmitWaitSeconds.Observe(waited.Seconds())
			if logged {
				g.logger.Debug("Budget admitted after wait",
					zap.Int("weight", weight),
					zap.Duration("waited", waited),
				)
			}
			return nil
		}

		if !logged {
			g.logger.Info("Budget exhausted, waiting",
				zap.Int("weight", weight),
				zap.Duration("wait", wait),
			)
			logged = true
		}
		if err := g.wait(ctx, wait, changed); err != nil {
			return err
		}
	}
}

// tryAdmit performs one check-and-record attempt. When the budget is full it
// returns how long to sleep and a channel that fires on the next ledger change.
func (g *Gate) tryAdmit(ctx context.Context, weight int) (bool, time.Duration, <-chan struct{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.MinSpacing > 0 && !g.lastGrant.IsZero() {
		if d := g.lastGrant.Add(g.cfg.MinSpacing).Sub(g.clock.Now()); d > 0 {
			if err := g.wait(ctx, d, nil); err != nil {
				return false, 0, nil, err
			}
		}
	}

	// Grab the channel before checking so a change after the check still wakes us.
	changed := g.ledger.Changed()
	if g.ledger.Consumed()+weight <= g.ledger.Limit() {
		g.ledger.Record(weight)
		g.lastGrant = g.clock.Now()
		return true, 0, nil, nil
	}

	wait := g.cfg.MaxWait
	if ready, ok := g.ledger.ReadyAt(weight); ok {
		wait = ready.Sub(g.clock.Now()) + g.cfg.SafetyMargin
	}
	if wait > g.cfg.MaxWait {
		wait = g.cfg.MaxWait
	}
	if wait <= 0 {
		wait = time.Millisecond
	}
	return false, wait, changed, nil
}

func (g *Gate) wait(ctx context.Context, d time.Duration, changed <-chan struct{}) error {
	timer := g.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	case <-changed:
		return nil
	}
}
