package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"LiquidSentinel/internal/config"
	"LiquidSentinel/internal/hyperliquid"
	"LiquidSentinel/internal/ratelimit"
	"LiquidSentinel/internal/recorder"
)

const ledgerSlotKey = "ratelimit.ledger"

// stack is the rate-limited info API client and the storage behind it.
type stack struct {
	clock  clockwork.Clock
	ledger *ratelimit.Ledger
	gate   *ratelimit.Gate
	client *hyperliquid.Client
	sqlite *recorder.SQLiteRecorder // nil when SQLite could not be opened
}

func (s *stack) Close() {
	if s.sqlite != nil {
		s.sqlite.Close()
	}
}

// openLedger opens the durable slot and loads the ledger from it.
// withSQLite opens the SQLite recorder even when the ledger lives in a file.
func openLedger(cfg *config.Config, clock clockwork.Clock, withSQLite bool, logger *zap.Logger) (*stack, error) {
	s := &stack{clock: clock}

	if withSQLite || cfg.Ledger.Driver == "sqlite" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn("Init SQLite recorder failed", zap.Error(err))
		} else {
			s.sqlite = sr
		}
	}

	var slot ratelimit.Slot
	if cfg.Ledger.Driver == "sqlite" && s.sqlite != nil {
		slot = s.sqlite.Slot(ledgerSlotKey)
	} else {
		if cfg.Ledger.Driver == "sqlite" {
			logger.Warn("SQLite unavailable, keeping the rate limit ledger in a file", zap.String("path", cfg.Ledger.Path))
		}
		fs, err := ratelimit.NewFileSlot(cfg.Ledger.Path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open ledger file: %w", err)
		}
		slot = fs
	}

	s.ledger = ratelimit.NewLedger(cfg.RateLimit.Limit, cfg.RateLimit.Window, slot, clock, logger)
	s.ledger.Load()
	return s, nil
}

// buildStack wires ledger, gate, executor and client from config.
func buildStack(cfg *config.Config, withSQLite bool, logger *zap.Logger) (*stack, error) {
	s, err := openLedger(cfg, clockwork.NewRealClock(), withSQLite, logger)
	if err != nil {
		return nil, err
	}

	rl := cfg.RateLimit
	s.gate = ratelimit.NewGate(s.ledger, ratelimit.GateConfig{
		MinSpacing:   rl.MinSpacing,
		SafetyMargin: rl.SafetyMargin,
		MaxWait:      rl.MaxWait,
	}, s.clock, logger.Named("gate"))

	exec, err := hyperliquid.NewExecutor(hyperliquid.ExecutorConfig{
		URL:         cfg.Hyperliquid.InfoURL,
		Timeout:     cfg.Hyperliquid.Timeout,
		RetryMax:    rl.RetryMax,
		BackoffBase: rl.BackoffBase,
		BackoffMax:  rl.BackoffMax,
		Proxy:       cfg.Proxy,
	}, s.gate, logger.Named("executor"))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init executor: %w", err)
	}

	weights := ratelimit.NewWeightTable(rl.LightWeight, rl.HeavyWeight, rl.LightTypes, rl.Overrides)
	s.client = hyperliquid.NewClient(s.gate, exec, weights, hyperliquid.PageConfig{
		FillsPageCap:   cfg.Pagination.FillsPageCap,
		FundingPageCap: cfg.Pagination.FundingPageCap,
		MaxPages:       cfg.Pagination.MaxPages,
		PageDelay:      cfg.Pagination.PageDelay,
	}, logger.Named("hyperliquid"))
	return s, nil
}
