package recorder

import (
	"time"

	"LiquidSentinel/internal/model"
	"LiquidSentinel/internal/ratelimit"
)

// CycleEvent summarizes one refresh cycle.
type CycleEvent struct {
	StartedAt time.Time
	Duration  time.Duration
	Accounts  int
	Failed    int
	Budget    ratelimit.Usage // budget state when the cycle finished
	Trigger   string          // "cron", "manual" or "startup"
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordSnapshot(snap *model.AccountSnapshot) error
	RecordCycle(evt *CycleEvent) error
	Close() error
}
