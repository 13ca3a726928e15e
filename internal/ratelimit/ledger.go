// Package ratelimit meters outbound info requests against a rolling weight budget.
package ratelimit

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"LiquidSentinel/internal/metrics"
)

// WeightEntry is the cost of one admitted request.
type WeightEntry struct {
	Weight int   `json:"weight"`
	TS     int64 `json:"ts"` // unix milliseconds
}

// Usage is a point-in-time view of the budget.
type Usage struct {
	Consumed  int   `json:"consumed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Entries   int   `json:"entries"`
	WindowMS  int64 `json:"window_ms"`
}

// Ledger tracks admitted request weights over a sliding window and mirrors
// them to a durable slot so a restart does not reset the budget.
//
// The in-memory entries are authoritative; slot failures are logged and ignored.
type Ledger struct {
	mu      sync.Mutex
	entries []WeightEntry
	limit   int
	window  time.Duration
	slot    Slot
	clock   clockwork.Clock
	logger  *zap.Logger
	changed chan struct{}
}

// NewLedger creates an empty ledger. slot may be nil to disable persistence.
func NewLedger(limit int, window time.Duration, slot Slot, clock clockwork.Clock, logger *zap.Logger) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		limit:   limit,
		window:  window,
		slot:    slot,
		clock:   clock,
		logger:  logger,
		changed: make(chan struct{}),
	}
}

// Limit returns the budget limit.
func (l *Ledger) Limit() int { return l.limit }

// Window returns the rolling window length.
func (l *Ledger) Window() time.Duration { return l.window }

// Load reads the durable slot once, dropping entries already outside the window.
// Missing or corrupt data yields an empty ledger.
func (l *Ledger) Load() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	if l.slot == nil {
		return
	}
	data, err := l.slot.Load()
	if err != nil {
		l.logger.Warn("Failed to read rate limit ledger, starting empty", zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}
	var stored []WeightEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		l.logger.Warn("Discarding corrupt rate limit ledger", zap.Error(err))
		return
	}

	// Entries stamped in the future (clock stepped back, hand-edited slot)
	// would hold budget until that time, so they are dropped.
	now := l.nowMS()
	dirty := false
	entries := make([]WeightEntry, 0, len(stored))
	for _, e := range stored {
		if e.Weight <= 0 || e.TS > now {
			dirty = true
			continue
		}
		entries = append(entries, e)
	}
	if !sort.SliceIsSorted(entries, func(i, j int) bool { return entries[i].TS < entries[j].TS }) {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].TS < entries[j].TS })
		dirty = true
	}
	l.entries = entries
	if l.prune(now) {
		dirty = true
	}
	// Rewrite the slot only when loading changed it, other processes may share it.
	if dirty {
		l.persist()
	}
	l.broadcast()

	l.logger.Info("Rate limit ledger loaded",
		zap.Int("entries", len(l.entries)),
		zap.Int("consumed", l.sum()),
		zap.Int("limit", l.limit),
	)
}

// Record appends an entry for weight stamped with the current time.
func (l *Ledger) Record(weight int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowMS()
	l.prune(now)
	l.entries = append(l.entries, WeightEntry{Weight: weight, TS: now})
	l.persist()
	l.broadcast()
	metrics.WeightConsumed.Set(float64(l.sum()))
}

// Consumed returns the total weight inside the window, pruning expired entries.
func (l *Ledger) Consumed() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.prune(l.nowMS()) {
		l.persist()
	}
	used := l.sum()
	metrics.WeightConsumed.Set(float64(used))
	return used
}

// MarkExhausted records that the server rejected us for exceeding the budget.
// The ledger is replaced by a single full-limit entry backdated by half a
// window, so the budget recovers after window/2 rather than a full window.
func (l *Ledger) MarkExhausted() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = []WeightEntry{{
		Weight: l.limit,
		TS:     l.nowMS() - (l.window / 2).Milliseconds(),
	}}
	l.persist()
	l.broadcast()
	metrics.ExhaustedTotal.Inc()
	metrics.WeightConsumed.Set(float64(l.limit))
	l.logger.Warn("Rate limit budget marked exhausted",
		zap.Duration("cooldown", l.window/2),
	)
}

// ReadyAt returns the earliest time at which weight fits in the budget.
// It returns false when weight can never fit.
func (l *Ledger) ReadyAt(weight int) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowMS()
	l.prune(now)
	if weight > l.limit {
		return time.Time{}, false
	}
	need := l.sum() + weight - l.limit
	if need <= 0 {
		return time.UnixMilli(now), true
	}
	freed := 0
	for _, e := range l.entries {
		freed += e.Weight
		if freed >= need {
			return time.UnixMilli(e.TS + l.window.Milliseconds()), true
		}
	}
	return time.Time{}, false
}

// Changed returns a channel closed on the next Record, MarkExhausted or Load.
func (l *Ledger) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// Snapshot reports the current budget state.
func (l *Ledger) Snapshot() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.nowMS())
	used := l.sum()
	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Consumed:  used,
		Limit:     l.limit,
		Remaining: remaining,
		Entries:   len(l.entries),
		WindowMS:  l.window.Milliseconds(),
	}
}

func (l *Ledger) nowMS() int64 {
	return l.clock.Now().UnixMilli()
}

// prune drops entries with now-ts >= window. Entries are ordered by ts.
func (l *Ledger) prune(now int64) bool {
	windowMS := l.window.Milliseconds()
	i := 0
	for i < len(l.entries) && now-l.entries[i].TS >= windowMS {
		i++
	}
	if i == 0 {
		return false
	}
	l.entries = append(l.entries[:0:0], l.entries[i:]...)
	return true
}

func (l *Ledger) sum() int {
	total := 0
	for _, e := range l.entries {
		total += e.Weight
	}
	return total
}

func (l *Ledger) persist() {
	if l.slot == nil {
		return
	}
	entries := l.entries
	if entries == nil {
		entries = []WeightEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		l.logger.Warn("Failed to encode rate limit ledger", zap.Error(err))
		return
	}
	if err := l.slot.Save(data); err != nil {
		l.logger.Warn("Failed to persist rate limit ledger", zap.Error(err))
	}
}

func (l *Ledger) broadcast() {
	close(l.changed)
	l.changed = make(chan struct{})
}
