package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"LiquidSentinel/internal/collector"
	"LiquidSentinel/internal/metrics"
	"LiquidSentinel/internal/model"
	"LiquidSentinel/internal/notifier"
	"LiquidSentinel/internal/ratelimit"
	"LiquidSentinel/internal/recorder"
)

// Refresh triggers.
const (
	TriggerCron    = "cron"
	TriggerManual  = "manual"
	TriggerStartup = "startup"
)

// ErrRefreshInProgress is returned when a refresh is requested while another one runs.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// BudgetSource reports the shared weight budget.
type BudgetSource interface {
	Snapshot() ratelimit.Usage
}

// Sender delivers a formatted message. A nil Sender disables notifications.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Scheduler runs refresh cycles on a cron schedule and caches the latest results.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	Recorder  recorder.Recorder
	Budget    BudgetSource
	Notifier  Sender
	Accounts  []string
	Ctx       context.Context

	clock  clockwork.Clock
	logger *zap.Logger

	refreshMu sync.Mutex // held for the duration of a cycle
	running   sync.WaitGroup

	mu     sync.RWMutex
	latest []model.AccountResult
	lastAt time.Time
}

// NewScheduler creates a new Scheduler. notifier may be nil.
func NewScheduler(ctx context.Context, col *collector.Collector, rec recorder.Recorder, budget BudgetSource,
	sender Sender, accounts []string, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Collector: col,
		Recorder:  rec,
		Budget:    budget,
		Notifier:  sender,
		Accounts:  accounts,
		Ctx:       ctx,
		clock:     clock,
		logger:    logger,
	}
}

// RegisterAll registers the refresh and digest tasks. An empty digest expression disables the digest.
func (s *Scheduler) RegisterAll(refreshCron, digestCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	if digestCron == "" || s.Notifier == nil {
		return nil
	}
	if _, err := s.Cron.AddFunc(digestCron, s.digestTask); err != nil {
		return fmt.Errorf("register digest task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("Scheduler started", zap.Int("accounts", len(s.Accounts)))
}

// Stop waits for running cron jobs and background refreshes to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.running.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) refreshTask() {
	if _, err := s.Refresh(s.Ctx, TriggerCron); err != nil {
		s.logger.Warn("Scheduled refresh skipped", zap.Error(err))
	}
}

func (s *Scheduler) digestTask() {
	s.trySend(s.Summary())
}

// TriggerRefresh starts a refresh in the background. It returns
// ErrRefreshInProgress if a cycle is already running.
func (s *Scheduler) TriggerRefresh(trigger string) error {
	if !s.refreshMu.TryLock() {
		return ErrRefreshInProgress
	}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer s.refreshMu.Unlock()
		s.refresh(s.Ctx, trigger)
	}()
	return nil
}

// Refresh runs one collection cycle over every tracked account and returns
// the results. Cycles never overlap.
func (s *Scheduler) Refresh(ctx context.Context, trigger string) ([]model.AccountResult, error) {
	if !s.refreshMu.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer s.refreshMu.Unlock()
	return s.refresh(ctx, trigger), nil
}

func (s *Scheduler) refresh(ctx context.Context, trigger string) []model.AccountResult {
	started := s.clock.Now()
	s.logger.Info("Refresh cycle started", zap.String("trigger", trigger), zap.Int("accounts", len(s.Accounts)))

	results := s.Collector.CollectAll(ctx, s.Accounts)

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
			continue
		}
		if err := s.Recorder.RecordSnapshot(r.Snapshot); err != nil {
			s.logger.Error("Record snapshot", zap.String("address", r.Address), zap.Error(err))
		}
	}

	evt := &recorder.CycleEvent{
		StartedAt: started,
		Duration:  s.clock.Since(started),
		Accounts:  len(results),
		Failed:    failed,
		Trigger:   trigger,
	}
	if s.Budget != nil {
		evt.Budget = s.Budget.Snapshot()
	}
	if err := s.Recorder.RecordCycle(evt); err != nil {
		s.logger.Error("Record refresh cycle", zap.Error(err))
	}

	metrics.RefreshCyclesTotal.WithLabelValues(cycleResult(len(results), failed)).Inc()
	metrics.AccountsFailed.Set(float64(failed))

	s.mu.Lock()
	s.latest = results
	s.lastAt = started
	s.mu.Unlock()

	s.logger.Info("Refresh cycle finished",
		zap.String("trigger", trigger),
		zap.Int("failed", failed),
		zap.Duration("duration", evt.Duration),
		zap.Int("weight_consumed", evt.Budget.Consumed),
	)
	if failed > 0 {
		s.trySend(notifier.FormatFailures(results))
	}
	return results
}

func cycleResult(total, failed int) string {
	switch {
	case failed == 0:
		return "ok"
	case failed == total:
		return "failed"
	default:
		return "partial"
	}
}

// Latest returns the results of the most recent cycle and when it started.
// The zero time means no cycle has completed yet.
func (s *Scheduler) Latest() ([]model.AccountResult, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AccountResult, len(s.latest))
	copy(out, s.latest)
	return out, s.lastAt
}

// Account returns the latest result for address. Matching ignores case.
func (s *Scheduler) Account(address string) (model.AccountResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.latest {
		if strings.EqualFold(r.Address, address) {
			return r, true
		}
	}
	return model.AccountResult{}, false
}

// Summary formats the latest cycle as a digest message.
func (s *Scheduler) Summary() string {
	results, at := s.Latest()
	return notifier.FormatDigest(results, s.budget(), at)
}

func (s *Scheduler) budget() ratelimit.Usage {
	if s.Budget == nil {
		return ratelimit.Usage{}
	}
	return s.Budget.Snapshot()
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}
	// "/summary@SentinelBot" in group chats
	cmd, _, _ := strings.Cut(fields[0], "@")
	switch cmd {
	case "/summary":
		return s.Summary()
	case "/budget":
		return notifier.FormatBudget(s.budget())
	case "/account":
		if len(fields) < 2 {
			return "usage: /account <address>"
		}
		r, ok := s.Account(fields[1])
		if !ok {
			return fmt.Sprintf("account %s is not tracked", fields[1])
		}
		return notifier.FormatAccount(r)
	case "/refresh":
		if err := s.TriggerRefresh(TriggerManual); err != nil {
			return "A refresh is already running."
		}
		return "Refresh started."
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Send(s.Ctx, text); err != nil {
		s.logger.Error("Send notification", zap.Error(err))
	}
}
