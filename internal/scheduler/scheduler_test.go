package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiquidSentinel/internal/collector"
	"LiquidSentinel/internal/hyperliquid"
	"LiquidSentinel/internal/metrics"
	"LiquidSentinel/internal/model"
	"LiquidSentinel/internal/ratelimit"
	"LiquidSentinel/internal/recorder"
)

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeSender) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.msgs...)
}

type fakeBudget struct{ usage ratelimit.Usage }

func (b fakeBudget) Snapshot() ratelimit.Usage { return b.usage }

type memRecorder struct {
	mu     sync.Mutex
	snaps  []*model.AccountSnapshot
	cycles []*recorder.CycleEvent
}

func (m *memRecorder) RecordSnapshot(s *model.AccountSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, s)
	return nil
}

func (m *memRecorder) RecordCycle(e *recorder.CycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, e)
	return nil
}

func (m *memRecorder) Close() error { return nil }

func newTestScheduler(t *testing.T, fetcher *collector.MockFetcher, sender Sender) (*Scheduler, *memRecorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	col := collector.NewCollector(fetcher, collector.Options{Parallelism: 2}, clock, nil)
	rec := &memRecorder{}
	budget := fakeBudget{ratelimit.Usage{Consumed: 44, Limit: 1100, Remaining: 1056, WindowMS: 60000}}
	s := NewScheduler(context.Background(), col, rec, budget, sender, []string{addrA, addrB}, clock, nil)
	return s, rec
}

func healthyFetcher() *collector.MockFetcher {
	state := &hyperliquid.ClearinghouseState{Withdrawable: decimal.NewFromInt(10)}
	state.MarginSummary.AccountValue = decimal.NewFromInt(100)
	return &collector.MockFetcher{
		States: map[string]*hyperliquid.ClearinghouseState{addrA: state, addrB: state},
	}
}

func TestRefresh_RecordsSnapshotsAndCycle(t *testing.T) {
	sender := &fakeSender{}
	s, rec := newTestScheduler(t, healthyFetcher(), sender)
	before := testutil.ToFloat64(metrics.RefreshCyclesTotal.WithLabelValues("ok"))

	results, err := s.Refresh(context.Background(), TriggerManual)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, addrA, results[0].Address)
	assert.True(t, results[0].OK())

	assert.Len(t, rec.snaps, 2)
	require.Len(t, rec.cycles, 1)
	assert.Equal(t, TriggerManual, rec.cycles[0].Trigger)
	assert.Equal(t, 0, rec.cycles[0].Failed)
	assert.Equal(t, 44, rec.cycles[0].Budget.Consumed)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RefreshCyclesTotal.WithLabelValues("ok")))
	assert.Empty(t, sender.messages(), "healthy cycles do not alert")

	latest, at := s.Latest()
	assert.Len(t, latest, 2)
	assert.False(t, at.IsZero())
}

func TestRefresh_FailedAccountsAlert(t *testing.T) {
	fetcher := healthyFetcher()
	fetcher.Errors = map[string]error{"clearinghouseState": errors.New("boom")}
	sender := &fakeSender{}
	s, rec := newTestScheduler(t, fetcher, sender)

	results, err := s.Refresh(context.Background(), TriggerCron)
	require.NoError(t, err)
	for _, r := range results {
		assert.False(t, r.OK())
	}
	assert.Empty(t, rec.snaps)
	assert.Equal(t, 2, rec.cycles[0].Failed)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.AccountsFailed))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Refresh failures")
}

func TestRefresh_NoOverlap(t *testing.T) {
	s, _ := newTestScheduler(t, healthyFetcher(), nil)
	s.refreshMu.Lock()
	_, err := s.Refresh(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ErrRefreshInProgress)
	assert.ErrorIs(t, s.TriggerRefresh(TriggerManual), ErrRefreshInProgress)
	s.refreshMu.Unlock()
}

func TestTriggerRefresh_RunsInBackground(t *testing.T) {
	s, _ := newTestScheduler(t, healthyFetcher(), nil)
	require.NoError(t, s.TriggerRefresh(TriggerManual))

	require.Eventually(t, func() bool {
		_, at := s.Latest()
		return !at.IsZero()
	}, 2*time.Second, 5*time.Millisecond)
}

type gatedRecorder struct {
	memRecorder
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRecorder) RecordSnapshot(snap *model.AccountSnapshot) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.memRecorder.RecordSnapshot(snap)
}

func TestStop_WaitsForBackgroundRefresh(t *testing.T) {
	s, _ := newTestScheduler(t, healthyFetcher(), nil)
	rec := &gatedRecorder{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s.Recorder = rec

	require.NoError(t, s.TriggerRefresh(TriggerStartup))
	select {
	case <-rec.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never reached the recorder")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a refresh was still recording")
	case <-time.After(50 * time.Millisecond):
	}

	close(rec.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the refresh finished")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.snaps, 2)
}

func TestAccount(t *testing.T) {
	s, _ := newTestScheduler(t, healthyFetcher(), nil)
	_, ok := s.Account(addrA)
	assert.False(t, ok, "nothing cached before the first cycle")

	_, err := s.Refresh(context.Background(), TriggerStartup)
	require.NoError(t, err)

	r, ok := s.Account("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	require.True(t, ok)
	assert.Equal(t, addrA, r.Address)
}

func TestHandleCommand(t *testing.T) {
	s, _ := newTestScheduler(t, healthyFetcher(), nil)
	_, err := s.Refresh(context.Background(), TriggerStartup)
	require.NoError(t, err)

	assert.Contains(t, s.HandleCommand("/budget"), "Consumed: 44/1100")
	assert.Contains(t, s.HandleCommand("/summary@SentinelBot"), "Total value: $200.00")
	assert.Contains(t, s.HandleCommand("/account "+addrB), "Account value: $100.00")
	assert.Contains(t, s.HandleCommand("/account 0xdead"), "not tracked")
	assert.Contains(t, s.HandleCommand("/account"), "usage")
	assert.Contains(t, s.HandleCommand("hello"), "Available commands")
}

func TestRegisterAll(t *testing.T) {
	s, _ := newTestScheduler(t, healthyFetcher(), &fakeSender{})
	require.NoError(t, s.RegisterAll("0 */5 * * * *", "0 0 8 * * *"))
	assert.Len(t, s.Cron.Entries(), 2)

	s2, _ := newTestScheduler(t, healthyFetcher(), nil)
	require.NoError(t, s2.RegisterAll("0 */5 * * * *", "0 0 8 * * *"))
	assert.Len(t, s2.Cron.Entries(), 1, "digest needs a notifier")

	assert.Error(t, s2.RegisterAll("not a cron", ""))
}

func TestCycleResult(t *testing.T) {
	assert.Equal(t, "ok", cycleResult(0, 0))
	assert.Equal(t, "ok", cycleResult(3, 0))
	assert.Equal(t, "partial", cycleResult(3, 1))
	assert.Equal(t, "failed", cycleResult(3, 3))
}
