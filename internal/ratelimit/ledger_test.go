package ratelimit

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSlot struct {
	data    []byte
	loadErr error
	saveErr error
	saves   int
}

func (s *memSlot) Load() ([]byte, error) { return s.data, s.loadErr }

func (s *memSlot) Save(data []byte) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data = append([]byte(nil), data...)
	return nil
}

func TestLedger_WindowBoundary(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLedger(100, time.Minute, nil, clock, nil)

	l.Record(5)
	clock.Advance(time.Minute - time.Millisecond)
	assert.Equal(t, 5, l.Consumed())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 0, l.Consumed(), "entry must stop counting once now-ts reaches the window")
}

func TestLedger_MarkExhausted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLedger(1100, time.Minute, nil, clock, nil)
	l.Record(20)
	l.Record(20)

	start := clock.Now()
	l.MarkExhausted()

	assert.Equal(t, 1100, l.Consumed())
	ready, ok := l.ReadyAt(2)
	require.True(t, ok)
	assert.Equal(t, start.Add(30*time.Second).UnixMilli(), ready.UnixMilli())

	clock.Advance(30*time.Second - time.Millisecond)
	assert.Equal(t, 1100, l.Consumed())
	clock.Advance(time.Millisecond)
	assert.Equal(t, 0, l.Consumed())
}

func TestLedger_ReadyAt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLedger(50, 10*time.Second, nil, clock, nil)

	t0 := clock.Now()
	l.Record(20)
	clock.Advance(2 * time.Second)
	l.Record(20)

	ready, ok := l.ReadyAt(10)
	require.True(t, ok)
	assert.Equal(t, clock.Now().UnixMilli(), ready.UnixMilli(), "fits now")

	ready, ok = l.ReadyAt(25)
	require.True(t, ok)
	assert.Equal(t, t0.Add(10*time.Second).UnixMilli(), ready.UnixMilli(), "first entry must expire")

	ready, ok = l.ReadyAt(50)
	require.True(t, ok)
	assert.Equal(t, t0.Add(12*time.Second).UnixMilli(), ready.UnixMilli(), "both entries must expire")

	_, ok = l.ReadyAt(51)
	assert.False(t, ok)
}

func TestLedger_PersistAndReload(t *testing.T) {
	clock := clockwork.NewFakeClock()
	slot, err := NewFileSlot(filepath.Join(t.TempDir(), "nested", "ledger.json"))
	require.NoError(t, err)

	l := NewLedger(1100, time.Minute, slot, clock, nil)
	l.Load()
	l.Record(20)
	clock.Advance(40 * time.Second)
	l.Record(2)

	clock.Advance(30 * time.Second)
	restarted := NewLedger(1100, time.Minute, slot, clock, nil)
	restarted.Load()

	usage := restarted.Snapshot()
	assert.Equal(t, 2, usage.Consumed, "stale entry must be dropped on load")
	assert.Equal(t, 1, usage.Entries)
	assert.Equal(t, 1098, usage.Remaining)
}

func TestLedger_CorruptSlot(t *testing.T) {
	slot := &memSlot{data: []byte("{not json")}
	l := NewLedger(100, time.Minute, slot, clockwork.NewFakeClock(), nil)

	require.NotPanics(t, l.Load)
	assert.Equal(t, 0, l.Consumed())

	l.Record(3)
	assert.Equal(t, 3, l.Consumed())
	assert.JSONEq(t, `[{"weight":3,"ts":`+strconv.FormatInt(l.clock.Now().UnixMilli(), 10)+`}]`, string(slot.data))
}

func TestLedger_SlotErrorsAreSwallowed(t *testing.T) {
	slot := &memSlot{loadErr: errors.New("disk gone"), saveErr: errors.New("read-only")}
	l := NewLedger(100, time.Minute, slot, clockwork.NewFakeClock(), nil)

	l.Load()
	l.Record(7)
	l.MarkExhausted()

	assert.Equal(t, 100, l.Consumed())
	assert.Equal(t, 2, slot.saves)
}

func TestLedger_ChangedFires(t *testing.T) {
	l := NewLedger(100, time.Minute, nil, clockwork.NewFakeClock(), nil)

	ch := l.Changed()
	select {
	case <-ch:
		t.Fatal("closed before any change")
	default:
	}

	l.Record(1)
	select {
	case <-ch:
	default:
		t.Fatal("Record must close the change channel")
	}

	next := l.Changed()
	l.MarkExhausted()
	select {
	case <-next:
	default:
		t.Fatal("MarkExhausted must close the change channel")
	}
}

func TestLedger_LoadDropsFutureEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now().UnixMilli()
	future := clock.Now().Add(365 * 24 * time.Hour).UnixMilli()
	slot := &memSlot{data: []byte(`[{"weight":2,"ts":` + strconv.FormatInt(now-1000, 10) + `},` +
		`{"weight":1100,"ts":` + strconv.FormatInt(future, 10) + `}]`)}

	l := NewLedger(1100, time.Minute, slot, clock, nil)
	l.Load()

	assert.Equal(t, 2, l.Consumed(), "entries stamped after now must not hold budget")
	ready, ok := l.ReadyAt(2)
	require.True(t, ok)
	assert.False(t, ready.After(clock.Now()))
	assert.Equal(t, 1, slot.saves, "filtered entries are written back")
	assert.NotContains(t, string(slot.data), strconv.FormatInt(future, 10))
}

func TestLedger_LoadLeavesCleanSlotUntouched(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now().UnixMilli()
	data := []byte(`[{"weight":20,"ts":` + strconv.FormatInt(now-2000, 10) + `},` +
		`{"weight":2,"ts":` + strconv.FormatInt(now-1000, 10) + `}]`)
	slot := &memSlot{data: data}

	l := NewLedger(1100, time.Minute, slot, clock, nil)
	l.Load()

	assert.Equal(t, 22, l.Snapshot().Consumed)
	assert.Equal(t, 0, slot.saves, "loading a clean slot must not rewrite it")

	clock.Advance(time.Minute)
	slot.data = data
	reloaded := NewLedger(1100, time.Minute, slot, clock, nil)
	reloaded.Load()
	assert.Equal(t, 0, reloaded.Snapshot().Consumed)
	assert.Equal(t, 1, slot.saves, "pruned entries are written back")
}
