package hyperliquid

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"LiquidSentinel/internal/ratelimit"
)

// testStack is a client wired against a real clock with short windows.
type testStack struct {
	ledger *ratelimit.Ledger
	gate   *ratelimit.Gate
	exec   *Executor
	client *Client
}

func newTestStack(t *testing.T, url string, window time.Duration, retryMax int) *testStack {
	t.Helper()
	ledger := ratelimit.NewLedger(1100, window, nil, nil, nil)
	gate := ratelimit.NewGate(ledger, ratelimit.GateConfig{
		SafetyMargin: time.Millisecond,
		MaxWait:      window,
	}, nil, nil)
	exec, err := NewExecutor(ExecutorConfig{
		URL:         url,
		Timeout:     2 * time.Second,
		RetryMax:    retryMax,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
	}, gate, nil)
	require.NoError(t, err, "executor must build")
	weights := ratelimit.NewWeightTable(ratelimit.LightWeight, ratelimit.HeavyWeight, []string{"allMids", "clearinghouseState", "spotClearinghouseState"}, nil)
	return &testStack{
		ledger: ledger,
		gate:   gate,
		exec:   exec,
		client: NewClient(gate, exec, weights, PageConfig{}, nil),
	}
}

func mustCloseBody(t *testing.T, closer io.Closer) {
	t.Helper()
	if err := closer.Close(); err != nil {
		t.Fatalf("body must close: %v", err)
	}
}

func mustDecodeJSON(t *testing.T, reader io.Reader, target any) {
	t.Helper()
	if err := json.NewDecoder(reader).Decode(target); err != nil {
		t.Fatalf("decode json must not error: %v", err)
	}
}

func decodeValue[T any](t *testing.T, data string) T {
	t.Helper()
	var target T
	require.NoError(t, json.Unmarshal([]byte(data), &target), "fixture must decode")
	return target
}
