package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiquidSentinel/internal/model"
	"LiquidSentinel/internal/ratelimit"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc, retries int) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tn, err := NewTelegramNotifier("TOKEN", "42", "", retries, nil)
	require.NoError(t, err)
	tn.APIBase = srv.URL
	tn.client.RetryWaitMin = time.Millisecond
	tn.client.RetryWaitMax = 2 * time.Millisecond
	return tn
}

func TestSend(t *testing.T) {
	var got map[string]string
	tn := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}, 0)

	require.NoError(t, tn.Send(context.Background(), "<b>hi</b>"))
	assert.Equal(t, map[string]string{"chat_id": "42", "text": "<b>hi</b>", "parse_mode": "HTML"}, got)
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	tn := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}, 3)

	require.NoError(t, tn.Send(context.Background(), "x"))
	assert.Equal(t, int32(3), hits.Load())
}

func TestSend_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	tn := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}, 3)

	err := tn.Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "chat not found")
	assert.Equal(t, int32(1), hits.Load())
}

func TestDispatch(t *testing.T) {
	var (
		mu      sync.Mutex
		replies []string
	)
	tn := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		var p map[string]string
		json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		replies = append(replies, p["text"])
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}, 0)

	var updates []telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(`[
		{"update_id":10,"message":{"text":" /budget ","chat":{"id":42}}},
		{"update_id":11,"message":{"text":"/summary","chat":{"id":7}}},
		{"update_id":12},
		{"update_id":13,"message":{"text":"/quiet","chat":{"id":42}}}
	]`), &updates))

	var seen []string
	handler := func(cmd string) string {
		seen = append(seen, cmd)
		if cmd == "/quiet" {
			return ""
		}
		return "reply to " + cmd
	}

	offset := tn.dispatch(context.Background(), updates, 0, handler)
	assert.Equal(t, 14, offset)
	assert.Equal(t, []string{"/budget", "/quiet"}, seen, "foreign chats are ignored and text is trimmed")
	assert.Equal(t, []string{"reply to /budget"}, replies)
}

func TestStartPolling_StopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	tn := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getUpdates") {
			assert.Equal(t, "30", r.URL.Query().Get("timeout"))
			if calls.Add(1) >= 2 {
				cancel()
			}
			w.Write([]byte(`{"ok":true,"result":[]}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}, 0)

	done := make(chan struct{})
	go func() {
		tn.StartPolling(ctx, func(string) string { return "" })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop after cancel")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func sampleResults() []model.AccountResult {
	return []model.AccountResult{
		{
			Address: "0x1111111111111111111111111111111111111111",
			Snapshot: &model.AccountSnapshot{
				Address: "0x1111111111111111111111111111111111111111",
				Margin:  model.MarginView{AccountValue: decimal.RequireFromString("1234.5")},
				Fills:   model.FillStats{NetPnl: decimal.RequireFromString("-12.25")},
				Positions: []model.PositionView{
					{Coin: "BTC", Side: "long", Size: decimal.RequireFromString("0.1"), UnrealizedPnl: decimal.RequireFromString("50")},
				},
				Warnings: []string{"funding: timeout"},
			},
		},
		{Address: "0x2222222222222222222222222222222222222222", Error: "fetch clearinghouse state: <boom>"},
	}
}

func TestFormatDigest(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	msg := FormatDigest(sampleResults(), ratelimit.Usage{Consumed: 240, Limit: 1100}, at)

	assert.Contains(t, msg, "2024-05-01 08:00 UTC")
	assert.Contains(t, msg, "0x1111…1111")
	assert.Contains(t, msg, "value $1234.50")
	assert.Contains(t, msg, "uPnL +$50.00")
	assert.Contains(t, msg, "30d net -$12.25")
	assert.Contains(t, msg, "1 warning(s)")
	assert.Contains(t, msg, "&lt;boom&gt;", "errors are HTML escaped")
	assert.Contains(t, msg, "Total value: $1234.50")
	assert.Contains(t, msg, "API weight: 240/1100")
}

func TestFormatDigest_NoCycleYet(t *testing.T) {
	msg := FormatDigest(nil, ratelimit.Usage{Limit: 1100, Remaining: 1100, WindowMS: 60000}, time.Time{})
	assert.Contains(t, msg, "No refresh has completed yet")
	assert.Contains(t, msg, "Remaining: 1100")
	assert.Contains(t, msg, "Window: 1m0s")
}

func TestFormatAccount(t *testing.T) {
	results := sampleResults()
	msg := FormatAccount(results[0])
	assert.Contains(t, msg, "BTC long 0.1")
	assert.Contains(t, msg, "⚠️ funding: timeout")

	msg = FormatAccount(results[1])
	assert.Contains(t, msg, "❌")
}

func TestFormatFailures(t *testing.T) {
	msg := FormatFailures(sampleResults())
	assert.Contains(t, msg, "0x2222…2222")
	assert.NotContains(t, msg, "0x1111")
}
