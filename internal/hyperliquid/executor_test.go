package hyperliquid

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiquidSentinel/internal/ratelimit"
)

func TestExecute_AlwaysRateLimited(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	s := newTestStack(t, server.URL, 40*time.Millisecond, 3)
	ctx := context.Background()
	require.NoError(t, s.gate.Admit(ctx, ratelimit.HeavyWeight))

	err := s.exec.Execute(ctx, Request{Type: "userFills", Weight: ratelimit.HeavyWeight, Body: map[string]string{"type": "userFills"}}, nil)
	require.ErrorIs(t, err, ErrRateLimited)

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 4, rl.Attempts)
	assert.Equal(t, int32(4), hits.Load(), "retry ceiling 3 means exactly 4 attempts")
}

func TestExecute_RecoversAfter429(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"BTC":"50000"}`))
	}))
	t.Cleanup(server.Close)

	s := newTestStack(t, server.URL, 40*time.Millisecond, 3)
	ctx := context.Background()
	require.NoError(t, s.gate.Admit(ctx, ratelimit.LightWeight))

	start := time.Now()
	var mids Mids
	err := s.exec.Execute(ctx, Request{Type: "allMids", Weight: ratelimit.LightWeight, Body: map[string]string{"type": "allMids"}}, &mids)
	require.NoError(t, err)
	assert.Equal(t, "50000", mids["BTC"].String())
	assert.Equal(t, int32(2), hits.Load())
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond, "retry must wait for the exhausted budget to recover")
	assert.Equal(t, ratelimit.LightWeight, s.ledger.Consumed(), "retry must be re-admitted against the reset ledger")
}

func TestExecute_HTTPErrorNotRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad request body", http.StatusUnprocessableEntity)
	}))
	t.Cleanup(server.Close)

	s := newTestStack(t, server.URL, time.Minute, 3)
	err := s.exec.Execute(context.Background(), Request{Type: "portfolio", Weight: 20, Body: struct{}{}}, nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.Status)
	assert.Equal(t, "bad request body", httpErr.Body)
	assert.Equal(t, int32(1), hits.Load())
	assert.False(t, errors.Is(err, ErrRateLimited))
}

func TestExecute_Timeout(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	s := newTestStack(t, server.URL, time.Minute, 3)
	s.exec.client.HTTPClient.Timeout = 20 * time.Millisecond

	err := s.exec.Execute(context.Background(), Request{Type: "allMids", Weight: 2, Body: struct{}{}}, nil)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestExecute_NetworkError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	s := newTestStack(t, url, time.Minute, 3)
	err := s.exec.Execute(context.Background(), Request{Type: "allMids", Weight: 2, Body: struct{}{}}, nil)
	require.ErrorIs(t, err, ErrNetwork)
}

func TestExecute_CallerCancellation(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(server.Close)
	// Cleanups run last-in first-out, so the handler is released before Close waits on it.
	t.Cleanup(func() { close(release) })

	s := newTestStack(t, server.URL, time.Minute, 3)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := s.exec.Execute(ctx, Request{Type: "allMids", Weight: 2, Body: struct{}{}}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrNetwork))
}

func TestExecute_DecodeError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	t.Cleanup(server.Close)

	s := newTestStack(t, server.URL, time.Minute, 3)
	var out []Fill
	err := s.exec.Execute(context.Background(), Request{Type: "userFills", Weight: 20, Body: struct{}{}}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode userFills response")
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 8 * time.Second},
		{64, 8 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exponentialBackoff(time.Second, 8*time.Second, tt.attempt, nil), "attempt %d", tt.attempt)
	}
}
