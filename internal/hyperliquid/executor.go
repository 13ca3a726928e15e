package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"LiquidSentinel/internal/metrics"
	"LiquidSentinel/internal/ratelimit"
)

const maxErrorBody = 512

// Request is one info API call.
type Request struct {
	Type   string
	Weight int
	Body   any
}

// ExecutorConfig tunes the HTTP layer.
type ExecutorConfig struct {
	URL         string
	Timeout     time.Duration // per attempt
	RetryMax    int           // retries after the first attempt, on 429 only
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Proxy       string
}

// Executor sends info requests and recovers from 429 by backing off,
// marking the ledger exhausted and re-entering the gate before each retry.
type Executor struct {
	client *retryablehttp.Client
	url    string
	logger *zap.Logger
}

type weightKey struct{}

// NewExecutor builds an executor whose retries are admitted through gate.
func NewExecutor(cfg ExecutorConfig, gate *ratelimit.Gate, logger *zap.Logger) (*Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if tr, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
			tr.Proxy = http.ProxyURL(u)
		}
	}
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.BackoffBase
	rc.RetryWaitMax = cfg.BackoffMax
	rc.Logger = retryLogger{logger.Sugar().Named("retry")}

	ledger := gate.Ledger()
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return false, nil
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			ledger.MarkExhausted()
			return true, nil
		}
		return false, nil
	}
	rc.Backoff = exponentialBackoff
	rc.PrepareRetry = func(req *http.Request) error {
		weight, _ := req.Context().Value(weightKey{}).(int)
		if weight <= 0 {
			return nil
		}
		return gate.Admit(req.Context(), weight)
	}
	rc.ErrorHandler = func(resp *http.Response, err error, numTries int) (*http.Response, error) {
		if err == nil && resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, &RateLimitedError{Attempts: numTries}
		}
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	return &Executor{client: rc, url: cfg.URL, logger: logger}, nil
}

// exponentialBackoff doubles from base on every attempt, capped at ceiling.
func exponentialBackoff(base, ceiling time.Duration, attemptNum int, _ *http.Response) time.Duration {
	if attemptNum > 30 {
		return ceiling
	}
	d := base << uint(attemptNum)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}

// Execute posts req and decodes a 2xx JSON body into out. The caller must
// already hold admission for the first attempt.
func (e *Executor) Execute(ctx context.Context, req Request, out any) error {
	start := time.Now()
	err := e.execute(ctx, req, out)
	metrics.InfoRequestDuration.WithLabelValues(req.Type).Observe(time.Since(start).Seconds())
	metrics.InfoRequestsTotal.WithLabelValues(req.Type, outcome(err)).Inc()
	if err != nil && ctx.Err() == nil {
		e.logger.Warn("Info request failed",
			zap.String("type", req.Type),
			zap.Int("weight", req.Weight),
			zap.Error(err),
		)
	}
	return err
}

func (e *Executor) execute(ctx context.Context, req Request, out any) error {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", req.Type, err)
	}

	ctx = context.WithValue(ctx, weightKey{}, req.Weight)
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.url, payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", req.Type, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &HTTPError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.Type, err)
	}
	return nil
}

// classify maps transport errors onto the package taxonomy. Cancellation of
// the caller's context is returned unchanged.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var (
		rl     *RateLimitedError
		cfgErr *ratelimit.ConfigurationError
		netErr net.Error
	)
	switch {
	case errors.As(err, &rl), errors.As(err, &cfgErr):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
}

func outcome(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// retryLogger adapts zap to retryablehttp.LeveledLogger.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
