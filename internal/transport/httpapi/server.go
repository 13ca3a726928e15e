// Package httpapi serves the JSON dashboard API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"LiquidSentinel/internal/metrics"
	"LiquidSentinel/internal/model"
	"LiquidSentinel/internal/ratelimit"
	"LiquidSentinel/internal/recorder"
	"LiquidSentinel/internal/scheduler"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// Dashboard is the cached view of tracked accounts. *scheduler.Scheduler satisfies it.
type Dashboard interface {
	Latest() ([]model.AccountResult, time.Time)
	Account(address string) (model.AccountResult, bool)
	TriggerRefresh(trigger string) error
}

// BudgetSource reports the shared weight budget.
type BudgetSource interface {
	Snapshot() ratelimit.Usage
}

// HistorySource reads stored account snapshots. *recorder.SQLiteRecorder satisfies it.
type HistorySource interface {
	History(address string, limit int) ([]recorder.SnapshotPoint, error)
}

var _ Dashboard = (*scheduler.Scheduler)(nil)

// Server handles dashboard requests.
type Server struct {
	dashboard Dashboard
	budget    BudgetSource
	history   HistorySource
	logger    *zap.Logger
}

// NewServer creates a dashboard server. history may be nil.
func NewServer(dashboard Dashboard, budget BudgetSource, history HistorySource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{dashboard: dashboard, budget: budget, history: history, logger: logger}
}

// Router builds the chi router with middleware and all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.Health)
	r.Get("/metrics", s.Metrics)
	r.Route("/api", func(r chi.Router) {
		r.Get("/budget", s.GetBudget)
		r.Get("/accounts", s.ListAccounts)
		r.Get("/accounts/{address}", s.GetAccount)
		r.Get("/accounts/{address}/history", s.GetHistory)
		r.Post("/refresh", s.Refresh)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	return r
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// GetBudget handles GET /api/budget.
func (s *Server) GetBudget(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.budget.Snapshot())
}

type accountsResponse struct {
	RefreshedAt *time.Time            `json:"refreshed_at"`
	Accounts    []model.AccountResult `json:"accounts"`
	Failed      int                   `json:"failed"`
}

// ListAccounts handles GET /api/accounts.
func (s *Server) ListAccounts(w http.ResponseWriter, _ *http.Request) {
	results, at := s.dashboard.Latest()
	resp := accountsResponse{Accounts: results}
	if !at.IsZero() {
		t := at.UTC()
		resp.RefreshedAt = &t
	}
	for _, r := range results {
		if !r.OK() {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAccount handles GET /api/accounts/{address}.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	result, ok := s.dashboard.Account(address)
	if !ok {
		writeError(w, http.StatusNotFound, "account_not_found", "account "+address+" is not tracked or not refreshed yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetHistory handles GET /api/accounts/{address}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "history_disabled", "snapshot history is not recorded")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and "+strconv.Itoa(maxHistoryLimit))
			return
		}
		limit = n
	}

	address := chi.URLParam(r, "address")
	points, err := s.history.History(address, limit)
	if err != nil {
		s.logger.Error("Read snapshot history", zap.String("address", address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if points == nil {
		points = []recorder.SnapshotPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// Refresh handles POST /api/refresh.
func (s *Server) Refresh(w http.ResponseWriter, _ *http.Request) {
	err := s.dashboard.TriggerRefresh(scheduler.TriggerManual)
	if errors.Is(err, scheduler.ErrRefreshInProgress) {
		writeError(w, http.StatusConflict, "refresh_in_progress", err.Error())
		return
	}
	if err != nil {
		s.logger.Error("Trigger refresh", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered", zap.Any("panic", rvr), zap.Stack("stacktrace"))
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one log line per request and propagates X-Request-ID.
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("http_request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
			)
		})
	}
}
