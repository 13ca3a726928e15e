package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"LiquidSentinel/internal/collector"
	"LiquidSentinel/internal/metrics"
	"LiquidSentinel/internal/notifier"
	"LiquidSentinel/internal/recorder"
	"LiquidSentinel/internal/scheduler"
	"LiquidSentinel/internal/transport/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	var runOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, Telegram bot and dashboard API",
		Long: `Run the long-lived service: refresh every tracked account on the
refresh cron, record snapshots to SQLite, answer Telegram commands and serve
the JSON dashboard API with Prometheus metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Getenv("RUN_ON_START") == "true" {
				runOnStart = true
			}
			return a.serve(runOnStart)
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Refresh all accounts immediately instead of waiting for the first cron tick")
	return cmd
}

func (a *app) serve(runOnStart bool) error {
	cfg, logger := a.cfg, a.logger
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	logger.Info("LiquidSentinel starting", zap.Int("accounts", len(cfg.Accounts)))
	metrics.Register()

	st, err := buildStack(cfg, true, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	var history httpapi.HistorySource
	if st.sqlite != nil {
		rec = st.sqlite
		history = st.sqlite
	} else {
		logger.Warn("Snapshot history disabled, using noop recorder")
	}

	col := collector.NewCollector(st.client, collector.Options{
		Lookback:    cfg.Pagination.Lookback,
		MaxPages:    cfg.Pagination.MaxPages,
		Parallelism: cfg.Schedule.Parallelism,
	}, st.clock, logger.Named("collector"))

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		sender scheduler.Sender
		tn     *notifier.TelegramNotifier
	)
	if cfg.TelegramEnabled() {
		tn, err = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, 3, logger.Named("telegram"))
		if err != nil {
			return fmt.Errorf("init telegram notifier: %w", err)
		}
		sender = tn
	}

	sched := scheduler.NewScheduler(ctx, col, rec, st.ledger, sender, cfg.Accounts, st.clock, logger.Named("scheduler"))
	if err := sched.RegisterAll(cfg.Schedule.RefreshCron, cfg.Schedule.DigestCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("Telegram polling started")
	}

	if runOnStart {
		logger.Info("Run on start enabled, refreshing now")
		if err := sched.TriggerRefresh(scheduler.TriggerStartup); err != nil {
			logger.Warn("Startup refresh skipped", zap.Error(err))
		}
	}

	server := httpapi.NewServer(sched, st.ledger, history, logger.Named("http"))
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("LiquidSentinel stopped")
	return nil
}
