package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"LiquidSentinel/internal/calculator"
	"LiquidSentinel/internal/config"
	"LiquidSentinel/internal/hyperliquid"
	"LiquidSentinel/internal/model"
	"LiquidSentinel/internal/ratelimit"
)

type fillsOutput struct {
	Address string             `json:"address"`
	Since   time.Time          `json:"since"`
	Summary model.FillStats    `json:"summary"`
	Fills   []hyperliquid.Fill `json:"fills,omitempty"`
	Budget  ratelimit.Usage    `json:"budget"`
}

func newFillsCmd(a *app) *cobra.Command {
	var (
		since    time.Duration
		maxPages int
		raw      bool
	)

	cmd := &cobra.Command{
		Use:   "fills <address>",
		Short: "Fetch and summarize an account's fills",
		Long: `Walk userFillsByTime for one account through the shared weight budget
and print a JSON summary.

Examples:
  # Last 30 days (default)
  sentinel fills 0x1111111111111111111111111111111111111111

  # Last week, at most 3 pages, including every fill
  sentinel fills 0x1111111111111111111111111111111111111111 --since 168h --max-pages 3 --raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			if !config.IsAddress(address) {
				return fmt.Errorf("%q is not a 0x-prefixed 20-byte address", address)
			}
			if since <= 0 {
				return fmt.Errorf("--since must be positive")
			}
			if err := a.cfg.ValidateClient(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := buildStack(a.cfg, false, a.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			start := time.Now().Add(-since)
			fills, err := st.client.FetchAllFills(ctx, address, start.UnixMilli(), nil, maxPages)
			if err != nil {
				return fmt.Errorf("fetch fills: %w", err)
			}
			a.logger.Debug("Fills fetched", zap.String("address", address), zap.Int("count", len(fills)))

			out := fillsOutput{
				Address: address,
				Since:   start.UTC(),
				Summary: calculator.SummarizeFills(fills),
				Budget:  st.ledger.Snapshot(),
			}
			if raw {
				out.Fills = fills
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 720*time.Hour, "How far back to walk fills")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Page ceiling (0 = pagination.max_pages from config)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Include every fill in the output")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
