package main

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newBudgetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "budget",
		Short: "Show the persisted rate limit budget",
		Long: `Load the durable rate limit ledger and print how much of the weight
budget is consumed in the current window. No API requests are made.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateClient(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			st, err := openLedger(a.cfg, clockwork.NewRealClock(), false, a.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			usage := st.ledger.Snapshot()
			out := struct {
				Consumed  int    `json:"consumed"`
				Limit     int    `json:"limit"`
				Remaining int    `json:"remaining"`
				Entries   int    `json:"entries"`
				Window    string `json:"window"`
				ReadyIn   string `json:"ready_for_heavy_in"`
			}{
				Consumed:  usage.Consumed,
				Limit:     usage.Limit,
				Remaining: usage.Remaining,
				Entries:   usage.Entries,
				Window:    st.ledger.Window().String(),
				ReadyIn:   "0s",
			}
			if at, ok := st.ledger.ReadyAt(a.cfg.RateLimit.HeavyWeight); ok {
				if d := time.Until(at); d > 0 {
					out.ReadyIn = d.Round(time.Millisecond).String()
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
