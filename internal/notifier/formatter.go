package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"LiquidSentinel/internal/calculator"
	"LiquidSentinel/internal/model"
	"LiquidSentinel/internal/ratelimit"
)

// FormatDigest formats the latest refresh results into a Telegram message.
func FormatDigest(results []model.AccountResult, usage ratelimit.Usage, at time.Time) string {
	var b strings.Builder

	if at.IsZero() {
		b.WriteString("📊 <b>LiquidSentinel</b>\n\nNo refresh has completed yet.\n\n")
		b.WriteString(FormatBudget(usage))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("📊 <b>LiquidSentinel digest</b> | %s\n\n", at.UTC().Format("2006-01-02 15:04 UTC")))

	total := decimal.Zero
	for _, r := range results {
		if !r.OK() {
			b.WriteString(fmt.Sprintf("❌ <code>%s</code>: %s\n", shortAddr(r.Address), html.EscapeString(r.Error)))
			continue
		}
		s := r.Snapshot
		total = total.Add(s.Margin.AccountValue)
		b.WriteString(fmt.Sprintf("• <code>%s</code> value %s | uPnL %s | 30d net %s | %d pos\n",
			shortAddr(s.Address),
			usd(s.Margin.AccountValue),
			signedUSD(calculator.UnrealizedTotal(s.Positions)),
			signedUSD(s.Fills.NetPnl),
			len(s.Positions)))
		if len(s.Warnings) > 0 {
			b.WriteString(fmt.Sprintf("  ⚠️ %d warning(s)\n", len(s.Warnings)))
		}
	}
	b.WriteString(fmt.Sprintf("\nTotal value: %s\n", usd(total)))
	b.WriteString(fmt.Sprintf("API weight: %d/%d\n", usage.Consumed, usage.Limit))
	return b.String()
}

// FormatAccount formats one account in detail.
func FormatAccount(r model.AccountResult) string {
	if !r.OK() {
		return fmt.Sprintf("❌ <code>%s</code>\n%s", r.Address, html.EscapeString(r.Error))
	}
	s := r.Snapshot
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👤 <code>%s</code>\n\n", s.Address))
	b.WriteString(fmt.Sprintf("Account value: %s\n", usd(s.Margin.AccountValue)))
	b.WriteString(fmt.Sprintf("Margin used: %s | Withdrawable: %s\n", usd(s.Margin.MarginUsed), usd(s.Margin.Withdrawable)))
	if s.Margin.SpotUSDC.IsPositive() {
		b.WriteString(fmt.Sprintf("Spot USDC: %s\n", usd(s.Margin.SpotUSDC)))
	}
	b.WriteString(fmt.Sprintf("Max drawdown: %s%%\n", s.MaxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(1)))

	if len(s.Positions) > 0 {
		b.WriteString("\n📈 <b>Positions:</b>\n")
		for _, p := range s.Positions {
			b.WriteString(fmt.Sprintf("  %s %s %s @ %s | uPnL %s | %dx\n",
				p.Coin, p.Side, p.Size.Abs().String(), p.EntryPrice.String(),
				signedUSD(p.UnrealizedPnl), p.Leverage))
		}
	}

	f := s.Fills
	b.WriteString(fmt.Sprintf("\n🧾 <b>Fills:</b> %d | volume %s | fees %s\n", f.Count, usd(f.Volume), usd(f.Fees)))
	b.WriteString(fmt.Sprintf("  realized %s | net %s | win rate %s%%\n",
		signedUSD(f.RealizedPnl), signedUSD(f.NetPnl), f.WinRate.Mul(decimal.NewFromInt(100)).StringFixed(0)))
	b.WriteString(fmt.Sprintf("  funding %s | open orders %d\n", signedUSD(s.FundingTotal), s.OpenOrders))

	for _, w := range s.Warnings {
		b.WriteString(fmt.Sprintf("⚠️ %s\n", html.EscapeString(w)))
	}
	return b.String()
}

// FormatBudget formats the rate limit budget.
func FormatBudget(u ratelimit.Usage) string {
	var b strings.Builder
	b.WriteString("⚖️ <b>API weight budget</b>\n\n")
	b.WriteString(fmt.Sprintf("Consumed: %d/%d\n", u.Consumed, u.Limit))
	b.WriteString(fmt.Sprintf("Remaining: %d\n", u.Remaining))
	b.WriteString(fmt.Sprintf("Window: %s (%d entries)\n", time.Duration(u.WindowMS)*time.Millisecond, u.Entries))
	return b.String()
}

// FormatFailures lists the accounts that failed in a cycle.
func FormatFailures(results []model.AccountResult) string {
	var b strings.Builder
	b.WriteString("🚨 <b>Refresh failures</b>\n\n")
	for _, r := range results {
		if r.OK() {
			continue
		}
		b.WriteString(fmt.Sprintf("<code>%s</code>: %s\n", shortAddr(r.Address), html.EscapeString(r.Error)))
	}
	return b.String()
}

// FormatHelp lists the available commands.
func FormatHelp() string {
	return "Available commands:\n" +
		"• /summary\n" +
		"• /budget\n" +
		"• /account &lt;address&gt;\n" +
		"• /refresh"
}

func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func usd(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func signedUSD(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "+$" + d.StringFixed(2)
}
