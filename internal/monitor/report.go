package monitor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/quantaxe/perp-trader/internal/exchange"
)

const reportTimeLayout = "2006-01-02 15:04:05"

// maybeSendReport decides whether a position report is due. Fixed schedule
// hours take precedence over the plain interval: when schedule_hours is set
// the interval is ignored and a report goes out once per listed hour.
func (m *Monitor) maybeSendReport(ctx context.Context) {
	now := m.now()

	scheduledSend := false
	if len(m.cfg.Report.ScheduleHours) > 0 {
		hour := now.Hour()
		for _, h := range m.cfg.Report.ScheduleHours {
			if h == hour && hour != m.lastScheduledHour {
				scheduledSend = true
				break
			}
		}
	}

	intervalSend := m.lastReportTime.IsZero() ||
		now.Sub(m.lastReportTime) >= time.Duration(m.cfg.Report.IntervalSeconds)*time.Second

	if !scheduledSend && !(intervalSend && len(m.cfg.Report.ScheduleHours) == 0) {
		return
	}

	report, balance, err := m.GenerateReport(ctx)
	if err != nil {
		m.log.Errorf("Monitor | failed to generate position report: %v", err)
		return
	}
	m.log.Infof("Monitor | sending position report, balance %.2f USDT", balance)
	if m.notifier != nil {
		if err := m.notifier.SendWithRetry(report); err != nil {
			m.log.Warnf("Monitor | position report send failed: %v", err)
			return
		}
	}

	m.lastReportTime = now
	if scheduledSend {
		m.lastScheduledHour = now.Hour()
	}
}

// GenerateReport builds the account position report and returns it with the
// available balance it was computed from.
func (m *Monitor) GenerateReport(ctx context.Context) (string, float64, error) {
	balance, err := m.exchange.FetchAccountBalance(ctx, "USDT")
	if err != nil {
		m.log.Warnf("Monitor | balance fetch failed, reporting 0: %v", err)
		balance = 0
	}

	positions, err := m.exchange.FetchAllPositions(ctx)
	if err != nil {
		return "", balance, fmt.Errorf("failed to fetch positions: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Position Report [%s]\n", m.cfg.AccountAlias)
	fmt.Fprintf(&b, "Time: %s\n\n", m.now().Format(reportTimeLayout))
	fmt.Fprintf(&b, "Available Balance: %.2f USDT\n", balance)

	open := positions[:0]
	for _, pos := range positions {
		if pos.Contracts > 0 {
			open = append(open, pos)
		}
	}
	if len(open) == 0 {
		b.WriteString("\nNo open positions")
		return b.String(), balance, nil
	}

	totalValue := 0.0
	for _, pos := range open {
		totalValue += math.Abs(pos.Notional)
	}
	fmt.Fprintf(&b, "Total Position Value: %.2f USDT\n", totalValue)
	fmt.Fprintf(&b, "Open Positions: %d\n", len(open))

	if m.cfg.Report.DetailLevel == "brief" {
		return b.String(), balance, nil
	}

	for _, pos := range open {
		b.WriteString("\n")
		m.writePositionDetail(&b, pos)
	}
	return b.String(), balance, nil
}

func (m *Monitor) writePositionDetail(b *strings.Builder, pos exchange.Position) {
	fmt.Fprintf(b, "%s %s\n", pos.Symbol, pos.Side)
	fmt.Fprintf(b, "  Contracts: %g\n", pos.Contracts)
	fmt.Fprintf(b, "  Entry Price: %g\n", pos.EntryPrice)
	fmt.Fprintf(b, "  Current Price: %g\n", pos.MarkPrice)
	fmt.Fprintf(b, "  Leverage: %gx\n", pos.Leverage)
	fmt.Fprintf(b, "  Value: %.2f USDT\n", math.Abs(pos.Notional))
	if pct, ok := m.tracker.ProfitPercentage(pos.Symbol, pos.MarkPrice); ok {
		fmt.Fprintf(b, "  Unrealized PnL: %.2f USDT (%.2f%%)\n", pos.UnrealizedPnL, pct)
	} else {
		fmt.Fprintf(b, "  Unrealized PnL: %.2f USDT\n", pos.UnrealizedPnL)
	}

	if m.cfg.Report.DetailLevel != "detailed" {
		return
	}
	rule := m.cfg.RuleFor(pos.Symbol)
	leverage := pos.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	if rule.EnableTakeProfit {
		offset := pos.EntryPrice * rule.TakeProfitPct / 100 / leverage
		trigger := pos.EntryPrice + offset
		if pos.Side == exchange.Short {
			trigger = pos.EntryPrice - offset
		}
		fmt.Fprintf(b, "  Take-Profit: %g%% (trigger %g)\n", rule.TakeProfitPct, trigger)
	}
	if rule.EnableStopLoss {
		offset := pos.EntryPrice * rule.StopLossPct / 100 / leverage
		trigger := pos.EntryPrice - offset
		if pos.Side == exchange.Short {
			trigger = pos.EntryPrice + offset
		}
		fmt.Fprintf(b, "  Stop-Loss: %g%% (trigger %g)\n", rule.StopLossPct, trigger)
	}
}
