// Package monitor
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantaxe/perp-trader/internal/config"
	"github.com/quantaxe/perp-trader/internal/exchange"
	"github.com/quantaxe/perp-trader/internal/journal"
	"github.com/quantaxe/perp-trader/internal/notifier"
	"github.com/quantaxe/perp-trader/internal/position"
)

// Monitor is the account-wide TP/SL safety net. It runs in its own process,
// holds its own position tracker, and only ever closes positions.
type Monitor struct {
	cfg      *config.Config
	exchange exchange.Exchange
	tracker  *position.Tracker
	notifier notifier.Notifier
	storage  position.Storage
	log      *logrus.Logger

	lastTrigger       map[string]time.Time
	lastReportTime    time.Time
	lastScheduledHour int

	now func() time.Time
}

func New(cfg *config.Config, ex exchange.Exchange, tracker *position.Tracker, n notifier.Notifier, storage position.Storage, log *logrus.Logger) *Monitor {
	return &Monitor{
		cfg:               cfg,
		exchange:          ex,
		tracker:           tracker,
		notifier:          n,
		storage:           storage,
		log:               log,
		lastTrigger:       make(map[string]time.Time),
		lastScheduledHour: -1,
		now:               time.Now,
	}
}

// Run drives the polling loop until ctx is cancelled. Scheduling is fixed
// delay: the next check starts one interval after the previous one finished.
func (m *Monitor) Run(ctx context.Context) error {
	interval := time.Duration(m.cfg.TpSl.CheckIntervalSeconds) * time.Second
	m.log.Infof("Monitor | starting, check interval %v, cooldown %ds", interval, m.cfg.TpSl.CooldownSeconds)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Monitor | stopping")
			return ctx.Err()
		case <-timer.C:
			m.CheckPositions(ctx)
			if m.cfg.Report.Enabled {
				m.maybeSendReport(ctx)
			}
			timer.Reset(interval)
		}
	}
}

// CheckPositions scans every open position on the account. A single symbol
// failing is logged and notified but never stops the remaining checks.
func (m *Monitor) CheckPositions(ctx context.Context) {
	positions, err := m.exchange.FetchAllPositions(ctx)
	if err != nil {
		m.log.Errorf("Monitor | failed to fetch positions: %v", err)
		m.notifyError(fmt.Sprintf("TP/SL monitor failed to fetch positions: %v", err))
		return
	}

	for _, pos := range positions {
		if pos.Contracts <= 0 {
			continue
		}
		if err := m.checkPosition(ctx, pos); err != nil {
			m.log.Errorf("Monitor | [%s] check failed: %v", pos.Symbol, err)
			m.notifyError(fmt.Sprintf("TP/SL check failed for %s: %v", pos.Symbol, err))
		}
	}
}

func (m *Monitor) checkPosition(ctx context.Context, pos exchange.Position) error {
	rule := m.cfg.RuleFor(pos.Symbol)
	if !rule.EnableTakeProfit && !rule.EnableStopLoss {
		return nil
	}

	cooldown := time.Duration(rule.CooldownSeconds) * time.Second
	if last, ok := m.lastTrigger[pos.Symbol]; ok {
		if elapsed := m.now().Sub(last); elapsed < cooldown {
			m.log.Infof("Monitor | [%s] in cooldown, %ds remaining", pos.Symbol, int((cooldown-elapsed).Seconds()))
			return nil
		}
	}

	current := pos.MarkPrice
	if current <= 0 {
		var err error
		current, err = m.exchange.FetchMarketPrice(ctx, pos.Symbol)
		if err != nil {
			return fmt.Errorf("fetch market price: %w", err)
		}
	}

	m.tracker.Update(ctx, pos.Symbol, &pos)
	m.tracker.UpdateMarketPrice(pos.Symbol, current)
	profitPct, ok := m.tracker.ProfitPercentage(pos.Symbol, current)
	if !ok {
		return nil
	}

	// Take-profit is checked strictly before stop-loss.
	switch {
	case rule.EnableTakeProfit && profitPct >= rule.TakeProfitPct:
		return m.triggerClose(ctx, pos, rule, current, profitPct, "take-profit")
	case rule.EnableStopLoss && profitPct <= -rule.StopLossPct:
		return m.triggerClose(ctx, pos, rule, current, profitPct, "stop-loss")
	}
	return nil
}

func (m *Monitor) triggerClose(ctx context.Context, pos exchange.Position, rule config.TpSlRule, current, profitPct float64, triggerType string) error {
	quantity := pos.Contracts * rule.ClosePercentage / 100

	m.log.Infof("Monitor | [%s] %s triggered at %.2f%% (threshold tp=%g sl=%g), closing %s %g",
		pos.Symbol, triggerType, profitPct, rule.TakeProfitPct, rule.StopLossPct, pos.Side, quantity)

	var (
		order exchange.Order
		err   error
	)
	if pos.Side == exchange.Long {
		order, err = m.exchange.CloseLong(ctx, pos.Symbol, quantity)
	} else {
		order, err = m.exchange.CloseShort(ctx, pos.Symbol, quantity)
	}
	if err != nil {
		return fmt.Errorf("%s close: %w", triggerType, err)
	}

	m.lastTrigger[pos.Symbol] = m.now()
	m.tracker.Close(ctx, pos.Symbol, current)

	if m.notifier != nil && m.cfg.Notifications.NotifyTpSl {
		msg := notifier.TpSlMessage(m.cfg.Strategy, pos.Symbol, triggerType, string(pos.Side),
			pos.EntryPrice, current, quantity, profitPct)
		if sendErr := m.notifier.SendWithRetry(msg); sendErr != nil {
			m.log.Warnf("Monitor | [%s] TP/SL notification failed: %v", pos.Symbol, sendErr)
		}
	}
	if m.storage != nil {
		event := journal.Event{
			Time:        m.now(),
			Type:        "tp_sl",
			Description: fmt.Sprintf("%s close %s %s %g", triggerType, pos.Symbol, pos.Side, quantity),
			Data: map[string]any{
				"order_id":   order.OrderID,
				"profit_pct": profitPct,
				"trigger":    triggerType,
			},
		}
		if logErr := m.storage.LogEvent(ctx, event); logErr != nil {
			m.log.Errorf("Monitor | [%s] failed to journal trigger: %v", pos.Symbol, logErr)
		}
	}
	return nil
}

func (m *Monitor) notifyError(msg string) {
	if m.notifier == nil || !m.cfg.Notifications.NotifyErrors {
		return
	}
	if err := m.notifier.SendWithRetry(notifier.ErrorMessage("Monitor Error", msg)); err != nil {
		m.log.Warnf("Monitor | error notification failed: %v", err)
	}
}
