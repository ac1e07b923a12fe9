// Package livetrading drives the single-symbol candle-close trading loop.
package livetrading

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantaxe/perp-trader/internal/candle"
	"github.com/quantaxe/perp-trader/internal/config"
	"github.com/quantaxe/perp-trader/internal/exchange"
	"github.com/quantaxe/perp-trader/internal/notifier"
	"github.com/quantaxe/perp-trader/internal/position"
	"github.com/quantaxe/perp-trader/internal/strategy"
	"github.com/quantaxe/perp-trader/internal/tfutils"
)

// Engine wires strategy, tracker and executor into the per-candle tick loop.
type Engine struct {
	cfg      *config.Config
	exchange exchange.Exchange
	strategy strategy.Strategy
	tracker  *position.Tracker
	executor *position.Executor
	notifier notifier.Notifier
	log      *logrus.Logger

	// wait is swapped in tests to skip real candle-boundary sleeps.
	wait func(ctx context.Context) error
}

// New resolves the configured strategy and verifies the exchange account is
// tradeable. Both failures are boot errors: nothing should start looping
// against a misconfigured account.
func New(ctx context.Context, cfg *config.Config, ex exchange.Exchange, tracker *position.Tracker, executor *position.Executor, n notifier.Notifier, log *logrus.Logger) (*Engine, error) {
	strat, err := strategy.New(cfg.Strategy, cfg, log)
	if err != nil {
		return nil, err
	}
	if !tfutils.IsValidTimeframe(cfg.Timeframe) {
		return nil, fmt.Errorf("unsupported timeframe %q (supported: %v)", cfg.Timeframe, tfutils.GetSupportedTimeframes())
	}
	if err := ex.VerifyDualSidePositionMode(ctx); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		exchange: ex,
		strategy: strat,
		tracker:  tracker,
		executor: executor,
		notifier: n,
		log:      log,
	}
	e.wait = func(ctx context.Context) error {
		buffer := time.Duration(cfg.Trading.CandleBufferSeconds) * time.Second
		return tfutils.WaitForNextCandle(ctx, cfg.Timeframe, buffer)
	}
	return e, nil
}

// Run executes ticks until ctx is cancelled. A failed tick is logged and
// notified, then the loop pauses briefly and continues; only cancellation
// stops it.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Infof("LiveTrading | [%s %s] starting %s loop, warmup %d candles",
		e.cfg.Symbol, e.strategy.Name(), e.cfg.Timeframe, e.warmup())

	for {
		if err := e.wait(ctx); err != nil {
			return err
		}
		if err := e.Tick(ctx); err != nil {
			e.log.Errorf("LiveTrading | [%s %s] tick failed: %v", e.cfg.Symbol, e.strategy.Name(), err)
			if e.notifier != nil && e.cfg.Notifications.NotifyErrors {
				msg := notifier.ErrorMessage("Trading Error", fmt.Sprintf("%s tick failed: %v", e.cfg.Symbol, err))
				if sendErr := e.notifier.SendWithRetry(msg); sendErr != nil {
					e.log.Warnf("LiveTrading | error notification failed: %v", sendErr)
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.Trading.TickRetryDelay()):
			}
		}
	}
}

// Tick runs one candle-close cycle: fetch data, reconcile state, evaluate
// the strategy and hand the signal to the executor.
func (e *Engine) Tick(ctx context.Context) error {
	candles, err := e.exchange.FetchCandles(ctx, e.cfg.Symbol, e.cfg.Timeframe, e.warmup())
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("exchange returned no candles for %s %s", e.cfg.Symbol, e.cfg.Timeframe)
	}

	snap, err := e.exchange.FetchPosition(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch position: %w", err)
	}
	e.tracker.Update(ctx, e.cfg.Symbol, snap)

	last := candles[len(candles)-1]
	e.tracker.UpdateMarketPrice(e.cfg.Symbol, last.Close)

	if hook, ok := e.strategy.(strategy.BarHook); ok && len(candles) >= 2 {
		// last completed bar, not the forming one
		hook.OnBar(candles[len(candles)-2])
	}

	sig, err := e.strategy.OnCandles(ctx, candles)
	if err != nil {
		return fmt.Errorf("strategy %s: %w", e.strategy.Name(), err)
	}
	if hook, ok := e.strategy.(strategy.SignalHook); ok {
		hook.AfterSignal(sig, candles)
	}

	price := sig.TriggerPrice
	if price <= 0 {
		price = last.Close
	}

	traded, err := e.executor.Execute(ctx, sig.Action, price)
	if err != nil {
		return fmt.Errorf("execute %s: %w", sig.Action, err)
	}
	if traded {
		e.log.Infof("LiveTrading | [%s %s] %s executed at %g (%s)",
			e.cfg.Symbol, e.strategy.Name(), sig.Action, price, sig.Reason)
	} else if sig.Action != strategy.None {
		e.log.Infof("LiveTrading | [%s %s] %s produced no trade (%s)",
			e.cfg.Symbol, e.strategy.Name(), sig.Action, sig.Reason)
	} else {
		e.log.Debugf("LiveTrading | [%s %s] hold: %s", e.cfg.Symbol, e.strategy.Name(), sig.Reason)
	}
	return nil
}

// warmup returns the candle window size: the strategy minimum, widened by
// config when the operator wants more history.
func (e *Engine) warmup() int {
	n := e.strategy.WarmupPeriod()
	if e.cfg.Trading.WarmupCandles > n {
		n = e.cfg.Trading.WarmupCandles
	}
	return n
}

// LatestCompleted returns the last completed bar of a window whose final
// element may still be forming.
func LatestCompleted(candles []candle.Candle) (candle.Candle, bool) {
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].IsComplete() {
			return candles[i], true
		}
	}
	return candle.Candle{}, false
}
