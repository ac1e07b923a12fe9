package position

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantaxe/perp-trader/internal/config"
	"github.com/quantaxe/perp-trader/internal/exchange"
	"github.com/quantaxe/perp-trader/internal/journal"
	"github.com/quantaxe/perp-trader/internal/notifier"
	"github.com/quantaxe/perp-trader/internal/strategy"
)

// Executor turns an abstract signal plus the live exchange position into an
// ordered close/open sequence. Any exchange-call failure propagates and
// aborts the tick; partial execution is left for the next tick's
// reconciliation to observe.
type Executor struct {
	cfg          *config.Config
	exchange     exchange.Exchange
	sizer        *Sizer
	tracker      *Tracker
	notifier     notifier.Notifier
	storage      Storage
	log          *logrus.Logger
	strategyName string

	sleep func(time.Duration)
}

func NewExecutor(cfg *config.Config, ex exchange.Exchange, sizer *Sizer, tracker *Tracker, n notifier.Notifier, storage Storage, strategyName string, log *logrus.Logger) *Executor {
	return &Executor{
		cfg:          cfg,
		exchange:     ex,
		sizer:        sizer,
		tracker:      tracker,
		notifier:     n,
		storage:      storage,
		log:          log,
		strategyName: strategyName,
		sleep:        time.Sleep,
	}
}

// Execute runs the decision table for action at the given price. The boolean
// reports whether a trade executed; callers use it for logging only.
func (e *Executor) Execute(ctx context.Context, action strategy.Action, price float64) (bool, error) {
	symbol := e.cfg.Symbol

	switch action {
	case strategy.OpenLong:
		return e.open(ctx, symbol, exchange.Long, price)
	case strategy.OpenShort:
		return e.open(ctx, symbol, exchange.Short, price)
	case strategy.CloseLong:
		return e.close(ctx, symbol, exchange.Long, price)
	case strategy.CloseShort:
		return e.close(ctx, symbol, exchange.Short, price)
	case strategy.CloseAll:
		return e.close(ctx, symbol, "", price)
	case strategy.None:
		return false, nil
	default:
		e.log.Warnf("Executor | [%s %s] unrecognized action %q, ignoring", symbol, e.strategyName, action)
		return false, nil
	}
}

// open closes an opposite position first, then opens the requested side when
// the account is flat. Ordering is strict: no open ever precedes the close.
func (e *Executor) open(ctx context.Context, symbol string, side exchange.Side, price float64) (bool, error) {
	pos, err := e.exchange.FetchPosition(ctx, symbol)
	if err != nil {
		return false, fmt.Errorf("fetch position: %w", err)
	}

	if pos != nil && pos.Side == side {
		e.log.Infof("Executor | [%s %s] already %s %g, nothing to do", symbol, e.strategyName, side, pos.Contracts)
		return false, nil
	}

	traded := false
	if pos != nil {
		if err := e.closeOrder(ctx, symbol, pos.Side, pos.Contracts); err != nil {
			return false, err
		}
		traded = true
		e.sleep(e.cfg.Trading.SettleDelay())
		pos, err = e.exchange.FetchPosition(ctx, symbol)
		if err != nil {
			return traded, fmt.Errorf("re-fetch position after close: %w", err)
		}
	}

	if pos == nil {
		leverage := e.cfg.LeverageFor(symbol)
		quantity := e.sizer.Calculate(ctx, symbol, price, 0)

		if err := e.exchange.SetLeverage(ctx, symbol, leverage); err != nil {
			e.log.Warnf("Executor | [%s %s] failed to set leverage %gx before open: %v", symbol, e.strategyName, leverage, err)
		}
		order, err := e.exchange.PlaceMarketOrder(ctx, symbol, side, quantity)
		if err != nil {
			return traded, fmt.Errorf("open %s %g: %w", side, quantity, err)
		}
		e.log.Infof("Executor | [%s %s] opened %s %g @ %g (order %s)", symbol, e.strategyName, side, quantity, price, order.OrderID)
		e.journalOrder(ctx, order, price, "signal")
		traded = true
	} else {
		e.log.Warnf("Executor | [%s %s] position still present after close, skipping open", symbol, e.strategyName)
	}

	if err := e.refreshAndNotify(ctx, symbol, fmt.Sprintf("open-%s", side), price, traded); err != nil {
		return traded, err
	}
	return traded, nil
}

// close closes the current position when its side matches. An empty side
// matches any open position (CloseAll).
func (e *Executor) close(ctx context.Context, symbol string, side exchange.Side, price float64) (bool, error) {
	pos, err := e.exchange.FetchPosition(ctx, symbol)
	if err != nil {
		return false, fmt.Errorf("fetch position: %w", err)
	}
	if pos == nil || (side != "" && pos.Side != side) {
		e.log.Infof("Executor | [%s %s] no matching %s position to close", symbol, e.strategyName, side)
		return false, nil
	}

	if err := e.closeOrder(ctx, symbol, pos.Side, pos.Contracts); err != nil {
		return false, err
	}
	e.sleep(e.cfg.Trading.SettleDelay())

	if err := e.refreshAndNotify(ctx, symbol, fmt.Sprintf("close-%s", pos.Side), price, true); err != nil {
		return true, err
	}
	return true, nil
}

func (e *Executor) closeOrder(ctx context.Context, symbol string, side exchange.Side, quantity float64) error {
	var (
		order exchange.Order
		err   error
	)
	if side == exchange.Long {
		order, err = e.exchange.CloseLong(ctx, symbol, quantity)
	} else {
		order, err = e.exchange.CloseShort(ctx, symbol, quantity)
	}
	if err != nil {
		return fmt.Errorf("close %s %g: %w", side, quantity, err)
	}
	e.log.Infof("Executor | [%s %s] closed %s %g (order %s)", symbol, e.strategyName, side, quantity, order.OrderID)
	e.journalOrder(ctx, order, 0, "signal")
	return nil
}

// refreshAndNotify re-fetches the live position, reconciles the tracker and
// sends the composite trade notification.
func (e *Executor) refreshAndNotify(ctx context.Context, symbol, action string, price float64, traded bool) error {
	snap, err := e.exchange.FetchPosition(ctx, symbol)
	if err != nil {
		return fmt.Errorf("refresh position: %w", err)
	}
	e.tracker.Update(ctx, symbol, snap)

	if !traded {
		return nil
	}

	desc := ""
	amount := 0.0
	if snap != nil {
		desc = fmt.Sprintf("%s %g @ %g", snap.Side, snap.Contracts, snap.EntryPrice)
		amount = snap.Contracts
	}
	if e.notifier != nil && e.cfg.Notifications.NotifyTrades {
		msg := notifier.TradeMessage(action, symbol, amount, price, desc)
		if err := e.notifier.SendWithRetry(msg); err != nil {
			e.log.Warnf("Executor | [%s %s] trade notification failed: %v", symbol, e.strategyName, err)
		}
	}
	return nil
}

func (e *Executor) journalOrder(ctx context.Context, order exchange.Order, price float64, reason string) {
	if e.storage == nil {
		return
	}
	rec := journal.Order{
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     price,
		Status:    order.Status,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := e.storage.SaveOrder(ctx, rec); err != nil {
		e.log.Errorf("Executor | [%s] failed to journal order %s: %v", order.Symbol, order.OrderID, err)
	}
	event := journal.Event{
		Time:        time.Now(),
		Type:        "trade",
		Description: fmt.Sprintf("%s %s %g", order.Side, order.Symbol, order.Quantity),
		Data:        map[string]any{"order_id": order.OrderID, "reason": reason},
	}
	if err := e.storage.LogEvent(ctx, event); err != nil {
		e.log.Errorf("Executor | [%s] failed to journal event: %v", order.Symbol, err)
	}
}
