package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantaxe/perp-trader/internal/candle"
	"github.com/quantaxe/perp-trader/internal/config"
)

// Strategy is the interface for all trading strategies. OnCandles receives
// the warmup window oldest first, with the currently forming candle as the
// last element; signal logic reads the completed bars before it.
type Strategy interface {
	Name() string
	Symbol() string
	Timeframe() string
	WarmupPeriod() int
	OnCandles(ctx context.Context, candles []candle.Candle) (Signal, error)
}

// BarHook is implemented by strategies that want a callback on every new bar
// before signal evaluation.
type BarHook interface {
	OnBar(c candle.Candle)
}

// SignalHook is implemented by strategies that want a callback after a signal
// has been generated.
type SignalHook interface {
	AfterSignal(sig Signal, candles []candle.Candle)
}

// Factory builds a strategy from config.
type Factory func(cfg *config.Config, log *logrus.Logger) Strategy

var registry = map[string]Factory{}

// Register adds a strategy factory under name. Called from init.
func Register(name string, f Factory) {
	registry[name] = f
}

// New resolves name in the registry. An unknown name is a boot error so the
// failure happens before the main loop starts.
func New(name string, cfg *config.Config, log *logrus.Logger) (Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %v)", name, Names())
	}
	return f(cfg, log), nil
}

// Names lists the registered strategy names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortByTime orders candles oldest first before indicator computation.
func sortByTime(candles []candle.Candle) []candle.Candle {
	out := make([]candle.Candle, len(candles))
	copy(out, candles)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func hold(name, reason string) Signal {
	return Signal{Time: time.Now().UTC(), Action: None, Reason: reason, StrategyName: name}
}
