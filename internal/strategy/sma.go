package strategy

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantaxe/perp-trader/internal/candle"
	"github.com/quantaxe/perp-trader/internal/config"
	"github.com/quantaxe/perp-trader/internal/indicator"
)

func init() {
	Register("simple-ma", func(cfg *config.Config, log *logrus.Logger) Strategy {
		return NewSimpleMAStrategy(
			cfg.Symbol,
			cfg.Timeframe,
			int(cfg.Param("ma_period", 20)),
			log,
		)
	})
}

// SimpleMAStrategy emits legacy BUY/SELL signals on close-vs-SMA crossovers,
// exercising the legacy signal mapping end to end.
type SimpleMAStrategy struct {
	symbol    string
	timeframe string
	MAPeriod  int
	log       *logrus.Logger
}

func NewSimpleMAStrategy(symbol, timeframe string, maPeriod int, log *logrus.Logger) *SimpleMAStrategy {
	return &SimpleMAStrategy{
		symbol:    symbol,
		timeframe: timeframe,
		MAPeriod:  maPeriod,
		log:       log,
	}
}

func (s *SimpleMAStrategy) Name() string      { return "simple-ma" }
func (s *SimpleMAStrategy) Symbol() string    { return s.symbol }
func (s *SimpleMAStrategy) Timeframe() string { return s.timeframe }

func (s *SimpleMAStrategy) WarmupPeriod() int { return s.MAPeriod + 3 }

func (s *SimpleMAStrategy) OnCandles(ctx context.Context, candles []candle.Candle) (Signal, error) {
	if len(candles) < s.WarmupPeriod() {
		return hold(s.Name(), "insufficient candles"), nil
	}
	candles = sortByTime(candles)
	closes := candle.Closes(candles)

	ma := indicator.CalculateSMA(closes, s.MAPeriod)
	if ma == nil {
		return hold(s.Name(), "indicator unavailable"), nil
	}

	n := len(closes)
	prevPrev, prev := n-3, n-2
	if math.IsNaN(ma[prevPrev]) || math.IsNaN(ma[prev]) {
		return hold(s.Name(), "ma warming up"), nil
	}

	raw := ""
	reason := "no crossover"
	switch {
	case closes[prevPrev] < ma[prevPrev] && closes[prev] > ma[prev]:
		s.log.Infof("Strategy | [%s %s] close crossed above MA: %.4f > %.4f", s.symbol, s.Name(), closes[prev], ma[prev])
		raw = "BUY"
		reason = "close crossed above ma"
	case closes[prevPrev] > ma[prevPrev] && closes[prev] < ma[prev]:
		s.log.Infof("Strategy | [%s %s] close crossed below MA: %.4f < %.4f", s.symbol, s.Name(), closes[prev], ma[prev])
		raw = "SELL"
		reason = "close crossed below ma"
	}

	action, ok := ParseAction(raw)
	if !ok {
		s.log.Warnf("Strategy | [%s %s] unrecognized signal %q", s.symbol, s.Name(), raw)
	}
	return Signal{
		Time:         time.Now().UTC(),
		Action:       action,
		Reason:       reason,
		StrategyName: s.Name(),
		TriggerPrice: closes[prev],
	}, nil
}
