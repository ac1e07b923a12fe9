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
	Register("dual-ema", func(cfg *config.Config, log *logrus.Logger) Strategy {
		return NewDualEMAStrategy(
			cfg.Symbol,
			cfg.Timeframe,
			int(cfg.Param("fast_ema_period", 20)),
			int(cfg.Param("slow_ema_period", 60)),
			cfg.TradeDirection,
			log,
		)
	})
}

// DualEMAStrategy trades fast/slow EMA crossovers. A golden cross opens a
// long (or closes a short in only_short mode), a death cross the reverse.
// The crossover is detected on the two most recent completed bars so the
// forming candle never triggers.
type DualEMAStrategy struct {
	symbol     string
	timeframe  string
	FastPeriod int
	SlowPeriod int
	direction  string
	log        *logrus.Logger
}

func NewDualEMAStrategy(symbol, timeframe string, fastPeriod, slowPeriod int, direction string, log *logrus.Logger) *DualEMAStrategy {
	return &DualEMAStrategy{
		symbol:     symbol,
		timeframe:  timeframe,
		FastPeriod: fastPeriod,
		SlowPeriod: slowPeriod,
		direction:  direction,
		log:        log,
	}
}

func (s *DualEMAStrategy) Name() string      { return "dual-ema" }
func (s *DualEMAStrategy) Symbol() string    { return s.symbol }
func (s *DualEMAStrategy) Timeframe() string { return s.timeframe }

func (s *DualEMAStrategy) WarmupPeriod() int { return s.SlowPeriod + 3 }

func (s *DualEMAStrategy) OnCandles(ctx context.Context, candles []candle.Candle) (Signal, error) {
	if len(candles) < s.WarmupPeriod() {
		return hold(s.Name(), "insufficient candles"), nil
	}
	candles = sortByTime(candles)
	closes := candle.Closes(candles)

	fast := indicator.CalculateEMA(closes, s.FastPeriod)
	slow := indicator.CalculateEMA(closes, s.SlowPeriod)
	if fast == nil || slow == nil {
		return hold(s.Name(), "indicator unavailable"), nil
	}

	n := len(closes)
	prevPrev, prev := n-3, n-2
	if math.IsNaN(fast[prevPrev]) || math.IsNaN(slow[prevPrev]) || math.IsNaN(fast[prev]) || math.IsNaN(slow[prev]) {
		return hold(s.Name(), "ema warming up"), nil
	}

	sig := Signal{
		Time:         time.Now().UTC(),
		Action:       None,
		StrategyName: s.Name(),
		TriggerPrice: closes[prev],
	}

	switch {
	case fast[prevPrev] < slow[prevPrev] && fast[prev] > slow[prev]:
		s.log.Infof("Strategy | [%s %s] golden cross: fast %.4f > slow %.4f", s.symbol, s.Name(), fast[prev], slow[prev])
		sig.Reason = "golden cross"
		switch s.direction {
		case "only_short":
			sig.Action = CloseShort
		default:
			sig.Action = OpenLong
		}
	case fast[prevPrev] > slow[prevPrev] && fast[prev] < slow[prev]:
		s.log.Infof("Strategy | [%s %s] death cross: fast %.4f < slow %.4f", s.symbol, s.Name(), fast[prev], slow[prev])
		sig.Reason = "death cross"
		switch s.direction {
		case "only_long":
			sig.Action = CloseLong
		default:
			sig.Action = OpenShort
		}
	default:
		sig.Reason = "no crossover"
	}
	return sig, nil
}
