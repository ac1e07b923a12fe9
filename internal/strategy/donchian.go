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
	Register("donchian", func(cfg *config.Config, log *logrus.Logger) Strategy {
		return NewDonchianStrategy(
			cfg.Symbol,
			cfg.Timeframe,
			int(cfg.Param("channel_period", 20)),
			cfg.TradeDirection,
			cfg.Param("use_middle_exit", 0) != 0,
			log,
		)
	})
}

// DonchianStrategy trades channel breakouts. The channel is built from the
// bars before each candle, so a bar is compared against the channel that
// existed when it opened. With the middle-line exit enabled, a completed bar
// closing across the middle band emits a close for the corresponding side;
// the executor no-ops when no such position is open.
type DonchianStrategy struct {
	symbol        string
	timeframe     string
	ChannelPeriod int
	direction     string
	useMiddleExit bool
	log           *logrus.Logger
}

func NewDonchianStrategy(symbol, timeframe string, channelPeriod int, direction string, useMiddleExit bool, log *logrus.Logger) *DonchianStrategy {
	return &DonchianStrategy{
		symbol:        symbol,
		timeframe:     timeframe,
		ChannelPeriod: channelPeriod,
		direction:     direction,
		useMiddleExit: useMiddleExit,
		log:           log,
	}
}

func (s *DonchianStrategy) Name() string      { return "donchian" }
func (s *DonchianStrategy) Symbol() string    { return s.symbol }
func (s *DonchianStrategy) Timeframe() string { return s.timeframe }

func (s *DonchianStrategy) WarmupPeriod() int { return s.ChannelPeriod + 3 }

func (s *DonchianStrategy) OnCandles(ctx context.Context, candles []candle.Candle) (Signal, error) {
	if len(candles) < s.WarmupPeriod() {
		return hold(s.Name(), "insufficient candles"), nil
	}
	candles = sortByTime(candles)

	channels := indicator.CalculateDonchian(candle.Highs(candles), candle.Lows(candles), s.ChannelPeriod)
	if channels == nil {
		return hold(s.Name(), "indicator unavailable"), nil
	}

	n := len(candles)
	prev := n - 2
	band := channels[prev]
	if math.IsNaN(band.Upper) || math.IsNaN(band.Lower) {
		return hold(s.Name(), "channel warming up"), nil
	}

	sig := Signal{
		Time:         time.Now().UTC(),
		Action:       None,
		StrategyName: s.Name(),
		TriggerPrice: candles[prev].Close,
	}

	switch {
	case candles[prev].High > band.Upper:
		s.log.Infof("Strategy | [%s %s] upper band breakout: high %.4f > %.4f", s.symbol, s.Name(), candles[prev].High, band.Upper)
		sig.Reason = "upper band breakout"
		if s.direction == "only_short" {
			sig.Action = CloseShort
		} else {
			sig.Action = OpenLong
		}
	case candles[prev].Low < band.Lower:
		s.log.Infof("Strategy | [%s %s] lower band breakout: low %.4f < %.4f", s.symbol, s.Name(), candles[prev].Low, band.Lower)
		sig.Reason = "lower band breakout"
		if s.direction == "only_long" {
			sig.Action = CloseLong
		} else {
			sig.Action = OpenShort
		}
	case s.useMiddleExit && candles[prev].Close < band.Middle:
		sig.Reason = "close below middle band"
		sig.Action = CloseLong
	case s.useMiddleExit && candles[prev].Close > band.Middle:
		sig.Reason = "close above middle band"
		sig.Action = CloseShort
	default:
		sig.Reason = "inside channel"
	}
	return sig, nil
}
