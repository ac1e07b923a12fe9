// Package candle
package candle

import (
	"errors"
	"time"

	"github.com/quantaxe/perp-trader/internal/tfutils"
)

type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
}

// IsComplete checks if a candle is complete (not the currently forming one)
func (c *Candle) IsComplete() bool {
	now := time.Now().UTC()
	candleEnd := c.Timestamp.Add(tfutils.GetTimeframeDuration(c.Timeframe))
	return now.After(candleEnd)
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	if c.Symbol == "" {
		return errors.New("candle symbol cannot be empty")
	}
	if c.Timeframe == "" {
		return errors.New("candle timeframe cannot be empty")
	}
	return nil
}

// Closes extracts the close series from a candle slice.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// Highs extracts the high series from a candle slice.
func Highs(candles []Candle) []float64 {
	highs := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
	}
	return highs
}

// Lows extracts the low series from a candle slice.
func Lows(candles []Candle) []float64 {
	lows := make([]float64, len(candles))
	for i, c := range candles {
		lows[i] = c.Low
	}
	return lows
}
