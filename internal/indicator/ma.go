// Package indicator
package indicator

import "math"

// CalculateSMA computes a simple moving average series. The first period-1
// entries are NaN (insufficient lookback).
func CalculateSMA(prices []float64, period int) []float64 {
	if len(prices) < period || period <= 0 {
		return nil
	}
	sma := make([]float64, len(prices))
	for i := 0; i < period-1; i++ {
		sma[i] = math.NaN()
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	sma[period-1] = sum / float64(period)
	for i := period; i < len(prices); i++ {
		sum += prices[i] - prices[i-period]
		sma[i] = sum / float64(period)
	}
	return sma
}

// CalculateEMA computes an exponential moving average series seeded with the
// SMA of the first period values. The first period-1 entries are NaN.
func CalculateEMA(prices []float64, period int) []float64 {
	if len(prices) < period || period <= 0 {
		return nil
	}
	ema := make([]float64, len(prices))
	for i := 0; i < period-1; i++ {
		ema[i] = math.NaN()
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema[period-1] = sum / float64(period)
	multiplier := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(prices); i++ {
		ema[i] = (prices[i]-ema[i-1])*multiplier + ema[i-1]
	}
	return ema
}
