package indicator

import "math"

// DonchianChannel holds the rolling channel bands for one bar.
//
// Bands are computed over the previous period bars, excluding the current
// one, so a breakout compares a bar against the channel formed before it.
type DonchianChannel struct {
	Upper  float64
	Lower  float64
	Middle float64
}

// CalculateDonchian computes the Donchian channel series from high/low series.
// The first period entries are NaN bands (insufficient lookback).
func CalculateDonchian(highs, lows []float64, period int) []DonchianChannel {
	if len(highs) != len(lows) || len(highs) <= period || period <= 0 {
		return nil
	}
	channels := make([]DonchianChannel, len(highs))
	for i := 0; i < period; i++ {
		channels[i] = DonchianChannel{Upper: math.NaN(), Lower: math.NaN(), Middle: math.NaN()}
	}
	for i := period; i < len(highs); i++ {
		upper := highs[i-period]
		lower := lows[i-period]
		for j := i - period + 1; j < i; j++ {
			if highs[j] > upper {
				upper = highs[j]
			}
			if lows[j] < lower {
				lower = lows[j]
			}
		}
		channels[i] = DonchianChannel{Upper: upper, Lower: lower, Middle: (upper + lower) / 2}
	}
	return channels
}
