package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	sma := CalculateSMA(prices, 3)
	require.Len(t, sma, 5)
	assert.True(t, math.IsNaN(sma[0]))
	assert.True(t, math.IsNaN(sma[1]))
	assert.InDelta(t, 2.0, sma[2], 1e-9)
	assert.InDelta(t, 3.0, sma[3], 1e-9)
	assert.InDelta(t, 4.0, sma[4], 1e-9)
}

func TestCalculateSMA_InsufficientData(t *testing.T) {
	assert.Nil(t, CalculateSMA([]float64{1, 2}, 3))
	assert.Nil(t, CalculateSMA([]float64{1, 2, 3}, 0))
}

func TestCalculateEMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	ema := CalculateEMA(prices, 3)
	require.Len(t, ema, 5)
	assert.True(t, math.IsNaN(ema[1]))
	assert.InDelta(t, 2.0, ema[2], 1e-9)
	// multiplier = 0.5: ema[3] = (4-2)*0.5+2 = 3, ema[4] = (5-3)*0.5+3 = 4
	assert.InDelta(t, 3.0, ema[3], 1e-9)
	assert.InDelta(t, 4.0, ema[4], 1e-9)
}

func TestCalculateRSI_AllGains(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7}
	rsi := CalculateRSI(prices, 3)
	require.Len(t, rsi, 7)
	assert.True(t, math.IsNaN(rsi[0]))
	// Monotonically rising prices pin RSI at 100.
	for i := 2; i < len(rsi); i++ {
		assert.InDelta(t, 100.0, rsi[i], 1e-9)
	}
}

func TestCalculateDonchian(t *testing.T) {
	highs := []float64{10, 12, 11, 13, 14}
	lows := []float64{9, 10, 8, 11, 12}
	channels := CalculateDonchian(highs, lows, 3)
	require.Len(t, channels, 5)
	assert.True(t, math.IsNaN(channels[2].Upper))

	// Bands at i=3 cover bars 0..2.
	assert.InDelta(t, 12.0, channels[3].Upper, 1e-9)
	assert.InDelta(t, 8.0, channels[3].Lower, 1e-9)
	assert.InDelta(t, 10.0, channels[3].Middle, 1e-9)

	// Bands at i=4 cover bars 1..3.
	assert.InDelta(t, 13.0, channels[4].Upper, 1e-9)
	assert.InDelta(t, 8.0, channels[4].Lower, 1e-9)
}

func TestCalculateDonchian_BadInput(t *testing.T) {
	assert.Nil(t, CalculateDonchian([]float64{1, 2}, []float64{1}, 1))
	assert.Nil(t, CalculateDonchian([]float64{1, 2}, []float64{1, 2}, 2))
}
