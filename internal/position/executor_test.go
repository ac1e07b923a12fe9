package position

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantaxe/perp-trader/internal/config"
	"github.com/quantaxe/perp-trader/internal/exchange"
	"github.com/quantaxe/perp-trader/internal/strategy"
)

func executorFixture(t *testing.T) (*Executor, *exchange.Mock, *Tracker) {
	t.Helper()
	cfg := &config.Config{
		Symbol: testSymbol,
		Trading: config.TradingConfig{
			DynamicSizing: false,
			FixedQuantity: 3,
			Leverage:      5,
		},
	}
	mock := exchange.NewMock()
	mock.OnClose = func(symbol string, side exchange.Side) {
		delete(mock.Positions, symbol)
	}
	mock.OnOpen = func(symbol string, side exchange.Side, quantity float64) {
		mock.Positions[symbol] = &exchange.Position{
			Symbol: symbol, Side: side, Contracts: quantity, EntryPrice: 100, Leverage: 5,
		}
	}
	history := NewHistoryStore(filepath.Join(t.TempDir(), "history.json"), testLogger())
	tracker := NewTracker(testLogger(), history, mock, nil)
	sizer := NewSizer(cfg, mock, testLogger())
	ex := NewExecutor(cfg, mock, sizer, tracker, nil, nil, "dual-ema", testLogger())
	ex.sleep = func(time.Duration) {}
	return ex, mock, tracker
}

func TestExecutor_OpenLongAgainstShortClosesFirst(t *testing.T) {
	ex, mock, tracker := executorFixture(t)
	mock.Positions[testSymbol] = &exchange.Position{
		Symbol: testSymbol, Side: exchange.Short, Contracts: 5, EntryPrice: 110, Leverage: 5,
	}

	traded, err := ex.Execute(context.Background(), strategy.OpenLong, 100)
	require.NoError(t, err)
	assert.True(t, traded)

	// Strict ordering: the short is closed before the long opens; leverage
	// is set only once the account is flat.
	assert.Equal(t, []string{
		"FetchPosition",
		"CloseShort",
		"FetchPosition",
		"SetLeverage",
		"PlaceMarketOrder",
		"FetchPosition",
	}, mock.CallNames())

	closeCall := mock.Calls[1]
	assert.Equal(t, 5.0, closeCall.Args[1])
	openCall := mock.Calls[4]
	assert.Equal(t, exchange.Long, openCall.Args[1])
	assert.Equal(t, 3.0, openCall.Args[2])

	p, ok := tracker.Get(testSymbol)
	require.True(t, ok)
	assert.Equal(t, exchange.Long, p.Side)
}

func TestExecutor_OpenLongWhenFlat(t *testing.T) {
	ex, mock, _ := executorFixture(t)

	traded, err := ex.Execute(context.Background(), strategy.OpenLong, 100)
	require.NoError(t, err)
	assert.True(t, traded)
	assert.Equal(t, []string{"FetchPosition", "SetLeverage", "PlaceMarketOrder", "FetchPosition"}, mock.CallNames())
}

func TestExecutor_OpenLongAlreadyLongIsNoop(t *testing.T) {
	ex, mock, _ := executorFixture(t)
	mock.Positions[testSymbol] = &exchange.Position{
		Symbol: testSymbol, Side: exchange.Long, Contracts: 2, EntryPrice: 90,
	}

	traded, err := ex.Execute(context.Background(), strategy.OpenLong, 100)
	require.NoError(t, err)
	assert.False(t, traded)
	assert.Equal(t, []string{"FetchPosition"}, mock.CallNames())
}

func TestExecutor_CloseLong(t *testing.T) {
	ex, mock, tracker := executorFixture(t)
	mock.Positions[testSymbol] = &exchange.Position{
		Symbol: testSymbol, Side: exchange.Long, Contracts: 4, EntryPrice: 90, Leverage: 5,
	}
	tracker.Update(context.Background(), testSymbol, mock.Positions[testSymbol])

	traded, err := ex.Execute(context.Background(), strategy.CloseLong, 100)
	require.NoError(t, err)
	assert.True(t, traded)
	assert.Contains(t, mock.CallNames(), "CloseLong")

	_, ok := tracker.Get(testSymbol)
	assert.False(t, ok)
	assert.Len(t, tracker.History().Records(), 1)
}

func TestExecutor_CloseLongWithoutLongIsNoop(t *testing.T) {
	ex, mock, _ := executorFixture(t)
	mock.Positions[testSymbol] = &exchange.Position{
		Symbol: testSymbol, Side: exchange.Short, Contracts: 4, EntryPrice: 90,
	}

	traded, err := ex.Execute(context.Background(), strategy.CloseLong, 100)
	require.NoError(t, err)
	assert.False(t, traded)
	assert.Equal(t, []string{"FetchPosition"}, mock.CallNames())
}

func TestExecutor_CloseAllClosesEitherSide(t *testing.T) {
	ex, mock, _ := executorFixture(t)
	mock.Positions[testSymbol] = &exchange.Position{
		Symbol: testSymbol, Side: exchange.Short, Contracts: 4, EntryPrice: 90,
	}

	traded, err := ex.Execute(context.Background(), strategy.CloseAll, 100)
	require.NoError(t, err)
	assert.True(t, traded)
	assert.Contains(t, mock.CallNames(), "CloseShort")
}

func TestExecutor_CloseAllWhenFlatIsNoop(t *testing.T) {
	ex, mock, _ := executorFixture(t)

	traded, err := ex.Execute(context.Background(), strategy.CloseAll, 100)
	require.NoError(t, err)
	assert.False(t, traded)
	assert.Equal(t, []string{"FetchPosition"}, mock.CallNames())
}

func TestExecutor_NoneDoesNothing(t *testing.T) {
	ex, mock, _ := executorFixture(t)

	traded, err := ex.Execute(context.Background(), strategy.None, 100)
	require.NoError(t, err)
	assert.False(t, traded)
	assert.Empty(t, mock.Calls)
}

func TestExecutor_OrderFailurePropagates(t *testing.T) {
	ex, mock, _ := executorFixture(t)
	mock.OrderErr = assert.AnError

	_, err := ex.Execute(context.Background(), strategy.OpenShort, 100)
	assert.Error(t, err)
}

func TestExecutor_PartialExecutionStops(t *testing.T) {
	ex, mock, _ := executorFixture(t)
	mock.Positions[testSymbol] = &exchange.Position{
		Symbol: testSymbol, Side: exchange.Short, Contracts: 5, EntryPrice: 110,
	}
	// Close succeeds but the position still shows on the re-fetch, so the
	// open is skipped and left for next-tick reconciliation.
	mock.OnClose = nil

	traded, err := ex.Execute(context.Background(), strategy.OpenLong, 100)
	require.NoError(t, err)
	assert.True(t, traded)
	assert.NotContains(t, mock.CallNames(), "PlaceMarketOrder")
}
