package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantaxe/perp-trader/internal/candle"
)

// Call records one invocation against the mock exchange.
type Call struct {
	Method string
	Args   []any
}

// Mock is a recording in-memory Exchange for tests. State fields are plain
// and may be mutated between calls; hooks let a test simulate fills.
type Mock struct {
	mu    sync.Mutex
	Calls []Call

	Positions    map[string]*Position
	Balance      float64
	BalanceErr   error
	Specs        map[string]ContractSpec
	SpecErr      error
	MarketPrices map[string]float64
	PriceErr     error
	LeverageErr  error
	OrderErr     error
	Candles      []candle.Candle
	CandlesErr   error
	PosModeErr   error

	// OnClose and OnOpen run after a successful close/open, letting tests
	// update Positions to reflect the fill.
	OnClose func(symbol string, side Side)
	OnOpen  func(symbol string, side Side, quantity float64)

	orderSeq int
}

func NewMock() *Mock {
	return &Mock{
		Positions:    make(map[string]*Position),
		Specs:        make(map[string]ContractSpec),
		MarketPrices: make(map[string]float64),
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Method: method, Args: args})
}

// CallNames returns the ordered method names recorded so far.
func (m *Mock) CallNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		names[i] = c.Method
	}
	return names
}

func (m *Mock) FetchPosition(ctx context.Context, symbol string) (*Position, error) {
	m.record("FetchPosition", symbol)
	if p, ok := m.Positions[symbol]; ok && p != nil && p.Contracts > 0 {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *Mock) FetchAllPositions(ctx context.Context) ([]Position, error) {
	m.record("FetchAllPositions")
	var out []Position
	for _, p := range m.Positions {
		if p != nil && p.Contracts > 0 {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *Mock) FetchAccountBalance(ctx context.Context, currency string) (float64, error) {
	m.record("FetchAccountBalance", currency)
	if m.BalanceErr != nil {
		return 0, m.BalanceErr
	}
	return m.Balance, nil
}

func (m *Mock) FetchContractSpec(ctx context.Context, symbol string) (ContractSpec, error) {
	m.record("FetchContractSpec", symbol)
	if m.SpecErr != nil {
		return ContractSpec{}, m.SpecErr
	}
	if spec, ok := m.Specs[symbol]; ok {
		return spec, nil
	}
	return ContractSpec{}, fmt.Errorf("no contract spec for %s", symbol)
}

func (m *Mock) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	m.record("SetLeverage", symbol, leverage)
	return m.LeverageErr
}

func (m *Mock) PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (Order, error) {
	m.record("PlaceMarketOrder", symbol, side, quantity)
	if m.OrderErr != nil {
		return Order{}, m.OrderErr
	}
	if m.OnOpen != nil {
		m.OnOpen(symbol, side, quantity)
	}
	return m.newOrder(symbol, string(side), quantity), nil
}

func (m *Mock) CloseLong(ctx context.Context, symbol string, quantity float64) (Order, error) {
	m.record("CloseLong", symbol, quantity)
	if m.OrderErr != nil {
		return Order{}, m.OrderErr
	}
	if m.OnClose != nil {
		m.OnClose(symbol, Long)
	}
	return m.newOrder(symbol, "close-long", quantity), nil
}

func (m *Mock) CloseShort(ctx context.Context, symbol string, quantity float64) (Order, error) {
	m.record("CloseShort", symbol, quantity)
	if m.OrderErr != nil {
		return Order{}, m.OrderErr
	}
	if m.OnClose != nil {
		m.OnClose(symbol, Short)
	}
	return m.newOrder(symbol, "close-short", quantity), nil
}

func (m *Mock) newOrder(symbol, side string, quantity float64) Order {
	m.mu.Lock()
	m.orderSeq++
	id := fmt.Sprintf("mock-%d", m.orderSeq)
	m.mu.Unlock()
	return Order{OrderID: id, Symbol: symbol, Side: side, Quantity: quantity, Status: "filled"}
}

func (m *Mock) FetchMarketPrice(ctx context.Context, symbol string) (float64, error) {
	m.record("FetchMarketPrice", symbol)
	if m.PriceErr != nil {
		return 0, m.PriceErr
	}
	return m.MarketPrices[symbol], nil
}

func (m *Mock) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candle.Candle, error) {
	m.record("FetchCandles", symbol, timeframe, limit)
	if m.CandlesErr != nil {
		return nil, m.CandlesErr
	}
	return m.Candles, nil
}

func (m *Mock) VerifyDualSidePositionMode(ctx context.Context) error {
	m.record("VerifyDualSidePositionMode")
	return m.PosModeErr
}
