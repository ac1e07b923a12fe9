// Package exchange
package exchange

import (
	"context"

	"github.com/quantaxe/perp-trader/internal/candle"
)

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Opposite returns the other position side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Position is the exchange-reported snapshot of one open position.
type Position struct {
	Symbol        string
	Side          Side
	Contracts     float64
	EntryPrice    float64
	MarkPrice     float64
	Leverage      float64
	Notional      float64
	UnrealizedPnL float64
}

// ContractSpec describes one instrument's trading constraints. Immutable
// once fetched.
type ContractSpec struct {
	Symbol      string
	MinSize     float64
	LotStep     float64
	TickSize    float64
	FaceValue   float64
	MaxLeverage float64
}

// Order is the result of a submitted order.
type Order struct {
	OrderID  string
	Symbol   string
	Side     string
	Quantity float64
	Status   string
}

// Exchange abstracts the venue. Implementations embed retry-with-backoff so
// a returned error is final for that call.
type Exchange interface {
	Name() string
	FetchPosition(ctx context.Context, symbol string) (*Position, error)
	FetchAllPositions(ctx context.Context) ([]Position, error)
	FetchAccountBalance(ctx context.Context, currency string) (float64, error)
	FetchContractSpec(ctx context.Context, symbol string) (ContractSpec, error)
	SetLeverage(ctx context.Context, symbol string, leverage float64) error
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (Order, error)
	CloseLong(ctx context.Context, symbol string, quantity float64) (Order, error)
	CloseShort(ctx context.Context, symbol string, quantity float64) (Order, error)
	FetchMarketPrice(ctx context.Context, symbol string) (float64, error)
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candle.Candle, error)
	VerifyDualSidePositionMode(ctx context.Context) error
}
