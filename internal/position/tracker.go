// Package position
package position

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantaxe/perp-trader/internal/exchange"
	"github.com/quantaxe/perp-trader/internal/journal"
)

// Storage is the optional persistence consumer. Holders keep a nil Storage
// when no journal is configured and skip all calls.
type Storage interface {
	LogEvent(ctx context.Context, event journal.Event) error
	SaveOrder(ctx context.Context, o journal.Order) error
	SaveClosedPosition(ctx context.Context, cp journal.ClosedPosition) error
}

// Position is the tracked record of one open position.
type Position struct {
	Symbol         string        `json:"symbol"`
	Side           exchange.Side `json:"side"`
	Size           float64       `json:"size"`
	EntryPrice     float64       `json:"entry_price"`
	EntryTime      time.Time     `json:"entry_time"`
	LastUpdateTime time.Time     `json:"last_update_time"`
	HighestPrice   float64       `json:"highest_price"`
	LowestPrice    float64       `json:"lowest_price"`
	LastPrice      float64       `json:"last_price"`
	Leverage       float64       `json:"leverage"`
}

// ClosedPosition is the immutable archive record of a closed position.
type ClosedPosition struct {
	Position
	ExitPrice        float64   `json:"exit_price"`
	ExitTime         time.Time `json:"exit_time"`
	DurationHours    float64   `json:"duration_hours"`
	ProfitPercentage float64   `json:"profit_percentage"`
}

// Tracker owns the in-memory symbol -> Position map. It is the only writer.
// Reconciliation trusts the exchange snapshot as the source of truth.
type Tracker struct {
	mu        sync.Mutex
	positions map[string]*Position

	history  *HistoryStore
	exchange exchange.Exchange
	storage  Storage
	log      *logrus.Logger

	now func() time.Time
}

func NewTracker(log *logrus.Logger, history *HistoryStore, ex exchange.Exchange, storage Storage) *Tracker {
	return &Tracker{
		positions: make(map[string]*Position),
		history:   history,
		exchange:  ex,
		storage:   storage,
		log:       log,
		now:       time.Now,
	}
}

// Update reconciles the tracked position for symbol against the exchange
// snapshot. snap is nil when the exchange reports no open position.
func (t *Tracker) Update(ctx context.Context, symbol string, snap *exchange.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	local, exists := t.positions[symbol]

	if snap == nil || snap.Contracts <= 0 {
		if !exists {
			return
		}
		t.log.Infof("Tracker | [%s] position gone on exchange, archiving", symbol)
		t.archiveLocked(ctx, symbol, 0)
		return
	}

	if !exists {
		t.createLocked(symbol, snap)
		return
	}

	if local.Side != snap.Side {
		t.log.Infof("Tracker | [%s] side flipped %s -> %s, archiving and recreating", symbol, local.Side, snap.Side)
		t.archiveLocked(ctx, symbol, 0)
		t.createLocked(symbol, snap)
		return
	}

	if local.Size != snap.Contracts {
		t.log.Infof("Tracker | [%s] size changed %g -> %g", symbol, local.Size, snap.Contracts)
		local.Size = snap.Contracts
		if snap.EntryPrice > 0 {
			local.EntryPrice = snap.EntryPrice
		}
		local.LastUpdateTime = t.now()
	}
	if snap.MarkPrice > 0 {
		t.touchPriceLocked(local, snap.MarkPrice)
	}
}

func (t *Tracker) createLocked(symbol string, snap *exchange.Position) {
	now := t.now()
	p := &Position{
		Symbol:         symbol,
		Side:           snap.Side,
		Size:           snap.Contracts,
		EntryPrice:     snap.EntryPrice,
		EntryTime:      now,
		LastUpdateTime: now,
		HighestPrice:   snap.EntryPrice,
		LowestPrice:    snap.EntryPrice,
		LastPrice:      snap.EntryPrice,
		Leverage:       snap.Leverage,
	}
	if snap.MarkPrice > 0 {
		t.touchPriceLocked(p, snap.MarkPrice)
	}
	t.positions[symbol] = p
	t.log.Infof("Tracker | [%s] opened %s %g @ %g (lev %gx)", symbol, p.Side, p.Size, p.EntryPrice, p.Leverage)
}

func (t *Tracker) touchPriceLocked(p *Position, price float64) {
	p.LastPrice = price
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if p.LowestPrice == 0 || price < p.LowestPrice {
		p.LowestPrice = price
	}
}

// UpdateMarketPrice refreshes lastPrice and the running extrema. No-op when
// there is no tracked position for symbol.
func (t *Tracker) UpdateMarketPrice(symbol string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[symbol]
	if !ok || price <= 0 {
		return
	}
	t.touchPriceLocked(p, price)
}

// Get returns a copy of the tracked position for symbol.
func (t *Tracker) Get(symbol string) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// PositionValue returns size * price for the tracked position, 0 when flat.
func (t *Tracker) PositionValue(symbol string, price float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[symbol]
	if !ok {
		return 0
	}
	return p.Size * price
}

// ProfitPercentage returns the leverage-adjusted profit percentage at
// currentPrice. The second return is false when there is no position or the
// entry price is zero.
func (t *Tracker) ProfitPercentage(symbol string, currentPrice float64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[symbol]
	if !ok || p.EntryPrice <= 0 {
		return 0, false
	}
	return leveragedProfit(p.Side, p.EntryPrice, currentPrice, p.Leverage), true
}

func leveragedProfit(side exchange.Side, entry, current, leverage float64) float64 {
	if leverage <= 0 {
		leverage = 1
	}
	pct := (current - entry) / entry * 100 * leverage
	if side == exchange.Short {
		pct = -pct
	}
	return pct
}

// Close archives the tracked position for symbol using exitPrice when > 0,
// falling back through the exit-price tiers otherwise. No-op when flat.
func (t *Tracker) Close(ctx context.Context, symbol string, exitPrice float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.positions[symbol]; !ok {
		return
	}
	t.archiveLocked(ctx, symbol, exitPrice)
}

// archiveLocked resolves the exit price, writes the closed record to the
// history store and the journal, and removes the live entry. Persistence
// failures are logged, never propagated.
func (t *Tracker) archiveLocked(ctx context.Context, symbol string, explicitPrice float64) {
	p := t.positions[symbol]
	exitPrice := t.resolveExitPrice(ctx, p, explicitPrice)
	now := t.now()

	rec := ClosedPosition{
		Position:         *p,
		ExitPrice:        exitPrice,
		ExitTime:         now,
		DurationHours:    now.Sub(p.EntryTime).Hours(),
		ProfitPercentage: leveragedProfit(p.Side, p.EntryPrice, exitPrice, p.Leverage),
	}
	delete(t.positions, symbol)

	t.log.Infof("Tracker | [%s] closed %s %g entry %g exit %g profit %.2f%%",
		symbol, rec.Side, rec.Size, rec.EntryPrice, rec.ExitPrice, rec.ProfitPercentage)

	if t.history != nil {
		if err := t.history.Append(rec); err != nil {
			t.log.Errorf("Tracker | [%s] failed to persist closed position: %v", symbol, err)
		}
	}
	if t.storage != nil {
		cp := journal.ClosedPosition{
			Symbol:           rec.Symbol,
			Side:             string(rec.Side),
			Size:             rec.Size,
			EntryPrice:       rec.EntryPrice,
			ExitPrice:        rec.ExitPrice,
			Leverage:         rec.Leverage,
			ProfitPercentage: rec.ProfitPercentage,
			EntryTime:        rec.EntryTime,
			ExitTime:         rec.ExitTime,
			DurationHours:    rec.DurationHours,
		}
		if err := t.storage.SaveClosedPosition(ctx, cp); err != nil {
			t.log.Errorf("Tracker | [%s] failed to journal closed position: %v", symbol, err)
		}
	}
}

// resolveExitPrice applies the ordered fallback: explicit price, live market
// price, last observed price, side-appropriate extremum, entry price. A
// failed or zero market fetch moves on to the next tier.
func (t *Tracker) resolveExitPrice(ctx context.Context, p *Position, explicit float64) float64 {
	if explicit > 0 {
		return explicit
	}
	if t.exchange != nil {
		if mp, err := t.exchange.FetchMarketPrice(ctx, p.Symbol); err == nil && mp > 0 {
			return mp
		} else if err != nil {
			t.log.Warnf("Tracker | [%s] market price fetch failed for exit price: %v", p.Symbol, err)
		}
	}
	if p.LastPrice > 0 {
		return p.LastPrice
	}
	if p.Side == exchange.Long && p.HighestPrice > 0 {
		return p.HighestPrice
	}
	if p.Side == exchange.Short && p.LowestPrice > 0 {
		return p.LowestPrice
	}
	return p.EntryPrice
}

// History exposes the closed-position store.
func (t *Tracker) History() *HistoryStore {
	return t.history
}
