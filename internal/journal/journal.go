package journal

import (
	"context"
	"time"
)

// Event represents a journaled event.
type Event struct {
	Time        time.Time
	Type        string // e.g., "trade", "tp_sl", "error", "report"
	Description string
	Data        map[string]any
}

// Order is the persisted record of a submitted order.
type Order struct {
	OrderID   string
	Symbol    string
	Side      string
	Quantity  float64
	Price     float64
	Status    string
	Reason    string // "signal", "take-profit", "stop-loss"
	CreatedAt time.Time
}

// ClosedPosition mirrors an archived position for querying.
type ClosedPosition struct {
	Symbol           string
	Side             string
	Size             float64
	EntryPrice       float64
	ExitPrice        float64
	Leverage         float64
	ProfitPercentage float64
	EntryTime        time.Time
	ExitTime         time.Time
	DurationHours    float64
}

// Journaler interface for journaling events.
type Journaler interface {
	LogEvent(ctx context.Context, event Event) error
	GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]Event, error)
}
