// Package db
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/quantaxe/perp-trader/internal/config"
	"github.com/quantaxe/perp-trader/internal/journal"
)

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB
	journal.Journaler
	SaveOrder(ctx context.Context, o journal.Order) error
	GetOrders(ctx context.Context, symbol string, start, end time.Time) ([]journal.Order, error)
	SaveClosedPosition(ctx context.Context, cp journal.ClosedPosition) error
	GetClosedPositions(ctx context.Context, symbol string, start, end time.Time) ([]journal.ClosedPosition, error)
	Close() error
}

type Default struct {
	db *sql.DB
}

// New opens a Postgres connection from the journal config and ensures the
// schema exists. An empty DSN is a configuration error; callers that want the
// journal to be optional should skip construction instead.
func New(cfg config.JournalConfig) (*Default, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db: empty DSN")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	p := &Default{db: db}
	if err := p.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

func (p *Default) Close() error {
	return p.db.Close()
}

func (p *Default) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id SERIAL PRIMARY KEY,
			time TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			data JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_time ON events (type, time)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION,
			status TEXT,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS closed_positions (
			id SERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			leverage DOUBLE PRECISION NOT NULL,
			profit_percentage DOUBLE PRECISION NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			duration_hours DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_positions_symbol_exit ON closed_positions (symbol, exit_time)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("db: create schema: %w", err)
		}
	}
	return nil
}

// executeWithTransaction runs fn inside a transaction, rolling back on error.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}
	return nil
}

func (p *Default) LogEvent(ctx context.Context, event journal.Event) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		data, _ := json.Marshal(event.Data)
		_, err := tx.ExecContext(ctx, `INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
			event.Time, event.Type, event.Description, data)
		if err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}

func (p *Default) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT time, type, description, data FROM events WHERE type=$1 AND time >= $2 AND time <= $3 ORDER BY time ASC`, eventType, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []journal.Event
	for rows.Next() {
		var e journal.Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, err
		}
		json.Unmarshal(data, &e.Data)
		e.Time = e.Time.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (p *Default) SaveOrder(ctx context.Context, o journal.Order) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, symbol, side, quantity, price, status, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (order_id) DO UPDATE SET
			quantity=EXCLUDED.quantity, price=EXCLUDED.price, status=EXCLUDED.status`,
			o.OrderID, o.Symbol, o.Side, o.Quantity, o.Price, o.Status, o.Reason, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save order %s: %w", o.OrderID, err)
		}
		return nil
	})
}

func (p *Default) GetOrders(ctx context.Context, symbol string, start, end time.Time) ([]journal.Order, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT order_id, symbol, side, quantity, price, status, reason, created_at FROM orders WHERE symbol=$1 AND created_at >= $2 AND created_at <= $3 ORDER BY created_at ASC`, symbol, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []journal.Order
	for rows.Next() {
		var o journal.Order
		if err := rows.Scan(&o.OrderID, &o.Symbol, &o.Side, &o.Quantity, &o.Price, &o.Status, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.CreatedAt = o.CreatedAt.UTC()
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (p *Default) SaveClosedPosition(ctx context.Context, cp journal.ClosedPosition) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO closed_positions (symbol, side, size, entry_price, exit_price, leverage, profit_percentage, entry_time, exit_time, duration_hours)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			cp.Symbol, cp.Side, cp.Size, cp.EntryPrice, cp.ExitPrice, cp.Leverage, cp.ProfitPercentage, cp.EntryTime, cp.ExitTime, cp.DurationHours)
		if err != nil {
			return fmt.Errorf("failed to save closed position for %s: %w", cp.Symbol, err)
		}
		return nil
	})
}

func (p *Default) GetClosedPositions(ctx context.Context, symbol string, start, end time.Time) ([]journal.ClosedPosition, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT symbol, side, size, entry_price, exit_price, leverage, profit_percentage, entry_time, exit_time, duration_hours FROM closed_positions WHERE symbol=$1 AND exit_time >= $2 AND exit_time <= $3 ORDER BY exit_time ASC`, symbol, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []journal.ClosedPosition
	for rows.Next() {
		var cp journal.ClosedPosition
		if err := rows.Scan(&cp.Symbol, &cp.Side, &cp.Size, &cp.EntryPrice, &cp.ExitPrice, &cp.Leverage, &cp.ProfitPercentage, &cp.EntryTime, &cp.ExitTime, &cp.DurationHours); err != nil {
			return nil, err
		}
		cp.EntryTime = cp.EntryTime.UTC()
		cp.ExitTime = cp.ExitTime.UTC()
		out = append(out, cp)
	}
	return out, rows.Err()
}
