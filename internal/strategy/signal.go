// Package strategy
package strategy

import (
	"strings"
	"time"
)

// Action is the abstract action space a strategy may request.
type Action string

const (
	OpenLong   Action = "open_long"
	OpenShort  Action = "open_short"
	CloseLong  Action = "close_long"
	CloseShort Action = "close_short"
	CloseAll   Action = "close_all"
	None       Action = "none"
)

// ParseAction maps a raw signal string onto an Action. Legacy two-valued
// signals BUY/SELL map to OpenLong/OpenShort. The boolean is false for
// unrecognized values, which resolve to None.
func ParseAction(raw string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "open_long":
		return OpenLong, true
	case "sell", "open_short":
		return OpenShort, true
	case "close_long":
		return CloseLong, true
	case "close_short":
		return CloseShort, true
	case "close_all":
		return CloseAll, true
	case "", "none", "hold":
		return None, true
	default:
		return None, false
	}
}

// Signal is the outcome of one strategy evaluation.
type Signal struct {
	Time         time.Time `json:"time"`
	Action       Action    `json:"action"`
	Reason       string    `json:"reason"`
	StrategyName string    `json:"strategy_name"`
	TriggerPrice float64   `json:"trigger_price"`
}
