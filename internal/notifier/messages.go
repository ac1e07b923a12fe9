package notifier

import (
	"fmt"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// TradeMessage composes the notification sent after an executed trade
// action. positionDesc describes the fresh position snapshot, or is empty
// when the account is flat.
func TradeMessage(action, symbol string, amount, price float64, positionDesc string) string {
	var b strings.Builder
	b.WriteString("Trade Executed\n\n")
	fmt.Fprintf(&b, "Action: %s\n", action)
	fmt.Fprintf(&b, "Symbol: %s\n", symbol)
	fmt.Fprintf(&b, "Amount: %g\n", amount)
	fmt.Fprintf(&b, "Price: %g\n", price)
	if positionDesc != "" {
		fmt.Fprintf(&b, "Position: %s\n", positionDesc)
	} else {
		b.WriteString("Position: flat\n")
	}
	fmt.Fprintf(&b, "Time: %s", time.Now().Format(timeLayout))
	return b.String()
}

// SignalMessage composes a strategy signal notification.
func SignalMessage(strategy, symbol, signal string, price float64, extra string) string {
	var b strings.Builder
	b.WriteString("Trade Signal\n\n")
	fmt.Fprintf(&b, "Strategy: %s\n", strategy)
	fmt.Fprintf(&b, "Symbol: %s\n", symbol)
	fmt.Fprintf(&b, "Signal: %s\n", signal)
	fmt.Fprintf(&b, "Price: %g\n", price)
	if extra != "" {
		fmt.Fprintf(&b, "Info: %s\n", extra)
	}
	fmt.Fprintf(&b, "Time: %s", time.Now().Format(timeLayout))
	return b.String()
}

// TpSlMessage composes a take-profit/stop-loss trigger notification.
func TpSlMessage(strategy, symbol, triggerType, side string, entryPrice, exitPrice, amount, profitPct float64) string {
	title := "Stop-Loss Triggered"
	if triggerType == "take-profit" {
		title = "Take-Profit Triggered"
	}
	var b strings.Builder
	b.WriteString(title + "\n\n")
	fmt.Fprintf(&b, "Strategy: %s\n", strategy)
	fmt.Fprintf(&b, "Symbol: %s\n", symbol)
	fmt.Fprintf(&b, "Side: %s\n", side)
	fmt.Fprintf(&b, "Entry Price: %g\n", entryPrice)
	fmt.Fprintf(&b, "Exit Price: %g\n", exitPrice)
	fmt.Fprintf(&b, "Amount: %g\n", amount)
	fmt.Fprintf(&b, "Profit: %.2f%%\n", profitPct)
	fmt.Fprintf(&b, "Time: %s", time.Now().Format(timeLayout))
	return b.String()
}

// ErrorMessage composes an error notification.
func ErrorMessage(errType, detail string) string {
	var b strings.Builder
	if errType == "" {
		errType = "System Error"
	}
	b.WriteString(errType + "\n\n")
	fmt.Fprintf(&b, "Detail: %s\n", detail)
	fmt.Fprintf(&b, "Time: %s", time.Now().Format(timeLayout))
	return b.String()
}
