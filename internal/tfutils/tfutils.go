// Package tfutils
package tfutils

import (
	"context"
	"errors"
	"time"
)

// ParseTimeframe parses timeframe string (e.g., "5m", "1h") to time.Duration
func ParseTimeframe(timeframe string) (time.Duration, error) {
	if d := GetTimeframeDuration(timeframe); d > 0 {
		return d, nil
	}
	return 0, errors.New("unsupported timeframe")
}

// GetTimeframeDuration returns the duration for a given timeframe
func GetTimeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}

// GetSupportedTimeframes returns all supported timeframes
func GetSupportedTimeframes() []string {
	return []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}
}

// IsValidTimeframe checks if a timeframe is supported
func IsValidTimeframe(timeframe string) bool {
	return GetTimeframeDuration(timeframe) > 0
}

// NextCandleTime returns the UTC open time of the next candle after now.
// Candle boundaries align to UTC midnight, matching exchange candle buckets.
func NextCandleTime(timeframe string, now time.Time) time.Time {
	dur := GetTimeframeDuration(timeframe)
	if dur == 0 {
		return time.Time{}
	}
	now = now.UTC()
	next := now.Truncate(dur).Add(dur)
	for !next.After(now) {
		next = next.Add(dur)
	}
	return next
}

// WaitForNextCandle sleeps until the next candle boundary plus buffer, so the
// just-closed candle is available from the exchange. Returns early with the
// context's error on cancellation.
func WaitForNextCandle(ctx context.Context, timeframe string, buffer time.Duration) error {
	next := NextCandleTime(timeframe, time.Now())
	if next.IsZero() {
		return errors.New("unsupported timeframe")
	}
	wait := time.Until(next) + buffer

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
