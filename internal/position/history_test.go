package position

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantaxe/perp-trader/internal/exchange"
)

func testRecord(symbol string, side exchange.Side) ClosedPosition {
	entry := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return ClosedPosition{
		Position: Position{
			Symbol:         symbol,
			Side:           side,
			Size:           2,
			EntryPrice:     100,
			EntryTime:      entry,
			LastUpdateTime: entry,
			HighestPrice:   120,
			LowestPrice:    95,
			LastPrice:      118,
			Leverage:       3,
		},
		ExitPrice:        118,
		ExitTime:         entry.Add(6 * time.Hour),
		DurationHours:    6,
		ProfitPercentage: 54,
	}
}

func TestHistoryStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	h := NewHistoryStore(path, testLogger())
	require.NoError(t, h.Append(testRecord("BTC-USDT-SWAP", exchange.Long)))

	reloaded := NewHistoryStore(path, testLogger())
	records := reloaded.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, exchange.Long, rec.Side)
	assert.Equal(t, 2.0, rec.Size)
	assert.Equal(t, 100.0, rec.EntryPrice)
	assert.True(t, rec.EntryTime.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, rec.ExitTime.Equal(time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)))
}

func TestHistoryStore_MissingFileIsEmpty(t *testing.T) {
	h := NewHistoryStore(filepath.Join(t.TempDir(), "nope.json"), testLogger())
	assert.Empty(t, h.Records())
}

func TestHistoryStore_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	h := NewHistoryStore(path, testLogger())
	assert.Empty(t, h.Records())

	// Appending after corruption starts a fresh history.
	require.NoError(t, h.Append(testRecord("BTC-USDT-SWAP", exchange.Short)))
	assert.Len(t, h.Records(), 1)
}

func TestHistoryStore_MergesConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	a := NewHistoryStore(path, testLogger())
	b := NewHistoryStore(path, testLogger())

	require.NoError(t, a.Append(testRecord("BTC-USDT-SWAP", exchange.Long)))
	// b was created before a's write; its append must not clobber it.
	require.NoError(t, b.Append(testRecord("ETH-USDT-SWAP", exchange.Short)))

	c := NewHistoryStore(path, testLogger())
	records := c.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "BTC-USDT-SWAP", records[0].Symbol)
	assert.Equal(t, "ETH-USDT-SWAP", records[1].Symbol)
}
