package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantaxe/perp-trader/internal/config"
)

func newTestOKX(t *testing.T, handler http.HandlerFunc) *OKXExchange {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewOKXExchange(config.ExchangeConfig{
		BaseURL:    srv.URL,
		APIKey:     "key",
		SecretKey:  "secret",
		Passphrase: "pass",
	}, log)
}

func TestOKX_FetchPosition(t *testing.T) {
	ex := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/account/positions", r.URL.Path)
		assert.Equal(t, "BTC-USDT-SWAP", r.URL.Query().Get("instId"))
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-SIGN"))
		w.Write([]byte(`{"code":"0","data":[
			{"instId":"BTC-USDT-SWAP","posSide":"short","pos":"0"},
			{"instId":"BTC-USDT-SWAP","posSide":"long","pos":"5","avgPx":"30000","markPx":"30500","lever":"3","notionalUsd":"1525","upl":"25"}
		]}`))
	})

	pos, err := ex.FetchPosition(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, Long, pos.Side)
	assert.Equal(t, 5.0, pos.Contracts)
	assert.Equal(t, 30000.0, pos.EntryPrice)
	assert.Equal(t, 3.0, pos.Leverage)
}

func TestOKX_FetchPosition_Flat(t *testing.T) {
	ex := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[]}`))
	})
	pos, err := ex.FetchPosition(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestOKX_FetchCandles_ReversesOrder(t *testing.T) {
	ex := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/candles", r.URL.Path)
		assert.Equal(t, "1H", r.URL.Query().Get("bar"))
		// Newest first, as the venue serves them.
		w.Write([]byte(`{"code":"0","data":[
			["1714557600000","101","102","100","101.5","10"],
			["1714554000000","100","101","99","101","12"]
		]}`))
	})

	candles, err := ex.FetchCandles(context.Background(), "BTC-USDT-SWAP", "1h", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, 101.5, candles[1].Close)
}

func TestOKX_CloseLong_ReduceOnly(t *testing.T) {
	var body map[string]any
	ex := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"code":"0","data":[{"ordId":"123","sCode":"0"}]}`))
	})

	order, err := ex.CloseLong(context.Background(), "BTC-USDT-SWAP", 2)
	require.NoError(t, err)
	assert.Equal(t, "123", order.OrderID)
	assert.Equal(t, "sell", body["side"])
	assert.Equal(t, "long", body["posSide"])
	assert.Equal(t, true, body["reduceOnly"])
	assert.Equal(t, "cross", body["tdMode"])
	assert.Equal(t, "market", body["ordType"])
}

func TestOKX_VerifyDualSidePositionMode(t *testing.T) {
	ex := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[{"posMode":"net_mode"}]}`))
	})
	err := ex.VerifyDualSidePositionMode(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net_mode")
}
