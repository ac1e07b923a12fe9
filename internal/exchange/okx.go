package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantaxe/perp-trader/internal/candle"
	"github.com/quantaxe/perp-trader/internal/config"
	"github.com/quantaxe/perp-trader/internal/tfutils"
)

const okxTimestampLayout = "2006-01-02T15:04:05.000Z"

type OKXExchange struct {
	baseURL    string
	apiKey     string
	secretKey  string
	passphrase string
	simulated  bool

	client *http.Client
	log    *logrus.Logger
}

func NewOKXExchange(cfg config.ExchangeConfig, log *logrus.Logger) *OKXExchange {
	return &OKXExchange{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		passphrase: cfg.Passphrase,
		simulated:  cfg.Simulated,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

func (o *OKXExchange) Name() string {
	return "okx"
}

// retry wraps a function with retry logic for transient errors, using
// exponential backoff and error logging.
func (o *OKXExchange) retry(attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		o.log.Warnf("Exchange | %s retry attempt %d/%d failed: %v. Backing off for %v", o.Name(), i, attempts, lastErr, backoff)
		if i < attempts {
			time.Sleep(backoff)
			backoff *= 2
			if backoff > time.Minute {
				backoff = time.Minute
			}
		}
	}
	return fmt.Errorf("all retry attempts failed: %w", lastErr)
}

func (o *OKXExchange) sign(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(o.secretKey))
	h.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// request performs one signed REST call and decodes the data array into out.
func (o *OKXExchange) request(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	timestamp := time.Now().UTC().Format(okxTimestampLayout)
	req.Header.Set("OK-ACCESS-KEY", o.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", o.sign(timestamp, method, requestPath, string(payload)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", o.passphrase)
	req.Header.Set("Content-Type", "application/json")
	if o.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	var env okxEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if env.Code != "0" {
		return fmt.Errorf("%s %s: code=%s msg=%s", method, path, env.Code, env.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}

func pf(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

type okxPosition struct {
	InstID      string `json:"instId"`
	PosSide     string `json:"posSide"`
	Pos         string `json:"pos"`
	AvgPx       string `json:"avgPx"`
	MarkPx      string `json:"markPx"`
	Lever       string `json:"lever"`
	NotionalUsd string `json:"notionalUsd"`
	Upl         string `json:"upl"`
}

func (p okxPosition) toPosition() Position {
	side := Long
	if p.PosSide == "short" {
		side = Short
	}
	return Position{
		Symbol:        p.InstID,
		Side:          side,
		Contracts:     pf(p.Pos),
		EntryPrice:    pf(p.AvgPx),
		MarkPrice:     pf(p.MarkPx),
		Leverage:      pf(p.Lever),
		Notional:      pf(p.NotionalUsd),
		UnrealizedPnL: pf(p.Upl),
	}
}

// FetchPosition returns the open position for symbol, or nil when flat.
func (o *OKXExchange) FetchPosition(ctx context.Context, symbol string) (*Position, error) {
	var raw []okxPosition
	err := o.retry(3, 2*time.Second, func() error {
		q := url.Values{"instType": {"SWAP"}, "instId": {symbol}}
		return o.request(ctx, http.MethodGet, "/api/v5/account/positions", q, nil, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("FetchPosition failed: %w", err)
	}
	for _, p := range raw {
		if pf(p.Pos) != 0 {
			pos := p.toPosition()
			return &pos, nil
		}
	}
	return nil, nil
}

func (o *OKXExchange) FetchAllPositions(ctx context.Context) ([]Position, error) {
	var raw []okxPosition
	err := o.retry(3, 2*time.Second, func() error {
		q := url.Values{"instType": {"SWAP"}}
		return o.request(ctx, http.MethodGet, "/api/v5/account/positions", q, nil, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("FetchAllPositions failed: %w", err)
	}
	var positions []Position
	for _, p := range raw {
		if pf(p.Pos) != 0 {
			positions = append(positions, p.toPosition())
		}
	}
	return positions, nil
}

func (o *OKXExchange) FetchAccountBalance(ctx context.Context, currency string) (float64, error) {
	var raw []struct {
		Details []struct {
			Ccy      string `json:"ccy"`
			AvailBal string `json:"availBal"`
			AvailEq  string `json:"availEq"`
		} `json:"details"`
	}
	err := o.retry(3, 2*time.Second, func() error {
		q := url.Values{"ccy": {currency}}
		return o.request(ctx, http.MethodGet, "/api/v5/account/balance", q, nil, &raw)
	})
	if err != nil {
		return 0, fmt.Errorf("FetchAccountBalance failed: %w", err)
	}
	for _, acct := range raw {
		for _, d := range acct.Details {
			if d.Ccy == currency {
				if bal := pf(d.AvailBal); bal > 0 {
					return bal, nil
				}
				return pf(d.AvailEq), nil
			}
		}
	}
	return 0, nil
}

func (o *OKXExchange) FetchContractSpec(ctx context.Context, symbol string) (ContractSpec, error) {
	var raw []struct {
		InstID string `json:"instId"`
		MinSz  string `json:"minSz"`
		LotSz  string `json:"lotSz"`
		TickSz string `json:"tickSz"`
		CtVal  string `json:"ctVal"`
		Lever  string `json:"lever"`
	}
	err := o.retry(3, 2*time.Second, func() error {
		q := url.Values{"instType": {"SWAP"}, "instId": {symbol}}
		return o.request(ctx, http.MethodGet, "/api/v5/public/instruments", q, nil, &raw)
	})
	if err != nil {
		return ContractSpec{}, fmt.Errorf("FetchContractSpec failed: %w", err)
	}
	if len(raw) == 0 {
		return ContractSpec{}, fmt.Errorf("FetchContractSpec: no instrument data for %s", symbol)
	}
	in := raw[0]
	return ContractSpec{
		Symbol:      in.InstID,
		MinSize:     pf(in.MinSz),
		LotStep:     pf(in.LotSz),
		TickSize:    pf(in.TickSz),
		FaceValue:   pf(in.CtVal),
		MaxLeverage: pf(in.Lever),
	}, nil
}

func (o *OKXExchange) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	body := map[string]string{
		"instId":  symbol,
		"lever":   strconv.FormatFloat(leverage, 'f', -1, 64),
		"mgnMode": "cross",
	}
	err := o.retry(3, 2*time.Second, func() error {
		return o.request(ctx, http.MethodPost, "/api/v5/account/set-leverage", nil, body, nil)
	})
	if err != nil {
		return fmt.Errorf("SetLeverage failed: %w", err)
	}
	return nil
}

type okxOrderResult struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

func (o *OKXExchange) placeOrder(ctx context.Context, symbol, side, posSide string, quantity float64, reduceOnly bool) (Order, error) {
	body := map[string]any{
		"instId":  symbol,
		"tdMode":  "cross",
		"side":    side,
		"posSide": posSide,
		"ordType": "market",
		"sz":      strconv.FormatFloat(quantity, 'f', -1, 64),
	}
	if reduceOnly {
		body["reduceOnly"] = true
	}
	var raw []okxOrderResult
	err := o.retry(3, 2*time.Second, func() error {
		if e := o.request(ctx, http.MethodPost, "/api/v5/trade/order", nil, body, &raw); e != nil {
			return e
		}
		if len(raw) == 0 {
			return errors.New("empty order result")
		}
		if raw[0].SCode != "" && raw[0].SCode != "0" {
			return fmt.Errorf("order rejected: sCode=%s sMsg=%s", raw[0].SCode, raw[0].SMsg)
		}
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("placeOrder %s %s/%s failed: %w", symbol, side, posSide, err)
	}
	return Order{
		OrderID:  raw[0].OrdID,
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Status:   "filled",
	}, nil
}

func (o *OKXExchange) PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (Order, error) {
	if side == Long {
		return o.placeOrder(ctx, symbol, "buy", "long", quantity, false)
	}
	return o.placeOrder(ctx, symbol, "sell", "short", quantity, false)
}

func (o *OKXExchange) CloseLong(ctx context.Context, symbol string, quantity float64) (Order, error) {
	return o.placeOrder(ctx, symbol, "sell", "long", quantity, true)
}

func (o *OKXExchange) CloseShort(ctx context.Context, symbol string, quantity float64) (Order, error) {
	return o.placeOrder(ctx, symbol, "buy", "short", quantity, true)
}

func (o *OKXExchange) FetchMarketPrice(ctx context.Context, symbol string) (float64, error) {
	var raw []struct {
		Last string `json:"last"`
	}
	err := o.retry(3, 2*time.Second, func() error {
		q := url.Values{"instId": {symbol}}
		return o.request(ctx, http.MethodGet, "/api/v5/market/ticker", q, nil, &raw)
	})
	if err != nil {
		return 0, fmt.Errorf("FetchMarketPrice failed: %w", err)
	}
	if len(raw) == 0 {
		return 0, fmt.Errorf("FetchMarketPrice: no ticker data for %s", symbol)
	}
	return pf(raw[0].Last), nil
}

// okxBar maps internal timeframes to OKX bar identifiers.
func okxBar(timeframe string) string {
	switch timeframe {
	case "1h", "4h", "1d":
		return strings.ToUpper(timeframe)
	default:
		return timeframe
	}
}

// FetchCandles returns up to limit most recent candles, oldest first. OKX
// serves them newest first, so the slice is reversed before returning.
func (o *OKXExchange) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candle.Candle, error) {
	if !tfutils.IsValidTimeframe(timeframe) {
		return nil, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
	var raw [][]string
	err := o.retry(3, 2*time.Second, func() error {
		q := url.Values{
			"instId": {symbol},
			"bar":    {okxBar(timeframe)},
			"limit":  {strconv.Itoa(limit)},
		}
		return o.request(ctx, http.MethodGet, "/api/v5/market/candles", q, nil, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("FetchCandles failed: %w", err)
	}
	candles := make([]candle.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		row := raw[i]
		if len(row) < 6 {
			continue
		}
		ms, _ := strconv.ParseInt(row[0], 10, 64)
		c := candle.Candle{
			Timestamp: time.UnixMilli(ms).UTC(),
			Open:      pf(row[1]),
			High:      pf(row[2]),
			Low:       pf(row[3]),
			Close:     pf(row[4]),
			Volume:    pf(row[5]),
			Symbol:    symbol,
			Timeframe: timeframe,
		}
		if err := c.Validate(); err != nil {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// VerifyDualSidePositionMode confirms the account runs in long/short position
// mode. Anything else makes posSide order placement fail, so callers treat an
// error here as fatal at startup.
func (o *OKXExchange) VerifyDualSidePositionMode(ctx context.Context) error {
	var raw []struct {
		PosMode string `json:"posMode"`
	}
	err := o.retry(3, 2*time.Second, func() error {
		return o.request(ctx, http.MethodGet, "/api/v5/account/config", nil, nil, &raw)
	})
	if err != nil {
		return fmt.Errorf("VerifyDualSidePositionMode failed: %w", err)
	}
	if len(raw) == 0 {
		return errors.New("VerifyDualSidePositionMode: empty account config")
	}
	if raw[0].PosMode != "long_short_mode" {
		return fmt.Errorf("account position mode is %q, need long_short_mode", raw[0].PosMode)
	}
	return nil
}
