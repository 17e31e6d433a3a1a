// Package deriv fetches historical OHLC candles from the Deriv WebSocket API
// (ticks_history with style=candles).
//
// Each fetch opens a short-lived connection, sends one request, waits for the
// matching response and closes. Requests are rate limited client-side.
package deriv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"candlesignal/internal/model"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// DefaultURL is the public demo endpoint (app_id 1089).
	DefaultURL         = "wss://ws.binaryws.com/websockets/v3?app_id=1089"
	DefaultTimeout     = 10 * time.Second
	DefaultRatePerSec  = 2.0
	maxCandlesPerFetch = 5000
)

// Config configures the Deriv client.
type Config struct {
	URL               string
	Timeout           time.Duration // dial + request round trip
	RequestsPerSecond float64
}

// APIError is an error object returned by the Deriv API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return "deriv: " + e.Code + ": " + e.Message
}

// ErrNoCandles is returned when a response carries no candles array.
var ErrNoCandles = errors.New("deriv: response has no candles")

// Client implements model.CandleSource against the Deriv API.
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	reqID   atomic.Int64
}

// New creates a client, filling zero config fields with defaults.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRatePerSec
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

type historyRequest struct {
	TicksHistory string `json:"ticks_history"`
	Granularity  int    `json:"granularity"`
	Count        int    `json:"count"`
	End          string `json:"end"`
	Style        string `json:"style"`
	ReqID        int64  `json:"req_id"`
}

type historyResponse struct {
	MsgType string      `json:"msg_type"`
	ReqID   int64       `json:"req_id"`
	Error   *APIError   `json:"error"`
	Candles []rawCandle `json:"candles"`
}

// rawCandle keeps prices as raw JSON so both numbers and quoted numbers pass
// through untouched to series validation.
type rawCandle struct {
	Epoch int64           `json:"epoch"`
	Open  json.RawMessage `json:"open"`
	High  json.RawMessage `json:"high"`
	Low   json.RawMessage `json:"low"`
	Close json.RawMessage `json:"close"`
}

// FetchCandles requests the latest count candles of granularity seconds.
func (c *Client) FetchCandles(ctx context.Context, symbol string, granularity, count int) ([]model.RawCandle, error) {
	if symbol == "" {
		return nil, errors.New("deriv: empty symbol")
	}
	if granularity <= 0 || count <= 0 || count > maxCandlesPerFetch {
		return nil, fmt.Errorf("deriv: invalid request granularity=%d count=%d", granularity, count)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("deriv: rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("deriv: dial: %w", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("deriv: set read deadline: %w", err)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, fmt.Errorf("deriv: set write deadline: %w", err)
	}

	req := historyRequest{
		TicksHistory: symbol,
		Granularity:  granularity,
		Count:        count,
		End:          "latest",
		Style:        "candles",
		ReqID:        c.reqID.Add(1),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("deriv: encode request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("deriv: send: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("deriv: read: %w", err)
		}
		var resp historyResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("deriv: decode response: %w", err)
		}
		if resp.ReqID != 0 && resp.ReqID != req.ReqID {
			slog.Debug("deriv: skipping unrelated message", "msg_type", resp.MsgType, "req_id", resp.ReqID)
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		if resp.Candles == nil {
			return nil, ErrNoCandles
		}
		if err := conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
			slog.Debug("deriv: close frame", "error", err)
		}
		return toRaw(resp.Candles), nil
	}
}

func toRaw(in []rawCandle) []model.RawCandle {
	out := make([]model.RawCandle, len(in))
	for i, c := range in {
		out[i] = model.RawCandle{
			Epoch: c.Epoch,
			Open:  price(c.Open),
			High:  price(c.High),
			Low:   price(c.Low),
			Close: price(c.Close),
		}
	}
	return out
}

// price unquotes a JSON number or string; anything else is left for series
// validation to reject.
func price(raw json.RawMessage) string {
	return string(bytes.Trim(bytes.TrimSpace(raw), `"`))
}
