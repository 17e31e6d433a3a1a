package deriv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer starts a WebSocket server that hands each decoded request to
// reply and writes back whatever messages it returns.
func newTestServer(t *testing.T, reply func(req map[string]any) []string) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req map[string]any
		if err := json.Unmarshal(msg, &req); err != nil {
			return
		}
		for _, out := range reply(req) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(out)); err != nil {
				return
			}
		}
		// drain until the client closes
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFetchCandles_Success(t *testing.T) {
	var got map[string]any
	url := newTestServer(t, func(req map[string]any) []string {
		got = req
		return []string{`{"msg_type":"candles","req_id":1,"candles":[
			{"epoch":1700000000,"open":1.0851,"high":1.0860,"low":1.0845,"close":1.0855},
			{"epoch":1700000060,"open":"1.0855","high":"1.0870","low":"1.0850","close":"1.0866"}
		]}`}
	})

	c := New(Config{URL: url, Timeout: 2 * time.Second})
	rows, err := c.FetchCandles(context.Background(), "frxEURUSD", 60, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "frxEURUSD", got["ticks_history"])
	assert.Equal(t, float64(60), got["granularity"])
	assert.Equal(t, float64(2), got["count"])
	assert.Equal(t, "latest", got["end"])
	assert.Equal(t, "candles", got["style"])

	assert.Equal(t, int64(1700000000), rows[0].Epoch)
	assert.Equal(t, "1.0851", rows[0].Open)
	assert.Equal(t, "1.0866", rows[1].Close, "quoted prices are unquoted")
}

func TestFetchCandles_SkipsUnrelatedMessages(t *testing.T) {
	url := newTestServer(t, func(req map[string]any) []string {
		return []string{
			`{"msg_type":"ping","req_id":99}`,
			`{"msg_type":"candles","req_id":1,"candles":[{"epoch":1,"open":1,"high":1,"low":1,"close":1}]}`,
		}
	})
	rows, err := New(Config{URL: url}).FetchCandles(context.Background(), "R_100", 60, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFetchCandles_APIError(t *testing.T) {
	url := newTestServer(t, func(req map[string]any) []string {
		return []string{`{"msg_type":"ticks_history","req_id":1,"error":{"code":"InvalidSymbol","message":"Symbol invalid"}}`}
	})
	_, err := New(Config{URL: url}).FetchCandles(context.Background(), "nope", 60, 10)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "InvalidSymbol", apiErr.Code)
}

func TestFetchCandles_NoCandles(t *testing.T) {
	url := newTestServer(t, func(req map[string]any) []string {
		return []string{`{"msg_type":"history","req_id":1}`}
	})
	_, err := New(Config{URL: url}).FetchCandles(context.Background(), "R_100", 60, 10)
	assert.ErrorIs(t, err, ErrNoCandles)
}

func TestFetchCandles_MalformedPricesPassThrough(t *testing.T) {
	url := newTestServer(t, func(req map[string]any) []string {
		return []string{`{"msg_type":"candles","req_id":1,"candles":[{"epoch":1,"open":null,"high":1,"low":1,"close":1}]}`}
	})
	rows, err := New(Config{URL: url}).FetchCandles(context.Background(), "R_100", 60, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "null", rows[0].Open, "validation belongs to series construction")
}

func TestFetchCandles_InvalidRequest(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"})
	ctx := context.Background()

	_, err := c.FetchCandles(ctx, "", 60, 10)
	assert.Error(t, err)
	_, err = c.FetchCandles(ctx, "R_100", 0, 10)
	assert.Error(t, err)
	_, err = c.FetchCandles(ctx, "R_100", 60, maxCandlesPerFetch+1)
	assert.Error(t, err)
}

func TestFetchCandles_DialFailure(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1", Timeout: 500 * time.Millisecond})
	_, err := c.FetchCandles(context.Background(), "R_100", 60, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial")
}

func TestFetchCandles_CancelledContext(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchCandles(ctx, "R_100", 60, 10)
	assert.Error(t, err)
}
