package signald

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"candlesignal/config"
	"candlesignal/internal/model"
	"candlesignal/internal/report"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource returns n gap-free zig-zag candles, or err.
type fakeSource struct {
	n     int
	err   error
	calls int
}

func (f *fakeSource) FetchCandles(ctx context.Context, symbol string, granularity, count int) ([]model.RawCandle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rows := make([]model.RawCandle, f.n)
	price := 1.1000
	for i := range rows {
		step := []float64{3, -2, 1, -3, 2}[i%5] * 0.0001
		o, c := price, price+step
		hi, lo := max(o, c)+0.0002, min(o, c)-0.0002
		rows[i] = model.RawCandle{
			Epoch: 1700000000 + int64(i*granularity),
			Open:  fmtPrice(o), High: fmtPrice(hi), Low: fmtPrice(lo), Close: fmtPrice(c),
		}
		price = c
	}
	return rows, nil
}

func fmtPrice(v float64) string { return strconv.FormatFloat(v, 'f', 5, 64) }

type fakeSink struct {
	mu    sync.Mutex
	snaps []*model.MarketSnapshot
	err   error
}

func (f *fakeSink) PublishSnapshot(ctx context.Context, s *model.MarketSnapshot) error {
	return f.RecordSnapshot(ctx, s)
}

func (f *fakeSink) RecordSnapshot(ctx context.Context, s *model.MarketSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, s)
	return nil
}

func (f *fakeSink) ReadLatestSnapshot(ctx context.Context, symbol string) (*model.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snaps) == 0 {
		return nil, nil
	}
	return f.snaps[len(f.snaps)-1], nil
}

func (f *fakeSink) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Symbol:       "frxEURUSD",
		Granularity:  60,
		Count:        100,
		FetchTimeout: time.Second,
		Schedule:     "@every 1h",
		HistorySize:  10,
		Analysis:     report.DefaultParams(),
	}
}

func newTestService(t *testing.T, src *fakeSource, pub, rec *fakeSink) (*Service, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	deps := Deps{Source: src, Registry: reg}
	if pub != nil {
		deps.Publisher = pub
	}
	if rec != nil {
		deps.Recorder = rec
	}
	svc, err := New(testConfig(), deps)
	require.NoError(t, err)
	return svc, reg
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	assert.Error(t, err)
}

func TestRunCycle_FullSnapshot(t *testing.T) {
	pub, rec := &fakeSink{}, &fakeSink{}
	svc, _ := newTestService(t, &fakeSource{n: 100}, pub, rec)

	snap, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "frxEURUSD", snap.Symbol)
	assert.Equal(t, 100, snap.Candles)
	assert.NotNil(t, snap.Momentum)
	assert.NotNil(t, snap.TrendAverage)
	assert.NotNil(t, snap.Support)
	assert.NotNil(t, snap.Prediction)
	assert.Empty(t, snap.Errors)

	assert.Len(t, pub.snaps, 1)
	assert.Len(t, rec.snaps, 1)
	assert.Same(t, snap, svc.history.Latest("frxEURUSD"))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.CyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, 100.0, testutil.ToFloat64(svc.prom.CandlesReceived))
}

func TestRunCycle_PartialSnapshot(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{n: 5}, nil, nil)

	snap, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Momentum)
	assert.Nil(t, snap.Prediction)
	assert.NotNil(t, snap.CandleStrength)
	require.NotNil(t, snap.Err(report.FieldMomentum))
	assert.Equal(t, report.ComponentIndicator, snap.Err(report.FieldMomentum).Component)

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.CyclesTotal.WithLabelValues("partial")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(svc.prom.ComponentFailures.WithLabelValues(report.ComponentClassifier)), 1.0)
}

func TestRunCycle_FetchError(t *testing.T) {
	errDown := errors.New("feed down")
	svc, _ := newTestService(t, &fakeSource{err: errDown}, nil, nil)

	snap, err := svc.RunCycle(context.Background())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.CyclesTotal.WithLabelValues("fetch_error")))
	assert.False(t, svc.Health().FeedOK)
}

func TestRunCycle_EmptySeriesAborts(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{n: 0}, nil, nil)

	_, err := svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, model.ErrInsufficientData)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.CyclesTotal.WithLabelValues("aborted")))
}

func TestRunCycle_SinkFailureDoesNotFailCycle(t *testing.T) {
	pub := &fakeSink{err: errors.New("redis down")}
	svc, _ := newTestService(t, &fakeSource{n: 30}, pub, nil)

	snap, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.PublishErrors.WithLabelValues("redis")))
	assert.Contains(t, svc.Health().LastCycleError, "redis down")
}

func TestSetParams(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{n: 30}, nil, nil)

	p := svc.Params()
	p.Indicator.MomentumPeriod = 0
	assert.Error(t, svc.SetParams(p))
	assert.Equal(t, 14, svc.Params().Indicator.MomentumPeriod)

	p.Indicator.MomentumPeriod = 5
	require.NoError(t, svc.SetParams(p))
	assert.Equal(t, 5, svc.Params().Indicator.MomentumPeriod)
}

func TestRestore(t *testing.T) {
	rec := &fakeSink{snaps: []*model.MarketSnapshot{{Symbol: "frxEURUSD", Candles: 42}}}
	svc, _ := newTestService(t, &fakeSource{n: 30}, nil, rec)

	svc.restore(context.Background())
	require.NotNil(t, svc.history.Latest("frxEURUSD"))
	assert.Equal(t, 42, svc.history.Latest("frxEURUSD").Candles)
}

func TestAPI(t *testing.T) {
	src := &fakeSource{n: 60}
	svc, _ := newTestService(t, src, nil, nil)
	h := svc.Handler()

	do := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodGet, "/snapshot", "")
	assert.Equal(t, http.StatusNotFound, rr.Code, "no cycle has run yet")

	rr = do(http.MethodPost, "/snapshot/run", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap model.MarketSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 60, snap.Candles)

	rr = do(http.MethodGet, "/snapshot", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	do(http.MethodPost, "/snapshot/run", "")
	rr = do(http.MethodGet, "/history?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var hist []model.MarketSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hist))
	assert.Len(t, hist, 2)

	rr = do(http.MethodGet, "/history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPut, "/params", `{"indicator":{"momentum_period":7}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 7, svc.Params().Indicator.MomentumPeriod)
	assert.Equal(t, 10, svc.Params().Indicator.TrendAverageWindow, "unspecified fields keep their value")

	rr = do(http.MethodPut, "/params", `{"indicator":{"momentum_period":-1}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPut, "/params", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	src.err = errors.New("feed down")
	rr = do(http.MethodPost, "/snapshot/run", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
