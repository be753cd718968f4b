package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsiScanner/internal/cache"
	"rsiScanner/internal/domain"
	"rsiScanner/internal/metrics"
	"rsiScanner/internal/ports"
	"rsiScanner/internal/stream"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type cacheSource struct{ c *cache.Versioned }

func (s cacheSource) GetSnapshot() domain.Snapshot { return s.c.Snapshot() }

// reportingSource also reports a completed cycle, like the scanner service does.
type reportingSource struct {
	cacheSource
	last domain.CycleSummary
}

func (s reportingSource) LastCycle() (domain.CycleSummary, bool) { return s.last, true }

type mockArchive struct {
	cycles []domain.CycleSummary
	limit  int
	snap   *domain.Snapshot
	err    error
}

func (m *mockArchive) SaveCycle(ctx context.Context, summary domain.CycleSummary, snap domain.Snapshot) (int64, error) {
	return 0, nil
}

func (m *mockArchive) ListCycles(ctx context.Context, limit int) ([]domain.CycleSummary, error) {
	m.limit = limit
	return m.cycles, m.err
}

func (m *mockArchive) CycleSnapshot(ctx context.Context, id int64) (domain.Snapshot, error) {
	if m.snap == nil {
		return domain.Snapshot{}, ports.ErrNotFound
	}
	return *m.snap, nil
}

type fixture struct {
	cache  *cache.Versioned
	hub    *stream.Hub
	server *Server
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, archive ports.SnapshotArchive) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	c := cache.New(cache.WithMetrics(m))
	hub := stream.NewHub(c, 5*time.Millisecond, &mockLogger{}, m)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := Config{
		Port:      0,
		Snapshots: cacheSource{c},
		Stream:    hub,
		Gatherer:  reg,
		Logger:    &mockLogger{},
	}
	if archive != nil {
		cfg.Archive = archive
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return &fixture{cache: c, hub: hub, server: srv, reg: reg}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestHandleSnapshot_BeforeFirstPublish(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []interface{}{}, body["overbought"])
	assert.Equal(t, []interface{}{}, body["oversold"])
	assert.Nil(t, body["last_update"])
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, 0.0, body["version"])
}

func TestHandleSnapshot_AfterPublish(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Publish(
		[]domain.ResultRow{{Symbol: "BTCUSDT", Price: 64000.5, RSI: 71.23, RSISecondary: 68.1, RSITertiary: 55, Trend: domain.TrendUp}},
		[]domain.ResultRow{{Symbol: "XRPUSDT", Price: 0.52, RSI: 22.5}},
	)

	rec := f.get(t, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Overbought []map[string]interface{} `json:"overbought"`
		Oversold   []map[string]interface{} `json:"oversold"`
		LastUpdate *time.Time               `json:"last_update"`
		Version    uint64                   `json:"version"`
		Ready      bool                     `json:"ready"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.NotNil(t, body.LastUpdate)
	assert.Equal(t, uint64(1), body.Version)
	require.Len(t, body.Overbought, 1)
	assert.Equal(t, "BTCUSDT", body.Overbought[0]["symbol"])
	assert.Equal(t, "$64000.5000", body.Overbought[0]["price_display"])
	assert.Equal(t, 71.23, body.Overbought[0]["rsi"])
	assert.Equal(t, 68.1, body.Overbought[0]["rsi_15m"])
	assert.Equal(t, "up", body.Overbought[0]["trend"])
	require.Len(t, body.Oversold, 1)
	assert.Equal(t, "$0.5200", body.Oversold[0]["price_display"])
	_, hasTrend := body.Oversold[0]["trend"]
	assert.False(t, hasTrend, "empty trend omitted")
}

func TestHandleLegacyRSIData(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Publish([]domain.ResultRow{{Symbol: "ETHUSDT", Price: 3000, RSI: 66}}, nil)

	rec := f.get(t, "/get_rsi_data")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["1h"], 1)
	assert.Equal(t, "ETHUSDT", body["1h"][0]["symbol"])
}

func TestHandleHistory(t *testing.T) {
	archive := &mockArchive{cycles: []domain.CycleSummary{{ID: 2, Version: 6}, {ID: 1, Version: 3}}}
	f := newFixture(t, archive)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantLimit int
	}{
		{name: "default limit", path: "/api/history", wantCode: http.StatusOK, wantLimit: defaultHistoryLimit},
		{name: "explicit limit", path: "/api/history?limit=5", wantCode: http.StatusOK, wantLimit: 5},
		{name: "capped limit", path: "/api/history?limit=100000", wantCode: http.StatusOK, wantLimit: maxHistoryLimit},
		{name: "invalid limit", path: "/api/history?limit=abc", wantCode: http.StatusBadRequest},
		{name: "negative limit", path: "/api/history?limit=-1", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive.limit = 0
			rec := f.get(t, tt.path)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantLimit, archive.limit)
			var cycles []domain.CycleSummary
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cycles))
			require.Len(t, cycles, 2)
			assert.Equal(t, int64(2), cycles[0].ID)
		})
	}
}

func TestHandleHistory_ArchiveDisabled(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/history").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/history/1").Code)
}

func TestHandleHistoryCycle(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	archive := &mockArchive{}
	f := newFixture(t, archive)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/history/9").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/history/abc").Code)

	archive.snap = &domain.Snapshot{
		Overbought: []domain.ResultRow{{Symbol: "SOLUSDT", Price: 150, RSI: 80}},
		Oversold:   []domain.ResultRow{},
		LastUpdate: &ts,
		Version:    4,
	}
	rec := f.get(t, "/api/history/9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"SOLUSDT"`)
	assert.Contains(t, rec.Body.String(), `"price_display":"$150.0000"`)
}

func TestHandleHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Publish(nil, nil)

	rec := f.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, true, health["ready"])
	assert.NotContains(t, health, "last_cycle")

	rec = f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rsiscanner_cache_version 1")
}

func TestHandleHealth_LastCycle(t *testing.T) {
	f := newFixture(t, nil)
	srv, err := NewServer(Config{
		Snapshots: reportingSource{
			cacheSource: cacheSource{f.cache},
			last:        domain.CycleSummary{ID: 4, Version: 3, Scanned: 120},
		},
		Stream: f.hub,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Ready     bool                `json:"ready"`
		LastCycle domain.CycleSummary `json:"last_cycle"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.False(t, health.Ready)
	assert.Equal(t, int64(4), health.LastCycle.ID)
	assert.Equal(t, 120, health.LastCycle.Scanned)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/snapshot", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSSE(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	snap := f.cache.Publish([]domain.ResultRow{{Symbol: "BTCUSDT", RSI: 70}}, nil)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), line)

	var ev stream.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data: "))), &ev))
	assert.True(t, ev.UpdateAvailable)
	assert.Equal(t, snap.Version, ev.Version)

	blank, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\n", blank)

	cancel()
	_, _ = io.Copy(io.Discard, resp.Body)
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond, "subscription released on disconnect")
}

func TestHandleWS(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	f.cache.Publish(nil, []domain.ResultRow{{Symbol: "ADAUSDT", RSI: 20}})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev stream.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.True(t, ev.UpdateAvailable)
	assert.Equal(t, uint64(1), ev.Version)
	require.NotNil(t, ev.LastUpdate)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
