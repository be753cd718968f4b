package stream

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsiScanner/internal/cache"
	"rsiScanner/internal/domain"
	"rsiScanner/internal/metrics"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func rows(symbols ...string) []domain.ResultRow {
	out := make([]domain.ResultRow, len(symbols))
	for i, s := range symbols {
		out[i] = domain.ResultRow{Symbol: s, RSI: 70}
	}
	return out
}

func pending(sub *Subscription) (Event, bool) {
	select {
	case ev, ok := <-sub.Events():
		return ev, ok
	default:
		return Event{}, false
	}
}

func TestHub_NoEventBeforeFirstPublish(t *testing.T) {
	c := cache.New()
	h := NewHub(c, time.Hour, &mockLogger{}, nil)
	sub := h.Subscribe()

	h.tick()
	_, got := pending(sub)
	assert.False(t, got)
}

func TestHub_NotifiesOncePerChange(t *testing.T) {
	c := cache.New()
	h := NewHub(c, time.Hour, &mockLogger{}, nil)
	sub := h.Subscribe()

	snap := c.Publish(rows("BTCUSDT"), nil)
	h.tick()
	ev, got := pending(sub)
	require.True(t, got)
	assert.True(t, ev.UpdateAvailable)
	assert.Equal(t, snap.Version, ev.Version)
	require.NotNil(t, ev.LastUpdate)
	assert.True(t, snap.LastUpdate.Equal(*ev.LastUpdate))

	// No new version, no new event.
	h.tick()
	_, got = pending(sub)
	assert.False(t, got)
}

func TestHub_SubscribersAreIndependent(t *testing.T) {
	c := cache.New()
	h := NewHub(c, time.Hour, &mockLogger{}, nil)

	early := h.Subscribe()
	c.Publish(rows("BTCUSDT"), nil)
	h.tick()
	_, got := pending(early)
	require.True(t, got)

	// A late subscriber starts at watermark 0 and is told about the current version.
	late := h.Subscribe()
	h.tick()
	_, got = pending(late)
	assert.True(t, got)
	_, got = pending(early)
	assert.False(t, got, "early subscriber already saw this version")
}

func TestHub_SlowSubscriberKeepsOnePendingEvent(t *testing.T) {
	c := cache.New()
	h := NewHub(c, time.Hour, &mockLogger{}, nil)
	slow := h.Subscribe()
	fast := h.Subscribe()

	for i := 0; i < 5; i++ {
		c.Publish(rows("BTCUSDT"), nil)
		h.tick()
		_, got := pending(fast)
		assert.True(t, got, "fast subscriber notified on publish %d", i)
	}

	ev, got := pending(slow)
	require.True(t, got)
	assert.Equal(t, uint64(1), ev.Version, "first undelivered event stays queued")
	_, got = pending(slow)
	assert.False(t, got)
}

func TestHub_CloseSubscription(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	h := NewHub(cache.New(), time.Hour, &mockLogger{}, m)

	sub := h.Subscribe()
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamSubscribers))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StreamSubscribers))
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestHub_RunClosesSubscriptionsOnCancel(t *testing.T) {
	c := cache.New()
	h := NewHub(c, 5*time.Millisecond, &mockLogger{}, nil)
	sub := h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c.Publish(rows("ETHUSDT"), nil)
	select {
	case ev := <-sub.Events():
		assert.True(t, ev.UpdateAvailable)
	case <-time.After(2 * time.Second):
		t.Fatal("no event from running hub")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	_, ok := <-sub.Events()
	assert.False(t, ok)

	late := h.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok, "subscribing to a stopped hub yields a closed channel")
}

func TestEvent_SSE(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	frame := string(Event{UpdateAvailable: true, LastUpdate: &ts, Version: 7}.SSE())

	require.True(t, strings.HasPrefix(frame, "data: "))
	require.True(t, strings.HasSuffix(frame, "\n\n"))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")), &decoded))
	assert.Equal(t, true, decoded["updateAvailable"])
	assert.Equal(t, "2024-03-01T12:00:00Z", decoded["lastUpdate"])
	assert.Equal(t, 7.0, decoded["version"])
}
