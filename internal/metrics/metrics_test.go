package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Recording(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCycle("ok", 3*time.Second)
	m.ObserveCycle("aborted", 0)
	m.Retry("rate_limited")
	m.Retry("rate_limited")
	m.SessionReset()
	m.Published(7, 3, 2)
	m.SubscriberAdded()
	m.SubscriberAdded()
	m.SubscriberRemoved()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanCyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanCyclesTotal.WithLabelValues("aborted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchRetries.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionResets))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.CacheVersion))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BucketSize.WithLabelValues("overbought")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamSubscribers))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle("ok", time.Second)
		m.SymbolScanned()
		m.SymbolSkipped("primary_fetch")
		m.BatchDone()
		m.Retry("generic")
		m.Exhausted("klines")
		m.SessionReset()
		m.FallbackUsed()
		m.Published(1, 0, 0)
		m.SubscriberAdded()
		m.SubscriberRemoved()
		m.EventSent()
	})
}
