// Package metrics holds the Prometheus collectors of the scanner.
// All recording helpers are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the RSI scanner.
type Metrics struct {
	// Scan pipeline
	ScanCyclesTotal *prometheus.CounterVec // labels: result=ok|aborted|canceled|error
	ScanDuration    prometheus.Histogram
	SymbolsScanned  prometheus.Counter
	SymbolsSkipped  *prometheus.CounterVec // labels: reason
	BatchesTotal    prometheus.Counter

	// Fetcher
	FetchRetries     *prometheus.CounterVec // labels: class
	FetchExhausted   *prometheus.CounterVec // labels: op
	SessionResets    prometheus.Counter
	UniverseFallback prometheus.Counter

	// Cache and stream
	CacheVersion      prometheus.Gauge
	BucketSize        *prometheus.GaugeVec // labels: bucket
	StreamSubscribers prometheus.Gauge
	StreamEvents      prometheus.Counter
}

// NewMetrics builds the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScanCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsiscanner_scan_cycles_total",
			Help: "Scan cycles by result",
		}, []string{"result"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsiscanner_scan_duration_seconds",
			Help:    "Wall time of a full scan cycle",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		SymbolsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiscanner_symbols_scanned_total",
			Help: "Symbols with a computed primary RSI",
		}),
		SymbolsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsiscanner_symbols_skipped_total",
			Help: "Symbols skipped during a scan, by reason",
		}, []string{"reason"}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiscanner_batches_total",
			Help: "Batches scanned and published",
		}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsiscanner_fetch_retries_total",
			Help: "Upstream retries by error class",
		}, []string{"class"}),
		FetchExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsiscanner_fetch_exhausted_total",
			Help: "Upstream operations that used up their attempt budget",
		}, []string{"op"}),
		SessionResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiscanner_session_resets_total",
			Help: "Upstream transport sessions recreated",
		}),
		UniverseFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiscanner_universe_fallback_total",
			Help: "Cycles that used the built-in fallback symbol list",
		}),
		CacheVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsiscanner_cache_version",
			Help: "Current snapshot version",
		}),
		BucketSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rsiscanner_bucket_rows",
			Help: "Rows in the published snapshot, by bucket",
		}, []string{"bucket"}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsiscanner_stream_subscribers",
			Help: "Active change stream subscribers",
		}),
		StreamEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiscanner_stream_events_total",
			Help: "Update events delivered to subscribers",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ScanCyclesTotal,
			m.ScanDuration,
			m.SymbolsScanned,
			m.SymbolsSkipped,
			m.BatchesTotal,
			m.FetchRetries,
			m.FetchExhausted,
			m.SessionResets,
			m.UniverseFallback,
			m.CacheVersion,
			m.BucketSize,
			m.StreamSubscribers,
			m.StreamEvents,
		)
	}

	return m
}

func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScanCyclesTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.ScanDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SymbolScanned() {
	if m == nil {
		return
	}
	m.SymbolsScanned.Inc()
}

func (m *Metrics) SymbolSkipped(reason string) {
	if m == nil {
		return
	}
	m.SymbolsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) BatchDone() {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
}

func (m *Metrics) Retry(class string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(class).Inc()
}

func (m *Metrics) Exhausted(op string) {
	if m == nil {
		return
	}
	m.FetchExhausted.WithLabelValues(op).Inc()
}

func (m *Metrics) SessionReset() {
	if m == nil {
		return
	}
	m.SessionResets.Inc()
}

func (m *Metrics) FallbackUsed() {
	if m == nil {
		return
	}
	m.UniverseFallback.Inc()
}

func (m *Metrics) Published(version uint64, overbought, oversold int) {
	if m == nil {
		return
	}
	m.CacheVersion.Set(float64(version))
	m.BucketSize.WithLabelValues("overbought").Set(float64(overbought))
	m.BucketSize.WithLabelValues("oversold").Set(float64(oversold))
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.StreamSubscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.StreamSubscribers.Dec()
}

func (m *Metrics) EventSent() {
	if m == nil {
		return
	}
	m.StreamEvents.Inc()
}
