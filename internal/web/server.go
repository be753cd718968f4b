// Package web is the thin HTTP transport over the scanner core.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/ports"
	"rsiScanner/internal/stream"
)

// SnapshotSource returns the latest published snapshot.
type SnapshotSource interface {
	GetSnapshot() domain.Snapshot
}

// CycleReporter is optionally implemented by the snapshot source to expose the last completed cycle.
type CycleReporter interface {
	LastCycle() (domain.CycleSummary, bool)
}

// Subscriber hands out change stream subscriptions.
type Subscriber interface {
	Subscribe() *stream.Subscription
}

// Config holds the server dependencies. Archive and Gatherer are optional.
type Config struct {
	Port      int
	Snapshots SnapshotSource
	Stream    Subscriber
	Archive   ports.SnapshotArchive
	Gatherer  prometheus.Gatherer
	Logger    ports.Logger
}

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	snapshots SnapshotSource
	stream    Subscriber
	archive   ports.SnapshotArchive
	gatherer  prometheus.Gatherer
	logger    ports.Logger
	started   time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Snapshots == nil || cfg.Stream == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("web server requires a snapshot source, a stream and a logger")
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router:    http.NewServeMux(),
		snapshots: cfg.Snapshots,
		stream:    cfg.Stream,
		archive:   cfg.Archive,
		gatherer:  gatherer,
		logger:    cfg.Logger,
		started:   time.Now(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	// Snapshot
	s.router.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.router.HandleFunc("GET /get_rsi_data", s.handleLegacyRSIData)

	// Change stream
	s.router.HandleFunc("GET /api/stream", s.handleSSE)
	s.router.HandleFunc("GET /api/ws", s.handleWS)

	// Archive
	s.router.HandleFunc("GET /api/history", s.handleHistory)
	s.router.HandleFunc("GET /api/history/{id}", s.handleHistoryCycle)

	// Ops
	s.router.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Starting web server", map[string]interface{}{"addr": s.server.Addr})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
