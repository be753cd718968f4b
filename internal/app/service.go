package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/metrics"
	"rsiScanner/internal/ports"
	"rsiScanner/internal/retry"
)

// DefaultInterval is the idle time between two scan cycles.
const DefaultInterval = 60 * time.Second

// CycleRunner runs one full scan of the universe.
type CycleRunner interface {
	RunCycle(ctx context.Context) (domain.CycleSummary, error)
}

// Config holds the ScannerService dependencies.
type Config struct {
	Scanner  CycleRunner
	Cache    ports.SnapshotReader
	Archive  ports.SnapshotArchive // optional
	Interval time.Duration
	Logger   ports.Logger
	Metrics  *metrics.Metrics
	Sleep    retry.SleepFunc
}

// ScannerService owns the background scan loop and exposes the latest snapshot.
type ScannerService struct {
	scanner  CycleRunner
	cache    ports.SnapshotReader
	archive  ports.SnapshotArchive
	interval time.Duration
	logger   ports.Logger
	metrics  *metrics.Metrics
	sleep    retry.SleepFunc

	mu        sync.Mutex // Protects the lifecycle fields below
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	lastCycle *domain.CycleSummary
	done      chan struct{}
}

// NewScannerService creates a new application service instance.
func NewScannerService(cfg Config) (*ScannerService, error) {
	if cfg.Scanner == nil || cfg.Cache == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for ScannerService")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	return &ScannerService{
		scanner:  cfg.Scanner,
		cache:    cfg.Cache,
		archive:  cfg.Archive,
		interval: interval,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		sleep:    sleep,
		done:     make(chan struct{}),
	}, nil
}

// Start runs scan cycles until RequestShutdown is called or ctx is canceled.
// Each cycle is followed by an idle wait of the configured interval, whether
// the cycle succeeded or not. Start returns nil on a clean shutdown.
func (s *ScannerService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scanner service already started")
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if s.stopped {
		cancel()
	}
	s.mu.Unlock()

	defer close(s.done)
	defer cancel()

	s.logger.Info(ctx, "Starting Scanner Service...", map[string]interface{}{"interval": s.interval.String()})
	for ctx.Err() == nil {
		s.runCycle(ctx)
		if err := s.sleep(ctx, s.interval); err != nil {
			break
		}
	}
	s.logger.Info(ctx, "Scanner Service stopped.")
	return nil
}

// RequestShutdown asks the scan loop to stop at the next cancellation point.
// It does not wait; use Done for that.
func (s *ScannerService) RequestShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed once Start has returned.
func (s *ScannerService) Done() <-chan struct{} {
	return s.done
}

// GetSnapshot returns the latest published snapshot.
func (s *ScannerService) GetSnapshot() domain.Snapshot {
	return s.cache.Snapshot()
}

// LastCycle returns the summary of the last completed cycle, if any.
func (s *ScannerService) LastCycle() (domain.CycleSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCycle == nil {
		return domain.CycleSummary{}, false
	}
	return *s.lastCycle, true
}

// runCycle runs one scan and archives it. Failures and panics are logged and
// never end the loop.
func (s *ScannerService) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.ObserveCycle("error", 0)
			s.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Scan cycle panicked")
		}
	}()

	summary, err := s.scanner.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, ports.ErrUniverseUnavailable) {
			s.logger.Warn(ctx, "Scan cycle aborted, keeping previous snapshot", map[string]interface{}{"error": err.Error()})
			return
		}
		s.logger.Error(ctx, err, "Scan cycle failed")
		return
	}

	s.mu.Lock()
	s.lastCycle = &summary
	s.mu.Unlock()

	if s.archive == nil {
		return
	}
	id, err := s.archive.SaveCycle(ctx, summary, s.cache.Snapshot())
	if err != nil {
		s.logger.Error(ctx, err, "Failed to archive scan cycle", map[string]interface{}{"version": summary.Version})
		return
	}
	s.mu.Lock()
	s.lastCycle.ID = id
	s.mu.Unlock()
	s.logger.Debug(ctx, "Scan cycle archived", map[string]interface{}{"cycleID": id, "version": summary.Version})
}
