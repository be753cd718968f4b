// Package retry implements the attempt budget and wait strategy shared by all upstream calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"rsiScanner/internal/metrics"
	"rsiScanner/internal/ports"
)

// Defaults of the upstream retry discipline.
const (
	DefaultMaxAttempts  = 7
	DefaultInitialDelay = 1 * time.Second
	DefaultBanWait      = 300 * time.Second
	DefaultResetAfter   = 2
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Class selects the wait strategy for a failed attempt.
type Class int

const (
	ClassGeneric Class = iota
	ClassNetwork
	ClassRateLimited
	ClassBanned
)

func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassRateLimited:
		return "rate_limited"
	case ClassBanned:
		return "banned"
	default:
		return "generic"
	}
}

// Classify maps an error to its retry class using the sentinels set by the adapter.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ports.ErrTemporarilyBanned):
		return ClassBanned
	case errors.Is(err, ports.ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, ports.ErrConnectionFailed), errors.Is(err, ports.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassNetwork
	default:
		return ClassGeneric
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy retries an operation with exponential backoff.
// Classification only decides how long to wait, never whether to give up early.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	BanWait      time.Duration
	ResetAfter   int // failed attempt index from which the session is reset before retrying
	Sleep        SleepFunc
	Logger       ports.Logger
	Metrics      *metrics.Metrics
}

// NewPolicy returns a policy with the default budget and delays.
func NewPolicy(logger ports.Logger, m *metrics.Metrics) *Policy {
	return &Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		BanWait:      DefaultBanWait,
		ResetAfter:   DefaultResetAfter,
		Sleep:        Sleep,
		Logger:       logger,
		Metrics:      m,
	}
}

// Delay returns the wait after failed attempt n (0-indexed) with error class c.
func (p *Policy) Delay(n int, c Class) time.Duration {
	if c == ClassBanned {
		return p.BanWait
	}
	initial := p.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	b := &backoff.Backoff{
		Min:    initial,
		Max:    initial << uint(p.attempts()+1),
		Factor: 2,
		Jitter: false,
	}
	return b.ForAttempt(float64(n))
}

func (p *Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Do runs fn until it succeeds or the attempt budget is spent.
// reset, when not nil, is called before every retry that follows a failed attempt
// with index >= ResetAfter. On exhaustion the returned error wraps ErrExhausted and
// the last failure; on cancellation it is the context error.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error, reset func()) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	attempts := p.attempts()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts-1 {
			break
		}

		class := Classify(lastErr)
		delay := p.Delay(attempt, class)
		p.Metrics.Retry(class.String())
		if p.Logger != nil {
			p.Logger.Warn(ctx, op+": attempt failed, retrying", map[string]interface{}{
				"attempt": attempt + 1,
				"of":      attempts,
				"class":   class.String(),
				"delay":   delay.String(),
				"error":   lastErr.Error(),
			})
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}

		if reset != nil && attempt >= p.ResetAfter {
			if p.Logger != nil {
				p.Logger.Info(ctx, op+": recreating upstream session", map[string]interface{}{"attempt": attempt + 1})
			}
			reset()
			p.Metrics.SessionReset()
		}
	}

	p.Metrics.Exhausted(op)
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, attempts, lastErr)
}
