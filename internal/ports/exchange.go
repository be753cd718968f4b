package ports

import (
	"context"

	"rsiScanner/internal/domain"
)

// UpstreamClient is the narrow exchange capability the scanner needs.
// Implementations wrap their failures with the sentinel errors in this package
// (ErrRateLimited, ErrTemporarilyBanned, ErrConnectionFailed, ...) so the retry
// policy can pick a wait strategy without inspecting error text.
type UpstreamClient interface {
	// ListPerpetualInstruments returns the raw futures universe listing, unfiltered.
	ListPerpetualInstruments(ctx context.Context) ([]domain.Instrument, error)

	// GetKlines retrieves the most recent klines for symbol/interval, oldest first.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)

	// ResetSession discards the underlying transport and creates a fresh one.
	ResetSession()
}
