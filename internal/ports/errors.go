package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so callers can classify with errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrTemporarilyBanned    = errors.New("temporarily banned by the exchange")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrMalformedData        = errors.New("malformed or insufficient upstream data")

	// Scan Errors
	ErrNoData              = errors.New("no data available")
	ErrUniverseUnavailable = errors.New("instrument universe unavailable")
	ErrInsufficientData    = errors.New("not enough data to compute indicator")

	// Archive Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrNotFound     = errors.New("requested item not found")
)
