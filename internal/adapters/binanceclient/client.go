package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	defaultRequestTimeout = 15 * time.Second
)

// Binance error codes the scanner cares about.
const (
	codeTooManyRequests = -1003
	codeTooManyOrders   = -1015
	codeTimestamp       = -1021
	codeBadSymbol       = -1121
)

// Client implements ports.UpstreamClient on the go-binance USDT-M futures API.
type Client struct {
	mu             sync.RWMutex
	futuresClient  *futures.Client
	transport      *http.Transport
	apiKey         string
	secretKey      string
	baseURL        string
	requestTimeout time.Duration
	logger         ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey         string
	SecretKey      string
	UseTestnet     bool
	BaseURL        string // Overrides the production/testnet URL when set
	RequestTimeout time.Duration
	Logger         ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Debug(context.Background(), "APIKey or SecretKey is empty, using public endpoints only")
	}

	baseURL := baseURLProduction
	if cfg.UseTestnet {
		baseURL = baseURLTestnet
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	c := &Client{
		apiKey:         cfg.APIKey,
		secretKey:      cfg.SecretKey,
		baseURL:        baseURL,
		requestTimeout: timeout,
		logger:         cfg.Logger,
	}
	c.futuresClient, c.transport = c.newSession()
	cfg.Logger.Info(context.Background(), "Binance futures client configured", map[string]interface{}{"baseURL": baseURL})
	return c, nil
}

// newSession builds a futures client on its own transport so a reset drops every pooled connection.
func (c *Client) newSession() (*futures.Client, *http.Transport) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := futures.NewClient(c.apiKey, c.secretKey)
	client.BaseURL = c.baseURL
	client.HTTPClient = &http.Client{Timeout: c.requestTimeout, Transport: transport}
	return client, transport
}

func (c *Client) session() *futures.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.futuresClient
}

// ResetSession discards the current HTTP transport and creates a new futures client.
func (c *Client) ResetSession() {
	client, transport := c.newSession()

	c.mu.Lock()
	old := c.transport
	c.futuresClient = client
	c.transport = transport
	c.mu.Unlock()

	if old != nil {
		old.CloseIdleConnections()
	}
	c.logger.Info(context.Background(), "Binance client session recreated")
}

// handleError translates Binance API and transport errors into ports errors.
// This is the only place that looks at error codes and messages; callers use errors.Is.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case codeTooManyRequests:
			// HTTP 418 responses carry the same code with an "IP banned until" message.
			if strings.Contains(strings.ToLower(apiErr.Message), "banned") {
				mappedErr = ports.ErrTemporarilyBanned
			} else {
				mappedErr = ports.ErrRateLimited
			}
		case codeTooManyOrders:
			mappedErr = ports.ErrRateLimited
		case codeTimestamp:
			mappedErr = ports.ErrTimeout
		case codeBadSymbol:
			mappedErr = ports.ErrInvalidRequest
		case -1000, -1001, -1007, -1008: // Unknown / disconnected / backend timeout / server busy
			mappedErr = ports.ErrExchangeUnavailable
		case -2014, -2015, -1022:
			mappedErr = ports.ErrAuthenticationFailed
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Debug(ctx, operation+" failed with API error", fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var netErr net.Error
	var finalErr error
	switch {
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.As(err, &netErr),
		strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "EOF"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Debug(ctx, operation+" failed", fields)
	return finalErr
}

// ListPerpetualInstruments returns every symbol of the futures exchange info, unfiltered.
func (c *Client) ListPerpetualInstruments(ctx context.Context) ([]domain.Instrument, error) {
	op := "ListPerpetualInstruments"
	info, err := c.session().NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if info == nil {
		return nil, fmt.Errorf("%s failed: %w: empty exchange info", op, ports.ErrMalformedData)
	}

	instruments := make([]domain.Instrument, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		instruments = append(instruments, domain.Instrument{
			Symbol:       s.Symbol,
			Status:       s.Status,
			ContractType: string(s.ContractType),
			BaseAsset:    s.BaseAsset,
			QuoteAsset:   s.QuoteAsset,
		})
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbols": len(instruments)})
	return instruments, nil
}

// GetKlines retrieves the most recent klines for the given symbol, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	binanceKlines, err := c.session().NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := time.Now()
	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval, now)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrMalformedData, err)
		}
		domainKlines = append(domainKlines, dk)
	}

	return domainKlines, nil
}

// --- Translation Helpers ---

func translateBinanceKline(bk *futures.Kline, symbol, interval string, now time.Time) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	closeTime := time.UnixMilli(bk.CloseTime)
	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: closeTime,
		Symbol:    symbol, // Not part of futures.Kline
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   !closeTime.After(now),
	}, nil
}
