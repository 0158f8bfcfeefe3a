// Package binance is a slim client for the public USDT-M futures
// market-data endpoints. The advisor never trades, so there is no signing,
// no account surface and no API key anywhere in the package.
package binance

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"futures-advisor/internal/logging"
)

const (
	// FuturesBaseURL is the production USDT-M futures endpoint
	FuturesBaseURL = "https://fapi.binance.com"

	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 8 * time.Second
)

// MarketDataClient is the surface the fetcher consumes. The mock client
// implements the same interface for tests and MOCK_MODE.
type MarketDataClient interface {
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
	GetPremiumIndex(symbol string) (*PremiumIndex, error)
	GetFundingRateHistory(symbol string, limit int) ([]FundingRate, error)
	GetOpenInterestHist(symbol, period string, limit int) ([]OpenInterestHist, error)
	GetTakerLongShortRatio(symbol, period string, limit int) ([]TakerLongShortRatio, error)
	Get24hrTicker(symbol string) (*Ticker24h, error)
	GetExchangeSymbols() ([]string, error)
}

// Client talks to the public futures REST API with rate limiting and retry
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *logging.Logger
}

// NewClient creates a market-data client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string, logger *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = FuturesBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		rateLimiter: NewRateLimiter(),
		logger:      logger.WithComponent("binance"),
	}
}

// GetKlines fetches candlesticks for the symbol and interval
func (c *Client) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	resp, err := c.publicGet("/fapi/v1/klines", map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s %s: %w", symbol, interval, err)
	}

	var klines []Kline
	if err := json.Unmarshal(resp, &klines); err != nil {
		return nil, fmt.Errorf("failed to parse klines response: %w", err)
	}
	return klines, nil
}

// GetPremiumIndex fetches mark price and current funding rate
func (c *Client) GetPremiumIndex(symbol string) (*PremiumIndex, error) {
	resp, err := c.publicGet("/fapi/v1/premiumIndex", map[string]string{
		"symbol": symbol,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get premium index for %s: %w", symbol, err)
	}

	var index PremiumIndex
	if err := json.Unmarshal(resp, &index); err != nil {
		return nil, fmt.Errorf("failed to parse premium index response: %w", err)
	}
	return &index, nil
}

// GetFundingRateHistory fetches the most recent settled funding rates,
// oldest first.
func (c *Client) GetFundingRateHistory(symbol string, limit int) ([]FundingRate, error) {
	resp, err := c.publicGet("/fapi/v1/fundingRate", map[string]string{
		"symbol": symbol,
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get funding history for %s: %w", symbol, err)
	}

	var rates []FundingRate
	if err := json.Unmarshal(resp, &rates); err != nil {
		return nil, fmt.Errorf("failed to parse funding history response: %w", err)
	}
	return rates, nil
}

// GetOpenInterestHist fetches the open interest history series.
// Valid periods: 5m, 15m, 30m, 1h, 2h, 4h, 6h, 12h, 1d.
func (c *Client) GetOpenInterestHist(symbol, period string, limit int) ([]OpenInterestHist, error) {
	resp, err := c.publicGet("/futures/data/openInterestHist", map[string]string{
		"symbol": symbol,
		"period": period,
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get open interest history for %s: %w", symbol, err)
	}

	var hist []OpenInterestHist
	if err := json.Unmarshal(resp, &hist); err != nil {
		return nil, fmt.Errorf("failed to parse open interest response: %w", err)
	}
	return hist, nil
}

// GetTakerLongShortRatio fetches the taker buy/sell volume series
func (c *Client) GetTakerLongShortRatio(symbol, period string, limit int) ([]TakerLongShortRatio, error) {
	resp, err := c.publicGet("/futures/data/takerlongshortRatio", map[string]string{
		"symbol": symbol,
		"period": period,
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get taker ratio for %s: %w", symbol, err)
	}

	var ratios []TakerLongShortRatio
	if err := json.Unmarshal(resp, &ratios); err != nil {
		return nil, fmt.Errorf("failed to parse taker ratio response: %w", err)
	}
	return ratios, nil
}

// Get24hrTicker fetches the rolling 24h statistics for one symbol
func (c *Client) Get24hrTicker(symbol string) (*Ticker24h, error) {
	resp, err := c.publicGet("/fapi/v1/ticker/24hr", map[string]string{
		"symbol": symbol,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get 24hr ticker for %s: %w", symbol, err)
	}

	var ticker Ticker24h
	if err := json.Unmarshal(resp, &ticker); err != nil {
		return nil, fmt.Errorf("failed to parse ticker response: %w", err)
	}
	return &ticker, nil
}

// GetExchangeSymbols returns the tradable perpetual USDT symbols
func (c *Client) GetExchangeSymbols() ([]string, error) {
	resp, err := c.publicGet("/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	var info ExchangeInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("failed to parse exchange info response: %w", err)
	}

	var symbols []string
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && s.ContractType == "PERPETUAL" && s.QuoteAsset == "USDT" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// publicGet performs an unauthenticated GET request with rate limiting and retry
func (c *Client) publicGet(endpoint string, params map[string]string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Check rate limiter before making request
		if !c.rateLimiter.WaitForSlot(endpoint, 30*time.Second) {
			return nil, fmt.Errorf("rate limit: circuit open, request blocked")
		}

		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}

		reqURL := fmt.Sprintf("%s%s", c.baseURL, endpoint)
		if len(values) > 0 {
			reqURL = fmt.Sprintf("%s?%s", reqURL, values.Encode())
		}

		resp, err := c.httpClient.Get(reqURL)
		if err != nil {
			lastErr = err
			if attempt < maxRetries {
				delay := calculateRetryDelay(attempt)
				c.logger.Warn("public GET failed, retrying",
					"endpoint", endpoint, "attempt", attempt+1, "error", err.Error(), "delay", delay.String())
				time.Sleep(delay)
				continue
			}
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		// Update rate limiter from headers
		if usedWeight := resp.Header.Get("X-MBX-USED-WEIGHT-1M"); usedWeight != "" {
			if weight, err := strconv.Atoi(usedWeight); err == nil {
				c.rateLimiter.UpdateFromHeaders(weight)
			}
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("API error: %s", string(body))

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 ||
				strings.Contains(string(body), "-1003") {
				banUntil := ParseBanUntilFromError(string(body))
				c.rateLimiter.RecordRateLimitError(banUntil)
			}

			if isRetryableError(resp.StatusCode, string(body)) && attempt < maxRetries {
				delay := calculateRetryDelay(attempt)
				c.logger.Warn("public GET returned error, retrying",
					"endpoint", endpoint, "status", resp.StatusCode, "attempt", attempt+1, "delay", delay.String())
				time.Sleep(delay)
				continue
			}
			return nil, lastErr
		}

		return body, nil
	}

	return nil, lastErr
}

// isRetryableError checks if an error is transient and should be retried
func isRetryableError(statusCode int, body string) bool {
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return true
	}
	// Transient exchange error codes
	if strings.Contains(body, "-1001") || // DISCONNECTED
		strings.Contains(body, "-1003") || // TOO_MANY_REQUESTS
		strings.Contains(body, "-1016") { // SERVICE_SHUTTING_DOWN
		return true
	}
	return false
}

// calculateRetryDelay returns delay with exponential backoff and jitter
func calculateRetryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay + jitter - (delay / 4)
}

// RateLimiterStatus exposes the limiter snapshot for diagnostics
func (c *Client) RateLimiterStatus() map[string]interface{} {
	return c.rateLimiter.Status()
}
