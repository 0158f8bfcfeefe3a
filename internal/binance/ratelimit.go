package binance

import (
	"regexp"
	"strconv"
	"sync"
	"time"
)

// RateLimiter implements proactive weight-based rate limiting for the
// public futures endpoints, with a ban-aware circuit. The exchange allows
// 2400 weight per minute; the limiter refuses requests before the exchange
// would, and honors ban timestamps parsed from -1003 error bodies.
type RateLimiter struct {
	mu sync.Mutex

	circuitOpen bool
	banUntil    time.Time

	currentWeight int
	weightResetAt time.Time
	maxWeight     int

	now func() time.Time // test hook
}

// Endpoint weights for the public futures market-data endpoints
var endpointWeights = map[string]int{
	"/fapi/v1/ticker/24hr":            1, // 1 with symbol, 40 without
	"/fapi/v1/klines":                 5,
	"/fapi/v1/premiumIndex":           1,
	"/fapi/v1/fundingRate":            1,
	"/fapi/v1/exchangeInfo":           1,
	"/futures/data/openInterestHist":  1,
	"/futures/data/takerlongshortRatio": 1,
}

func getEndpointWeight(endpoint string) int {
	if w, ok := endpointWeights[endpoint]; ok {
		return w
	}
	return 5
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	now := time.Now
	return &RateLimiter{
		maxWeight:     2400,
		weightResetAt: now().Add(time.Minute),
		now:           now,
	}
}

// WaitForSlot blocks until a slot for the endpoint is available or the
// timeout expires. Returns false when the circuit is open past the timeout.
func (r *RateLimiter) WaitForSlot(endpoint string, timeout time.Duration) bool {
	deadline := r.now().Add(timeout)
	for {
		if r.tryAcquire(endpoint) {
			return true
		}
		if r.now().After(deadline) {
			return false
		}
		time.Sleep(250 * time.Millisecond)
	}
}

// tryAcquire atomically checks and records the endpoint weight.
func (r *RateLimiter) tryAcquire(endpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.After(r.weightResetAt) {
		r.currentWeight = 0
		r.weightResetAt = now.Add(time.Minute)
	}

	if r.circuitOpen {
		if now.Before(r.banUntil) {
			return false
		}
		r.circuitOpen = false
	}

	weight := getEndpointWeight(endpoint)
	// Stay under 90% of the budget; the exchange counts some responses late.
	if r.currentWeight+weight > r.maxWeight*9/10 {
		return false
	}

	r.currentWeight += weight
	return true
}

// UpdateFromHeaders syncs the local weight counter with the used-weight
// header the exchange returns, which is authoritative.
func (r *RateLimiter) UpdateFromHeaders(usedWeight int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if usedWeight > r.currentWeight {
		r.currentWeight = usedWeight
	}
}

// RecordRateLimitError opens the circuit after a 429/418/-1003 response.
// A zero banUntil falls back to a one-minute pause.
func (r *RateLimiter) RecordRateLimitError(banUntil time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circuitOpen = true
	if banUntil.IsZero() || banUntil.Before(r.now()) {
		banUntil = r.now().Add(time.Minute)
	}
	r.banUntil = banUntil
}

// Status returns a snapshot for diagnostics
func (r *RateLimiter) Status() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]interface{}{
		"circuit_open":   r.circuitOpen,
		"current_weight": r.currentWeight,
		"max_weight":     r.maxWeight,
	}
}

var banUntilPattern = regexp.MustCompile(`banned until (\d{13})`)

// ParseBanUntilFromError extracts the ban timestamp from a -1003 error body.
// Returns the zero time when the body carries none.
func ParseBanUntilFromError(body string) time.Time {
	m := banUntilPattern.FindStringSubmatch(body)
	if len(m) != 2 {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
