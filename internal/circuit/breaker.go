package circuit

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Data source considered down
	StateHalfOpen BreakerState = "half_open" // Probing recovery
)

// BreakerConfig holds data-source circuit breaker configuration
type BreakerConfig struct {
	Enabled          bool `json:"enabled"`
	FailureThreshold int  `json:"failure_threshold"` // Consecutive failures before opening
	CooldownSeconds  int  `json:"cooldown_seconds"`  // Open duration before half-open probe
	ProbeCount       int  `json:"probe_count"`       // Successes in half-open required to close
}

// DefaultBreakerConfig returns safe defaults
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		CooldownSeconds:  120,
		ProbeCount:       2,
	}
}

// Breaker protects the advisory pipeline from a flapping market-data source.
// Consecutive fetch failures open it; after the cooldown a limited number of
// probe requests are let through, and enough probe successes close it again.
type Breaker struct {
	config              *BreakerConfig
	state               BreakerState
	consecutiveFailures int
	probeSuccesses      int
	probeInFlight       bool
	lastTripTime        time.Time
	lastFailure         string
	tripCount           int64
	mu                  sync.Mutex
	onTrip              func(reason string)
	onRecover           func()

	now func() time.Time // test hook
}

// NewBreaker creates a new data-source circuit breaker
func NewBreaker(config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// OnTrip sets the callback for when the breaker opens
func (b *Breaker) OnTrip(handler func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = handler
}

// OnRecover sets the callback for when the breaker closes again
func (b *Breaker) OnRecover(handler func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRecover = handler
}

// Allow reports whether a fetch may proceed. In the open state it returns
// false until the cooldown has passed; in half-open it admits one probe at a
// time.
func (b *Breaker) Allow() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		cooldown := time.Duration(b.config.CooldownSeconds) * time.Second
		elapsed := b.now().Sub(b.lastTripTime)
		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("circuit open, cooldown remaining: %v (last failure: %s)",
				remaining.Round(time.Second), b.lastFailure)
		}
		b.state = StateHalfOpen
		b.probeSuccesses = 0
		b.probeInFlight = true
		return true, ""

	case StateHalfOpen:
		if b.probeInFlight {
			return false, "circuit half-open, probe in flight"
		}
		b.probeInFlight = true
		return true, ""
	}

	return true, ""
}

// RecordSuccess records a successful fetch.
func (b *Breaker) RecordSuccess() {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	b.consecutiveFailures = 0

	var recovered bool
	if b.state == StateHalfOpen {
		b.probeInFlight = false
		b.probeSuccesses++
		if b.probeSuccesses >= b.config.ProbeCount {
			b.state = StateClosed
			b.probeSuccesses = 0
			recovered = true
		}
	}
	onRecover := b.onRecover
	b.mu.Unlock()

	if recovered && onRecover != nil {
		go onRecover()
	}
}

// RecordFailure records a failed fetch. A failure during a half-open probe
// re-opens immediately; in the closed state the failure threshold applies.
func (b *Breaker) RecordFailure(err error) {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	b.consecutiveFailures++
	if err != nil {
		b.lastFailure = err.Error()
	}

	var tripped bool
	var reason string
	switch b.state {
	case StateHalfOpen:
		tripped = true
		reason = fmt.Sprintf("probe failed: %s", b.lastFailure)
	case StateClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			tripped = true
			reason = fmt.Sprintf("%d consecutive failures, last: %s", b.consecutiveFailures, b.lastFailure)
		}
	}

	var onTrip func(string)
	if tripped {
		b.state = StateOpen
		b.probeInFlight = false
		b.lastTripTime = b.now()
		b.tripCount++
		onTrip = b.onTrip
	}
	b.mu.Unlock()

	if tripped && onTrip != nil {
		go onTrip(reason)
	}
}

// State returns the current breaker state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns a snapshot of the breaker for diagnostics endpoints
func (b *Breaker) Status() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := map[string]interface{}{
		"enabled":              b.config.Enabled,
		"state":                string(b.state),
		"consecutive_failures": b.consecutiveFailures,
		"trip_count":           b.tripCount,
	}
	if b.state == StateOpen {
		cooldown := time.Duration(b.config.CooldownSeconds) * time.Second
		remaining := cooldown - b.now().Sub(b.lastTripTime)
		if remaining < 0 {
			remaining = 0
		}
		status["cooldown_remaining_seconds"] = int(remaining.Seconds())
		status["last_failure"] = b.lastFailure
	}
	return status
}

// Reset forces the breaker back to closed. Intended for operator use.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.probeSuccesses = 0
	b.probeInFlight = false
	b.lastFailure = ""
}
