package advisor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"futures-advisor/internal/normalize"
	"futures-advisor/internal/signal"
	"futures-advisor/internal/tickcache"
)

const defaultTraceLimit = 16

// PipelineTrace records how one tick moved through the pipeline: what
// normalization did, what the cache could cover and what each horizon
// concluded. Traces exist for the diagnostics API and for log correlation.
type PipelineTrace struct {
	ID             string                                     `json:"id"`
	Symbol         string                                     `json:"symbol"`
	TickTime       time.Time                                  `json:"tick_time"`
	ReceivedAt     time.Time                                  `json:"received_at"`
	DurationMicros int64                                      `json:"duration_micros"`
	Normalization  *normalize.Trace                           `json:"normalization,omitempty"`
	Coverage       map[tickcache.Window]tickcache.LookbackResult `json:"coverage,omitempty"`
	MissingWindows []string                                   `json:"missing_windows,omitempty"`
	ShortDecision  signal.Decision                            `json:"short_decision"`
	MediumDecision signal.Decision                            `json:"medium_decision"`
	Failure        string                                     `json:"failure,omitempty"`
}

// TraceKeeper retains the most recent pipeline traces per symbol in a
// fixed-size ring. Memory stays bounded no matter how long the engine runs.
type TraceKeeper struct {
	mu       sync.RWMutex
	limit    int
	bySymbol map[string][]*PipelineTrace
}

// NewTraceKeeper returns a keeper holding up to limit traces per symbol.
func NewTraceKeeper(limit int) *TraceKeeper {
	if limit <= 0 {
		limit = defaultTraceLimit
	}
	return &TraceKeeper{
		limit:    limit,
		bySymbol: make(map[string][]*PipelineTrace),
	}
}

// NewTraceID returns a fresh trace identifier.
func NewTraceID() string {
	return uuid.New().String()
}

// Record appends the trace, evicting the oldest one once the symbol is at
// its limit.
func (k *TraceKeeper) Record(t *PipelineTrace) {
	if t == nil || t.Symbol == "" {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	ring := k.bySymbol[t.Symbol]
	if len(ring) >= k.limit {
		copy(ring, ring[1:])
		ring = ring[:len(ring)-1]
	}
	k.bySymbol[t.Symbol] = append(ring, t)
}

// Recent returns up to n traces for the symbol, newest first.
func (k *TraceKeeper) Recent(symbol string, n int) []*PipelineTrace {
	k.mu.RLock()
	defer k.mu.RUnlock()

	ring := k.bySymbol[symbol]
	if n <= 0 || n > len(ring) {
		n = len(ring)
	}
	out := make([]*PipelineTrace, 0, n)
	for i := len(ring) - 1; i >= len(ring)-n; i-- {
		out = append(out, ring[i])
	}
	return out
}

// Latest returns the newest trace for the symbol, if any.
func (k *TraceKeeper) Latest(symbol string) (*PipelineTrace, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	ring := k.bySymbol[symbol]
	if len(ring) == 0 {
		return nil, false
	}
	return ring[len(ring)-1], true
}
