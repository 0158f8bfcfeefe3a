package tickcache

import (
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"futures-advisor/internal/logging"
)

// Window identifies a lookback window used by the feature pipeline.
type Window string

const (
	Window5m  Window = "5m"
	Window15m Window = "15m"
	Window1h  Window = "1h"
	Window6h  Window = "6h"
)

// Windows lists all lookback windows in ascending duration order.
var Windows = []Window{Window5m, Window15m, Window1h, Window6h}

// Duration returns the lookback distance of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case Window5m:
		return 5 * time.Minute
	case Window15m:
		return 15 * time.Minute
	case Window1h:
		return time.Hour
	case Window6h:
		return 6 * time.Hour
	}
	return 0
}

// LookbackReason explains why a floor lookup did not produce a usable entry.
type LookbackReason string

const (
	LookbackOK       LookbackReason = "OK"
	GapTooLarge      LookbackReason = "GAP_TOO_LARGE"
	NoHistoricalData LookbackReason = "NO_HISTORICAL_DATA"
)

// LookbackResult is the outcome of a single floor lookup.
// GapSeconds is the distance between the target time and the entry found;
// it is populated whenever an entry exists, even when the gap exceeds the
// tolerance and Valid is false.
type LookbackResult struct {
	Valid      bool
	Reason     LookbackReason
	Tick       *Tick
	GapSeconds float64
}

// Tick is one cached raw snapshot. Fields holds only the numeric values
// that were actually present on ingest; a missing field has no key.
type Tick struct {
	Timestamp time.Time
	Fields    map[string]float64
}

// Field returns the named value and whether it was present.
func (t *Tick) Field(name string) (float64, bool) {
	if t == nil || t.Fields == nil {
		return 0, false
	}
	v, ok := t.Fields[name]
	return v, ok
}

// Config controls gap tolerances, retention and sharding.
type Config struct {
	// GapTolerances caps how far behind the target a floor entry may be
	// before the window is reported as a gap.
	GapTolerances map[Window]time.Duration

	// RetentionMargin is added to the largest window when evicting old
	// entries, so a just-eligible floor entry is never dropped early.
	RetentionMargin time.Duration

	ShardCount int
}

// DefaultConfig returns the standard tolerances for the four windows.
func DefaultConfig() Config {
	return Config{
		GapTolerances: map[Window]time.Duration{
			Window5m:  90 * time.Second,
			Window15m: 300 * time.Second,
			Window1h:  600 * time.Second,
			Window6h:  1800 * time.Second,
		},
		RetentionMargin: 30 * time.Minute,
		ShardCount:      32,
	}
}

// Cache is a sharded, per-symbol ordered buffer of raw ticks. Entries for a
// symbol are kept in strictly increasing timestamp order; out-of-order
// insertions are dropped and counted, never reordered.
type Cache struct {
	cfg       Config
	shards    []*shard
	retention time.Duration
	stale     atomic.Int64
	evicted   atomic.Int64
	logger    *logging.Logger
}

type shard struct {
	mu     sync.RWMutex
	series map[string][]Tick
}

// New creates a cache with the given configuration. Zero or missing config
// values fall back to DefaultConfig.
func New(cfg Config) *Cache {
	def := DefaultConfig()
	if cfg.GapTolerances == nil {
		cfg.GapTolerances = def.GapTolerances
	}
	if cfg.RetentionMargin <= 0 {
		cfg.RetentionMargin = def.RetentionMargin
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = def.ShardCount
	}

	maxWindow := time.Duration(0)
	for w := range cfg.GapTolerances {
		if d := w.Duration(); d > maxWindow {
			maxWindow = d
		}
	}
	if maxWindow == 0 {
		maxWindow = Window6h.Duration()
	}

	shards := make([]*shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &shard{series: make(map[string][]Tick)}
	}

	return &Cache{
		cfg:       cfg,
		shards:    shards,
		retention: maxWindow + cfg.RetentionMargin,
		logger:    logging.WithComponent("tickcache"),
	}
}

func (c *Cache) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return c.shards[int(h.Sum32())%len(c.shards)]
}

// Insert appends a tick for the symbol. A tick whose timestamp is not
// strictly greater than the latest stored one is discarded; the stale
// counter is incremented and the caller is told via the return value.
func (c *Cache) Insert(symbol string, t Tick) bool {
	s := c.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	ticks := s.series[symbol]
	if n := len(ticks); n > 0 && !t.Timestamp.After(ticks[n-1].Timestamp) {
		c.stale.Add(1)
		c.logger.Debug("stale tick dropped",
			"symbol", symbol,
			"timestamp", t.Timestamp,
			"latest", ticks[n-1].Timestamp)
		return false
	}

	ticks = append(ticks, t)

	// Evict from the front everything older than the retention horizon.
	cutoff := t.Timestamp.Add(-c.retention)
	drop := 0
	for drop < len(ticks)-1 && ticks[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		c.evicted.Add(int64(drop))
		remaining := make([]Tick, len(ticks)-drop)
		copy(remaining, ticks[drop:])
		ticks = remaining
	}

	s.series[symbol] = ticks
	return true
}

// FloorLookup returns the entry with the largest timestamp ts <= target.
// When the entry is older than target by more than tolerance the result is
// invalid with GapTooLarge; when no entry qualifies it is invalid with
// NoHistoricalData.
func (c *Cache) FloorLookup(symbol string, target time.Time, tolerance time.Duration) LookbackResult {
	s := c.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticks := s.series[symbol]
	idx := sort.Search(len(ticks), func(i int) bool {
		return ticks[i].Timestamp.After(target)
	})
	if idx == 0 {
		return LookbackResult{Valid: false, Reason: NoHistoricalData}
	}

	entry := ticks[idx-1]
	gap := target.Sub(entry.Timestamp)
	result := LookbackResult{
		Tick:       &entry,
		GapSeconds: gap.Seconds(),
	}
	if gap > tolerance {
		result.Reason = GapTooLarge
		return result
	}
	result.Valid = true
	result.Reason = LookbackOK
	return result
}

// Coverage runs a floor lookup for every configured window against now and
// returns the per-window results.
func (c *Cache) Coverage(symbol string, now time.Time) map[Window]LookbackResult {
	out := make(map[Window]LookbackResult, len(c.cfg.GapTolerances))
	for w, tolerance := range c.cfg.GapTolerances {
		out[w] = c.FloorLookup(symbol, now.Add(-w.Duration()), tolerance)
	}
	return out
}

// Tolerance returns the configured gap tolerance for a window.
func (c *Cache) Tolerance(w Window) time.Duration {
	return c.cfg.GapTolerances[w]
}

// Latest returns the newest cached tick for the symbol, if any.
func (c *Cache) Latest(symbol string) (*Tick, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticks := s.series[symbol]
	if len(ticks) == 0 {
		return nil, false
	}
	entry := ticks[len(ticks)-1]
	return &entry, true
}

// Len reports how many ticks are cached for the symbol.
func (c *Cache) Len(symbol string) int {
	s := c.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[symbol])
}

// Symbols returns every symbol with at least one cached tick.
func (c *Cache) Symbols() []string {
	var out []string
	for _, s := range c.shards {
		s.mu.RLock()
		for sym := range s.series {
			out = append(out, sym)
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// Clear removes all cached ticks for the symbol, or every symbol when the
// argument is empty.
func (c *Cache) Clear(symbol string) {
	if symbol == "" {
		for _, s := range c.shards {
			s.mu.Lock()
			s.series = make(map[string][]Tick)
			s.mu.Unlock()
		}
		return
	}
	s := c.shardFor(symbol)
	s.mu.Lock()
	delete(s.series, symbol)
	s.mu.Unlock()
}

// StaleCount reports how many out-of-order insertions have been rejected.
func (c *Cache) StaleCount() int64 {
	return c.stale.Load()
}

// EvictedCount reports how many entries aged out of the retention horizon.
func (c *Cache) EvictedCount() int64 {
	return c.evicted.Load()
}
