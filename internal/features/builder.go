// Package features assembles the per-tick feature snapshot: it normalizes
// the raw input, floors each lookback window against the tick cache,
// derives change fields where both endpoints exist, and reports coverage.
// A field that was absent in the input stays absent; nothing is ever
// substituted with zero.
package features

import (
	"time"

	"futures-advisor/internal/normalize"
	"futures-advisor/internal/tickcache"
)

// Version identifies the feature schema attached to every snapshot.
const Version = "1.1.0"

// Snapshot is the immutable per-tick feature vector handed to the decision
// core. Numeric fields are reachable only through Field and Has, which make
// absence explicit.
type Snapshot struct {
	Symbol          string
	GeneratedAt     time.Time
	SourceTimestamp time.Time
	FeatureVersion  string

	// ShortEvaluable is true when the 5m and 15m price changes are known.
	ShortEvaluable bool
	// MediumEvaluable is true when the 1h price change is known. A missing
	// 6h window degrades the medium horizon, it never blocks it.
	MediumEvaluable bool
	// MissingWindows lists windows (plus "24h") with no usable data.
	MissingWindows []string
	// LookbackGaps records, per window, how far behind the target the floor
	// entry was, in seconds. Windows with no entry at all are not listed.
	LookbackGaps map[string]float64
	// Coverage is the raw per-window lookback outcome from the cache.
	Coverage map[tickcache.Window]tickcache.LookbackResult

	fields map[string]float64
}

// Field returns the named value and whether it is present.
func (s *Snapshot) Field(name string) (float64, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// Has reports whether every named field is present.
func (s *Snapshot) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := s.fields[name]; !ok {
			return false
		}
	}
	return true
}

// MissingCoreFields lists the core fields absent from this snapshot.
func (s *Snapshot) MissingCoreFields() []string {
	var missing []string
	for _, name := range CoreFields {
		if _, ok := s.fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// NumericFields returns a copy of all present numeric fields, suitable for
// caching as a tick.
func (s *Snapshot) NumericFields() map[string]float64 {
	out := make(map[string]float64, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

// windowMissing reports whether the window's change data is absent.
func (s *Snapshot) windowMissing(w string) bool {
	for _, m := range s.MissingWindows {
		if m == w {
			return true
		}
	}
	return false
}

// Missing5m and friends are convenience probes for the completeness policy.
func (s *Snapshot) Missing5m() bool  { return s.windowMissing(string(tickcache.Window5m)) }
func (s *Snapshot) Missing15m() bool { return s.windowMissing(string(tickcache.Window15m)) }
func (s *Snapshot) Missing1h() bool  { return s.windowMissing(string(tickcache.Window1h)) }
func (s *Snapshot) Missing6h() bool  { return s.windowMissing(string(tickcache.Window6h)) }

// Builder combines the normalizer and the tick cache into feature
// snapshots. It is stateless apart from its collaborators and safe for
// concurrent use.
type Builder struct {
	normalizer *normalize.Normalizer
	cache      *tickcache.Cache
}

// NewBuilder wires a builder to its collaborators.
func NewBuilder(n *normalize.Normalizer, c *tickcache.Cache) *Builder {
	return &Builder{normalizer: n, cache: c}
}

// primaryField names the change field that decides a window's coverage.
func primaryField(w tickcache.Window) string {
	switch w {
	case tickcache.Window5m:
		return FieldPriceChange5m
	case tickcache.Window15m:
		return FieldPriceChange15m
	case tickcache.Window1h:
		return FieldPriceChange1h
	case tickcache.Window6h:
		return FieldPriceChange6h
	}
	return ""
}

// oiField names the open-interest change field of a window.
func oiField(w tickcache.Window) string {
	switch w {
	case tickcache.Window5m:
		return FieldOIChange5m
	case tickcache.Window15m:
		return FieldOIChange15m
	case tickcache.Window1h:
		return FieldOIChange1h
	case tickcache.Window6h:
		return FieldOIChange6h
	}
	return ""
}

// Build normalizes the raw snapshot, runs the per-window floor lookbacks
// and assembles the feature vector. The error return fires only under the
// normalizer's FAIL_FAST policy; every other shortfall is expressed through
// coverage flags so the decision core can tag it.
func (b *Builder) Build(symbol string, raw map[string]interface{}, sourceTime, now time.Time) (*Snapshot, *normalize.Trace, error) {
	fields, trace, err := b.normalizer.Normalize(symbol, raw)
	if err != nil {
		return nil, trace, err
	}

	coverage := b.cache.Coverage(symbol, sourceTime)

	snap := &Snapshot{
		Symbol:          symbol,
		GeneratedAt:     now,
		SourceTimestamp: sourceTime,
		FeatureVersion:  Version,
		LookbackGaps:    make(map[string]float64, len(coverage)),
		Coverage:        coverage,
		fields:          fields,
	}

	// Fill change fields the producer did not supply from the cache floor
	// entries. Levels (price, open interest) are scale-free, so deriving
	// from cached ticks is exact.
	currentPrice, hasPrice := fields[FieldPrice]
	currentOI, hasOI := fields[FieldOpenInterest]
	for w, res := range coverage {
		if res.Tick != nil {
			snap.LookbackGaps[string(w)] = res.GapSeconds
		}
		if !res.Valid {
			continue
		}
		if name := primaryField(w); name != "" {
			if _, ok := fields[name]; !ok && hasPrice {
				if base, ok := res.Tick.Field(FieldPrice); ok && base > 0 {
					fields[name] = (currentPrice - base) / base
				}
			}
		}
		if name := oiField(w); name != "" {
			if _, ok := fields[name]; !ok && hasOI {
				if base, ok := res.Tick.Field(FieldOpenInterest); ok && base > 0 {
					fields[name] = (currentOI - base) / base
				}
			}
		}
	}

	// Coverage flags follow the resulting fields: a window is missing when
	// neither the producer nor the cache could supply its change data.
	for _, w := range tickcache.Windows {
		if _, ok := fields[primaryField(w)]; !ok {
			snap.MissingWindows = append(snap.MissingWindows, string(w))
		}
	}
	if _, ok := fields[FieldVolume24h]; !ok {
		snap.MissingWindows = append(snap.MissingWindows, "24h")
	}

	snap.ShortEvaluable = snap.Has(FieldPriceChange5m, FieldPriceChange15m)
	snap.MediumEvaluable = snap.Has(FieldPriceChange1h)

	return snap, trace, nil
}
