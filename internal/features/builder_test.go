package features

import (
	"testing"
	"time"

	"futures-advisor/internal/normalize"
	"futures-advisor/internal/tickcache"
)

var now = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func newBuilder() (*Builder, *tickcache.Cache) {
	cache := tickcache.New(tickcache.DefaultConfig())
	return NewBuilder(normalize.New(normalize.PolicyWarn), cache), cache
}

// seedHistory inserts a tick every minute covering the past d, ending one
// minute before now, with linearly rising price and open interest.
func seedHistory(cache *tickcache.Cache, symbol string, d time.Duration) {
	minutes := int(d / time.Minute)
	for i := minutes; i >= 1; i-- {
		ts := now.Add(-time.Duration(i) * time.Minute)
		cache.Insert(symbol, tickcache.Tick{
			Timestamp: ts,
			Fields: map[string]float64{
				FieldPrice:        50000 - float64(i),
				FieldOpenInterest: 1e6 - float64(i)*10,
			},
		})
	}
}

// seedPriceHistory is seedHistory without the open-interest levels.
func seedPriceHistory(cache *tickcache.Cache, symbol string, d time.Duration) {
	minutes := int(d / time.Minute)
	for i := minutes; i >= 1; i-- {
		ts := now.Add(-time.Duration(i) * time.Minute)
		cache.Insert(symbol, tickcache.Tick{
			Timestamp: ts,
			Fields: map[string]float64{
				FieldPrice: 50000 - float64(i),
			},
		})
	}
}

func rawWith(fields map[string]interface{}) map[string]interface{} {
	raw := map[string]interface{}{
		"timestamp": now,
		"_metadata": map[string]interface{}{"percentage_format": "decimal"},
	}
	for k, v := range fields {
		raw[k] = v
	}
	return raw
}

func TestBuildUsesProducerFieldsFirst(t *testing.T) {
	b, cache := newBuilder()
	seedHistory(cache, "BTCUSDT", 7*time.Hour)

	raw := rawWith(map[string]interface{}{
		FieldPrice:         50000.0,
		FieldVolume24h:     1e5,
		FieldFundingRate:   1e-4,
		FieldPriceChange1h: 0.025,
	})
	snap, _, err := b.Build("BTCUSDT", raw, now, now)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// The producer's 1h change wins over the cache derivation.
	if v, ok := snap.Field(FieldPriceChange1h); !ok || v != 0.025 {
		t.Errorf("expected producer value 0.025, got %v (present=%v)", v, ok)
	}
	// Windows the producer skipped are derived from cached levels.
	if v, ok := snap.Field(FieldPriceChange6h); !ok {
		t.Error("expected 6h change derived from cache")
	} else if v <= 0 {
		t.Errorf("rising history must derive a positive change, got %f", v)
	}
	if !snap.ShortEvaluable {
		t.Error("short horizon should be evaluable with derived 5m/15m changes")
	}
	if !snap.MediumEvaluable {
		t.Error("medium horizon should be evaluable")
	}
	if len(snap.MissingWindows) != 0 {
		t.Errorf("no window should be missing, got %v", snap.MissingWindows)
	}
}

func TestBuildDerivedEndpointsBothRequired(t *testing.T) {
	b, cache := newBuilder()

	// History carries prices but no open interest: oi changes must stay
	// absent even though the windows are covered.
	seedPriceHistory(cache, "ETHUSDT", 2*time.Hour)
	raw := rawWith(map[string]interface{}{
		FieldPrice:        3000.0,
		FieldOpenInterest: 5e5,
		FieldVolume24h:    1e5,
		FieldFundingRate:  1e-4,
	})
	snap, _, err := b.Build("ETHUSDT", raw, now, now)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if _, ok := snap.Field(FieldPriceChange1h); !ok {
		t.Error("price change should derive from cached prices")
	}
	if v, ok := snap.Field(FieldOIChange1h); ok {
		t.Errorf("oi change must stay absent without a historical endpoint, got %f", v)
	}
}

func TestBuildAbsenceIsNeverZero(t *testing.T) {
	b, _ := newBuilder()

	raw := rawWith(map[string]interface{}{
		FieldPrice:       50000.0,
		FieldVolume24h:   1e5,
		FieldFundingRate: 1e-4,
	})
	snap, _, err := b.Build("BTCUSDT", raw, now, now)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	for _, name := range []string{
		FieldPriceChange5m, FieldPriceChange15m, FieldPriceChange1h,
		FieldPriceChange6h, FieldOIChange1h, FieldTakerImbalance1h,
	} {
		if v, ok := snap.Field(name); ok {
			t.Errorf("field %s should be absent on a cold cache, got %f", name, v)
		}
	}

	if snap.ShortEvaluable {
		t.Error("short horizon must not be evaluable on a cold cache")
	}
	if snap.MediumEvaluable {
		t.Error("medium horizon must not be evaluable on a cold cache")
	}

	want := map[string]bool{"5m": true, "15m": true, "1h": true, "6h": true}
	for _, w := range snap.MissingWindows {
		if !want[w] {
			t.Errorf("unexpected missing window %s", w)
		}
		delete(want, w)
	}
	if len(want) != 0 {
		t.Errorf("windows not reported missing: %v", want)
	}
}

func TestBuildReportsMissing24h(t *testing.T) {
	b, cache := newBuilder()
	seedHistory(cache, "BTCUSDT", 7*time.Hour)

	raw := rawWith(map[string]interface{}{
		FieldPrice:       50000.0,
		FieldFundingRate: 1e-4,
	})
	snap, _, err := b.Build("BTCUSDT", raw, now, now)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	found := false
	for _, w := range snap.MissingWindows {
		if w == "24h" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing volume_24h should report window 24h, got %v", snap.MissingWindows)
	}
	if missing := snap.MissingCoreFields(); len(missing) != 1 || missing[0] != FieldVolume24h {
		t.Errorf("expected volume_24h as the missing core field, got %v", missing)
	}
}

func TestBuildRecordsLookbackGaps(t *testing.T) {
	b, cache := newBuilder()

	// A single tick 6 minutes back: the 5m floor exists with a 60s gap.
	cache.Insert("BTCUSDT", tickcache.Tick{
		Timestamp: now.Add(-6 * time.Minute),
		Fields:    map[string]float64{FieldPrice: 49000},
	})
	raw := rawWith(map[string]interface{}{
		FieldPrice:       50000.0,
		FieldVolume24h:   1e5,
		FieldFundingRate: 1e-4,
	})
	snap, _, err := b.Build("BTCUSDT", raw, now, now)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if gap, ok := snap.LookbackGaps["5m"]; !ok || gap != 60 {
		t.Errorf("expected 5m gap of 60s, got %v (present=%v)", gap, ok)
	}
	if !snap.Coverage[tickcache.Window5m].Valid {
		t.Error("5m window should be within tolerance")
	}
	// 15m target predates the only tick: no entry, no gap record.
	if _, ok := snap.LookbackGaps["15m"]; ok {
		t.Error("15m gap should be unreported with no floor entry")
	}
}

func TestBuildFailFastPropagates(t *testing.T) {
	cache := tickcache.New(tickcache.DefaultConfig())
	b := NewBuilder(normalize.New(normalize.PolicyFailFast), cache)

	raw := map[string]interface{}{
		"timestamp":      now,
		FieldPrice:       50000.0,
		FieldVolume24h:   1e5,
		FieldFundingRate: 1e-4,
	}
	if _, _, err := b.Build("BTCUSDT", raw, now, now); err == nil {
		t.Error("missing metadata under FAIL_FAST must fail the build")
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  time.Time
		ok    bool
	}{
		{"time.Time", now, now, true},
		{"rfc3339", "2025-06-01T18:00:00Z", now, true},
		{"unix seconds", float64(now.Unix()), now, true},
		{"unix millis", float64(now.UnixMilli()), now, true},
		{"int64 millis", now.UnixMilli(), now, true},
		{"garbage string", "yesterday", time.Time{}, false},
		{"unsupported type", []int{1}, time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(map[string]interface{}{"timestamp": tc.value})
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if !got.Equal(tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if _, err := ParseTimestamp(map[string]interface{}{}); err == nil {
		t.Error("missing timestamp must error")
	}
}
