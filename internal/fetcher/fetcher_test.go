package fetcher

import (
	"context"
	"testing"
	"time"

	"futures-advisor/internal/advisor"
	"futures-advisor/internal/binance"
	"futures-advisor/internal/circuit"
	"futures-advisor/internal/events"
	"futures-advisor/internal/thresholds"
)

func mustEngine(t *testing.T) *advisor.Engine {
	t.Helper()
	store, err := thresholds.NewStore("")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return advisor.NewEngine(store, nil, advisor.EngineConfig{}, nil)
}

func TestBuildSnapshotFromMock(t *testing.T) {
	f := New(binance.NewMockClient(), nil, nil, nil, Config{}, nil)

	raw, err := f.buildSnapshot("BTCUSDT")
	if err != nil {
		t.Fatalf("buildSnapshot() error = %v", err)
	}

	for _, field := range []string{
		"price", "volume_24h", "funding_rate", "funding_rate_prev",
		"price_change_5m", "price_change_6h", "volume_1h", "volume_ratio_5m",
		"open_interest", "oi_change_1h", "taker_imbalance_5m", "taker_imbalance_1h",
	} {
		if _, ok := raw[field]; !ok {
			t.Errorf("snapshot missing %s", field)
		}
	}

	meta, ok := raw["_metadata"].(map[string]interface{})
	if !ok || meta["percentage_format"] != "percent_point" {
		t.Errorf("snapshot metadata = %v, want percent_point declaration", raw["_metadata"])
	}
	if price, ok := raw["price"].(float64); !ok || price <= 0 {
		t.Errorf("price = %v", raw["price"])
	}
}

// partialClient fails the optional series while the mandatory endpoints
// keep working.
type partialClient struct {
	*binance.MockClient
}

func (p *partialClient) GetFundingRateHistory(symbol string, limit int) ([]binance.FundingRate, error) {
	return nil, context.DeadlineExceeded
}

func (p *partialClient) GetOpenInterestHist(symbol, period string, limit int) ([]binance.OpenInterestHist, error) {
	return nil, context.DeadlineExceeded
}

func TestBuildSnapshotOmitsFailedOptionalSeries(t *testing.T) {
	f := New(&partialClient{binance.NewMockClient()}, nil, nil, nil, Config{}, nil)

	raw, err := f.buildSnapshot("BTCUSDT")
	if err != nil {
		t.Fatalf("buildSnapshot() error = %v", err)
	}
	for _, field := range []string{"funding_rate_prev", "open_interest", "oi_change_1h"} {
		if _, ok := raw[field]; ok {
			t.Errorf("snapshot carries %s from a failed series, want omission", field)
		}
	}
	// Mandatory fields survive.
	for _, field := range []string{"price", "volume_24h", "funding_rate", "price_change_5m"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("snapshot missing %s", field)
		}
	}
}

func TestBuildSnapshotFailsWithoutTicker(t *testing.T) {
	mock := binance.NewMockClient()
	f := New(mock, nil, nil, nil, Config{}, nil)

	mock.FailNext = true
	if _, err := f.buildSnapshot("BTCUSDT"); err == nil {
		t.Fatal("buildSnapshot() should fail when the ticker is unavailable")
	}
}

func TestFetchAndEvaluateProducesResult(t *testing.T) {
	engine := mustEngine(t)
	bus := events.NewEventBus()

	emitted := make(chan events.Event, 1)
	bus.Subscribe(events.EventAdviceEmitted, func(e events.Event) {
		select {
		case emitted <- e:
		default:
		}
	})

	f := New(binance.NewMockClient(), engine, nil, bus, Config{Symbols: []string{"BTCUSDT"}}, nil)

	var sunk []*advisor.DualTimeframeResult
	f.OnResult(func(res *advisor.DualTimeframeResult) {
		sunk = append(sunk, res)
	})

	f.fetchAndEvaluate("BTCUSDT")

	res, ok := engine.LastResult("BTCUSDT")
	if !ok {
		t.Fatal("engine has no result after fetch")
	}
	if res.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s", res.Symbol)
	}
	if len(sunk) != 1 {
		t.Fatalf("sink saw %d results, want 1", len(sunk))
	}

	select {
	case e := <-emitted:
		if e.Data["symbol"] != "BTCUSDT" {
			t.Errorf("event symbol = %v", e.Data["symbol"])
		}
		if e.Data["thresholds_version"] != res.ThresholdsVersion {
			t.Errorf("event thresholds_version = %v, want %s", e.Data["thresholds_version"], res.ThresholdsVersion)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no advice event published")
	}
}

func TestFetchFailureTripsBreaker(t *testing.T) {
	mock := binance.NewMockClient()
	breaker := circuit.NewBreaker(&circuit.BreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		CooldownSeconds:  300,
		ProbeCount:       1,
	})
	f := New(mock, mustEngine(t), breaker, nil, Config{Symbols: []string{"BTCUSDT"}}, nil)

	mock.FailNext = true
	f.fetchAndEvaluate("BTCUSDT")

	if breaker.State() != circuit.StateOpen {
		t.Fatalf("breaker state = %s, want open after failed fetch", breaker.State())
	}

	// While open the fetcher skips the symbol entirely, so the engine never
	// sees a tick.
	f.fetchAndEvaluate("BTCUSDT")
	if _, ok := f.engine.LastResult("BTCUSDT"); ok {
		t.Error("engine evaluated a tick while the breaker was open")
	}
}

func TestRunHonorsContextCancel(t *testing.T) {
	f := New(binance.NewMockClient(), mustEngine(t), nil, nil, Config{
		Symbols:      []string{"BTCUSDT", "ETHUSDT"},
		PollInterval: 10 * time.Millisecond,
		Concurrency:  2,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for f.Cycles() == 0 {
		select {
		case <-deadline:
			t.Fatal("no cycle completed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	if _, ok := f.engine.LastResult("BTCUSDT"); !ok {
		t.Error("no result for BTCUSDT after a full cycle")
	}
}
