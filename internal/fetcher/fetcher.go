// Package fetcher polls public futures market data, assembles raw advisory
// snapshots and feeds them to the engine. It is the only producer of ticks
// in the service; everything downstream (history, audit, notifications)
// subscribes to its results instead of fetching on its own.
package fetcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"futures-advisor/internal/advisor"
	"futures-advisor/internal/binance"
	"futures-advisor/internal/circuit"
	"futures-advisor/internal/events"
	"futures-advisor/internal/logging"
	"futures-advisor/internal/metrics"
)

// ResultSink receives every evaluated result. Sinks run synchronously on the
// fetch goroutine, so they must hand off long work themselves.
type ResultSink func(*advisor.DualTimeframeResult)

// Fetcher drives the poll cycle for a fixed symbol set
type Fetcher struct {
	client      binance.MarketDataClient
	engine      *advisor.Engine
	breaker     *circuit.Breaker
	bus         *events.EventBus
	logger      *logging.Logger
	symbols     []string
	interval    time.Duration
	concurrency int

	mu    sync.RWMutex
	sinks []ResultSink

	cycles int64
}

// Config carries the fetcher's runtime settings
type Config struct {
	Symbols      []string
	PollInterval time.Duration
	Concurrency  int
}

// New creates a fetcher. The breaker and bus may be nil; a nil breaker
// admits every cycle and a nil bus drops events.
func New(client binance.MarketDataClient, engine *advisor.Engine, breaker *circuit.Breaker, bus *events.EventBus, cfg Config, logger *logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.Default()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Fetcher{
		client:      client,
		engine:      engine,
		breaker:     breaker,
		bus:         bus,
		logger:      logger.WithComponent("fetcher"),
		symbols:     cfg.Symbols,
		interval:    interval,
		concurrency: concurrency,
	}
}

// OnResult registers a sink invoked for every evaluated result
func (f *Fetcher) OnResult(sink ResultSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

// Run polls until the context is cancelled. The first cycle starts
// immediately; later cycles follow the configured interval.
func (f *Fetcher) Run(ctx context.Context) {
	f.logger.Info("fetcher started",
		"symbols", len(f.symbols), "interval", f.interval.String(), "concurrency", f.concurrency)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("fetcher stopped")
			return
		case <-ticker.C:
			f.runCycle(ctx)
		}
	}
}

// runCycle fetches and evaluates every configured symbol, at most
// concurrency at a time.
func (f *Fetcher) runCycle(ctx context.Context) {
	defer atomic.AddInt64(&f.cycles, 1)
	sem := make(chan struct{}, f.concurrency)
	var wg sync.WaitGroup

	for _, symbol := range f.symbols {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			f.fetchAndEvaluate(symbol)
		}(symbol)
	}
	wg.Wait()
}

// fetchAndEvaluate runs one symbol through snapshot assembly and the engine
func (f *Fetcher) fetchAndEvaluate(symbol string) {
	if f.breaker != nil {
		if allowed, reason := f.breaker.Allow(); !allowed {
			f.logger.Debug("fetch skipped", "symbol", symbol, "reason", reason)
			return
		}
	}

	raw, err := f.buildSnapshot(symbol)
	if err != nil {
		metrics.RecordFetchError("binance")
		if f.breaker != nil {
			f.breaker.RecordFailure(err)
		}
		f.logger.Warn("snapshot failed", "symbol", symbol, "error", err.Error())
		return
	}
	if f.breaker != nil {
		f.breaker.RecordSuccess()
	}

	res := f.engine.OnNewTickDual(symbol, raw)
	if res == nil {
		return
	}

	if f.bus != nil {
		f.bus.PublishAdvice(symbol,
			string(res.ShortTerm.Decision),
			string(res.MediumTerm.Decision),
			string(res.Alignment.AlignmentType),
			res.ThresholdsVersion)
		if res.Alignment.HasConflict {
			f.bus.PublishAlignmentConflict(symbol,
				string(res.Alignment.AlignmentType),
				string(res.Alignment.RecommendedAction))
		}
	}

	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, sink := range sinks {
		sink(res)
	}
}

// Cycles returns the number of completed poll cycles
func (f *Fetcher) Cycles() int64 {
	return atomic.LoadInt64(&f.cycles)
}
