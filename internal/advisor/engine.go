package advisor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"futures-advisor/internal/features"
	"futures-advisor/internal/logging"
	"futures-advisor/internal/metrics"
	"futures-advisor/internal/normalize"
	"futures-advisor/internal/signal"
	"futures-advisor/internal/state"
	"futures-advisor/internal/thresholds"
	"futures-advisor/internal/tickcache"
)

// EngineConfig tunes the engine's internals. Zero values fall back to the
// package defaults.
type EngineConfig struct {
	Cache      tickcache.Config
	Policy     normalize.Policy
	TraceLimit int
}

// Engine is the advisory façade: one call per tick, one dual-horizon result
// out. It owns the tick cache, the feature builder, the decision core, the
// frequency gate and the alignment analyzer, and it never panics outward:
// every failure becomes a NO_TRADE result with explanatory tags.
type Engine struct {
	cache    *tickcache.Cache
	builder  *features.Builder
	core     *Core
	gate     *Gate
	analyzer *Analyzer
	limits   *thresholds.Store
	states   state.Store
	traces   *TraceKeeper
	logger   *logging.Logger

	mu      sync.RWMutex
	results map[string]*DualTimeframeResult
}

// NewEngine wires the pipeline around the given threshold store and
// decision state store.
func NewEngine(limits *thresholds.Store, states state.Store, cfg EngineConfig, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default().WithComponent("advisor_engine")
	}
	if states == nil {
		states = state.NewMemoryStore()
	}
	cache := tickcache.New(cfg.Cache)
	normalizer := normalize.New(cfg.Policy)

	return &Engine{
		cache:    cache,
		builder:  features.NewBuilder(normalizer, cache),
		core:     NewCore(),
		gate:     NewGate(states, logger.WithComponent("decision_gate")),
		analyzer: NewAnalyzer(),
		limits:   limits,
		states:   states,
		traces:   NewTraceKeeper(cfg.TraceLimit),
		logger:   logger,
		results:  make(map[string]*DualTimeframeResult),
	}
}

// OnNewTickDual runs the full pipeline for one tick: validate, build
// features, evaluate both horizons, gate, align. Malformed input is not
// cached and yields an invalid_data result; an internal panic is recovered
// into the same shape.
func (e *Engine) OnNewTickDual(symbol string, raw map[string]interface{}) (res *DualTimeframeResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation panic recovered", "symbol", symbol, "panic", fmt.Sprint(r))
			res = e.failureResult(symbol, time.Now().UTC(), started, nil, fmt.Sprintf("panic: %v", r))
		}
	}()

	limits := e.limits.Current()

	if symbol == "" {
		return e.failureResult(symbol, time.Now().UTC(), started, nil, "empty symbol")
	}
	if len(raw) == 0 {
		return e.failureResult(symbol, time.Now().UTC(), started, nil, "empty metrics map")
	}
	tickTime, err := features.ParseTimestamp(raw)
	if err != nil {
		e.logger.Warn("tick rejected", "symbol", symbol, "error", err.Error())
		return e.failureResult(symbol, time.Now().UTC(), started, nil, err.Error())
	}

	snap, ntrace, err := e.builder.Build(symbol, raw, tickTime, tickTime)
	if ntrace != nil && ntrace.PolicyFired != "" {
		metrics.RecordNormalizationPolicy(symbol, string(ntrace.PolicyFired))
	}
	if err != nil {
		e.logger.Warn("tick rejected by normalization", "symbol", symbol, "error", err.Error())
		return e.failureResult(symbol, tickTime, started, ntrace, err.Error())
	}

	// Only validated ticks enter the cache. A stale timestamp is counted
	// and kept out, but the tick itself still evaluates: the gate's
	// elapsed-time checks neutralize any replayed signal.
	if e.cache.Insert(symbol, tickcache.Tick{Timestamp: tickTime, Fields: snap.NumericFields()}) {
		metrics.RecordTick(symbol)
	} else {
		metrics.RecordStaleTick(symbol)
		e.logger.Debug("stale tick not cached", "symbol", symbol, "tick_time", tickTime)
	}

	shortDraft, mediumDraft := e.core.EvaluateDual(snap, limits)
	shortFinal := e.gate.Apply(shortDraft, symbol, signal.ShortTerm, tickTime, limits)
	mediumFinal := e.gate.Apply(mediumDraft, symbol, signal.MediumTerm, tickTime, limits)
	alignment := e.analyzer.Analyze(&shortFinal, &mediumFinal, limits.DualTimeframe.ConflictResolution)

	riskTags := globalRiskTags(&shortDraft, &mediumDraft)
	res = &DualTimeframeResult{
		ID:                  NewTraceID(),
		Symbol:              symbol,
		Timestamp:           tickTime,
		ThresholdsVersion:   limits.Version(),
		FeatureVersion:      features.Version,
		ShortTerm:           shortFinal,
		MediumTerm:          mediumFinal,
		Alignment:           alignment,
		GlobalRiskTags:      riskTags,
		RiskExposureAllowed: len(riskTags) == 0,
	}

	e.observe(res, started)
	e.traces.Record(&PipelineTrace{
		ID:             res.ID,
		Symbol:         symbol,
		TickTime:       tickTime,
		ReceivedAt:     started,
		DurationMicros: time.Since(started).Microseconds(),
		Normalization:  ntrace,
		Coverage:       snap.Coverage,
		MissingWindows: snap.MissingWindows,
		ShortDecision:  shortFinal.Decision,
		MediumDecision: mediumFinal.Decision,
	})
	e.keepResult(res)
	return res
}

// failureResult builds the uniform failure shape: both horizons NO_TRADE
// with invalid_data, nothing cached, nothing stored.
func (e *Engine) failureResult(symbol string, at time.Time, started time.Time, ntrace *normalize.Trace, cause string) *DualTimeframeResult {
	draft := failureDraft(nil, signal.TagInvalidData)
	short := DecisionFinal{DecisionDraft: draft, Timeframe: signal.ShortTerm}
	medium := DecisionFinal{DecisionDraft: draft, Timeframe: signal.MediumTerm}
	alignment := e.analyzer.Analyze(&short, &medium, signal.ResolveNoTrade)

	res := &DualTimeframeResult{
		ID:                  NewTraceID(),
		Symbol:              symbol,
		Timestamp:           at,
		ThresholdsVersion:   e.limits.Current().Version(),
		FeatureVersion:      features.Version,
		ShortTerm:           short,
		MediumTerm:          medium,
		Alignment:           alignment,
		RiskExposureAllowed: true,
	}

	e.observe(res, started)
	e.traces.Record(&PipelineTrace{
		ID:             res.ID,
		Symbol:         symbol,
		TickTime:       at,
		ReceivedAt:     started,
		DurationMicros: time.Since(started).Microseconds(),
		Normalization:  ntrace,
		ShortDecision:  signal.NoTrade,
		MediumDecision: signal.NoTrade,
		Failure:        cause,
	})
	if symbol != "" {
		e.keepResult(res)
	}
	return res
}

func (e *Engine) observe(res *DualTimeframeResult, started time.Time) {
	metrics.ObserveEvaluation(res.Symbol, time.Since(started))
	metrics.RecordAlignment(string(res.Alignment.AlignmentType))
	for _, final := range []*DecisionFinal{&res.ShortTerm, &res.MediumTerm} {
		metrics.RecordDecision(res.Symbol, string(final.Timeframe), string(final.Decision))
		for _, tag := range final.ReasonTags {
			metrics.RecordReasonTag(string(tag))
		}
		if final.FrequencyControl.IsCooling {
			metrics.RecordGateBlock(res.Symbol, string(final.Timeframe), "cooldown")
		}
		if final.FrequencyControl.MinIntervalViolated {
			metrics.RecordGateBlock(res.Symbol, string(final.Timeframe), "min_interval")
		}
	}
}

func (e *Engine) keepResult(res *DualTimeframeResult) {
	e.mu.Lock()
	e.results[res.Symbol] = res
	e.mu.Unlock()
}

// LastResult returns the most recent result for the symbol, if any.
func (e *Engine) LastResult(symbol string) (*DualTimeframeResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res, ok := e.results[symbol]
	return res, ok
}

// Results returns the latest result per symbol, sorted by symbol.
func (e *Engine) Results() []*DualTimeframeResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*DualTimeframeResult, 0, len(e.results))
	for _, res := range e.results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Traces returns up to n recent pipeline traces for the symbol.
func (e *Engine) Traces(symbol string, n int) []*PipelineTrace {
	return e.traces.Recent(symbol, n)
}

// ReloadThresholds re-compiles the threshold file and atomically publishes
// the new set. On failure the previous set stays active.
func (e *Engine) ReloadThresholds() (string, error) {
	t, err := e.limits.Reload()
	if err != nil {
		metrics.RecordThresholdReload("failure")
		return e.limits.Current().Version(), err
	}
	metrics.RecordThresholdReload("success")
	return t.Version(), nil
}

// Thresholds returns the active threshold snapshot.
func (e *Engine) Thresholds() *thresholds.Thresholds {
	return e.limits.Current()
}

// ClearState wipes the decision state for one symbol, or for all symbols
// when the symbol is empty. The tick cache is untouched.
func (e *Engine) ClearState(symbol string) {
	e.states.Clear(symbol)
	e.logger.Warn("decision state cleared", "scope", scopeLabel(symbol))
}

// Cache exposes the tick cache for diagnostics.
func (e *Engine) Cache() *tickcache.Cache {
	return e.cache
}

func scopeLabel(symbol string) string {
	if symbol == "" {
		return "all"
	}
	return symbol
}

var riskVetoTags = []signal.ReasonTag{
	signal.TagExtremeRegime,
	signal.TagLiquidationPhase,
	signal.TagCrowdingRisk,
	signal.TagExtremeVolume,
}

// globalRiskTags collects the risk veto tags present on either horizon.
func globalRiskTags(short, medium *DecisionDraft) []signal.ReasonTag {
	var out []signal.ReasonTag
	for _, tag := range riskVetoTags {
		if short.HasTag(tag) || medium.HasTag(tag) {
			out = append(out, tag)
		}
	}
	return out
}
