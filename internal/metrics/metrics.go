// Package metrics exposes the engine's Prometheus instrumentation. All
// collectors are registered at init and recorded through small helper
// functions so call sites stay one line.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_ticks_total",
			Help: "Ticks accepted into the pipeline per symbol",
		},
		[]string{"symbol"},
	)

	staleTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_stale_ticks_total",
			Help: "Ticks rejected for non-increasing timestamps per symbol",
		},
		[]string{"symbol"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_decisions_total",
			Help: "Final decisions per symbol, horizon and direction",
		},
		[]string{"symbol", "timeframe", "decision"},
	)

	reasonTagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_reason_tags_total",
			Help: "Reason tags attached to drafts",
		},
		[]string{"tag"},
	)

	gateBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_gate_blocks_total",
			Help: "Signals blocked by frequency control",
		},
		[]string{"symbol", "timeframe", "reason"},
	)

	normalizationPolicyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_normalization_policy_fired_total",
			Help: "Ticks that arrived without a percentage format declaration",
		},
		[]string{"symbol", "policy"},
	)

	thresholdReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_threshold_reloads_total",
			Help: "Threshold reload attempts by outcome",
		},
		[]string{"status"},
	)

	alignmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_alignment_total",
			Help: "Cross-horizon alignment classifications",
		},
		[]string{"type"},
	)

	evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisor_evaluation_duration_seconds",
			Help:    "Wall time of one dual-horizon evaluation",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		},
		[]string{"symbol"},
	)

	fetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_fetch_errors_total",
			Help: "Upstream market data fetch failures per source",
		},
		[]string{"source"},
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "advisor_ws_clients",
			Help: "Connected advisory stream clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ticksTotal,
		staleTicksTotal,
		decisionsTotal,
		reasonTagsTotal,
		gateBlocksTotal,
		normalizationPolicyTotal,
		thresholdReloadsTotal,
		alignmentTotal,
		evaluationDuration,
		fetchErrorsTotal,
		wsClients,
	)
}

// RecordTick counts an accepted tick.
func RecordTick(symbol string) {
	ticksTotal.WithLabelValues(symbol).Inc()
}

// RecordStaleTick counts a tick rejected for ordering.
func RecordStaleTick(symbol string) {
	staleTicksTotal.WithLabelValues(symbol).Inc()
}

// RecordDecision counts a final decision.
func RecordDecision(symbol, timeframe, decision string) {
	decisionsTotal.WithLabelValues(symbol, timeframe, decision).Inc()
}

// RecordReasonTag counts one attached reason tag.
func RecordReasonTag(tag string) {
	reasonTagsTotal.WithLabelValues(tag).Inc()
}

// RecordGateBlock counts a frequency-control block.
func RecordGateBlock(symbol, timeframe, reason string) {
	gateBlocksTotal.WithLabelValues(symbol, timeframe, reason).Inc()
}

// RecordNormalizationPolicy counts a missing-format policy activation.
func RecordNormalizationPolicy(symbol, policy string) {
	normalizationPolicyTotal.WithLabelValues(symbol, policy).Inc()
}

// RecordThresholdReload counts a reload attempt. Status is "success" or
// "failure".
func RecordThresholdReload(status string) {
	thresholdReloadsTotal.WithLabelValues(status).Inc()
}

// RecordAlignment counts an alignment classification.
func RecordAlignment(alignmentType string) {
	alignmentTotal.WithLabelValues(alignmentType).Inc()
}

// ObserveEvaluation records the duration of one dual evaluation.
func ObserveEvaluation(symbol string, d time.Duration) {
	evaluationDuration.WithLabelValues(symbol).Observe(d.Seconds())
}

// RecordFetchError counts an upstream fetch failure.
func RecordFetchError(source string) {
	fetchErrorsTotal.WithLabelValues(source).Inc()
}

// WSClientConnected tracks a new stream client.
func WSClientConnected() {
	wsClients.Inc()
}

// WSClientDisconnected tracks a dropped stream client.
func WSClientDisconnected() {
	wsClients.Dec()
}
