// Package audit writes the append-only advisory decision trail. Every
// emitted result, threshold reload and state wipe lands here as one
// structured line, so a decision can be reconstructed after the fact
// without the serving logs.
package audit

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"futures-advisor/internal/advisor"
)

// Trail is the structured audit sink. The zero-value-like trail returned
// by NopTrail swallows everything.
type Trail struct {
	logger  zerolog.Logger
	enabled bool
}

// NewTrail writes audit lines to w as JSON.
func NewTrail(w io.Writer) *Trail {
	return &Trail{
		logger:  zerolog.New(w).With().Timestamp().Str("component", "DecisionAudit").Logger(),
		enabled: true,
	}
}

// NopTrail returns a trail that records nothing.
func NopTrail() *Trail {
	return &Trail{logger: zerolog.Nop()}
}

// RecordDecision writes one line per emitted dual-horizon result.
func (t *Trail) RecordDecision(res *advisor.DualTimeframeResult) {
	if !t.enabled || res == nil {
		return
	}
	t.logger.Info().
		Str("result_id", res.ID).
		Str("symbol", res.Symbol).
		Time("tick_time", res.Timestamp).
		Str("thresholds_version", res.ThresholdsVersion).
		Str("short_decision", string(res.ShortTerm.Decision)).
		Str("short_confidence", string(res.ShortTerm.Confidence)).
		Bool("short_executable", res.ShortTerm.Executable).
		Str("medium_decision", string(res.MediumTerm.Decision)).
		Str("medium_confidence", string(res.MediumTerm.Confidence)).
		Bool("medium_executable", res.MediumTerm.Executable).
		Str("alignment", string(res.Alignment.AlignmentType)).
		Str("recommended_action", string(res.Alignment.RecommendedAction)).
		Bool("risk_exposure_allowed", res.RiskExposureAllowed).
		Msg("Advisory decision emitted")
}

// RecordReload writes the outcome of a threshold reload attempt.
func (t *Trail) RecordReload(version string, err error) {
	if !t.enabled {
		return
	}
	if err != nil {
		t.logger.Error().
			Err(err).
			Msg("Threshold reload rejected; previous version stays active")
		return
	}
	t.logger.Info().
		Str("thresholds_version", version).
		Msg("Threshold reload applied")
}

// RecordStateClear writes a decision-state wipe with its scope.
func (t *Trail) RecordStateClear(symbol, actor string) {
	if !t.enabled {
		return
	}
	scope := symbol
	if scope == "" {
		scope = "all"
	}
	t.logger.Warn().
		Str("scope", scope).
		Str("actor", actor).
		Time("at", time.Now().UTC()).
		Msg("Decision state cleared")
}
