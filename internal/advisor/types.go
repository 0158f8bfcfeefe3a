// Package advisor contains the decision pipeline: the pure decision core
// (regime, risk, quality, direction, confidence, permission), the frequency
// gate, the cross-horizon alignment analyzer and the engine façade that
// wires them per tick.
package advisor

import (
	"time"

	"futures-advisor/internal/signal"
)

// DecisionDraft is the pure output of the decision core for one horizon.
// It contains no time- or state-derived field; the same features and
// thresholds always produce an identical draft.
type DecisionDraft struct {
	Decision            signal.Decision            `json:"decision"`
	Confidence          signal.Confidence          `json:"confidence"`
	MarketRegime        signal.MarketRegime        `json:"market_regime"`
	TradeQuality        signal.TradeQuality        `json:"trade_quality"`
	ExecutionPermission signal.ExecutionPermission `json:"execution_permission"`
	ReasonTags          []signal.ReasonTag         `json:"reason_tags"`
	KeyMetrics          map[string]*float64        `json:"key_metrics"`
}

// HasTag reports whether the draft carries the tag.
func (d *DecisionDraft) HasTag(tag signal.ReasonTag) bool {
	for _, t := range d.ReasonTags {
		if t == tag {
			return true
		}
	}
	return false
}

// FrequencyControl is the gate's audit record. The gate communicates
// exclusively through this block and the executable flag; it never rewrites
// draft fields.
type FrequencyControl struct {
	IsBlocked           bool               `json:"is_blocked"`
	BlockReason         string             `json:"block_reason,omitempty"`
	IsCooling           bool               `json:"is_cooling"`
	MinIntervalViolated bool               `json:"min_interval_violated"`
	AddedTags           []signal.ReasonTag `json:"added_tags"`
}

// HasAddedTag reports whether the gate recorded the tag.
func (f *FrequencyControl) HasAddedTag(tag signal.ReasonTag) bool {
	for _, t := range f.AddedTags {
		if t == tag {
			return true
		}
	}
	return false
}

// DecisionFinal is a draft plus the gate verdict for one horizon.
type DecisionFinal struct {
	DecisionDraft
	Timeframe        signal.Timeframe `json:"timeframe"`
	Executable       bool             `json:"executable"`
	FrequencyControl FrequencyControl `json:"frequency_control"`
}

// AlignmentAnalysis classifies the relationship between the two horizons
// and, when they disagree, proposes a resolution.
type AlignmentAnalysis struct {
	AlignmentType         signal.AlignmentType      `json:"alignment_type"`
	IsAligned             bool                      `json:"is_aligned"`
	HasConflict           bool                      `json:"has_conflict"`
	ConflictResolution    signal.ConflictResolution `json:"conflict_resolution,omitempty"`
	RecommendedAction     signal.Decision           `json:"recommended_action"`
	RecommendedConfidence signal.Confidence         `json:"recommended_confidence"`
	RecommendationNotes   string                    `json:"recommendation_notes"`
}

// DualTimeframeResult is the engine's per-tick output.
type DualTimeframeResult struct {
	ID                  string             `json:"id"`
	Symbol              string             `json:"symbol"`
	Timestamp           time.Time          `json:"timestamp"`
	ThresholdsVersion   string             `json:"thresholds_version"`
	FeatureVersion      string             `json:"feature_version"`
	ShortTerm           DecisionFinal      `json:"short_term"`
	MediumTerm          DecisionFinal      `json:"medium_term"`
	Alignment           AlignmentAnalysis  `json:"alignment"`
	GlobalRiskTags      []signal.ReasonTag `json:"global_risk_tags"`
	RiskExposureAllowed bool               `json:"risk_exposure_allowed"`
}

// Final returns the horizon's final decision record.
func (r *DualTimeframeResult) Final(tf signal.Timeframe) *DecisionFinal {
	if tf == signal.MediumTerm {
		return &r.MediumTerm
	}
	return &r.ShortTerm
}
