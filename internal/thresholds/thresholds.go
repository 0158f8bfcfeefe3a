// Package thresholds loads, migrates, validates and freezes the decision
// threshold configuration. A compiled Thresholds object is immutable; its
// Version is a SHA-256 over the canonical YAML encoding of the migrated
// source and is attached to every decision the engine emits.
package thresholds

import (
	"time"

	"futures-advisor/internal/signal"
)

// Thresholds is the frozen, versioned threshold object. Callers must treat
// it as read-only; hot reload publishes a new instance instead of mutating.
type Thresholds struct {
	MarketRegime      MarketRegimeThresholds      `yaml:"market_regime" json:"market_regime"`
	RiskExposure      RiskExposureThresholds      `yaml:"risk_exposure" json:"risk_exposure"`
	TradeQuality      TradeQualityThresholds      `yaml:"trade_quality" json:"trade_quality"`
	Direction         DirectionThresholds         `yaml:"direction" json:"direction"`
	ConfidenceScoring ConfidenceScoringThresholds `yaml:"confidence_scoring" json:"confidence_scoring"`
	DualTimeframe     DualTimeframeThresholds     `yaml:"dual_timeframe" json:"dual_timeframe"`

	version string
}

// Version returns the SHA-256 hash of the canonical source document.
func (t *Thresholds) Version() string {
	return t.version
}

// MarketRegimeThresholds drives stage A regime detection. The 1h and 15m
// trend values are the fallback ladder used when the 6h change is absent.
type MarketRegimeThresholds struct {
	ExtremePriceChange1h float64 `yaml:"extreme_price_change_1h" json:"extreme_price_change_1h"`
	TrendPriceChange6h   float64 `yaml:"trend_price_change_6h" json:"trend_price_change_6h"`
	TrendPriceChange1h   float64 `yaml:"trend_price_change_1h" json:"trend_price_change_1h"`
	TrendPriceChange15m  float64 `yaml:"trend_price_change_15m" json:"trend_price_change_15m"`
}

// RiskExposureThresholds drives the stage B vetoes.
type RiskExposureThresholds struct {
	Liquidation   LiquidationThresholds   `yaml:"liquidation" json:"liquidation"`
	Crowding      CrowdingThresholds      `yaml:"crowding" json:"crowding"`
	ExtremeVolume ExtremeVolumeThresholds `yaml:"extreme_volume" json:"extreme_volume"`
}

// LiquidationThresholds describe a falling price with collapsing open
// interest. Both values are positive magnitudes of 1h drops.
type LiquidationThresholds struct {
	PriceChange float64 `yaml:"price_change" json:"price_change"`
	OIDrop      float64 `yaml:"oi_drop" json:"oi_drop"`
}

// CrowdingThresholds describe extreme funding while open interest grows.
type CrowdingThresholds struct {
	FundingAbs float64 `yaml:"funding_abs" json:"funding_abs"`
	OIGrowth   float64 `yaml:"oi_growth" json:"oi_growth"`
}

// ExtremeVolumeThresholds cap the plausible short-window volume ratio.
type ExtremeVolumeThresholds struct {
	VolumeRatio float64 `yaml:"volume_ratio" json:"volume_ratio"`
}

// TradeQualityThresholds drive the stage C classification.
type TradeQualityThresholds struct {
	Absorption AbsorptionThresholds `yaml:"absorption" json:"absorption"`
	Noise      NoiseThresholds      `yaml:"noise" json:"noise"`
	Rotation   DivergenceThresholds `yaml:"rotation" json:"rotation"`
	RangeWeak  DivergenceThresholds `yaml:"range_weak" json:"range_weak"`
}

// AbsorptionThresholds describe strong taker imbalance that fails to move
// volume: imbalance above the bound while 1h volume stays below the given
// fraction of the hourly average derived from 24h volume.
type AbsorptionThresholds struct {
	Imbalance   float64 `yaml:"imbalance" json:"imbalance"`
	VolumeRatio float64 `yaml:"volume_ratio" json:"volume_ratio"`
}

// NoiseThresholds describe a funding series that is volatile around zero.
type NoiseThresholds struct {
	FundingVolatility float64 `yaml:"funding_volatility" json:"funding_volatility"`
	FundingAbs        float64 `yaml:"funding_abs" json:"funding_abs"`
}

// DivergenceThresholds describe taker flow diverging from price movement.
// Rotation and range_weak share this predicate shape and differ only in
// their configured values.
type DivergenceThresholds struct {
	Imbalance   float64 `yaml:"imbalance" json:"imbalance"`
	PriceChange float64 `yaml:"price_change" json:"price_change"`
}

// DirectionThresholds drive the stage D direction evaluation.
type DirectionThresholds struct {
	Trend   TrendDirectionThresholds `yaml:"trend" json:"trend"`
	Range   RangeDirectionThresholds `yaml:"range" json:"range"`
	Funding FundingThresholds        `yaml:"funding" json:"funding"`
}

// TrendDirectionThresholds gate a with-trend entry on 1h flow agreement.
// ShortImbalance is negative.
type TrendDirectionThresholds struct {
	LongImbalance  float64 `yaml:"long_imbalance" json:"long_imbalance"`
	ShortImbalance float64 `yaml:"short_imbalance" json:"short_imbalance"`
	OIGrowth       float64 `yaml:"oi_growth" json:"oi_growth"`
	PriceChange    float64 `yaml:"price_change" json:"price_change"`
}

// RangeDirectionThresholds are the short-term opportunity bounds applied to
// the 15m axes with a 5m confirmation.
type RangeDirectionThresholds struct {
	MinTakerImbalance float64 `yaml:"min_taker_imbalance" json:"min_taker_imbalance"`
	MinPriceChange15m float64 `yaml:"min_price_change_15m" json:"min_price_change_15m"`
	MinVolumeRatio15m float64 `yaml:"min_volume_ratio_15m" json:"min_volume_ratio_15m"`
	MinPriceChange5m  float64 `yaml:"min_price_change_5m" json:"min_price_change_5m"`
}

// FundingThresholds set the bound beyond which funding in the signal
// direction downgrades confidence. The bound is inclusive.
type FundingThresholds struct {
	ExtremeAbs float64 `yaml:"extreme_abs" json:"extreme_abs"`
}

// ConfidenceScoringThresholds drive the stage F confidence assignment.
type ConfidenceScoringThresholds struct {
	HybridMode         bool           `yaml:"hybrid_mode" json:"hybrid_mode"`
	StrengthMultiplier float64        `yaml:"strength_multiplier" json:"strength_multiplier"`
	Caps               ConfidenceCaps `yaml:"caps" json:"caps"`
}

// ConfidenceCaps hold the quality cap for each downgrade mode plus the
// per-tag ceilings. Tag cap keys must name registered reason tags.
type ConfidenceCaps struct {
	UncertainQuality       signal.Confidence                       `yaml:"uncertain_quality" json:"uncertain_quality"`
	UncertainQualityLegacy signal.Confidence                       `yaml:"uncertain_quality_legacy" json:"uncertain_quality_legacy"`
	TagCaps                map[signal.ReasonTag]signal.Confidence `yaml:"tag_caps" json:"tag_caps"`
}

// EffectiveUncertainCap returns the quality cap for the configured mode.
func (c ConfidenceScoringThresholds) EffectiveUncertainCap() signal.Confidence {
	if c.HybridMode {
		return c.Caps.UncertainQuality
	}
	return c.Caps.UncertainQualityLegacy
}

// DualTimeframeThresholds configure the dual evaluation, conflict
// resolution and the per-horizon frequency control.
type DualTimeframeThresholds struct {
	ShortTerm          ShortTermThresholds        `yaml:"short_term" json:"short_term"`
	ConflictResolution signal.ConflictResolution  `yaml:"conflict_resolution" json:"conflict_resolution"`
	FrequencyControl   FrequencyControlThresholds `yaml:"frequency_control" json:"frequency_control"`
}

// ShortTermThresholds hold K for the K-of-N short-term signal vote.
type ShortTermThresholds struct {
	RequiredSignals int `yaml:"required_signals" json:"required_signals"`
}

// FrequencyControlThresholds hold the gate timing per horizon.
type FrequencyControlThresholds struct {
	ShortTerm  HorizonFrequency `yaml:"short_term" json:"short_term"`
	MediumTerm HorizonFrequency `yaml:"medium_term" json:"medium_term"`
}

// HorizonFrequency is the cooldown and minimum interval of one horizon.
type HorizonFrequency struct {
	CooldownMinutes    int `yaml:"cooldown_minutes" json:"cooldown_minutes"`
	MinIntervalMinutes int `yaml:"min_interval_minutes" json:"min_interval_minutes"`
}

// Cooldown returns the same-direction cooldown as a duration.
func (h HorizonFrequency) Cooldown() time.Duration {
	return time.Duration(h.CooldownMinutes) * time.Minute
}

// MinInterval returns the any-direction minimum interval as a duration.
func (h HorizonFrequency) MinInterval() time.Duration {
	return time.Duration(h.MinIntervalMinutes) * time.Minute
}

// Frequency returns the timing block for the given horizon.
func (d DualTimeframeThresholds) Frequency(tf signal.Timeframe) HorizonFrequency {
	if tf == signal.MediumTerm {
		return d.FrequencyControl.MediumTerm
	}
	return d.FrequencyControl.ShortTerm
}

// Default returns the standard threshold set. It mirrors
// config/thresholds.yaml and is used by tests and sample generation.
func Default() *Thresholds {
	return &Thresholds{
		MarketRegime: MarketRegimeThresholds{
			ExtremePriceChange1h: 0.05,
			TrendPriceChange6h:   0.03,
			TrendPriceChange1h:   0.02,
			TrendPriceChange15m:  0.008,
		},
		RiskExposure: RiskExposureThresholds{
			Liquidation:   LiquidationThresholds{PriceChange: 0.02, OIDrop: 0.03},
			Crowding:      CrowdingThresholds{FundingAbs: 0.0005, OIGrowth: 0.05},
			ExtremeVolume: ExtremeVolumeThresholds{VolumeRatio: 5.0},
		},
		TradeQuality: TradeQualityThresholds{
			Absorption: AbsorptionThresholds{Imbalance: 0.6, VolumeRatio: 0.5},
			Noise:      NoiseThresholds{FundingVolatility: 0.0003, FundingAbs: 0.0002},
			Rotation:   DivergenceThresholds{Imbalance: 0.5, PriceChange: 0.003},
			RangeWeak:  DivergenceThresholds{Imbalance: 0.35, PriceChange: 0.002},
		},
		Direction: DirectionThresholds{
			Trend: TrendDirectionThresholds{
				LongImbalance:  0.6,
				ShortImbalance: -0.6,
				OIGrowth:       0.02,
				PriceChange:    0.01,
			},
			Range: RangeDirectionThresholds{
				MinTakerImbalance: 0.55,
				MinPriceChange15m: 0.004,
				MinVolumeRatio15m: 1.5,
				MinPriceChange5m:  0.002,
			},
			Funding: FundingThresholds{ExtremeAbs: 0.001},
		},
		ConfidenceScoring: ConfidenceScoringThresholds{
			HybridMode:         true,
			StrengthMultiplier: 1.5,
			Caps: ConfidenceCaps{
				UncertainQuality:       signal.ConfidenceHigh,
				UncertainQualityLegacy: signal.ConfidenceMedium,
				TagCaps: map[signal.ReasonTag]signal.Confidence{
					signal.TagNoisyMarket:    signal.ConfidenceMedium,
					signal.TagAbsorptionRisk: signal.ConfidenceMedium,
					signal.TagRotation:       signal.ConfidenceMedium,
					signal.TagRangeWeak:      signal.ConfidenceMedium,
					signal.TagDegradedTo1h:   signal.ConfidenceHigh,
					signal.TagDataGap6h:      signal.ConfidenceHigh,
				},
			},
		},
		DualTimeframe: DualTimeframeThresholds{
			ShortTerm:          ShortTermThresholds{RequiredSignals: 3},
			ConflictResolution: signal.ResolveNoTrade,
			FrequencyControl: FrequencyControlThresholds{
				ShortTerm:  HorizonFrequency{CooldownMinutes: 30, MinIntervalMinutes: 10},
				MediumTerm: HorizonFrequency{CooldownMinutes: 120, MinIntervalMinutes: 30},
			},
		},
	}
}
