package signal

import "sort"

// ReasonTag is a machine-readable explanation attached to a decision. The
// vocabulary is closed: tags below are the only means by which the engine
// communicates why quality, risk or executability changed.
type ReasonTag string

const (
	// Data completeness.
	TagInvalidData       ReasonTag = "invalid_data"
	TagDataGap5m         ReasonTag = "data_gap_5m"
	TagDataGap15m        ReasonTag = "data_gap_15m"
	TagDataGap1h         ReasonTag = "data_gap_1h"
	TagDataGap6h         ReasonTag = "data_gap_6h"
	TagDataIncompleteLTF ReasonTag = "data_incomplete_ltf"
	TagDataIncompleteMTF ReasonTag = "data_incomplete_mtf"
	TagDegradedTo1h      ReasonTag = "mtf_degraded_to_1h"

	// Risk exposure.
	TagExtremeRegime    ReasonTag = "extreme_regime"
	TagLiquidationPhase ReasonTag = "liquidation_phase"
	TagCrowdingRisk     ReasonTag = "crowding_risk"
	TagExtremeVolume    ReasonTag = "extreme_volume"

	// Trade quality.
	TagAbsorptionRisk ReasonTag = "absorption_risk"
	TagNoisyMarket    ReasonTag = "noisy_market"
	TagRotation       ReasonTag = "rotation"
	TagRangeWeak      ReasonTag = "range_weak"

	// Direction support.
	TagStrongBuyPressure  ReasonTag = "strong_buy_pressure"
	TagStrongSellPressure ReasonTag = "strong_sell_pressure"
	TagFundingDowngrade   ReasonTag = "funding_downgrade"

	// Frequency control audit.
	TagFrequencyCooling    ReasonTag = "frequency_cooling"
	TagMinIntervalViolated ReasonTag = "min_interval_violated"
	TagDirectionFlip       ReasonTag = "direction_flip"
)

// Executability is the effect a tag has on execution permission. The worst
// class present across a draft's tags decides the permission level.
type Executability string

const (
	ExecBlock   Executability = "block"
	ExecDegrade Executability = "degrade"
	ExecAllow   Executability = "allow"
)

// TagInfo is one registry entry, exposed for UI consumption.
type TagInfo struct {
	Executability Executability `json:"executability_level"`
	Explanation   string        `json:"human_explanation"`
}

var tagRegistry = map[ReasonTag]TagInfo{
	TagInvalidData:       {ExecBlock, "Core fields missing or malformed; the snapshot cannot be evaluated."},
	TagDataGap5m:         {ExecBlock, "No usable 5m lookback within tolerance."},
	TagDataGap15m:        {ExecBlock, "No usable 15m lookback within tolerance."},
	TagDataGap1h:         {ExecBlock, "No usable 1h lookback within tolerance."},
	TagDataGap6h:         {ExecDegrade, "No usable 6h lookback; medium horizon runs on 1h data only."},
	TagDataIncompleteLTF: {ExecBlock, "Short-term fields incomplete; short horizon not evaluable."},
	TagDataIncompleteMTF: {ExecBlock, "1h fields incomplete; medium horizon not evaluable."},
	TagDegradedTo1h:      {ExecDegrade, "Medium-term evaluation degraded to 1h-only mode."},

	TagExtremeRegime:    {ExecBlock, "Price movement beyond the extreme regime threshold."},
	TagLiquidationPhase: {ExecBlock, "Falling price with collapsing open interest suggests a liquidation cascade."},
	TagCrowdingRisk:     {ExecBlock, "Extreme funding with growing open interest suggests a crowded trade."},
	TagExtremeVolume:    {ExecBlock, "Volume ratio beyond the plausible activity bound."},

	TagAbsorptionRisk: {ExecDegrade, "Strong taker imbalance without volume follow-through; flow is being absorbed."},
	TagNoisyMarket:    {ExecDegrade, "Funding is volatile around zero; direction signals are unreliable."},
	TagRotation:       {ExecDegrade, "Taker flow diverges from price movement; likely position rotation."},
	TagRangeWeak:      {ExecDegrade, "Imbalance too weak against the range to support an entry."},

	TagStrongBuyPressure:  {ExecAllow, "Taker buy imbalance supports the long side."},
	TagStrongSellPressure: {ExecAllow, "Taker sell imbalance supports the short side."},
	TagFundingDowngrade:   {ExecAllow, "Extreme funding in the signal direction lowered confidence one step."},

	TagFrequencyCooling:    {ExecAllow, "Same-direction signal within the cooldown interval."},
	TagMinIntervalViolated: {ExecAllow, "Signal within the minimum interval since the last decision."},
	TagDirectionFlip:       {ExecAllow, "Signal direction differs from the previously stored one."},
}

// IsValid reports whether the tag is part of the closed vocabulary.
func (t ReasonTag) IsValid() bool {
	_, ok := tagRegistry[t]
	return ok
}

// TagExecutability returns the executability class of a tag. Unknown tags
// are treated as blocking so misuse is never silently permissive.
func TagExecutability(t ReasonTag) Executability {
	if info, ok := tagRegistry[t]; ok {
		return info.Executability
	}
	return ExecBlock
}

// TagCatalog returns a copy of the full registry for UI consumption.
func TagCatalog() map[ReasonTag]TagInfo {
	out := make(map[ReasonTag]TagInfo, len(tagRegistry))
	for tag, info := range tagRegistry {
		out[tag] = info
	}
	return out
}

// AllTags returns every registered tag in lexical order.
func AllTags() []ReasonTag {
	out := make([]ReasonTag, 0, len(tagRegistry))
	for tag := range tagRegistry {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DataGapTag maps a window name to its gap tag; the boolean is false for
// windows outside the declared set.
func DataGapTag(window string) (ReasonTag, bool) {
	switch window {
	case "5m":
		return TagDataGap5m, true
	case "15m":
		return TagDataGap15m, true
	case "1h":
		return TagDataGap1h, true
	case "6h":
		return TagDataGap6h, true
	}
	return "", false
}
