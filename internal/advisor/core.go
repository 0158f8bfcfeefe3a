package advisor

import (
	"math"
	"sort"

	"futures-advisor/internal/features"
	"futures-advisor/internal/signal"
	"futures-advisor/internal/thresholds"
)

// Core is the pure decision core. It holds no state and performs no I/O:
// every verdict is a function of the feature snapshot and the threshold
// snapshot passed in, which keeps single-horizon evaluation trivially
// testable and safe to run concurrently.
type Core struct{}

// NewCore returns a stateless decision core.
func NewCore() *Core {
	return &Core{}
}

// EvaluateDual evaluates both horizons independently from one snapshot.
// A missing core field invalidates both horizons; otherwise each horizon
// applies its own completeness policy and rule-set.
func (c *Core) EvaluateDual(f *features.Snapshot, t *thresholds.Thresholds) (short, medium DecisionDraft) {
	short = c.EvaluateSingle(f, t, signal.ShortTerm)
	medium = c.EvaluateSingle(f, t, signal.MediumTerm)
	return short, medium
}

// EvaluateSingle runs the staged pipeline for one horizon: data
// completeness, market regime, risk vetoes, trade quality, direction,
// tie-break, confidence and execution permission.
func (c *Core) EvaluateSingle(f *features.Snapshot, t *thresholds.Thresholds, tf signal.Timeframe) DecisionDraft {
	if missing := f.MissingCoreFields(); len(missing) > 0 {
		return failureDraft(f, signal.TagInvalidData)
	}
	if tags := horizonDataTags(f, tf); len(tags) > 0 {
		return failureDraft(f, tags...)
	}

	eval := &evaluation{
		core:      c,
		features:  f,
		limits:    t,
		timeframe: tf,
	}
	if tf == signal.MediumTerm && f.Missing6h() {
		eval.degraded = true
		eval.addTags(signal.TagDegradedTo1h, signal.TagDataGap6h)
	}

	eval.detectRegime()
	if eval.riskVeto() {
		return eval.noTrade()
	}
	eval.assessQuality()
	eval.evaluateDirection()
	if eval.decision == signal.NoTrade {
		return eval.noTrade()
	}
	eval.applyFundingBrake()
	eval.scoreConfidence()
	return eval.draft()
}

// evaluation carries the intermediate verdicts of one horizon through the
// pipeline stages.
type evaluation struct {
	core      *Core
	features  *features.Snapshot
	limits    *thresholds.Thresholds
	timeframe signal.Timeframe
	degraded  bool

	regime     signal.MarketRegime
	quality    signal.TradeQuality
	decision   signal.Decision
	confidence signal.Confidence
	strength   float64
	tags       []signal.ReasonTag
}

func (e *evaluation) addTags(tags ...signal.ReasonTag) {
	for _, tag := range tags {
		found := false
		for _, have := range e.tags {
			if have == tag {
				found = true
				break
			}
		}
		if !found {
			e.tags = append(e.tags, tag)
		}
	}
}

func (e *evaluation) field(name string) (float64, bool) {
	return e.features.Field(name)
}

// detectRegime classifies the market. Extreme displacement on the hourly
// window dominates; otherwise the trend test walks down from the widest
// window with data (6h, then 1h, then 15m) and everything below the trend
// thresholds is a range market.
func (e *evaluation) detectRegime() {
	mr := e.limits.MarketRegime

	if pc1h, ok := e.field(features.FieldPriceChange1h); ok && math.Abs(pc1h) > mr.ExtremePriceChange1h {
		e.regime = signal.RegimeExtreme
		return
	}
	if pc6h, ok := e.field(features.FieldPriceChange6h); ok {
		if math.Abs(pc6h) > mr.TrendPriceChange6h {
			e.regime = signal.RegimeTrend
		} else {
			e.regime = signal.RegimeRange
		}
		return
	}
	if pc1h, ok := e.field(features.FieldPriceChange1h); ok {
		if math.Abs(pc1h) > mr.TrendPriceChange1h {
			e.regime = signal.RegimeTrend
		} else {
			e.regime = signal.RegimeRange
		}
		return
	}
	if pc15m, ok := e.field(features.FieldPriceChange15m); ok && math.Abs(pc15m) > mr.TrendPriceChange15m {
		e.regime = signal.RegimeTrend
		return
	}
	e.regime = signal.RegimeRange
}

// riskVeto applies the hard vetoes. All four checks run so the tag set
// names every active risk, not just the first one found.
func (e *evaluation) riskVeto() bool {
	re := e.limits.RiskExposure
	vetoed := false

	if e.regime == signal.RegimeExtreme {
		e.addTags(signal.TagExtremeRegime)
		vetoed = true
	}

	pc1h, hasPC1h := e.field(features.FieldPriceChange1h)
	oi1h, hasOI1h := e.field(features.FieldOIChange1h)
	if hasPC1h && hasOI1h && pc1h <= -re.Liquidation.PriceChange && oi1h <= -re.Liquidation.OIDrop {
		e.addTags(signal.TagLiquidationPhase)
		vetoed = true
	}

	funding, hasFunding := e.field(features.FieldFundingRate)
	oi6h, hasOI6h := e.field(features.FieldOIChange6h)
	if hasFunding && hasOI6h && math.Abs(funding) > re.Crowding.FundingAbs && oi6h > re.Crowding.OIGrowth {
		e.addTags(signal.TagCrowdingRisk)
		vetoed = true
	}

	if vr := e.maxVolumeRatio(); vr > re.ExtremeVolume.VolumeRatio {
		e.addTags(signal.TagExtremeVolume)
		vetoed = true
	}
	return vetoed
}

func (e *evaluation) maxVolumeRatio() float64 {
	highest := 0.0
	if vr5m, ok := e.field(features.FieldVolumeRatio5m); ok && vr5m > highest {
		highest = vr5m
	}
	if vr15m, ok := e.field(features.FieldVolumeRatio15m); ok && vr15m > highest {
		highest = vr15m
	}
	return highest
}

// assessQuality grades trade structure. Each predicate needs every field it
// reads; an absent field leaves the predicate unfired. The grade is the
// worst tier among fired predicates and all fired tags are kept.
func (e *evaluation) assessQuality() {
	tq := e.limits.TradeQuality
	e.quality = signal.QualityGood

	ti1h, hasTI1h := e.field(features.FieldTakerImbalance1h)
	pc1h, hasPC1h := e.field(features.FieldPriceChange1h)

	// Absorption: strong hourly flow swallowed without volume behind it.
	if hasTI1h && math.Abs(ti1h) > tq.Absorption.Imbalance {
		vol1h, hasVol1h := e.field(features.FieldVolume1h)
		vol24h, hasVol24h := e.field(features.FieldVolume24h)
		if hasVol1h && hasVol24h && vol24h > 0 && vol1h < tq.Absorption.VolumeRatio*(vol24h/24) {
			e.addTags(signal.TagAbsorptionRisk)
			e.quality = signal.QualityPoor
		}
	}

	// Rotation: hourly flow leans hard one way while price refuses to move.
	if hasTI1h && hasPC1h &&
		math.Abs(ti1h) > tq.Rotation.Imbalance && math.Abs(pc1h) < tq.Rotation.PriceChange {
		e.addTags(signal.TagRotation)
		e.quality = signal.QualityPoor
	}

	// Funding noise: funding whipsaw around zero with no directional level.
	funding, hasFunding := e.field(features.FieldFundingRate)
	prev, hasPrev := e.field(features.FieldFundingRatePrev)
	if hasFunding && hasPrev &&
		math.Abs(funding-prev) > tq.Noise.FundingVolatility && math.Abs(funding) < tq.Noise.FundingAbs {
		e.addTags(signal.TagNoisyMarket)
		if e.quality == signal.QualityGood {
			e.quality = signal.QualityUncertain
		}
	}

	// Weak range move: a range-regime push on 15m without the flow to back it.
	if e.regime == signal.RegimeRange {
		ti15m, hasTI15m := e.field(features.FieldTakerImbalance15m)
		pc15m, hasPC15m := e.field(features.FieldPriceChange15m)
		if hasTI15m && hasPC15m &&
			math.Abs(pc15m) >= tq.RangeWeak.PriceChange && math.Abs(ti15m) < tq.RangeWeak.Imbalance {
			e.addTags(signal.TagRangeWeak)
			if e.quality == signal.QualityGood {
				e.quality = signal.QualityUncertain
			}
		}
	}
}

// evaluateDirection runs the regime rule-set for the horizon, resolves a
// double match and records the strength of the winning side.
func (e *evaluation) evaluateDirection() {
	var long, short bool
	var longStrength, shortStrength float64

	if e.timeframe == signal.ShortTerm {
		long, longStrength = e.shortTermSide(1)
		short, shortStrength = e.shortTermSide(-1)
	} else {
		switch e.regime {
		case signal.RegimeTrend:
			long, longStrength = e.trendSide(1)
			short, shortStrength = e.trendSide(-1)
		default:
			long, longStrength = e.rangeSide(1)
			short, shortStrength = e.rangeSide(-1)
		}
	}

	switch {
	case long && short:
		e.decision = e.breakTie()
		if e.decision == signal.Long {
			e.strength = longStrength
		} else if e.decision == signal.Short {
			e.strength = shortStrength
		}
	case long:
		e.decision = signal.Long
		e.strength = longStrength
	case short:
		e.decision = signal.Short
		e.strength = shortStrength
	default:
		e.decision = signal.NoTrade
		return
	}

	switch e.decision {
	case signal.Long:
		e.addTags(signal.TagStrongBuyPressure)
	case signal.Short:
		e.addTags(signal.TagStrongSellPressure)
	}
}

// trendSide checks the trend entry conditions for one side. All three
// conditions (flow, open interest, price) must hold; strength is how far
// the hourly imbalance clears its threshold.
func (e *evaluation) trendSide(dir float64) (bool, float64) {
	tr := e.limits.Direction.Trend

	ti1h, hasTI := e.field(features.FieldTakerImbalance1h)
	oi1h, hasOI := e.field(features.FieldOIChange1h)
	pc1h, hasPC := e.field(features.FieldPriceChange1h)
	if !hasTI || !hasOI || !hasPC {
		return false, 0
	}

	if dir > 0 {
		if ti1h > tr.LongImbalance && oi1h > tr.OIGrowth && pc1h > tr.PriceChange {
			return true, ti1h / tr.LongImbalance
		}
		return false, 0
	}
	if ti1h < tr.ShortImbalance && oi1h < -tr.OIGrowth && pc1h < -tr.PriceChange {
		return true, ti1h / tr.ShortImbalance
	}
	return false, 0
}

// rangeSide checks the medium-horizon range entry: a short-term opportunity
// strong enough on all three 15m axes to trade against the range.
func (e *evaluation) rangeSide(dir float64) (bool, float64) {
	rg := e.limits.Direction.Range

	ti15m, hasTI := e.field(features.FieldTakerImbalance15m)
	pc15m, hasPC := e.field(features.FieldPriceChange15m)
	vr15m, hasVR := e.field(features.FieldVolumeRatio15m)
	if !hasTI || !hasPC || !hasVR {
		return false, 0
	}

	if dir*ti15m >= rg.MinTakerImbalance && dir*pc15m >= rg.MinPriceChange15m && vr15m >= rg.MinVolumeRatio15m {
		return true, math.Abs(ti15m) / rg.MinTakerImbalance
	}
	return false, 0
}

// shortTermSide scores the K-of-N short-horizon entry. The axes are the 15m
// price move, the 15m taker imbalance, the 15m volume ratio and the 5m price
// confirmation; an absent axis counts as unmet, never as met.
func (e *evaluation) shortTermSide(dir float64) (bool, float64) {
	rg := e.limits.Direction.Range
	met := 0

	if pc15m, ok := e.field(features.FieldPriceChange15m); ok && dir*pc15m >= rg.MinPriceChange15m {
		met++
	}
	ti15m, hasTI := e.field(features.FieldTakerImbalance15m)
	if hasTI && dir*ti15m >= rg.MinTakerImbalance {
		met++
	}
	if vr15m, ok := e.field(features.FieldVolumeRatio15m); ok && vr15m >= rg.MinVolumeRatio15m {
		met++
	}
	if pc5m, ok := e.field(features.FieldPriceChange5m); ok && dir*pc5m >= rg.MinPriceChange5m {
		met++
	}

	if met < e.limits.DualTimeframe.ShortTerm.RequiredSignals {
		return false, 0
	}
	strength := 1.0
	if hasTI && rg.MinTakerImbalance > 0 {
		strength = math.Abs(ti15m) / rg.MinTakerImbalance
	}
	return true, strength
}

// breakTie resolves a simultaneous long and short match. Trend regimes
// follow the price direction, range regimes follow the taker imbalance;
// an unreadable or zero tie-breaker yields no trade.
func (e *evaluation) breakTie() signal.Decision {
	var v float64
	var ok bool
	if e.regime == signal.RegimeTrend {
		if v, ok = e.field(features.FieldPriceChange1h); !ok {
			v, ok = e.field(features.FieldPriceChange6h)
		}
	} else {
		if v, ok = e.field(features.FieldTakerImbalance15m); !ok {
			v, ok = e.field(features.FieldTakerImbalance1h)
		}
	}
	if !ok || v == 0 {
		return signal.NoTrade
	}
	if v > 0 {
		return signal.Long
	}
	return signal.Short
}

// applyFundingBrake tags entries that pay extreme funding against the
// crowd. The boundary is inclusive: funding exactly at the limit already
// counts as extreme.
func (e *evaluation) applyFundingBrake() {
	funding, ok := e.field(features.FieldFundingRate)
	if !ok {
		return
	}
	limit := e.limits.Direction.Funding.ExtremeAbs
	if (e.decision == signal.Long && funding >= limit) ||
		(e.decision == signal.Short && funding <= -limit) {
		e.addTags(signal.TagFundingDowngrade)
	}
}

// scoreConfidence derives the base grade from the regime, grants a one-step
// boost for unusually strong flow, then clamps with every active cap:
// quality tier, per-tag caps, the degraded-mode ceiling and the funding
// downgrade. Caps only ever lower the result.
func (e *evaluation) scoreConfidence() {
	cs := e.limits.ConfidenceScoring

	base := signal.ConfidenceMedium
	if e.regime == signal.RegimeTrend {
		base = signal.ConfidenceHigh
	}
	if cs.StrengthMultiplier > 0 && e.strength >= cs.StrengthMultiplier {
		base = base.StepUp()
	}

	ceiling := signal.ConfidenceUltra
	switch e.quality {
	case signal.QualityPoor:
		ceiling = signal.ConfidenceLow
	case signal.QualityUncertain:
		ceiling = cs.EffectiveUncertainCap()
	}
	for _, tag := range e.tags {
		if tagCap, ok := cs.Caps.TagCaps[tag]; ok {
			ceiling = signal.MinConfidence(ceiling, tagCap)
		}
	}
	if e.degraded {
		ceiling = signal.MinConfidence(ceiling, signal.ConfidenceHigh)
	}
	for _, tag := range e.tags {
		if tag == signal.TagFundingDowngrade {
			ceiling = ceiling.StepDown()
			break
		}
	}
	e.confidence = signal.MinConfidence(base, ceiling)
}

// noTrade finalizes a pipeline exit without a direction.
func (e *evaluation) noTrade() DecisionDraft {
	e.decision = signal.NoTrade
	e.confidence = signal.ConfidenceLow
	if e.quality == "" {
		e.quality = signal.QualityUncertain
	}
	return e.draft()
}

func (e *evaluation) draft() DecisionDraft {
	sort.Slice(e.tags, func(i, j int) bool { return e.tags[i] < e.tags[j] })
	return DecisionDraft{
		Decision:            e.decision,
		Confidence:          e.confidence,
		MarketRegime:        e.regime,
		TradeQuality:        e.quality,
		ExecutionPermission: permissionFromTags(e.tags),
		ReasonTags:          e.tags,
		KeyMetrics:          keyMetrics(e.features),
	}
}

// horizonDataTags returns the blocking data tags for the horizon, or nil
// when the horizon has enough data to evaluate. The short horizon needs the
// 5m and 15m windows; the medium horizon hard-fails only on 1h, because a
// missing 6h window still evaluates in degraded mode.
func horizonDataTags(f *features.Snapshot, tf signal.Timeframe) []signal.ReasonTag {
	if tf == signal.ShortTerm {
		if f.ShortEvaluable {
			return nil
		}
		tags := []signal.ReasonTag{signal.TagDataIncompleteLTF}
		if f.Missing5m() {
			tags = append(tags, signal.TagDataGap5m)
		}
		if f.Missing15m() {
			tags = append(tags, signal.TagDataGap15m)
		}
		return tags
	}
	if f.MediumEvaluable {
		return nil
	}
	tags := []signal.ReasonTag{signal.TagDataIncompleteMTF, signal.TagDataGap1h}
	if f.Missing6h() {
		tags = append(tags, signal.TagDataGap6h)
	}
	return tags
}

// failureDraft builds the uniform failure verdict: NO_TRADE with the
// explanatory tags, lowest confidence and whatever permission the tags
// imply (blocking data tags imply DENY).
func failureDraft(f *features.Snapshot, tags ...signal.ReasonTag) DecisionDraft {
	sorted := append([]signal.ReasonTag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return DecisionDraft{
		Decision:            signal.NoTrade,
		Confidence:          signal.ConfidenceLow,
		MarketRegime:        signal.RegimeRange,
		TradeQuality:        signal.QualityUncertain,
		ExecutionPermission: permissionFromTags(sorted),
		ReasonTags:          sorted,
		KeyMetrics:          keyMetrics(f),
	}
}

// permissionFromTags maps the worst executability class among the tags to
// a permission: any blocking tag denies, any degrading tag reduces.
func permissionFromTags(tags []signal.ReasonTag) signal.ExecutionPermission {
	perm := signal.PermissionAllow
	for _, tag := range tags {
		switch signal.TagExecutability(tag) {
		case signal.ExecBlock:
			return signal.PermissionDeny
		case signal.ExecDegrade:
			perm = signal.PermissionAllowReduced
		}
	}
	return perm
}

// keyMetricFields is the canonical metric set attached to every draft.
var keyMetricFields = []string{
	features.FieldPrice,
	features.FieldPriceChange5m,
	features.FieldPriceChange15m,
	features.FieldPriceChange1h,
	features.FieldPriceChange6h,
	features.FieldOIChange1h,
	features.FieldOIChange6h,
	features.FieldTakerImbalance15m,
	features.FieldTakerImbalance1h,
	features.FieldVolumeRatio5m,
	features.FieldVolumeRatio15m,
	features.FieldFundingRate,
}

// keyMetrics copies the canonical metrics out of the snapshot. Absent
// values stay nil so they serialize as null rather than a fake zero. A nil
// snapshot, as in results built before feature construction, yields all
// nulls.
func keyMetrics(f *features.Snapshot) map[string]*float64 {
	out := make(map[string]*float64, len(keyMetricFields))
	for _, name := range keyMetricFields {
		out[name] = nil
		if f == nil {
			continue
		}
		if v, ok := f.Field(name); ok {
			value := v
			out[name] = &value
		}
	}
	return out
}
