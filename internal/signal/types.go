// Package signal defines the advisory vocabulary shared across the engine:
// decisions, confidence levels, regimes, quality tiers, permissions,
// timeframes and the closed reason-tag registry.
package signal

// Decision is the advisory verdict for one horizon.
type Decision string

const (
	Long    Decision = "long"
	Short   Decision = "short"
	NoTrade Decision = "no_trade"
)

// IsActionable reports whether the decision proposes a position.
func (d Decision) IsActionable() bool {
	return d == Long || d == Short
}

// Opposite returns the opposing direction; NoTrade maps to itself.
func (d Decision) Opposite() Decision {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	}
	return NoTrade
}

// Confidence is an ordered level attached to a decision.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
	ConfidenceUltra  Confidence = "ultra"
)

// confidenceRank orders the levels; higher is stronger.
var confidenceRank = map[Confidence]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
	ConfidenceUltra:  3,
}

// Rank returns the numeric order of the level, low first.
func (c Confidence) Rank() int {
	return confidenceRank[c]
}

// IsValid reports whether the string names a known level.
func (c Confidence) IsValid() bool {
	_, ok := confidenceRank[c]
	return ok
}

// StepDown lowers the level by one step, saturating at low.
func (c Confidence) StepDown() Confidence {
	switch c {
	case ConfidenceUltra:
		return ConfidenceHigh
	case ConfidenceHigh:
		return ConfidenceMedium
	case ConfidenceMedium:
		return ConfidenceLow
	}
	return ConfidenceLow
}

// StepUp raises the level by one step, saturating at ultra.
func (c Confidence) StepUp() Confidence {
	switch c {
	case ConfidenceLow:
		return ConfidenceMedium
	case ConfidenceMedium:
		return ConfidenceHigh
	case ConfidenceHigh:
		return ConfidenceUltra
	}
	return ConfidenceUltra
}

// CapAt returns the lower of c and the given ceiling.
func (c Confidence) CapAt(ceiling Confidence) Confidence {
	if c.Rank() > ceiling.Rank() {
		return ceiling
	}
	return c
}

// MinConfidence returns the lower of two levels.
func MinConfidence(a, b Confidence) Confidence {
	if a.Rank() < b.Rank() {
		return a
	}
	return b
}

// MaxConfidence returns the higher of two levels.
func MaxConfidence(a, b Confidence) Confidence {
	if a.Rank() > b.Rank() {
		return a
	}
	return b
}

// MarketRegime is the coarse market classification from stage A.
type MarketRegime string

const (
	RegimeTrend   MarketRegime = "trend"
	RegimeRange   MarketRegime = "range"
	RegimeExtreme MarketRegime = "extreme"
)

// TradeQuality is the stage C classification of conditions.
type TradeQuality string

const (
	QualityGood      TradeQuality = "good"
	QualityUncertain TradeQuality = "uncertain"
	QualityPoor      TradeQuality = "poor"
)

// ExecutionPermission is the policy-level verdict from stage G. It is
// distinct from the final executable flag, which additionally reflects
// frequency control.
type ExecutionPermission string

const (
	PermissionAllow        ExecutionPermission = "allow"
	PermissionAllowReduced ExecutionPermission = "allow_reduced"
	PermissionDeny         ExecutionPermission = "deny"
)

// Timeframe names one of the two independent evaluation horizons.
type Timeframe string

const (
	ShortTerm  Timeframe = "short_term"  // 5m + 15m features
	MediumTerm Timeframe = "medium_term" // 1h + 6h features
)

// Timeframes lists both horizons in evaluation order.
var Timeframes = []Timeframe{ShortTerm, MediumTerm}

// ShortTermSignalCount is the number of short-term signal axes: 15m price
// change, 15m taker imbalance, 15m volume ratio and the 5m confirmation.
// The configured required_signals K must lie in 1..ShortTermSignalCount.
const ShortTermSignalCount = 4

// AlignmentType classifies the relationship between the two horizon finals.
type AlignmentType string

const (
	BothLong          AlignmentType = "both_long"
	BothShort         AlignmentType = "both_short"
	BothNoTrade       AlignmentType = "both_no_trade"
	ConflictLongShort AlignmentType = "conflict_long_short"
	ConflictShortLong AlignmentType = "conflict_short_long"
	PartialLong       AlignmentType = "partial_long"
	PartialShort      AlignmentType = "partial_short"
)

// ConflictResolution selects how a conflicting pair is resolved into a
// recommended action.
type ConflictResolution string

const (
	ResolveNoTrade          ConflictResolution = "no_trade"
	ResolveFollowMedium     ConflictResolution = "follow_medium_term"
	ResolveFollowShort      ConflictResolution = "follow_short_term"
	ResolveHigherConfidence ConflictResolution = "follow_higher_confidence"
)

// ValidResolutions lists every accepted conflict_resolution value.
var ValidResolutions = []ConflictResolution{
	ResolveNoTrade,
	ResolveFollowMedium,
	ResolveFollowShort,
	ResolveHigherConfidence,
}

// IsValid reports whether the string names a known resolution policy.
func (r ConflictResolution) IsValid() bool {
	for _, v := range ValidResolutions {
		if r == v {
			return true
		}
	}
	return false
}
