package advisor

import (
	"fmt"

	"futures-advisor/internal/signal"
)

// Analyzer classifies the relationship between the two horizon finals and
// turns a disagreement into a recommendation under the configured conflict
// policy. It reads decisions and confidences only; gate executability is
// surfaced in the notes but never changes the classification.
type Analyzer struct{}

// NewAnalyzer returns a stateless alignment analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze compares the horizon finals. Alignment type names order the
// short-term side first: conflict_long_short means short-term long against
// medium-term short.
func (a *Analyzer) Analyze(short, medium *DecisionFinal, resolution signal.ConflictResolution) AlignmentAnalysis {
	out := AlignmentAnalysis{
		AlignmentType:         classify(short.Decision, medium.Decision),
		RecommendedAction:     signal.NoTrade,
		RecommendedConfidence: signal.ConfidenceLow,
	}

	switch out.AlignmentType {
	case signal.BothLong, signal.BothShort:
		out.IsAligned = true
		out.RecommendedAction = short.Decision
		out.RecommendedConfidence = signal.MaxConfidence(short.Confidence, medium.Confidence)

	case signal.BothNoTrade:
		out.IsAligned = true

	case signal.PartialLong, signal.PartialShort:
		side := short
		if medium.Decision.IsActionable() {
			side = medium
		}
		out.RecommendedAction = side.Decision
		out.RecommendedConfidence = side.Confidence

	case signal.ConflictLongShort, signal.ConflictShortLong:
		out.HasConflict = true
		out.ConflictResolution = resolution
		chosen := resolveConflict(short, medium, resolution)
		if chosen != nil {
			out.RecommendedAction = chosen.Decision
			out.RecommendedConfidence = chosen.Confidence.StepDown()
		}
	}

	out.RecommendationNotes = buildNotes(short, medium, &out)
	return out
}

func classify(short, medium signal.Decision) signal.AlignmentType {
	switch {
	case short == signal.Long && medium == signal.Long:
		return signal.BothLong
	case short == signal.Short && medium == signal.Short:
		return signal.BothShort
	case short == signal.Long && medium == signal.Short:
		return signal.ConflictLongShort
	case short == signal.Short && medium == signal.Long:
		return signal.ConflictShortLong
	case short == signal.Long || medium == signal.Long:
		return signal.PartialLong
	case short == signal.Short || medium == signal.Short:
		return signal.PartialShort
	default:
		return signal.BothNoTrade
	}
}

// resolveConflict picks the final to follow, or nil to stand aside. A
// confidence tie under follow_higher_confidence goes to the medium horizon
// because it aggregates the wider windows.
func resolveConflict(short, medium *DecisionFinal, resolution signal.ConflictResolution) *DecisionFinal {
	switch resolution {
	case signal.ResolveFollowMedium:
		return medium
	case signal.ResolveFollowShort:
		return short
	case signal.ResolveHigherConfidence:
		if short.Confidence.Rank() > medium.Confidence.Rank() {
			return short
		}
		return medium
	default:
		return nil
	}
}

func buildNotes(short, medium *DecisionFinal, a *AlignmentAnalysis) string {
	var note string
	switch a.AlignmentType {
	case signal.BothLong, signal.BothShort:
		note = fmt.Sprintf("Both horizons agree on %s with %s confidence.",
			a.RecommendedAction, a.RecommendedConfidence)
	case signal.BothNoTrade:
		note = "Neither horizon signals an entry."
	case signal.PartialLong, signal.PartialShort:
		silent, active := "medium-term", "short-term"
		if medium.Decision.IsActionable() {
			silent, active = "short-term", "medium-term"
		}
		note = fmt.Sprintf("Only the %s horizon signals %s; the %s horizon stands aside.",
			active, a.RecommendedAction, silent)
	default:
		if a.RecommendedAction == signal.NoTrade {
			note = fmt.Sprintf("Short-term %s conflicts with medium-term %s; standing aside under the %s policy.",
				short.Decision, medium.Decision, a.ConflictResolution)
		} else {
			note = fmt.Sprintf("Short-term %s conflicts with medium-term %s; following %s under the %s policy with reduced confidence.",
				short.Decision, medium.Decision, a.RecommendedAction, a.ConflictResolution)
		}
	}

	if a.RecommendedAction.IsActionable() {
		if a.RecommendedAction == short.Decision && !short.Executable {
			note += " Short-term execution is currently blocked."
		}
		if a.RecommendedAction == medium.Decision && !medium.Executable {
			note += " Medium-term execution is currently blocked."
		}
	}
	return note
}
