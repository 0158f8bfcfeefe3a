package advisor

import (
	"strings"
	"testing"

	"futures-advisor/internal/signal"
)

func finalWith(tf signal.Timeframe, dir signal.Decision, conf signal.Confidence, executable bool) *DecisionFinal {
	return &DecisionFinal{
		DecisionDraft: DecisionDraft{
			Decision:            dir,
			Confidence:          conf,
			MarketRegime:        signal.RegimeTrend,
			TradeQuality:        signal.QualityGood,
			ExecutionPermission: signal.PermissionAllow,
		},
		Timeframe:  tf,
		Executable: executable,
	}
}

func TestAlignmentClassification(t *testing.T) {
	tests := []struct {
		name   string
		short  signal.Decision
		medium signal.Decision
		want   signal.AlignmentType
	}{
		{"both long", signal.Long, signal.Long, signal.BothLong},
		{"both short", signal.Short, signal.Short, signal.BothShort},
		{"both quiet", signal.NoTrade, signal.NoTrade, signal.BothNoTrade},
		{"short long against medium short", signal.Long, signal.Short, signal.ConflictLongShort},
		{"short short against medium long", signal.Short, signal.Long, signal.ConflictShortLong},
		{"only short side long", signal.Long, signal.NoTrade, signal.PartialLong},
		{"only medium side long", signal.NoTrade, signal.Long, signal.PartialLong},
		{"only short side short", signal.Short, signal.NoTrade, signal.PartialShort},
		{"only medium side short", signal.NoTrade, signal.Short, signal.PartialShort},
	}

	analyzer := NewAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := analyzer.Analyze(
				finalWith(signal.ShortTerm, tt.short, signal.ConfidenceMedium, true),
				finalWith(signal.MediumTerm, tt.medium, signal.ConfidenceMedium, true),
				signal.ResolveNoTrade,
			)
			if a.AlignmentType != tt.want {
				t.Errorf("AlignmentType = %v, want %v", a.AlignmentType, tt.want)
			}
			wantConflict := tt.want == signal.ConflictLongShort || tt.want == signal.ConflictShortLong
			if a.HasConflict != wantConflict {
				t.Errorf("HasConflict = %v, want %v", a.HasConflict, wantConflict)
			}
			wantAligned := tt.short == tt.medium
			if a.IsAligned != wantAligned {
				t.Errorf("IsAligned = %v, want %v", a.IsAligned, wantAligned)
			}
		})
	}
}

func TestAlignedRecommendationTakesHigherConfidence(t *testing.T) {
	analyzer := NewAnalyzer()
	a := analyzer.Analyze(
		finalWith(signal.ShortTerm, signal.Long, signal.ConfidenceHigh, true),
		finalWith(signal.MediumTerm, signal.Long, signal.ConfidenceMedium, true),
		signal.ResolveNoTrade,
	)

	if a.RecommendedAction != signal.Long {
		t.Errorf("RecommendedAction = %v, want long", a.RecommendedAction)
	}
	if a.RecommendedConfidence != signal.ConfidenceHigh {
		t.Errorf("RecommendedConfidence = %v, want high (max of both)", a.RecommendedConfidence)
	}
}

func TestConflictResolutionPolicies(t *testing.T) {
	short := finalWith(signal.ShortTerm, signal.Long, signal.ConfidenceHigh, true)
	medium := finalWith(signal.MediumTerm, signal.Short, signal.ConfidenceMedium, true)

	tests := []struct {
		name       string
		resolution signal.ConflictResolution
		wantAction signal.Decision
		wantConf   signal.Confidence
	}{
		{"stand aside", signal.ResolveNoTrade, signal.NoTrade, signal.ConfidenceLow},
		{"follow medium term", signal.ResolveFollowMedium, signal.Short, signal.ConfidenceLow},
		{"follow short term", signal.ResolveFollowShort, signal.Long, signal.ConfidenceMedium},
		{"follow higher confidence", signal.ResolveHigherConfidence, signal.Long, signal.ConfidenceMedium},
	}

	analyzer := NewAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := analyzer.Analyze(short, medium, tt.resolution)

			if !a.HasConflict {
				t.Fatal("HasConflict = false, want true")
			}
			if a.ConflictResolution != tt.resolution {
				t.Errorf("ConflictResolution = %v, want %v", a.ConflictResolution, tt.resolution)
			}
			if a.RecommendedAction != tt.wantAction {
				t.Errorf("RecommendedAction = %v, want %v", a.RecommendedAction, tt.wantAction)
			}
			// A followed side always loses one confidence step for the
			// disagreement.
			if a.RecommendedConfidence != tt.wantConf {
				t.Errorf("RecommendedConfidence = %v, want %v", a.RecommendedConfidence, tt.wantConf)
			}
		})
	}
}

func TestConflictConfidenceTieGoesToMedium(t *testing.T) {
	analyzer := NewAnalyzer()
	a := analyzer.Analyze(
		finalWith(signal.ShortTerm, signal.Long, signal.ConfidenceHigh, true),
		finalWith(signal.MediumTerm, signal.Short, signal.ConfidenceHigh, true),
		signal.ResolveHigherConfidence,
	)

	if a.RecommendedAction != signal.Short {
		t.Errorf("RecommendedAction = %v, want the medium side on a tie", a.RecommendedAction)
	}
}

func TestPartialAlignmentFollowsActiveSide(t *testing.T) {
	analyzer := NewAnalyzer()

	a := analyzer.Analyze(
		finalWith(signal.ShortTerm, signal.NoTrade, signal.ConfidenceLow, true),
		finalWith(signal.MediumTerm, signal.Long, signal.ConfidenceHigh, true),
		signal.ResolveNoTrade,
	)

	if a.RecommendedAction != signal.Long {
		t.Errorf("RecommendedAction = %v, want long", a.RecommendedAction)
	}
	if a.RecommendedConfidence != signal.ConfidenceHigh {
		t.Errorf("RecommendedConfidence = %v, want the active side's high", a.RecommendedConfidence)
	}
	if a.HasConflict {
		t.Error("HasConflict = true, a silent side is not a conflict")
	}
}

func TestNotesMentionBlockedExecution(t *testing.T) {
	analyzer := NewAnalyzer()
	a := analyzer.Analyze(
		finalWith(signal.ShortTerm, signal.Long, signal.ConfidenceMedium, true),
		finalWith(signal.MediumTerm, signal.Long, signal.ConfidenceHigh, false),
		signal.ResolveNoTrade,
	)

	if !strings.Contains(a.RecommendationNotes, "blocked") {
		t.Errorf("notes = %q, want a mention of blocked execution", a.RecommendationNotes)
	}
}

func TestBothNoTradeRecommendsNothing(t *testing.T) {
	analyzer := NewAnalyzer()
	a := analyzer.Analyze(
		finalWith(signal.ShortTerm, signal.NoTrade, signal.ConfidenceLow, true),
		finalWith(signal.MediumTerm, signal.NoTrade, signal.ConfidenceLow, true),
		signal.ResolveNoTrade,
	)

	if a.RecommendedAction != signal.NoTrade {
		t.Errorf("RecommendedAction = %v, want no_trade", a.RecommendedAction)
	}
	if !a.IsAligned {
		t.Error("IsAligned = false, two quiet horizons agree")
	}
	if a.RecommendationNotes == "" {
		t.Error("RecommendationNotes empty, want a human explanation")
	}
}
