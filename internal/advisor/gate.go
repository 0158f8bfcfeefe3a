package advisor

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"futures-advisor/internal/logging"
	"futures-advisor/internal/signal"
	"futures-advisor/internal/state"
	"futures-advisor/internal/thresholds"
)

const gateStripes = 64

// Gate applies per-(symbol, timeframe) frequency control on top of a pure
// draft. It never rewrites draft fields; its whole verdict lives in the
// executable flag and the frequency_control audit block.
//
// A striped lock serializes the read-check-write sequence per key, so two
// ticks for the same symbol and horizon cannot both pass the cooldown check
// before either records its signal.
type Gate struct {
	store  state.Store
	logger *logging.Logger
	locks  [gateStripes]sync.Mutex
}

// NewGate returns a gate over the given state store.
func NewGate(store state.Store, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Default().WithComponent("decision_gate")
	}
	return &Gate{store: store, logger: logger}
}

// Apply evaluates frequency control for the draft at the given time and
// returns the final record. Timing rules only ever touch actionable drafts:
// NO_TRADE passes through untimed and never updates the store. A draft with
// permission DENY is never executable regardless of timing.
func (g *Gate) Apply(draft DecisionDraft, symbol string, tf signal.Timeframe, now time.Time, t *thresholds.Thresholds) DecisionFinal {
	final := DecisionFinal{
		DecisionDraft: draft,
		Timeframe:     tf,
	}

	if !draft.Decision.IsActionable() {
		final.Executable = draft.ExecutionPermission != signal.PermissionDeny
		return final
	}

	lock := &g.locks[g.stripe(symbol, tf)]
	lock.Lock()
	defer lock.Unlock()

	freq := t.DualTimeframe.Frequency(tf)
	fc := &final.FrequencyControl

	lastTime, hasLast := g.store.LastTime(symbol, tf)
	if hasLast {
		lastDir, _ := g.store.LastDirection(symbol, tf)
		elapsed := now.Sub(lastTime)

		if lastDir == draft.Decision && elapsed < freq.Cooldown() {
			fc.IsCooling = true
			fc.AddedTags = append(fc.AddedTags, signal.TagFrequencyCooling)
			fc.BlockReason = fmt.Sprintf("same-direction cooldown, %s remaining", (freq.Cooldown() - elapsed).Round(time.Second))
		}
		if elapsed < freq.MinInterval() {
			fc.MinIntervalViolated = true
			fc.AddedTags = append(fc.AddedTags, signal.TagMinIntervalViolated)
			if fc.BlockReason == "" {
				fc.BlockReason = fmt.Sprintf("minimum signal interval, %s remaining", (freq.MinInterval() - elapsed).Round(time.Second))
			}
		}
		if lastDir.IsActionable() && lastDir != draft.Decision {
			fc.AddedTags = append(fc.AddedTags, signal.TagDirectionFlip)
		}
	}

	fc.IsBlocked = fc.IsCooling || fc.MinIntervalViolated
	final.Executable = draft.ExecutionPermission != signal.PermissionDeny && !fc.IsBlocked

	if final.Executable {
		g.store.Save(symbol, tf, now, draft.Decision)
		if fc.HasAddedTag(signal.TagDirectionFlip) {
			g.logger.Info("direction flip",
				"symbol", symbol,
				"timeframe", string(tf),
				"direction", string(draft.Decision))
		}
	} else if fc.IsBlocked {
		g.logger.Debug("signal blocked by frequency control",
			"symbol", symbol,
			"timeframe", string(tf),
			"direction", string(draft.Decision),
			"reason", fc.BlockReason)
	}
	return final
}

func (g *Gate) stripe(symbol string, tf signal.Timeframe) uint32 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	h.Write([]byte{'|'})
	h.Write([]byte(tf))
	return h.Sum32() % gateStripes
}
