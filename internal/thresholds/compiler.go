package thresholds

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"futures-advisor/internal/logging"
	"futures-advisor/internal/signal"
)

// deprecatedKeys maps retired key names to their replacements. Migration
// applies at any nesting depth, but never overwrites a new-style key that
// is already present.
var deprecatedKeys = map[string]string{
	"buy_sell_imbalance":     "taker_imbalance",
	"min_buy_sell_imbalance": "min_taker_imbalance",
}

// requiredSections must all be present at the document root.
var requiredSections = []string{
	"market_regime",
	"risk_exposure",
	"trade_quality",
	"direction",
	"confidence_scoring",
	"dual_timeframe",
}

// migrationWarned ensures each distinct deprecated key warns at most once
// per process lifetime.
var migrationWarned sync.Map

// ConfigError reports every problem found during compilation. Compilation
// is all-or-nothing: a non-nil ConfigError means no Thresholds were built.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("threshold config invalid: %s", strings.Join(e.Problems, "; "))
}

// Compile loads, migrates, validates and hashes the threshold document at
// path. On any failure it returns an error and no partial result.
func Compile(path string) (*Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read threshold file: %w", err)
	}
	t, err := CompileBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", path, err)
	}
	return t, nil
}

// CompileBytes compiles a threshold document held in memory.
func CompileBytes(data []byte) (*Thresholds, error) {
	logger := logging.WithComponent("thresholds")

	var source map[string]interface{}
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if len(source) == 0 {
		return nil, &ConfigError{Problems: []string{"document is empty"}}
	}

	// Deprecated keys are rewritten before anything reads the tree.
	migrateKeys(source, logger)

	var problems []string
	for _, section := range requiredSections {
		if _, ok := source[section]; !ok {
			problems = append(problems, fmt.Sprintf("required section %q is missing", section))
		}
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}

	canonical, err := canonicalYAML(source)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize config: %w", err)
	}

	var compiled Thresholds
	if err := yaml.Unmarshal(canonical, &compiled); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	warnUnknownKeys(source, &compiled, logger)

	if problems := validate(&compiled); len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}

	sum := sha256.Sum256(canonical)
	compiled.version = hex.EncodeToString(sum[:])
	return &compiled, nil
}

// CompileDefault compiles the built-in default set so that even a
// file-less startup carries a real version hash.
func CompileDefault() (*Thresholds, error) {
	data, err := DefaultYAML()
	if err != nil {
		return nil, err
	}
	return CompileBytes(data)
}

// DefaultYAML renders the built-in default set as a YAML document, used to
// seed a fresh configuration file.
func DefaultYAML() ([]byte, error) {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	return data, nil
}

// migrateKeys walks the document tree and renames deprecated keys in
// place. Each distinct deprecated key logs one warning per process.
func migrateKeys(node map[string]interface{}, logger *logging.Logger) {
	for key, value := range node {
		if child, ok := value.(map[string]interface{}); ok {
			migrateKeys(child, logger)
		}
		newKey, deprecated := deprecatedKeys[key]
		if !deprecated {
			continue
		}
		if _, exists := node[newKey]; !exists {
			node[newKey] = node[key]
		}
		delete(node, key)
		if _, warned := migrationWarned.LoadOrStore(key, true); !warned {
			logger.Warn("deprecated threshold key migrated",
				"deprecated", key,
				"replacement", newKey)
		}
	}
}

// canonicalYAML re-encodes the migrated tree; yaml.v3 emits map keys in
// sorted order, which makes the encoding stable across processes.
func canonicalYAML(node map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(node)
}

// warnUnknownKeys compares the source key paths against the key paths the
// typed schema actually consumes and logs each extra path once.
func warnUnknownKeys(source map[string]interface{}, compiled *Thresholds, logger *logging.Logger) {
	encoded, err := yaml.Marshal(compiled)
	if err != nil {
		return
	}
	var known map[string]interface{}
	if err := yaml.Unmarshal(encoded, &known); err != nil {
		return
	}

	knownPaths := make(map[string]bool)
	collectPaths(known, "", knownPaths)

	sourcePaths := make(map[string]bool)
	collectPaths(source, "", sourcePaths)

	var unknown []string
	for path := range sourcePaths {
		if !knownPaths[path] {
			unknown = append(unknown, path)
		}
	}
	sort.Strings(unknown)
	for _, path := range unknown {
		logger.Warn("unknown threshold key ignored", "key", path)
	}
}

func collectPaths(node map[string]interface{}, prefix string, out map[string]bool) {
	for key, value := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		out[path] = true
		if child, ok := value.(map[string]interface{}); ok {
			collectPaths(child, path, out)
		}
	}
}

// validate checks every field range. Messages name the offending key and
// its value so a bad file can be fixed from the log alone.
func validate(t *Thresholds) []string {
	var problems []string
	bad := func(key string, value interface{}, msg string) {
		problems = append(problems, fmt.Sprintf("%s=%v: %s", key, value, msg))
	}
	inUnit := func(key string, v float64) {
		if v <= 0 || v > 1 {
			bad(key, v, "must be in (0, 1]")
		}
	}

	// market_regime
	mr := t.MarketRegime
	inUnit("market_regime.extreme_price_change_1h", mr.ExtremePriceChange1h)
	inUnit("market_regime.trend_price_change_6h", mr.TrendPriceChange6h)
	inUnit("market_regime.trend_price_change_1h", mr.TrendPriceChange1h)
	inUnit("market_regime.trend_price_change_15m", mr.TrendPriceChange15m)
	if mr.ExtremePriceChange1h > 0 && mr.TrendPriceChange1h > 0 &&
		mr.ExtremePriceChange1h <= mr.TrendPriceChange1h {
		bad("market_regime.extreme_price_change_1h", mr.ExtremePriceChange1h,
			"must exceed trend_price_change_1h")
	}

	// risk_exposure
	re := t.RiskExposure
	inUnit("risk_exposure.liquidation.price_change", re.Liquidation.PriceChange)
	inUnit("risk_exposure.liquidation.oi_drop", re.Liquidation.OIDrop)
	if v := re.Crowding.FundingAbs; v <= 0 || v > 0.05 {
		bad("risk_exposure.crowding.funding_abs", v, "must be in (0, 0.05]")
	}
	if v := re.Crowding.OIGrowth; v <= 0 || v > 2 {
		bad("risk_exposure.crowding.oi_growth", v, "must be in (0, 2]")
	}
	if v := re.ExtremeVolume.VolumeRatio; v <= 1 {
		bad("risk_exposure.extreme_volume.volume_ratio", v, "must be greater than 1")
	}

	// trade_quality
	tq := t.TradeQuality
	inUnit("trade_quality.absorption.imbalance", tq.Absorption.Imbalance)
	if v := tq.Absorption.VolumeRatio; v <= 0 || v > 10 {
		bad("trade_quality.absorption.volume_ratio", v, "must be in (0, 10]")
	}
	if v := tq.Noise.FundingVolatility; v <= 0 || v > 0.05 {
		bad("trade_quality.noise.funding_volatility", v, "must be in (0, 0.05]")
	}
	if v := tq.Noise.FundingAbs; v <= 0 || v > 0.05 {
		bad("trade_quality.noise.funding_abs", v, "must be in (0, 0.05]")
	}
	inUnit("trade_quality.rotation.imbalance", tq.Rotation.Imbalance)
	inUnit("trade_quality.rotation.price_change", tq.Rotation.PriceChange)
	inUnit("trade_quality.range_weak.imbalance", tq.RangeWeak.Imbalance)
	inUnit("trade_quality.range_weak.price_change", tq.RangeWeak.PriceChange)

	// direction
	dir := t.Direction
	inUnit("direction.trend.long_imbalance", dir.Trend.LongImbalance)
	if v := dir.Trend.ShortImbalance; v >= 0 || v < -1 {
		bad("direction.trend.short_imbalance", v, "must be in [-1, 0)")
	}
	if v := dir.Trend.OIGrowth; v <= 0 || v > 2 {
		bad("direction.trend.oi_growth", v, "must be in (0, 2]")
	}
	inUnit("direction.trend.price_change", dir.Trend.PriceChange)
	inUnit("direction.range.min_taker_imbalance", dir.Range.MinTakerImbalance)
	inUnit("direction.range.min_price_change_15m", dir.Range.MinPriceChange15m)
	if v := dir.Range.MinVolumeRatio15m; v <= 0 {
		bad("direction.range.min_volume_ratio_15m", v, "must be positive")
	}
	inUnit("direction.range.min_price_change_5m", dir.Range.MinPriceChange5m)
	if v := dir.Funding.ExtremeAbs; v <= 0 || v > 0.05 {
		bad("direction.funding.extreme_abs", v, "must be in (0, 0.05]")
	}

	// confidence_scoring
	cs := t.ConfidenceScoring
	if v := cs.StrengthMultiplier; v <= 1 {
		bad("confidence_scoring.strength_multiplier", v, "must be greater than 1")
	}
	if !cs.Caps.UncertainQuality.IsValid() {
		bad("confidence_scoring.caps.uncertain_quality", cs.Caps.UncertainQuality,
			"must name a confidence level")
	}
	if !cs.Caps.UncertainQualityLegacy.IsValid() {
		bad("confidence_scoring.caps.uncertain_quality_legacy", cs.Caps.UncertainQualityLegacy,
			"must name a confidence level")
	}
	for tag, level := range cs.Caps.TagCaps {
		if !tag.IsValid() {
			bad("confidence_scoring.caps.tag_caps."+string(tag), level,
				"key is not a registered reason tag")
		}
		if !level.IsValid() {
			bad("confidence_scoring.caps.tag_caps."+string(tag), level,
				"must name a confidence level")
		}
	}

	// dual_timeframe
	dt := t.DualTimeframe
	if k := dt.ShortTerm.RequiredSignals; k < 1 || k > signal.ShortTermSignalCount {
		bad("dual_timeframe.short_term.required_signals", k,
			fmt.Sprintf("must be in [1, %d]", signal.ShortTermSignalCount))
	}
	if !dt.ConflictResolution.IsValid() {
		bad("dual_timeframe.conflict_resolution", dt.ConflictResolution,
			"must be one of no_trade, follow_medium_term, follow_short_term, follow_higher_confidence")
	}
	for _, fc := range []struct {
		name string
		h    HorizonFrequency
	}{
		{"dual_timeframe.frequency_control.short_term", dt.FrequencyControl.ShortTerm},
		{"dual_timeframe.frequency_control.medium_term", dt.FrequencyControl.MediumTerm},
	} {
		if fc.h.CooldownMinutes <= 0 {
			bad(fc.name+".cooldown_minutes", fc.h.CooldownMinutes, "must be positive")
		}
		if fc.h.MinIntervalMinutes <= 0 {
			bad(fc.name+".min_interval_minutes", fc.h.MinIntervalMinutes, "must be positive")
		}
		if fc.h.MinIntervalMinutes > 0 && fc.h.CooldownMinutes > 0 &&
			fc.h.MinIntervalMinutes > fc.h.CooldownMinutes {
			bad(fc.name+".min_interval_minutes", fc.h.MinIntervalMinutes,
				"must not exceed cooldown_minutes")
		}
	}

	sort.Strings(problems)
	return problems
}
