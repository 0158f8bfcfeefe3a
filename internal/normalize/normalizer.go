package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"sync"

	"futures-advisor/internal/logging"
)

// Format describes the numeric scale of percentage-bearing fields in a raw
// snapshot, as declared by the producer under _metadata.percentage_format.
type Format string

const (
	FormatPercentPoint Format = "percent_point" // 5.0 means 5%
	FormatDecimal      Format = "decimal"       // 0.05 means 5%
	FormatMissing      Format = "missing"
)

// Policy controls what happens when a snapshot carries no format metadata.
type Policy string

const (
	// PolicyWarn assumes percent_point and logs one warning per symbol.
	PolicyWarn Policy = "WARN"
	// PolicyFailFast rejects the snapshot.
	PolicyFailFast Policy = "FAIL_FAST"
	// PolicyAssumePercentPoint assumes silently. Not recommended.
	PolicyAssumePercentPoint Policy = "ASSUME_PERCENT_POINT"
)

// ErrMissingFormat is returned under PolicyFailFast when a snapshot does not
// declare its percentage format.
var ErrMissingFormat = fmt.Errorf("snapshot missing _metadata.percentage_format")

// DefaultFamilies are the field-name patterns whose values are percentages
// and therefore subject to scale conversion.
var DefaultFamilies = []string{
	`^price_change_\w+$`,
	`^oi_change_\w+$`,
}

// maxAbsPriceChange flags converted price changes that are implausibly
// large; such values are recorded in the trace, not dropped.
const maxAbsPriceChange = 1.0

// Trace records exactly what the normalizer did to one snapshot. It is the
// only source of truth for scale diagnostics downstream.
type Trace struct {
	Symbol          string   `json:"symbol"`
	InputFormat     Format   `json:"input_format"`
	PolicyFired     Policy   `json:"policy_fired,omitempty"`
	ConvertedFields []string `json:"converted_fields"`
	SkippedFields   []string `json:"skipped_fields"`
	RangeViolations []string `json:"range_violations"`
}

// Normalizer converts percent-point snapshots to decimal scale on a
// field-family regex. Safe for concurrent use.
type Normalizer struct {
	families []*regexp.Regexp
	policy   Policy
	logger   *logging.Logger

	mu     sync.Mutex
	warned map[string]bool
}

// New compiles the default field families under the given policy.
func New(policy Policy) *Normalizer {
	n, err := NewWithFamilies(policy, DefaultFamilies)
	if err != nil {
		// DefaultFamilies are package constants; they always compile.
		panic(err)
	}
	return n
}

// NewWithFamilies compiles a custom set of field-family patterns.
func NewWithFamilies(policy Policy, families []string) (*Normalizer, error) {
	if policy == "" {
		policy = PolicyWarn
	}
	compiled := make([]*regexp.Regexp, 0, len(families))
	for _, f := range families {
		re, err := regexp.Compile(f)
		if err != nil {
			return nil, fmt.Errorf("invalid field family %q: %w", f, err)
		}
		compiled = append(compiled, re)
	}
	return &Normalizer{
		families: compiled,
		policy:   policy,
		logger:   logging.WithComponent("normalizer"),
		warned:   make(map[string]bool),
	}, nil
}

// Normalize converts the numeric fields of a raw snapshot to decimal scale.
// Non-numeric values and underscore-prefixed keys are ignored. The returned
// map contains only fields that were present; absence is never encoded as 0.
func (n *Normalizer) Normalize(symbol string, raw map[string]interface{}) (map[string]float64, *Trace, error) {
	trace := &Trace{
		Symbol:          symbol,
		ConvertedFields: []string{},
		SkippedFields:   []string{},
		RangeViolations: []string{},
	}

	format := extractFormat(raw)
	trace.InputFormat = format

	if format == FormatMissing {
		switch n.policy {
		case PolicyFailFast:
			trace.PolicyFired = PolicyFailFast
			return nil, trace, ErrMissingFormat
		case PolicyAssumePercentPoint:
			trace.PolicyFired = PolicyAssumePercentPoint
			format = FormatPercentPoint
		default:
			trace.PolicyFired = PolicyWarn
			n.warnOnce(symbol)
			format = FormatPercentPoint
		}
	}

	out := make(map[string]float64, len(raw))
	for key, value := range raw {
		if len(key) > 0 && key[0] == '_' {
			continue
		}
		v, ok := toFloat(value)
		if !ok {
			continue
		}

		if n.matchesFamily(key) {
			if format == FormatPercentPoint {
				v = v / 100.0
			}
			out[key] = v
			trace.ConvertedFields = append(trace.ConvertedFields, key)
			if isPriceChange(key) && math.Abs(v) > maxAbsPriceChange {
				trace.RangeViolations = append(trace.RangeViolations, key)
			}
			continue
		}

		out[key] = v
		trace.SkippedFields = append(trace.SkippedFields, key)
	}

	sort.Strings(trace.ConvertedFields)
	sort.Strings(trace.SkippedFields)
	sort.Strings(trace.RangeViolations)
	return out, trace, nil
}

// Policy returns the configured missing-metadata policy.
func (n *Normalizer) Policy() Policy {
	return n.policy
}

func (n *Normalizer) matchesFamily(key string) bool {
	for _, re := range n.families {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

func (n *Normalizer) warnOnce(symbol string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.warned[symbol] {
		return
	}
	n.warned[symbol] = true
	n.logger.Warn("snapshot missing percentage format, assuming percent_point",
		"symbol", symbol)
}

var priceChangeRe = regexp.MustCompile(`^price_change_\w+$`)

func isPriceChange(key string) bool {
	return priceChangeRe.MatchString(key)
}

func extractFormat(raw map[string]interface{}) Format {
	meta, ok := raw["_metadata"].(map[string]interface{})
	if !ok {
		return FormatMissing
	}
	f, ok := meta["percentage_format"].(string)
	if !ok {
		return FormatMissing
	}
	switch Format(f) {
	case FormatPercentPoint, FormatDecimal:
		return Format(f)
	}
	return FormatMissing
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
