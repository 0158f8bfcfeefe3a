package features

import (
	"fmt"
	"time"
)

// Canonical numeric field names of a raw snapshot after normalization.
// Change fields are decimals (0.05 = 5%); imbalances lie in [-1, 1].
const (
	FieldPrice          = "price"
	FieldPriceChange5m  = "price_change_5m"
	FieldPriceChange15m = "price_change_15m"
	FieldPriceChange1h  = "price_change_1h"
	FieldPriceChange6h  = "price_change_6h"

	FieldOpenInterest = "open_interest"
	FieldOIChange5m   = "oi_change_5m"
	FieldOIChange15m  = "oi_change_15m"
	FieldOIChange1h   = "oi_change_1h"
	FieldOIChange6h   = "oi_change_6h"

	FieldTakerImbalance5m  = "taker_imbalance_5m"
	FieldTakerImbalance15m = "taker_imbalance_15m"
	FieldTakerImbalance1h  = "taker_imbalance_1h"

	FieldVolume1h       = "volume_1h"
	FieldVolume24h      = "volume_24h"
	FieldVolumeRatio5m  = "volume_ratio_5m"
	FieldVolumeRatio15m = "volume_ratio_15m"

	FieldFundingRate     = "funding_rate"
	FieldFundingRatePrev = "funding_rate_prev"
)

// CoreFields must be present on every snapshot; their absence invalidates
// the whole tick.
var CoreFields = []string{FieldPrice, FieldVolume24h, FieldFundingRate}

// ParseTimestamp extracts the snapshot timestamp from a raw map. Accepted
// encodings: time.Time, RFC3339 string, or a unix epoch number in seconds
// or milliseconds (values above 1e12 are treated as milliseconds).
func ParseTimestamp(raw map[string]interface{}) (time.Time, error) {
	v, ok := raw["timestamp"]
	if !ok {
		return time.Time{}, fmt.Errorf("snapshot has no timestamp")
	}
	switch ts := v.(type) {
	case time.Time:
		return ts, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", ts, err)
		}
		return parsed, nil
	case int64:
		return fromEpoch(float64(ts)), nil
	case int:
		return fromEpoch(float64(ts)), nil
	case float64:
		return fromEpoch(ts), nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

func fromEpoch(v float64) time.Time {
	if v > 1e12 {
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Unix(int64(v), 0).UTC()
}
