package fetcher

import (
	"fmt"
	"strconv"
	"time"

	"futures-advisor/internal/binance"
)

// Lookback depths over 5m bars. The 6h change needs 72 closed bars plus the
// bar being compared against.
const (
	bars5m  = 1
	bars15m = 3
	bars1h  = 12
	bars6h  = 72

	klineLimit = bars6h + 1
)

// buildSnapshot assembles one raw advisory snapshot for a symbol from the
// public market-data endpoints. Change fields are percent points; the
// snapshot declares that under _metadata so the normalizer converts them.
// Optional series that cannot be fetched are omitted, never zeroed; only
// the core fields (price, 24h volume, funding rate) are mandatory.
func (f *Fetcher) buildSnapshot(symbol string) (map[string]interface{}, error) {
	ticker, err := f.client.Get24hrTicker(symbol)
	if err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}
	price, err := ticker.LastPriceValue()
	if err != nil {
		return nil, fmt.Errorf("ticker price: %w", err)
	}
	volume24h, err := ticker.VolumeValue()
	if err != nil {
		return nil, fmt.Errorf("ticker volume: %w", err)
	}

	premium, err := f.client.GetPremiumIndex(symbol)
	if err != nil {
		return nil, fmt.Errorf("premium index: %w", err)
	}
	fundingRate, err := premium.FundingRateValue()
	if err != nil {
		return nil, fmt.Errorf("funding rate: %w", err)
	}

	raw := map[string]interface{}{
		"price":        price,
		"volume_24h":   volume24h,
		"funding_rate": fundingRate,
		"timestamp":    time.Now().UTC(),
		"_metadata": map[string]interface{}{
			"percentage_format": "percent_point",
		},
	}

	// Previous settled funding rate, for the funding volatility check.
	if rates, err := f.client.GetFundingRateHistory(symbol, 2); err != nil {
		f.logger.Debug("funding history unavailable", "symbol", symbol, "error", err.Error())
	} else if len(rates) > 0 {
		if prev, err := rates[len(rates)-1].Value(); err == nil {
			raw["funding_rate_prev"] = prev
		}
	}

	if klines, err := f.client.GetKlines(symbol, "5m", klineLimit); err != nil {
		f.logger.Debug("klines unavailable", "symbol", symbol, "error", err.Error())
	} else {
		addPriceFields(raw, klines)
	}

	if hist, err := f.client.GetOpenInterestHist(symbol, "5m", klineLimit); err != nil {
		f.logger.Debug("open interest unavailable", "symbol", symbol, "error", err.Error())
	} else {
		addOpenInterestFields(raw, hist)
	}

	if ratios, err := f.client.GetTakerLongShortRatio(symbol, "5m", bars1h); err != nil {
		f.logger.Debug("taker ratio unavailable", "symbol", symbol, "error", err.Error())
	} else {
		addTakerFields(raw, ratios)
	}

	return raw, nil
}

// addPriceFields derives percent-point price changes and volume ratios from
// a 5m kline series, newest last.
func addPriceFields(raw map[string]interface{}, klines []binance.Kline) {
	n := len(klines)
	if n < 2 {
		return
	}
	last := klines[n-1].Close
	if last <= 0 {
		return
	}

	windows := []struct {
		field string
		bars  int
	}{
		{"price_change_5m", bars5m},
		{"price_change_15m", bars15m},
		{"price_change_1h", bars1h},
		{"price_change_6h", bars6h},
	}
	for _, w := range windows {
		if n <= w.bars {
			continue
		}
		ref := klines[n-1-w.bars].Close
		if ref <= 0 {
			continue
		}
		raw[w.field] = (last - ref) / ref * 100
	}

	// Rolling 1h volume and short-window activity ratios against the
	// series average.
	if n > bars1h {
		var vol1h float64
		for _, k := range klines[n-bars1h:] {
			vol1h += k.Volume
		}
		raw["volume_1h"] = vol1h
	}

	var total float64
	for _, k := range klines {
		total += k.Volume
	}
	avg := total / float64(n)
	if avg > 0 {
		raw["volume_ratio_5m"] = klines[n-1].Volume / avg
		if n >= bars15m {
			var recent float64
			for _, k := range klines[n-bars15m:] {
				recent += k.Volume
			}
			raw["volume_ratio_15m"] = recent / (avg * bars15m)
		}
	}
}

// addOpenInterestFields derives percent-point open interest changes from
// the 5m open interest history, newest last.
func addOpenInterestFields(raw map[string]interface{}, hist []binance.OpenInterestHist) {
	n := len(hist)
	if n < 2 {
		return
	}
	last, err := hist[n-1].Value()
	if err != nil || last <= 0 {
		return
	}
	raw["open_interest"] = last

	windows := []struct {
		field string
		bars  int
	}{
		{"oi_change_5m", bars5m},
		{"oi_change_15m", bars15m},
		{"oi_change_1h", bars1h},
		{"oi_change_6h", bars6h},
	}
	for _, w := range windows {
		if n <= w.bars {
			continue
		}
		ref, err := hist[n-1-w.bars].Value()
		if err != nil || ref <= 0 {
			continue
		}
		raw[w.field] = (last - ref) / ref * 100
	}
}

// addTakerFields derives taker imbalances from the 5m taker volume series,
// newest last. The 15m and 1h values aggregate the underlying volumes
// instead of averaging ratios, so thin bars do not dominate.
func addTakerFields(raw map[string]interface{}, ratios []binance.TakerLongShortRatio) {
	n := len(ratios)
	if n == 0 {
		return
	}

	if imb, err := ratios[n-1].Imbalance(); err == nil {
		raw["taker_imbalance_5m"] = imb
	}
	if n >= bars15m {
		if imb, ok := aggregateImbalance(ratios[n-bars15m:]); ok {
			raw["taker_imbalance_15m"] = imb
		}
	}
	if n >= bars1h {
		if imb, ok := aggregateImbalance(ratios[n-bars1h:]); ok {
			raw["taker_imbalance_1h"] = imb
		}
	}
}

func aggregateImbalance(ratios []binance.TakerLongShortRatio) (float64, bool) {
	var buy, sell float64
	for i := range ratios {
		b, errB := parseVol(ratios[i].BuyVol)
		s, errS := parseVol(ratios[i].SellVol)
		if errB != nil || errS != nil {
			return 0, false
		}
		buy += b
		sell += s
	}
	total := buy + sell
	if total == 0 {
		return 0, false
	}
	return (buy - sell) / total, true
}

func parseVol(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
