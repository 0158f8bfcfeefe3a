package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kline represents a single candlestick
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
	Trades    int64
}

// UnmarshalJSON decodes the positional array format the exchange uses for
// klines: [openTime, open, high, low, close, volume, closeTime, ...].
func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 9 {
		return fmt.Errorf("kline array too short: %d elements", len(raw))
	}

	if err := json.Unmarshal(raw[0], &k.OpenTime); err != nil {
		return fmt.Errorf("kline open time: %w", err)
	}
	if err := json.Unmarshal(raw[6], &k.CloseTime); err != nil {
		return fmt.Errorf("kline close time: %w", err)
	}
	if err := json.Unmarshal(raw[8], &k.Trades); err != nil {
		return fmt.Errorf("kline trade count: %w", err)
	}

	fields := []struct {
		idx int
		dst *float64
	}{
		{1, &k.Open}, {2, &k.High}, {3, &k.Low}, {4, &k.Close}, {5, &k.Volume},
	}
	for _, f := range fields {
		var s string
		if err := json.Unmarshal(raw[f.idx], &s); err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		*f.dst = v
	}
	return nil
}

// PremiumIndex carries mark price and the current funding rate
type PremiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

// FundingRateValue parses the funding rate string
func (p *PremiumIndex) FundingRateValue() (float64, error) {
	return strconv.ParseFloat(p.LastFundingRate, 64)
}

// MarkPriceValue parses the mark price string
func (p *PremiumIndex) MarkPriceValue() (float64, error) {
	return strconv.ParseFloat(p.MarkPrice, 64)
}

// FundingRate is one entry of the historical funding series
type FundingRate struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"`
}

// Value parses the funding rate string
func (f *FundingRate) Value() (float64, error) {
	return strconv.ParseFloat(f.FundingRate, 64)
}

// OpenInterestHist is one entry of the open interest history series
type OpenInterestHist struct {
	Symbol               string `json:"symbol"`
	SumOpenInterest      string `json:"sumOpenInterest"`
	SumOpenInterestValue string `json:"sumOpenInterestValue"`
	Timestamp            int64  `json:"timestamp"`
}

// Value parses the open interest quantity
func (o *OpenInterestHist) Value() (float64, error) {
	return strconv.ParseFloat(o.SumOpenInterest, 64)
}

// TakerLongShortRatio is one entry of the taker buy/sell volume series
type TakerLongShortRatio struct {
	BuySellRatio string `json:"buySellRatio"`
	BuyVol       string `json:"buyVol"`
	SellVol      string `json:"sellVol"`
	Timestamp    int64  `json:"timestamp"`
}

// Imbalance converts the taker volumes into (buy-sell)/(buy+sell) in [-1, 1].
func (t *TakerLongShortRatio) Imbalance() (float64, error) {
	buy, err := strconv.ParseFloat(t.BuyVol, 64)
	if err != nil {
		return 0, fmt.Errorf("taker buy volume: %w", err)
	}
	sell, err := strconv.ParseFloat(t.SellVol, 64)
	if err != nil {
		return 0, fmt.Errorf("taker sell volume: %w", err)
	}
	total := buy + sell
	if total == 0 {
		return 0, fmt.Errorf("taker volumes are zero")
	}
	return (buy - sell) / total, nil
}

// Ticker24h is the rolling 24h statistics for one symbol
type Ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	Count              int64  `json:"count"`
}

// LastPriceValue parses the last price string
func (t *Ticker24h) LastPriceValue() (float64, error) {
	return strconv.ParseFloat(t.LastPrice, 64)
}

// VolumeValue parses the 24h base volume string
func (t *Ticker24h) VolumeValue() (float64, error) {
	return strconv.ParseFloat(t.Volume, 64)
}

// QuoteVolumeValue parses the 24h quote volume string
func (t *Ticker24h) QuoteVolumeValue() (float64, error) {
	return strconv.ParseFloat(t.QuoteVolume, 64)
}

// ExchangeSymbol is one tradable symbol from exchangeInfo
type ExchangeSymbol struct {
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	ContractType string `json:"contractType"`
	QuoteAsset   string `json:"quoteAsset"`
}

// ExchangeInfo is the subset of exchangeInfo the advisor needs
type ExchangeInfo struct {
	Symbols []ExchangeSymbol `json:"symbols"`
}
