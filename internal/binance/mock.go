package binance

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"
)

// MockClient serves deterministic synthetic market data. Used in MOCK_MODE
// when the exchange is unreachable, and by fetcher tests.
type MockClient struct {
	mu        sync.Mutex
	basePrice map[string]float64
	tick      int64

	// FailNext makes the next call of every method return an error. Used by
	// circuit breaker tests.
	FailNext bool
}

// NewMockClient creates a mock market-data client
func NewMockClient() *MockClient {
	return &MockClient{
		basePrice: map[string]float64{
			"BTCUSDT": 50000,
			"ETHUSDT": 2500,
		},
	}
}

func (m *MockClient) failing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return true
	}
	return false
}

func (m *MockClient) price(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	base, ok := m.basePrice[symbol]
	if !ok {
		base = 100
		m.basePrice[symbol] = base
	}
	m.tick++
	// Small deterministic oscillation so lookback windows see movement.
	return base * (1 + 0.001*math.Sin(float64(m.tick)/10))
}

func (m *MockClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	if m.failing() {
		return nil, fmt.Errorf("mock: klines unavailable")
	}
	price := m.price(symbol)
	now := time.Now()
	step := intervalDuration(interval)

	klines := make([]Kline, limit)
	for i := 0; i < limit; i++ {
		offset := time.Duration(limit-1-i) * step
		p := price * (1 + 0.0005*math.Sin(float64(i)/5))
		klines[i] = Kline{
			OpenTime:  now.Add(-offset - step).UnixMilli(),
			Open:      p * 0.999,
			High:      p * 1.001,
			Low:       p * 0.998,
			Close:     p,
			Volume:    1000 + float64(i),
			CloseTime: now.Add(-offset).UnixMilli(),
			Trades:    100,
		}
	}
	return klines, nil
}

func (m *MockClient) GetPremiumIndex(symbol string) (*PremiumIndex, error) {
	if m.failing() {
		return nil, fmt.Errorf("mock: premium index unavailable")
	}
	price := m.price(symbol)
	return &PremiumIndex{
		Symbol:          symbol,
		MarkPrice:       strconv.FormatFloat(price, 'f', 2, 64),
		IndexPrice:      strconv.FormatFloat(price, 'f', 2, 64),
		LastFundingRate: "0.00010000",
		NextFundingTime: time.Now().Add(4 * time.Hour).UnixMilli(),
		Time:            time.Now().UnixMilli(),
	}, nil
}

func (m *MockClient) GetFundingRateHistory(symbol string, limit int) ([]FundingRate, error) {
	if m.failing() {
		return nil, fmt.Errorf("mock: funding history unavailable")
	}
	now := time.Now()
	rates := make([]FundingRate, limit)
	for i := 0; i < limit; i++ {
		rates[i] = FundingRate{
			Symbol:      symbol,
			FundingRate: "0.00010000",
			FundingTime: now.Add(-time.Duration(limit-1-i) * 8 * time.Hour).UnixMilli(),
		}
	}
	return rates, nil
}

func (m *MockClient) GetOpenInterestHist(symbol, period string, limit int) ([]OpenInterestHist, error) {
	if m.failing() {
		return nil, fmt.Errorf("mock: open interest unavailable")
	}
	now := time.Now()
	step := intervalDuration(period)
	hist := make([]OpenInterestHist, limit)
	for i := 0; i < limit; i++ {
		oi := 80000 + 100*float64(i)
		hist[i] = OpenInterestHist{
			Symbol:               symbol,
			SumOpenInterest:      strconv.FormatFloat(oi, 'f', 3, 64),
			SumOpenInterestValue: strconv.FormatFloat(oi*50, 'f', 2, 64),
			Timestamp:            now.Add(-time.Duration(limit-1-i) * step).UnixMilli(),
		}
	}
	return hist, nil
}

func (m *MockClient) GetTakerLongShortRatio(symbol, period string, limit int) ([]TakerLongShortRatio, error) {
	if m.failing() {
		return nil, fmt.Errorf("mock: taker ratio unavailable")
	}
	now := time.Now()
	step := intervalDuration(period)
	ratios := make([]TakerLongShortRatio, limit)
	for i := 0; i < limit; i++ {
		ratios[i] = TakerLongShortRatio{
			BuySellRatio: "1.1000",
			BuyVol:       "5500.000",
			SellVol:      "5000.000",
			Timestamp:    now.Add(-time.Duration(limit-1-i) * step).UnixMilli(),
		}
	}
	return ratios, nil
}

func (m *MockClient) Get24hrTicker(symbol string) (*Ticker24h, error) {
	if m.failing() {
		return nil, fmt.Errorf("mock: ticker unavailable")
	}
	price := m.price(symbol)
	return &Ticker24h{
		Symbol:             symbol,
		LastPrice:          strconv.FormatFloat(price, 'f', 2, 64),
		PriceChangePercent: "1.25",
		Volume:             "120000.00",
		QuoteVolume:        strconv.FormatFloat(price*120000, 'f', 2, 64),
		Count:              250000,
	}, nil
}

func (m *MockClient) GetExchangeSymbols() ([]string, error) {
	if m.failing() {
		return nil, fmt.Errorf("mock: exchange info unavailable")
	}
	return []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, nil
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}
