package binance

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetKlinesParsesPositionalArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/klines" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %s", got)
		}
		w.Write([]byte(`[
			[1700000000000,"50000.1","50100.2","49900.3","50050.4","1234.5",1700000299999,"61741234.0",250,"600.1","30030000.0","0"],
			[1700000300000,"50050.4","50200.0","50000.0","50150.0","2000.0",1700000599999,"100300000.0",300,"900.0","45135000.0","0"]
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	klines, err := c.GetKlines("BTCUSDT", "5m", 2)
	if err != nil {
		t.Fatalf("GetKlines() error = %v", err)
	}
	if len(klines) != 2 {
		t.Fatalf("got %d klines, want 2", len(klines))
	}
	k := klines[0]
	if k.OpenTime != 1700000000000 {
		t.Errorf("open time = %d", k.OpenTime)
	}
	if k.Close != 50050.4 {
		t.Errorf("close = %v, want 50050.4", k.Close)
	}
	if k.Volume != 1234.5 {
		t.Errorf("volume = %v, want 1234.5", k.Volume)
	}
	if k.Trades != 250 {
		t.Errorf("trades = %d, want 250", k.Trades)
	}
}

func TestGetPremiumIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","markPrice":"2500.50","indexPrice":"2500.10","lastFundingRate":"0.00013000","nextFundingTime":1700020800000,"time":1700000000000}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	index, err := c.GetPremiumIndex("ETHUSDT")
	if err != nil {
		t.Fatalf("GetPremiumIndex() error = %v", err)
	}
	rate, err := index.FundingRateValue()
	if err != nil {
		t.Fatalf("FundingRateValue() error = %v", err)
	}
	if rate != 0.00013 {
		t.Errorf("funding rate = %v, want 0.00013", rate)
	}
	price, err := index.MarkPriceValue()
	if err != nil || price != 2500.50 {
		t.Errorf("mark price = %v (err %v), want 2500.50", price, err)
	}
}

func TestTakerImbalance(t *testing.T) {
	ratio := TakerLongShortRatio{BuyVol: "6000", SellVol: "4000"}
	imb, err := ratio.Imbalance()
	if err != nil {
		t.Fatalf("Imbalance() error = %v", err)
	}
	if imb != 0.2 {
		t.Errorf("imbalance = %v, want 0.2", imb)
	}

	zero := TakerLongShortRatio{BuyVol: "0", SellVol: "0"}
	if _, err := zero.Imbalance(); err == nil {
		t.Error("Imbalance() with zero volumes should error")
	}
}

func TestPublicGetRetriesOn500(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"50000","priceChangePercent":"1.0","volume":"1","quoteVolume":"50000","count":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	ticker, err := c.Get24hrTicker("BTCUSDT")
	if err != nil {
		t.Fatalf("Get24hrTicker() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
	if price, _ := ticker.LastPriceValue(); price != 50000 {
		t.Errorf("price = %v", price)
	}
}

func TestPublicGetGivesUpOn400(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if _, err := c.Get24hrTicker("NOPE"); err == nil {
		t.Fatal("expected error for invalid symbol")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, client errors must not retry", calls)
	}
}

func TestGetExchangeSymbolsFiltersPerpetualUSDT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDT"},
			{"symbol":"BTCUSDT_231229","status":"TRADING","contractType":"CURRENT_QUARTER","quoteAsset":"USDT"},
			{"symbol":"DELISTED","status":"CLOSE","contractType":"PERPETUAL","quoteAsset":"USDT"},
			{"symbol":"BTCBUSD","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"BUSD"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	symbols, err := c.GetExchangeSymbols()
	if err != nil {
		t.Fatalf("GetExchangeSymbols() error = %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "BTCUSDT" {
		t.Errorf("symbols = %v, want [BTCUSDT]", symbols)
	}
}

func TestRateLimiterUsedWeightHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MBX-USED-WEIGHT-1M", "1800")
		w.Write([]byte(`{"symbol":"BTCUSDT","markPrice":"50000","indexPrice":"50000","lastFundingRate":"0.0001","nextFundingTime":0,"time":0}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if _, err := c.GetPremiumIndex("BTCUSDT"); err != nil {
		t.Fatalf("GetPremiumIndex() error = %v", err)
	}
	status := c.RateLimiterStatus()
	if status["current_weight"].(int) < 1800 {
		t.Errorf("current_weight = %v, header should raise it to 1800", status["current_weight"])
	}
}

func TestParseBanUntilFromError(t *testing.T) {
	body := `{"code":-1003,"msg":"Way too many requests; IP banned until 1700000000000."}`
	banUntil := ParseBanUntilFromError(body)
	if banUntil.IsZero() {
		t.Fatal("expected ban timestamp")
	}
	if banUntil.UnixMilli() != 1700000000000 {
		t.Errorf("ban until = %d", banUntil.UnixMilli())
	}

	if !ParseBanUntilFromError(`{"code":-1121}`).IsZero() {
		t.Error("expected zero time for body without ban timestamp")
	}
}

func TestRateLimiterCircuitBlocks(t *testing.T) {
	r := NewRateLimiter()
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := base
	// Fake clock advances a little on every read so WaitForSlot's deadline
	// loop terminates without real sleeping.
	r.now = func() time.Time {
		now = now.Add(5 * time.Millisecond)
		return now
	}

	r.RecordRateLimitError(base.Add(time.Hour))
	if r.WaitForSlot("/fapi/v1/klines", 10*time.Millisecond) {
		t.Error("WaitForSlot succeeded while banned")
	}

	now = base.Add(2 * time.Hour)
	if !r.WaitForSlot("/fapi/v1/klines", 10*time.Millisecond) {
		t.Error("WaitForSlot failed after ban expiry")
	}
}

func TestMockClientShapes(t *testing.T) {
	m := NewMockClient()

	klines, err := m.GetKlines("BTCUSDT", "5m", 10)
	if err != nil || len(klines) != 10 {
		t.Fatalf("GetKlines() = %d klines, err %v", len(klines), err)
	}
	for i := 1; i < len(klines); i++ {
		if klines[i].OpenTime <= klines[i-1].OpenTime {
			t.Fatal("mock klines not time-ordered")
		}
	}

	ratio, err := m.GetTakerLongShortRatio("BTCUSDT", "1h", 2)
	if err != nil || len(ratio) != 2 {
		t.Fatalf("GetTakerLongShortRatio() err %v", err)
	}
	imb, err := ratio[0].Imbalance()
	if err != nil {
		t.Fatal(err)
	}
	if imb <= 0 {
		t.Errorf("mock imbalance = %v, want buy-side", imb)
	}

	m.FailNext = true
	if _, err := m.Get24hrTicker("BTCUSDT"); err == nil {
		t.Error("FailNext did not fail the call")
	}
	if _, err := m.Get24hrTicker("BTCUSDT"); err != nil {
		t.Errorf("second call failed: %v", err)
	}
}
