package app

import (
	"testing"
	"time"

	"smc-trader/internal/config"
	"smc-trader/internal/exchange"
	"smc-trader/internal/position"
	"smc-trader/internal/stream"
)

func candleUpdate(ts time.Time, close float64, receivedAt time.Time) stream.Update {
	return stream.Update{
		Coin:       "BTC",
		Interval:   "1m",
		Candle:     exchange.Candle{Timestamp: ts, Close: close},
		ReceivedAt: receivedAt,
	}
}

func TestStreamStateObserve(t *testing.T) {
	var s streamState
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	if s.observe(candleUpdate(base, 100, now)) {
		t.Errorf("首根K线不应视为收盘")
	}
	if s.observe(candleUpdate(base, 101, now)) {
		t.Errorf("同一根K线的更新不应视为收盘")
	}
	if !s.observe(candleUpdate(base.Add(time.Minute), 102, now)) {
		t.Errorf("新K线开始应视为上一根收盘")
	}
	if s.observe(candleUpdate(base, 99, now)) {
		t.Errorf("乱序的旧K线不应触发收盘")
	}
	if got := s.latest(now, streamFreshness); got != 102 {
		t.Errorf("latest = %f, want 102", got)
	}
}

func TestStreamStateLatestExpires(t *testing.T) {
	var s streamState
	now := time.Now().UTC()

	if got := s.latest(now, streamFreshness); got != 0 {
		t.Errorf("未收到推送时 latest = %f, want 0", got)
	}

	s.observe(candleUpdate(now.Add(-3*time.Minute), 50100, now.Add(-3*time.Minute)))
	if got := s.latest(now, streamFreshness); got != 0 {
		t.Errorf("过期推送 latest = %f, want 0", got)
	}
}

func TestMarkPricePrefersFreshStream(t *testing.T) {
	o := &orchestrator{}
	snapshot := exchange.MarketSnapshot{
		Candles1H: []exchange.Candle{{Close: 50000}},
	}

	if got := o.markPrice(snapshot); got != 50000 {
		t.Errorf("无推送时 price = %f, want 50000", got)
	}

	now := time.Now().UTC()
	o.ObserveUpdate(candleUpdate(now.Truncate(time.Minute), 50150, now))
	if got := o.markPrice(snapshot); got != 50150 {
		t.Errorf("有新鲜推送时 price = %f, want 50150", got)
	}
}

func TestLatestPrice(t *testing.T) {
	snapshot := exchange.MarketSnapshot{
		Candles1H: []exchange.Candle{
			{Close: 49000},
			{Close: 50000},
		},
	}
	if got := latestPrice(snapshot); got != 50000 {
		t.Errorf("price = %f, want 50000", got)
	}
}

func TestLatestPriceFallsBackToOrderBook(t *testing.T) {
	snapshot := exchange.MarketSnapshot{
		OrderBook: exchange.OrderBookSnapshot{
			Bids: []exchange.OrderBookLevel{{Price: 49990, Amount: 1}},
			Asks: []exchange.OrderBookLevel{{Price: 50010, Amount: 1}},
		},
	}
	if got := latestPrice(snapshot); got != 50000 {
		t.Errorf("mid price = %f, want 50000", got)
	}

	if got := latestPrice(exchange.MarketSnapshot{}); got != 0 {
		t.Errorf("empty snapshot price = %f, want 0", got)
	}
}

func TestExposureFromSummary(t *testing.T) {
	long := position.Summary{Side: "LONG", SizePercent: 15}
	if got := exposureFromSummary(long); got != 0.15 {
		t.Errorf("long exposure = %f, want 0.15", got)
	}

	short := position.Summary{Side: "SHORT", SizePercent: 10}
	if got := exposureFromSummary(short); got != -0.10 {
		t.Errorf("short exposure = %f, want -0.10", got)
	}

	if got := exposureFromSummary(position.EmptySummary()); got != 0 {
		t.Errorf("flat exposure = %f, want 0", got)
	}
}

func TestAssetKeyFromSymbol(t *testing.T) {
	cases := map[string]string{
		"BTC/USDC:USDC": "BTC",
		"ETH-PERP":      "ETH",
		"SOL":           "SOL",
	}
	for symbol, want := range cases {
		if got := assetKeyFromSymbol(symbol); got != want {
			t.Errorf("assetKeyFromSymbol(%s) = %s, want %s", symbol, got, want)
		}
	}
}

func TestSmcParamsOverrides(t *testing.T) {
	params := smcParams(config.SMCConfig{Lookback: 30, VolumeThreshold: 2})
	if params.Lookback != 30 {
		t.Errorf("lookback = %d, want 30", params.Lookback)
	}
	if params.VolumeThreshold != 2 {
		t.Errorf("volume threshold = %f, want 2", params.VolumeThreshold)
	}
	// 未覆盖的参数保留默认值。
	if params.GapThreshold != 0.001 {
		t.Errorf("gap threshold = %f, want 0.001", params.GapThreshold)
	}
}
