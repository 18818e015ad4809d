package smc

import (
	"math"
	"testing"
	"time"

	"smc-trader/internal/exchange"
)

func makeCandle(o, h, l, c, v float64) exchange.Candle {
	return exchange.Candle{
		Timestamp: time.Unix(0, 0).UTC(),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
	}
}

func flatCandles(n int, price, volume float64) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	for i := range candles {
		candles[i] = makeCandle(price, price, price, price, volume)
	}
	return candles
}

func TestDetectFairValueGaps(t *testing.T) {
	p := DefaultParams()

	candles := []exchange.Candle{
		makeCandle(99, 100, 98, 99.5, 1),
		makeCandle(101.2, 102, 101, 101.8, 1), // low 101 > prev high 100
	}
	frame := Detect(candles, p)

	wantBull := (101.0 - 100.0) / 100.0
	if diff := math.Abs(frame.FVGBull[1] - wantBull); diff > 1e-12 {
		t.Errorf("bull FVG = %f, want %f", frame.FVGBull[1], wantBull)
	}
	if frame.FVGBear[1] != 0 {
		t.Errorf("unexpected bear FVG %f", frame.FVGBear[1])
	}

	candles = []exchange.Candle{
		makeCandle(101, 102, 100, 100.5, 1),
		makeCandle(98.5, 99, 98, 98.2, 1), // high 99 < prev low 100
	}
	frame = Detect(candles, p)

	wantBear := (100.0 - 99.0) / 100.0
	if diff := math.Abs(frame.FVGBear[1] - wantBear); diff > 1e-12 {
		t.Errorf("bear FVG = %f, want %f", frame.FVGBear[1], wantBear)
	}
}

func TestDetectFairValueGaps_FiltersSmallGaps(t *testing.T) {
	candles := []exchange.Candle{
		makeCandle(99, 100, 98, 99.5, 1),
		makeCandle(100.05, 101, 100.05, 100.8, 1), // gap 0.0005 < 0.001
	}
	frame := Detect(candles, DefaultParams())

	if frame.FVGBull[1] != 0 {
		t.Errorf("small gap should be filtered, got %f", frame.FVGBull[1])
	}
}

func TestDetectBreakOfStructure(t *testing.T) {
	p := Params{Lookback: 3, VolumeThreshold: 1.5, GapThreshold: 0.001, ReversalThreshold: 0.002}

	candles := flatCandles(3, 10, 1)
	candles = append(candles, makeCandle(10, 11, 10, 10.8, 1))
	frame := Detect(candles, p)

	if !frame.BOSBull[3] {
		t.Errorf("expected bullish BOS at index 3")
	}
	if frame.BOSBear[3] {
		t.Errorf("unexpected bearish BOS at index 3")
	}

	candles = flatCandles(3, 10, 1)
	candles = append(candles, makeCandle(10, 10, 9, 9.2, 1))
	frame = Detect(candles, p)

	if !frame.BOSBear[3] {
		t.Errorf("expected bearish BOS at index 3")
	}
}

func TestDetectLiquiditySweeps(t *testing.T) {
	p := Params{Lookback: 3, VolumeThreshold: 1.5, GapThreshold: 0.001, ReversalThreshold: 0.002}

	// 击穿前低后以阳线实体反转。
	candles := flatCandles(3, 10, 1)
	candles = append(candles, makeCandle(10, 10.2, 9.5, 10.05, 1))
	frame := Detect(candles, p)

	if !frame.SweepBull[3] {
		t.Errorf("expected bullish sweep at index 3")
	}

	// 击穿前低但未反转，不应标记。
	candles = flatCandles(3, 10, 1)
	candles = append(candles, makeCandle(10, 10, 9.5, 9.6, 1))
	frame = Detect(candles, p)

	if frame.SweepBull[3] {
		t.Errorf("sweep without reversal should not be flagged")
	}

	// 击穿前高后以阴线实体反转。
	candles = flatCandles(3, 10, 1)
	candles = append(candles, makeCandle(10, 10.5, 9.9, 9.95, 1))
	frame = Detect(candles, p)

	if !frame.SweepBear[3] {
		t.Errorf("expected bearish sweep at index 3")
	}
}

func TestDetectOrderBlocks(t *testing.T) {
	p := Params{Lookback: 4, VolumeThreshold: 1.5, GapThreshold: 0.001, ReversalThreshold: 0.002}

	candles := []exchange.Candle{
		makeCandle(10, 10.1, 9.9, 10, 1),
		makeCandle(10, 10.2, 9.9, 10.1, 1),
		makeCandle(10, 10.3, 9.9, 10.2, 1),
		makeCandle(10, 11.0, 10.0, 10.8, 10), // 枢轴高点 + 放量
		makeCandle(10, 10.4, 9.9, 10.3, 1),
		makeCandle(10, 10.2, 9.9, 10.1, 1),
	}
	frame := Detect(candles, p)

	if !frame.OrderBlockHigh[3] {
		t.Errorf("expected high order block at index 3")
	}
	if frame.OrderBlockLow[3] {
		t.Errorf("unexpected low order block at index 3")
	}

	// 同样的枢轴但成交量普通，不构成订单块。
	candles[3].Volume = 1
	frame = Detect(candles, p)

	if frame.OrderBlockHigh[3] {
		t.Errorf("pivot without volume should not be an order block")
	}
}

func TestComputeRawFeatures(t *testing.T) {
	candles := make([]exchange.Candle, 25)
	price := 100.0
	for i := range candles {
		candles[i] = makeCandle(price, price, price, price, float64(i+1))
		price *= 1.01
	}

	raw := ComputeRawFeatures(candles, nil)

	if !math.IsNaN(raw.CloseLags[5][4]) {
		t.Errorf("lag 5 at index 4 should be NaN")
	}
	if got, want := raw.CloseLags[1][1], candles[0].Close; math.Abs(got-want) > 1e-9 {
		t.Errorf("close lag 1 = %f, want %f", got, want)
	}
	if got, want := raw.VolumeLags[10][12], candles[2].Volume; got != want {
		t.Errorf("volume lag 10 = %f, want %f", got, want)
	}

	wantReturn := math.Log(1.01)
	if diff := math.Abs(raw.LogReturn[10] - wantReturn); diff > 1e-12 {
		t.Errorf("log return = %f, want %f", raw.LogReturn[10], wantReturn)
	}

	if !math.IsNaN(raw.Volatility20[10]) {
		t.Errorf("volatility before full window should be NaN")
	}
	// 恒定收益率下波动率为0。
	if raw.Volatility20[24] > 1e-12 {
		t.Errorf("constant returns should have zero volatility, got %g", raw.Volatility20[24])
	}
}

func TestRecognizePattern(t *testing.T) {
	// 看涨吞没。
	candles := []exchange.Candle{
		makeCandle(10, 10.1, 8.9, 9, 1),
		makeCandle(8.9, 10.2, 8.8, 10.1, 1),
	}
	res := RecognizePattern(candles)
	if res.Pattern != "ENGULFING" || res.Bias != BiasBull {
		t.Errorf("expected bullish engulfing, got %+v", res)
	}

	// 十字星。
	candles = []exchange.Candle{makeCandle(10, 10.5, 9.5, 10.01, 1)}
	res = RecognizePattern(candles)
	if res.Pattern != "DOJI" {
		t.Errorf("expected doji, got %+v", res)
	}

	// 锤子线同时满足十字星条件时按排名优先取锤子线。
	candles = []exchange.Candle{makeCandle(10.4, 10.55, 9.5, 10.5, 1)}
	res = RecognizePattern(candles)
	if res.Pattern != "HAMMER" || res.Bias != BiasBull {
		t.Errorf("expected hammer, got %+v", res)
	}
	if res.MatchCount != 2 {
		t.Errorf("expected 2 matches (hammer + doji), got %d", res.MatchCount)
	}

	// 无形态。
	candles = []exchange.Candle{
		makeCandle(10, 10.6, 9.9, 10.5, 1),
		makeCandle(10.5, 11.1, 10.4, 11.0, 1),
	}
	res = RecognizePattern(candles)
	if res.Pattern != "NO_PATTERN" {
		t.Errorf("expected no pattern, got %+v", res)
	}
}

func TestSummarize(t *testing.T) {
	p := Params{Lookback: 3, VolumeThreshold: 1.5, GapThreshold: 0.001, ReversalThreshold: 0.002}

	candles := flatCandles(3, 10, 1)
	candles = append(candles, makeCandle(10, 10.2, 9.5, 10.05, 1))
	summary := Summarize(candles, p)

	if !summary.LiquiditySweepBull {
		t.Errorf("expected bullish sweep in summary")
	}
	if summary.RecentSweepsBull != 1 {
		t.Errorf("expected 1 recent bullish sweep, got %d", summary.RecentSweepsBull)
	}
	if !summary.BreakOfStructureBear {
		t.Errorf("low below prior extreme should flag bearish BOS")
	}
	if summary.CandlePattern == "" {
		t.Errorf("pattern should always be populated")
	}
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(nil, DefaultParams())
	if summary.BarsSinceOrderBlock != -1 {
		t.Errorf("empty input should report no order block")
	}
	if summary.CandlePattern != "NO_PATTERN" {
		t.Errorf("empty input should report NO_PATTERN, got %s", summary.CandlePattern)
	}
}
