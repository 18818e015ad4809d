package smc

import (
	"math"

	"smc-trader/internal/exchange"
)

// Summary 为提供给决策引擎的 SMC 特征快照。
type Summary struct {
	OrderBlockHighActive bool    `json:"order_block_high_active"` // 最近确认的枢轴是否为放量高点订单块
	OrderBlockLowActive  bool    `json:"order_block_low_active"`
	BarsSinceOrderBlock  int     `json:"bars_since_order_block"` // 距最近订单块的K线数，-1 表示窗口内没有
	FVGBull              float64 `json:"fvg_bull"`               // 末根K线看涨缺口相对宽度
	FVGBear              float64 `json:"fvg_bear"`
	LiquiditySweepBull   bool    `json:"liquidity_sweep_bull"`
	LiquiditySweepBear   bool    `json:"liquidity_sweep_bear"`
	BreakOfStructureBull bool    `json:"break_of_structure_bull"`
	BreakOfStructureBear bool    `json:"break_of_structure_bear"`
	RecentSweepsBull     int     `json:"recent_sweeps_bull"` // 回看窗口内的扫荡次数
	RecentSweepsBear     int     `json:"recent_sweeps_bear"`
	CandlePattern        string  `json:"candle_pattern"`
	PatternBias          string  `json:"pattern_bias"`
	PatternMatchCount    int     `json:"pattern_match_count"`
	LogReturn            float64 `json:"log_return"`
	Volatility20         float64 `json:"volatility_20"`
}

// Summarize 将逐K线特征压缩为末端快照。
func Summarize(candles []exchange.Candle, p Params) Summary {
	p = p.normalize()
	n := len(candles)
	if n == 0 {
		return Summary{BarsSinceOrderBlock: -1, CandlePattern: noPattern, PatternBias: string(BiasNeutral)}
	}

	frame := Detect(candles, p)
	raw := ComputeRawFeatures(candles, nil)
	pattern := RecognizePattern(candles)

	last := n - 1
	summary := Summary{
		BarsSinceOrderBlock:  -1,
		FVGBull:              frame.FVGBull[last],
		FVGBear:              frame.FVGBear[last],
		LiquiditySweepBull:   frame.SweepBull[last],
		LiquiditySweepBear:   frame.SweepBear[last],
		BreakOfStructureBull: frame.BOSBull[last],
		BreakOfStructureBear: frame.BOSBear[last],
		CandlePattern:        pattern.Pattern,
		PatternBias:          string(pattern.Bias),
		PatternMatchCount:    pattern.MatchCount,
		LogReturn:            cleanNaN(raw.LogReturn[last]),
		Volatility20:         cleanNaN(raw.Volatility20[last]),
	}

	// 订单块由中心化枢轴确认，末端若干根K线尚未定型，
	// 取最近一个已确认的订单块。
	for i := last; i >= 0 && last-i <= p.Lookback; i-- {
		if frame.OrderBlockHigh[i] || frame.OrderBlockLow[i] {
			summary.OrderBlockHighActive = frame.OrderBlockHigh[i]
			summary.OrderBlockLowActive = frame.OrderBlockLow[i]
			summary.BarsSinceOrderBlock = last - i
			break
		}
	}

	lo := last - p.Lookback
	if lo < 0 {
		lo = 0
	}
	for i := lo; i <= last; i++ {
		if frame.SweepBull[i] {
			summary.RecentSweepsBull++
		}
		if frame.SweepBear[i] {
			summary.RecentSweepsBear++
		}
	}

	return summary
}

func cleanNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
