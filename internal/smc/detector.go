package smc

import (
	"math"

	"smc-trader/internal/exchange"
)

// Params 控制 Smart Money Concepts 检测阈值。
type Params struct {
	Lookback          int     // 滚动窗口长度
	VolumeThreshold   float64 // 订单块成交量倍数阈值
	GapThreshold      float64 // 公允价值缺口最小相对宽度
	ReversalThreshold float64 // 流动性扫荡反转实体最小相对幅度
}

// DefaultParams 返回与策略原型一致的默认参数。
func DefaultParams() Params {
	return Params{
		Lookback:          20,
		VolumeThreshold:   1.5,
		GapThreshold:      0.001,
		ReversalThreshold: 0.002,
	}
}

func (p Params) normalize() Params {
	d := DefaultParams()
	if p.Lookback <= 1 {
		p.Lookback = d.Lookback
	}
	if p.VolumeThreshold <= 0 {
		p.VolumeThreshold = d.VolumeThreshold
	}
	if p.GapThreshold < 0 {
		p.GapThreshold = d.GapThreshold
	}
	if p.ReversalThreshold <= 0 {
		p.ReversalThreshold = d.ReversalThreshold
	}
	return p
}

// Frame 保存逐K线的 SMC 特征序列，长度与输入K线一致。
type Frame struct {
	OrderBlockHigh []bool    // 高点订单块（中心化枢轴 + 放量）
	OrderBlockLow  []bool    // 低点订单块
	FVGBull        []float64 // 看涨公允价值缺口相对宽度，无缺口为0
	FVGBear        []float64 // 看跌公允价值缺口相对宽度
	SweepBull      []bool    // 看涨流动性扫荡
	SweepBear      []bool    // 看跌流动性扫荡
	BOSBull        []bool    // 看涨结构突破
	BOSBear        []bool    // 看跌结构突破
}

// Detect 对K线序列计算全部 SMC 特征。
func Detect(candles []exchange.Candle, p Params) Frame {
	p = p.normalize()
	n := len(candles)

	frame := Frame{
		OrderBlockHigh: make([]bool, n),
		OrderBlockLow:  make([]bool, n),
		FVGBull:        make([]float64, n),
		FVGBear:        make([]float64, n),
		SweepBull:      make([]bool, n),
		SweepBear:      make([]bool, n),
		BOSBull:        make([]bool, n),
		BOSBear:        make([]bool, n),
	}
	if n == 0 {
		return frame
	}

	detectOrderBlocks(candles, p, &frame)
	detectFairValueGaps(candles, p, &frame)
	detectLiquiditySweeps(candles, p, &frame)
	detectBreakOfStructure(candles, p, &frame)

	return frame
}

// detectOrderBlocks 标记高成交量的反转区域：中心化窗口内的枢轴高/低点，
// 且当根成交量超过滚动均量的阈值倍数。中心化窗口意味着序列尾部
// floor(lookback/2) 根K线尚无法确认。
func detectOrderBlocks(candles []exchange.Candle, p Params, frame *Frame) {
	n := len(candles)
	w := p.Lookback
	lead := (w - 1) / 2
	tail := w - 1 - lead

	for i := 0; i < n; i++ {
		lo := i - lead
		hi := i + tail
		if lo < 0 || hi >= n {
			continue
		}

		isPivotHigh := true
		isPivotLow := true
		for j := lo; j <= hi; j++ {
			if candles[j].High > candles[i].High {
				isPivotHigh = false
			}
			if candles[j].Low < candles[i].Low {
				isPivotLow = false
			}
			if !isPivotHigh && !isPivotLow {
				break
			}
		}
		if !isPivotHigh && !isPivotLow {
			continue
		}

		avgVol := trailingMeanVolume(candles, i, w)
		if avgVol <= 0 {
			continue
		}
		highVolume := candles[i].Volume > avgVol*p.VolumeThreshold

		frame.OrderBlockHigh[i] = isPivotHigh && highVolume
		frame.OrderBlockLow[i] = isPivotLow && highVolume
	}
}

// detectFairValueGaps 标记相邻K线之间的价格失衡：
// 看涨缺口 low_t > high_{t-1}，看跌缺口 high_t < low_{t-1}，
// 相对宽度低于阈值的缺口被过滤为0。
func detectFairValueGaps(candles []exchange.Candle, p Params, frame *Frame) {
	for i := 1; i < len(candles); i++ {
		prevHigh := candles[i-1].High
		prevLow := candles[i-1].Low

		if prevHigh > 0 && candles[i].Low > prevHigh {
			gap := (candles[i].Low - prevHigh) / prevHigh
			if gap > p.GapThreshold {
				frame.FVGBull[i] = gap
			}
		}
		if prevLow > 0 && candles[i].High < prevLow {
			gap := (prevLow - candles[i].High) / prevLow
			if gap > p.GapThreshold {
				frame.FVGBear[i] = gap
			}
		}
	}
}

// detectLiquiditySweeps 标记扫荡：价格击穿此前 lookback 根的极值后，
// 当根K线以超过阈值的实体反向收盘。
func detectLiquiditySweeps(candles []exchange.Candle, p Params, frame *Frame) {
	for i := 0; i < len(candles); i++ {
		lowExt, highExt, ok := priorExtremes(candles, i, p.Lookback)
		if !ok {
			continue
		}

		open := candles[i].Open
		if open <= 0 {
			continue
		}
		body := (candles[i].Close - open) / open

		if candles[i].Low < lowExt && body > p.ReversalThreshold {
			frame.SweepBull[i] = true
		}
		if candles[i].High > highExt && body < -p.ReversalThreshold {
			frame.SweepBear[i] = true
		}
	}
}

// detectBreakOfStructure 标记结构突破：最高价越过此前 lookback 根的最高价
// 或最低价跌破此前 lookback 根的最低价。窗口向前偏移一根避免前视。
func detectBreakOfStructure(candles []exchange.Candle, p Params, frame *Frame) {
	for i := 0; i < len(candles); i++ {
		lowExt, highExt, ok := priorExtremes(candles, i, p.Lookback)
		if !ok {
			continue
		}

		frame.BOSBull[i] = candles[i].High > highExt
		frame.BOSBear[i] = candles[i].Low < lowExt
	}
}

// priorExtremes 返回 [i-lookback, i-1] 区间的最低低点与最高高点。
func priorExtremes(candles []exchange.Candle, i, lookback int) (low, high float64, ok bool) {
	lo := i - lookback
	if lo < 0 || i == 0 {
		return 0, 0, false
	}

	low = math.Inf(1)
	high = math.Inf(-1)
	for j := lo; j < i; j++ {
		if candles[j].Low < low {
			low = candles[j].Low
		}
		if candles[j].High > high {
			high = candles[j].High
		}
	}
	return low, high, true
}

func trailingMeanVolume(candles []exchange.Candle, i, window int) float64 {
	lo := i - window + 1
	if lo < 0 {
		return 0
	}
	sum := 0.0
	for j := lo; j <= i; j++ {
		sum += candles[j].Volume
	}
	return sum / float64(window)
}
