package smc

import (
	"math"

	"smc-trader/internal/exchange"
)

// DefaultLags 为原始价格/成交量特征的滞后阶数。
var DefaultLags = []int{1, 5, 10}

const volatilityWindow = 20

// RawFeatures 保存面向模型的原始量价特征序列。
type RawFeatures struct {
	CloseLags    map[int][]float64 // 按滞后阶数索引的收盘价序列
	VolumeLags   map[int][]float64
	LogReturn    []float64 // 对数收益率
	Volatility20 []float64 // 近20根对数收益率标准差
}

// ComputeRawFeatures 计算滞后、收益率与波动率特征。
// 无法计算的位置（序列开头）填 NaN，与数据框 shift 的语义一致。
func ComputeRawFeatures(candles []exchange.Candle, lags []int) RawFeatures {
	if len(lags) == 0 {
		lags = DefaultLags
	}
	n := len(candles)

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	raw := RawFeatures{
		CloseLags:    make(map[int][]float64, len(lags)),
		VolumeLags:   make(map[int][]float64, len(lags)),
		LogReturn:    make([]float64, n),
		Volatility20: make([]float64, n),
	}

	for _, lag := range lags {
		raw.CloseLags[lag] = shift(closes, lag)
		raw.VolumeLags[lag] = shift(volumes, lag)
	}

	for i := 0; i < n; i++ {
		if i == 0 || closes[i-1] <= 0 || closes[i] <= 0 {
			raw.LogReturn[i] = math.NaN()
			continue
		}
		raw.LogReturn[i] = math.Log(closes[i] / closes[i-1])
	}

	for i := 0; i < n; i++ {
		lo := i - volatilityWindow + 1
		if lo < 1 {
			raw.Volatility20[i] = math.NaN()
			continue
		}
		raw.Volatility20[i] = sampleStdDev(raw.LogReturn[lo : i+1])
	}

	return raw
}

func shift(values []float64, lag int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i < lag {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-lag]
	}
	return out
}

func sampleStdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return math.NaN()
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(n - 1)

	return math.Sqrt(variance)
}
