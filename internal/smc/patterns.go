package smc

import (
	"math"

	"smc-trader/internal/exchange"
)

// PatternBias 表示K线形态的多空倾向。
type PatternBias string

const (
	BiasBull    PatternBias = "bull"
	BiasBear    PatternBias = "bear"
	BiasNeutral PatternBias = "neutral"
)

// PatternMatch 为单根K线上识别出的形态。
type PatternMatch struct {
	Name      string      `json:"name"`
	Bias      PatternBias `json:"bias"`
	rank      int
	MatchedAt int `json:"matched_at"` // K线序列下标
}

// PatternResult 为形态识别汇总：命中多个形态时按固定排名取最优，
// 同名形态看涨优先于看跌。
type PatternResult struct {
	Pattern    string      `json:"pattern"`
	Bias       PatternBias `json:"bias"`
	MatchCount int         `json:"match_count"`
}

const noPattern = "NO_PATTERN"

// rankOf 返回形态排名，数值越小优先级越高；看涨在同名看跌之前。
func rankOf(name string, bias PatternBias) int {
	base := map[string]int{
		"ENGULFING":     0,
		"HAMMER":        2,
		"SHOOTING_STAR": 4,
		"DOJI":          6,
	}[name]
	if bias == BiasBear {
		return base + 1
	}
	return base
}

// RecognizePattern 识别序列末根K线上的形态。
func RecognizePattern(candles []exchange.Candle) PatternResult {
	n := len(candles)
	if n == 0 {
		return PatternResult{Pattern: noPattern, Bias: BiasNeutral}
	}

	matches := matchPatterns(candles, n-1)
	if len(matches) == 0 {
		return PatternResult{Pattern: noPattern, Bias: BiasNeutral}
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.rank < best.rank {
			best = m
		}
	}

	return PatternResult{
		Pattern:    best.Name,
		Bias:       best.Bias,
		MatchCount: len(matches),
	}
}

func matchPatterns(candles []exchange.Candle, i int) []PatternMatch {
	var matches []PatternMatch

	add := func(name string, bias PatternBias) {
		matches = append(matches, PatternMatch{
			Name:      name,
			Bias:      bias,
			rank:      rankOf(name, bias),
			MatchedAt: i,
		})
	}

	c := candles[i]
	body := c.Close - c.Open
	bodyAbs := math.Abs(body)
	spread := c.High - c.Low
	if spread <= 0 {
		return matches
	}

	upperWick := c.High - math.Max(c.Open, c.Close)
	lowerWick := math.Min(c.Open, c.Close) - c.Low

	// 吞没形态需要前一根K线。
	if i > 0 {
		prev := candles[i-1]
		prevBody := prev.Close - prev.Open
		if prevBody < 0 && body > 0 && c.Close > prev.Open && c.Open < prev.Close {
			add("ENGULFING", BiasBull)
		}
		if prevBody > 0 && body < 0 && c.Close < prev.Open && c.Open > prev.Close {
			add("ENGULFING", BiasBear)
		}
	}

	// 锤子线：长下影、短上影、实体位于上端。
	if bodyAbs > 0 && lowerWick >= 2*bodyAbs && upperWick <= bodyAbs {
		add("HAMMER", BiasBull)
	}

	// 射击之星：长上影、短下影、实体位于下端。
	if bodyAbs > 0 && upperWick >= 2*bodyAbs && lowerWick <= bodyAbs {
		add("SHOOTING_STAR", BiasBear)
	}

	// 十字星：实体占整根K线比例极小。
	if bodyAbs/spread <= 0.1 {
		bias := BiasNeutral
		if body > 0 {
			bias = BiasBull
		} else if body < 0 {
			bias = BiasBear
		}
		add("DOJI", bias)
	}

	return matches
}
