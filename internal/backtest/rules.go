package backtest

import (
	"context"
	"strconv"
	"strings"

	"smc-trader/internal/ai"
	"smc-trader/internal/feature"
	"smc-trader/internal/position"
	"smc-trader/internal/smc"
)

// RuleDecisionProvider 用纯规则代替大模型做回测决策：
// 流动性扫荡与结构突破同向时入场，反向结构突破时离场。
// 不依赖外部服务，适合快速评估SMC信号本身的质量。
type RuleDecisionProvider struct {
	targetExposure float64
}

// NewRuleDecisionProvider 创建规则决策器。
func NewRuleDecisionProvider(targetExposure float64) *RuleDecisionProvider {
	if targetExposure <= 0 || targetExposure > 1 {
		targetExposure = 0.15
	}
	return &RuleDecisionProvider{targetExposure: targetExposure}
}

// Decide 实现 DecisionProvider。
func (p *RuleDecisionProvider) Decide(ctx context.Context, features feature.FeatureSet, pos position.Summary) (ai.Decision, error) {
	sm := features.SmartMoney
	side := strings.ToUpper(pos.Side)

	bullSignal := sm.LiquiditySweepBull || (sm.BreakOfStructureBull && sm.PatternBias == string(smc.BiasBull))
	bearSignal := sm.LiquiditySweepBear || (sm.BreakOfStructureBear && sm.PatternBias == string(smc.BiasBear))

	// 持仓期间出现反向结构突破时离场。
	if side == ai.DirectionLong && sm.BreakOfStructureBear {
		return p.closeDecision(features, "多头持仓遇到看跌结构突破，离场观望"), nil
	}
	if side == ai.DirectionShort && sm.BreakOfStructureBull {
		return p.closeDecision(features, "空头持仓遇到看涨结构突破，离场观望"), nil
	}

	switch {
	case bullSignal && !bearSignal && side != ai.DirectionLong:
		return p.openDecision(features, ai.DirectionLong), nil
	case bearSignal && !bullSignal && side != ai.DirectionShort:
		return p.openDecision(features, ai.DirectionShort), nil
	}

	return observeDecision(features), nil
}

func (p *RuleDecisionProvider) openDecision(features feature.FeatureSet, direction string) ai.Decision {
	price := features.Trend.EMA12
	atr := features.Volatility.ATRAbsolute

	var stop, take float64
	if direction == ai.DirectionLong {
		stop = price - 2*atr
		take = price + 3*atr
	} else {
		stop = price + 2*atr
		take = price - 3*atr
	}

	confidence := 0.6
	if features.SmartMoney.LiquiditySweepBull && features.SmartMoney.BreakOfStructureBull {
		confidence = 0.8
	}
	if features.SmartMoney.LiquiditySweepBear && features.SmartMoney.BreakOfStructureBear {
		confidence = 0.8
	}

	return ai.Decision{
		Symbol:            features.Symbol,
		Intent:            ai.IntentOpen,
		Direction:         direction,
		TargetExposurePct: p.targetExposure,
		Confidence:        confidence,
		Reasoning:         "SMC信号同向，按规则入场",
		OrderPreference:   "MARKET",
		NewStopLoss:       formatLevel(stop),
		NewTakeProfit:     formatLevel(take),
	}
}

func (p *RuleDecisionProvider) closeDecision(features feature.FeatureSet, reason string) ai.Decision {
	return ai.Decision{
		Symbol:     features.Symbol,
		Intent:     ai.IntentClose,
		Direction:  ai.DirectionFlat,
		Confidence: 0.9,
		Reasoning:  reason,
	}
}

func observeDecision(features feature.FeatureSet) ai.Decision {
	return ai.Decision{
		Symbol:     features.Symbol,
		Intent:     ai.IntentObserve,
		Direction:  ai.DirectionFlat,
		Confidence: 0.5,
		Reasoning:  "无明确SMC信号，保持观望",
	}
}

func formatLevel(v float64) string {
	if v <= 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
