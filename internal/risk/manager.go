package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"smc-trader/internal/ai"
	"smc-trader/internal/config"
	"smc-trader/internal/store"
)

// Manager 负责执行风控评估。
type Manager struct {
	cfg     config.RiskConfig
	tracker *DailyTracker
	logger  *zap.Logger
}

// NewManager 创建风险管理器。
func NewManager(cfg config.RiskConfig, store *store.Store, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("risk: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tracker, err := NewDailyTracker(store.DB(), cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:     cfg,
		tracker: tracker,
		logger:  logger,
	}, nil
}

// Tracker 返回内部的日度监控器，供事件记录复用。
func (m *Manager) Tracker() *DailyTracker {
	return m.tracker
}

// Evaluate 根据当前决策与账户状况给出风险评估结果。
// 平仓与减仓永远放行；开仓与加仓受日度亏损、信心度与仓位上限约束。
func (m *Manager) Evaluate(ctx context.Context, input EvaluationInput) (EvaluationResult, error) {
	status, err := m.tracker.Update(ctx, input.Account.Timestamp, input.Account.Equity)
	if err != nil {
		return EvaluationResult{}, err
	}

	result := EvaluationResult{
		Symbol:      input.Symbol,
		Status:      StatusDeny,
		DailyStatus: status,
		Notes:       make([]string, 0, 4),
	}

	stopLoss, stopErr := parseFloat(input.Decision.NewStopLoss)
	if stopErr != nil {
		result.Notes = append(result.Notes, fmt.Sprintf("AI 止损价解析失败: %v", stopErr))
	}
	takeProfit, takeErr := parseFloat(input.Decision.NewTakeProfit)
	if takeErr != nil {
		result.Notes = append(result.Notes, fmt.Sprintf("AI 止盈价解析失败: %v", takeErr))
	}

	result.RecommendedStopLoss = stopLoss
	result.RecommendedTakeProfit = takeProfit

	intent := input.Decision.NormalizedIntent()

	if intent == ai.IntentObserve {
		result.Notes = append(result.Notes, "模型建议观望，无需交易。")
		return result, nil
	}

	if intent == ai.IntentClose {
		result.Status = StatusProceed
		result.TargetExposurePercent = 0
		result.Notes = append(result.Notes, "执行平仓指令，将仓位降为 0。")
		return result, nil
	}

	// ADJUST 给出负调整幅度时视为减仓，与平仓同样不受日度限制约束。
	if intent == ai.IntentAdjust && input.Decision.AdjustmentPct < 0 {
		target := input.Account.CurrentExposurePercent * (1 + input.Decision.AdjustmentPct)
		if math.Abs(target) < 1e-6 {
			target = 0
		}
		result.Status = StatusProceed
		result.TargetExposurePercent = target
		result.Notes = append(result.Notes,
			fmt.Sprintf("执行减仓指令，仓位从 %.2f%% 调整至 %.2f%%。",
				input.Account.CurrentExposurePercent*100, target*100,
			),
		)
		return result, nil
	}

	if status.Halted {
		result.Notes = append(result.Notes, "当日累计亏损已达到限制，停止开仓。")
		return result, nil
	}

	if input.Account.Equity <= 0 {
		result.Notes = append(result.Notes, "账户净值无效，无法评估仓位。")
		return result, nil
	}

	if input.MarketPrice <= 0 {
		result.Notes = append(result.Notes, "缺少有效的市价，无法计算仓位。")
		return result, nil
	}

	confidenceFactor := m.confidenceFactor(input.Decision.Confidence)
	result.ConfidenceApplied = confidenceFactor

	if confidenceFactor <= 0 {
		result.Notes = append(result.Notes, "模型信心度不足，放弃开仓。")
		return result, nil
	}

	direction := resolveDirection(input.Decision, input.Position.Side)
	if direction == ai.DirectionFlat {
		result.Notes = append(result.Notes, "目标方向为空仓但意图非平仓，视为矛盾信号。")
		return result, nil
	}

	atr := input.Features.Volatility.ATRAbsolute
	finalStop := selectStop(direction, stopLoss, atr, input.MarketPrice)
	if finalStop <= 0 {
		result.Notes = append(result.Notes, "缺少有效止损，无法控制风险。")
		return result, nil
	}
	result.RecommendedStopLoss = finalStop

	stopDistance := computeStopDistance(direction, input.MarketPrice, finalStop)
	if stopDistance <= 0 {
		result.Notes = append(result.Notes, "止损位置不合理，无法计算风险敞口。")
		return result, nil
	}

	riskPerTrade := m.cfg.MaxTradeRisk * confidenceFactor
	riskAmount := input.Account.Equity * riskPerTrade
	result.RiskAmount = riskAmount

	if riskAmount <= 0 {
		result.Notes = append(result.Notes, "风险额度为零，禁止开仓。")
		return result, nil
	}

	targetExposure := riskPerTrade * (input.MarketPrice / stopDistance)
	if math.IsNaN(targetExposure) || math.IsInf(targetExposure, 0) {
		result.Notes = append(result.Notes, "无法计算目标仓位比例。")
		return result, nil
	}

	// 模型给出的目标仓位是额外的上限，不是下限。
	if input.Decision.TargetExposurePct > 0 && targetExposure > input.Decision.TargetExposurePct {
		targetExposure = input.Decision.TargetExposurePct
	}

	if direction == ai.DirectionShort {
		targetExposure = -targetExposure
	}

	maxExp := m.cfg.MaxExposure
	if maxExp <= 0 {
		maxExp = 0.20
	}

	if math.Abs(targetExposure) > maxExp {
		result.Notes = append(result.Notes,
			fmt.Sprintf("按风险测算的仓位 %.2f%% 超过最大限制 %.2f%%，按上限执行。",
				math.Abs(targetExposure)*100, maxExp*100,
			),
		)
		targetExposure = math.Copysign(maxExp, targetExposure)
	}

	current := input.Account.CurrentExposurePercent

	if intent != ai.IntentHedge &&
		sameDirection(targetExposure, current) &&
		math.Abs(targetExposure) <= math.Abs(current)+1e-6 {
		result.Notes = append(result.Notes, "风险限制后未能提升仓位，放弃操作。")
		return result, nil
	}

	if math.Abs(targetExposure-current) < 1e-6 {
		result.Notes = append(result.Notes, "目标仓位与当前仓位几乎一致。")
		return result, nil
	}

	result.Status = StatusProceed
	result.TargetExposurePercent = targetExposure
	result.Notes = append(result.Notes,
		fmt.Sprintf("允许持仓比例调整至 %.2f%%，风险金额约为 %.2f。", targetExposure*100, riskAmount),
	)

	return result, nil
}

func (m *Manager) confidenceFactor(confidence float64) float64 {
	if confidence >= m.cfg.ConfidenceFullRisk {
		return 1.0
	}
	if confidence >= m.cfg.ConfidenceHalfRisk {
		return 0.5
	}
	return 0
}

func parseFloat(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

// resolveDirection 把 AUTO 方向落实为具体方向：
// HEDGE 取当前持仓的反向，其余取当前持仓方向，空仓时默认做多。
func resolveDirection(decision ai.Decision, currentSide string) string {
	direction := decision.NormalizedDirection()
	if direction != ai.DirectionAuto {
		return direction
	}

	side := strings.ToUpper(strings.TrimSpace(currentSide))

	if decision.NormalizedIntent() == ai.IntentHedge {
		if side == ai.DirectionLong {
			return ai.DirectionShort
		}
		return ai.DirectionLong
	}

	if side == ai.DirectionLong || side == ai.DirectionShort {
		return side
	}
	return ai.DirectionLong
}

// selectStop 在模型给出的止损与 2倍ATR 止损之间取更保守的一个。
func selectStop(direction string, decisionStop, atr, price float64) float64 {
	if direction == ai.DirectionShort {
		decisionCandidate := 0.0
		if decisionStop > price {
			decisionCandidate = decisionStop
		}
		atrCandidate := 0.0
		if atr > 0 {
			atrCandidate = price + 2*atr
		}

		switch {
		case decisionCandidate > 0 && atrCandidate > 0:
			return math.Min(decisionCandidate, atrCandidate)
		case decisionCandidate > 0:
			return decisionCandidate
		case atrCandidate > 0:
			return atrCandidate
		default:
			return 0
		}
	}

	decisionCandidate := 0.0
	if decisionStop > 0 && decisionStop < price {
		decisionCandidate = decisionStop
	}
	atrCandidate := 0.0
	if atr > 0 {
		if candidate := price - 2*atr; candidate > 0 {
			atrCandidate = candidate
		}
	}

	switch {
	case decisionCandidate > 0 && atrCandidate > 0:
		return math.Max(decisionCandidate, atrCandidate)
	case decisionCandidate > 0:
		return decisionCandidate
	case atrCandidate > 0:
		return atrCandidate
	default:
		return 0
	}
}

func computeStopDistance(direction string, price, stop float64) float64 {
	if direction == ai.DirectionShort {
		return stop - price
	}
	return price - stop
}

func sameDirection(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
