package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"smc-trader/internal/ai"
	"smc-trader/internal/config"
	"smc-trader/internal/exchange"
	"smc-trader/internal/execution"
	"smc-trader/internal/feature"
	"smc-trader/internal/monitor"
	"smc-trader/internal/position"
	"smc-trader/internal/risk"
	"smc-trader/internal/stream"
)

// streamFreshness 限定实时推送价参与定价的最大延迟。
const streamFreshness = 2 * time.Minute

// decisionProvider 抽象决策来源，生产环境为 OpenAI 客户端。
type decisionProvider interface {
	GenerateDecision(ctx context.Context, features feature.FeatureSet, pos position.Summary) (ai.Decision, error)
}

// localPositionState 记录交易所侧不保存的开仓时间与风控价位。
type localPositionState struct {
	openedAt   time.Time
	stopLoss   float64
	takeProfit float64
}

// streamState 保存最近一次实时K线推送，供定价与收盘触发使用。
type streamState struct {
	mu      sync.Mutex
	barTime time.Time
	price   float64
	seenAt  time.Time
}

// observe 记录一条推送，返回是否跨入了新K线（上一根已收盘）。
func (s *streamState) observe(update stream.Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := !s.barTime.IsZero() && update.Candle.Timestamp.After(s.barTime)
	if !update.Candle.Timestamp.Before(s.barTime) {
		s.barTime = update.Candle.Timestamp
		s.price = update.Candle.Close
		s.seenAt = update.ReceivedAt
	}
	return closed
}

// latest 返回仍然新鲜的推送价，过期或缺失时返回 0。
func (s *streamState) latest(now time.Time, maxAge time.Duration) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.price <= 0 || s.seenAt.IsZero() || now.Sub(s.seenAt) > maxAge {
		return 0
	}
	return s.price
}

// orchestrator 串联一次完整的决策流水线：
// 行情快照 -> 特征提取 -> 仓位快照 -> AI 决策 -> 风控评估 -> 订单执行。
type orchestrator struct {
	cfg       *config.Config
	logger    *zap.Logger
	market    *exchange.MarketDataService
	extractor *feature.Extractor
	positions *position.Manager
	decider   decisionProvider
	riskMgr   *risk.Manager
	trader    execution.Trader
	monitor   *monitor.Service

	mu           sync.Mutex
	lastDecision time.Time
	local        localPositionState
	stream       streamState
}

func newOrchestrator(
	cfg *config.Config,
	market *exchange.MarketDataService,
	extractor *feature.Extractor,
	positions *position.Manager,
	decider decisionProvider,
	riskMgr *risk.Manager,
	trader execution.Trader,
	monitorSvc *monitor.Service,
	logger *zap.Logger,
) (*orchestrator, error) {
	if market == nil || extractor == nil || positions == nil || decider == nil || riskMgr == nil || trader == nil {
		return nil, fmt.Errorf("app: 流水线依赖不完整")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orchestrator{
		cfg:       cfg,
		logger:    logger,
		market:    market,
		extractor: extractor,
		positions: positions,
		decider:   decider,
		riskMgr:   riskMgr,
		trader:    trader,
		monitor:   monitorSvc,
	}, nil
}

// ObserveUpdate 接收一条实时K线，返回是否有K线收盘、需要立即触发一轮决策。
func (o *orchestrator) ObserveUpdate(update stream.Update) bool {
	return o.stream.observe(update)
}

// Tick 执行一轮决策流程。距离上次决策不足 decision_interval 时直接跳过。
// 调度循环与推送触发可能并发调用，内部串行化。
func (o *orchestrator) Tick(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	interval := o.cfg.Scheduler.DecisionInterval
	if interval > 0 && !o.lastDecision.IsZero() && time.Since(o.lastDecision) < interval {
		o.logger.Debug("距离上次决策间隔不足，跳过本轮",
			zap.Time("last_decision", o.lastDecision),
			zap.Duration("interval", interval),
		)
		return nil
	}

	symbol := o.cfg.Exchange.Market

	snapshot, err := o.market.GetSnapshot(ctx, exchange.DefaultSnapshotRequest())
	if err != nil {
		o.recordError(ctx, "获取行情快照失败", err, map[string]interface{}{"symbol": symbol})
		return fmt.Errorf("app: 获取行情快照失败: %w", err)
	}

	features, err := o.extractor.Extract(ctx, snapshot)
	if err != nil {
		o.recordError(ctx, "特征提取失败", err, map[string]interface{}{"symbol": symbol})
		return fmt.Errorf("app: 特征提取失败: %w", err)
	}
	if o.monitor != nil {
		o.monitor.RecordMarketSnapshot(ctx, features)
	}

	balance, details, err := o.positions.FetchSnapshot(ctx)
	if err != nil {
		o.recordError(ctx, "获取账户快照失败", err, map[string]interface{}{"symbol": symbol})
		return fmt.Errorf("app: 获取账户快照失败: %w", err)
	}
	if o.monitor != nil {
		o.monitor.RecordPosition(ctx, balance, details)
	}

	// 交易所侧仓位已清零时同步重置本地记录。
	if len(details) == 0 {
		o.local = localPositionState{}
	}

	summary := position.BuildSummary(balance, details, o.local.openedAt, o.local.stopLoss, o.local.takeProfit)

	decision, err := o.decider.GenerateDecision(ctx, features, summary)
	if err != nil {
		o.recordError(ctx, "AI 决策失败", err, map[string]interface{}{"symbol": symbol})
		return fmt.Errorf("app: AI 决策失败: %w", err)
	}
	o.lastDecision = time.Now().UTC()
	if o.monitor != nil {
		o.monitor.RecordDecision(ctx, features, decision)
	}

	o.logger.Info("收到 AI 决策",
		zap.String("symbol", symbol),
		zap.String("intent", decision.NormalizedIntent()),
		zap.String("direction", decision.NormalizedDirection()),
		zap.Float64("confidence", decision.Confidence),
		zap.String("reasoning", decision.Reasoning),
	)

	price := o.markPrice(snapshot)
	account := risk.AccountState{
		Equity:                 balance.TotalEquity,
		Balance:                balance.TotalUSD,
		CurrentExposurePercent: exposureFromSummary(summary),
		Timestamp:              time.Now().UTC(),
	}

	evalInput := risk.EvaluationInput{
		Symbol:      symbol,
		Decision:    decision,
		Features:    features,
		Position:    summary,
		Account:     account,
		MarketPrice: price,
	}

	evaluation, err := o.riskMgr.Evaluate(ctx, evalInput)
	if err != nil {
		o.recordError(ctx, "风控评估失败", err, map[string]interface{}{"symbol": symbol})
		return fmt.Errorf("app: 风控评估失败: %w", err)
	}
	if o.monitor != nil {
		o.monitor.RecordRisk(ctx, evalInput, evaluation)
	}

	if evaluation.Status != risk.StatusProceed {
		o.logger.Info("风控未放行，本轮不执行",
			zap.String("symbol", symbol),
			zap.Strings("notes", evaluation.Notes),
		)
		return nil
	}

	plan := execution.ExecutionPlan{
		Symbol:          symbol,
		Asset:           assetKeyFromSymbol(symbol),
		Side:            sideFromExposure(evaluation.TargetExposurePercent, account.CurrentExposurePercent),
		CurrentExposure: account.CurrentExposurePercent,
		TargetExposure:  evaluation.TargetExposurePercent,
		MarketPrice:     price,
		StopLoss:        evaluation.RecommendedStopLoss,
		TakeProfit:      evaluation.RecommendedTakeProfit,
		RiskAmount:      evaluation.RiskAmount,
		Decision:        decision,
		RiskResult:      evaluation,
		Account:         balance,
		Position:        summary,
		GeneratedAt:     time.Now().UTC(),
	}

	orders, err := o.trader.BuildPlan(plan)
	if err != nil {
		o.logger.Warn("生成执行计划失败", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}

	execResult, err := o.trader.Execute(ctx, orders)
	if o.monitor != nil {
		o.monitor.RecordExecution(ctx, plan, execResult)
	}
	if err != nil {
		o.recordError(ctx, "订单执行失败", err, map[string]interface{}{"symbol": symbol})
		return fmt.Errorf("app: 订单执行失败: %w", err)
	}

	o.applyPlanResult(ctx, plan)

	o.logger.Info("本轮执行完成",
		zap.String("symbol", symbol),
		zap.Float64("target_exposure", plan.TargetExposure),
		zap.Bool("simulated", execResult.Simulated),
		zap.Int("orders", len(execResult.Orders)),
	)
	return nil
}

// applyPlanResult 更新本地维护的开仓时间与止损止盈。
func (o *orchestrator) applyPlanResult(ctx context.Context, plan execution.ExecutionPlan) {
	if math.Abs(plan.TargetExposure) < 1e-6 {
		o.local = localPositionState{}
		o.logActivity(ctx, "position_closed", fmt.Sprintf("已平仓 %s", plan.Symbol))
		return
	}

	if math.Abs(plan.CurrentExposure) < 1e-6 {
		o.local.openedAt = time.Now().UTC()
		o.logActivity(ctx, "position_opened",
			fmt.Sprintf("开仓 %s 目标仓位 %.2f%%", plan.Symbol, plan.TargetExposure*100))
	}
	if plan.StopLoss > 0 {
		o.local.stopLoss = plan.StopLoss
	}
	if plan.TakeProfit > 0 {
		o.local.takeProfit = plan.TakeProfit
	}
}

func (o *orchestrator) logActivity(ctx context.Context, eventType, message string) {
	if err := o.riskMgr.Tracker().LogEvent(ctx, eventType, message, "", ""); err != nil {
		o.logger.Warn("写入风控活动日志失败", zap.Error(err))
	}
}

func (o *orchestrator) recordError(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if o.monitor != nil {
		o.monitor.RecordError(ctx, msg, err, fields)
	}
}

// markPrice 优先采用足够新的实时推送价，否则退化到快照价。
func (o *orchestrator) markPrice(snapshot exchange.MarketSnapshot) float64 {
	if live := o.stream.latest(time.Now().UTC(), streamFreshness); live > 0 {
		return live
	}
	return latestPrice(snapshot)
}

// latestPrice 以最新1小时收盘价为市价，缺失时退化到订单簿中间价。
func latestPrice(snapshot exchange.MarketSnapshot) float64 {
	if n := len(snapshot.Candles1H); n > 0 {
		if close := snapshot.Candles1H[n-1].Close; close > 0 {
			return close
		}
	}

	var bid, ask float64
	if len(snapshot.OrderBook.Bids) > 0 {
		bid = snapshot.OrderBook.Bids[0].Price
	}
	if len(snapshot.OrderBook.Asks) > 0 {
		ask = snapshot.OrderBook.Asks[0].Price
	}
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	case ask > 0:
		return ask
	default:
		return 0
	}
}

// exposureFromSummary 将仓位摘要换算为带方向的仓位占比。
func exposureFromSummary(summary position.Summary) float64 {
	exposure := summary.SizePercent / 100
	if strings.EqualFold(summary.Side, ai.DirectionShort) {
		return -exposure
	}
	if strings.EqualFold(summary.Side, "FLAT") {
		return 0
	}
	return exposure
}

func sideFromExposure(target, current float64) execution.OrderSide {
	if target < current {
		return execution.OrderSideSell
	}
	return execution.OrderSideBuy
}

// assetKeyFromSymbol 从 BTC/USDC:USDC 形式的交易对中取出基础币种。
func assetKeyFromSymbol(symbol string) string {
	if idx := strings.IndexAny(symbol, "/:-"); idx > 0 {
		return symbol[:idx]
	}
	return symbol
}
