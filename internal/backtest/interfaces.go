package backtest

import (
	"context"

	"smc-trader/internal/ai"
	"smc-trader/internal/exchange"
	"smc-trader/internal/feature"
	"smc-trader/internal/position"
)

// SnapshotProvider 按时间顺序提供市场快照。
type SnapshotProvider interface {
	Next(ctx context.Context) (exchange.MarketSnapshot, bool, error)
}

// DecisionProvider 提供决策接口，便于在回测中注入不同源。
type DecisionProvider interface {
	Decide(ctx context.Context, features feature.FeatureSet, pos position.Summary) (ai.Decision, error)
}
