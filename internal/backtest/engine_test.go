package backtest

import (
	"context"
	"testing"

	"smc-trader/internal/config"
	"smc-trader/internal/exchange"
	"smc-trader/internal/feature"
	"smc-trader/internal/risk"
	"smc-trader/internal/smc"
	"smc-trader/internal/store"
)

func newTestRiskManager(t *testing.T) *risk.Manager {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mgr, err := risk.NewManager(config.RiskConfig{
		MaxTradeRisk:       0.01,
		MaxDailyLoss:       0.05,
		MaxExposure:        0.2,
		ConfidenceFullRisk: 0.8,
		ConfidenceHalfRisk: 0.6,
	}, st, nil)
	if err != nil {
		t.Fatalf("创建风险管理器失败: %v", err)
	}
	return mgr
}

func TestEngineRunWithoutSignals(t *testing.T) {
	candles := hourlyCandles(260)

	provider, err := NewArchiveProvider("BTC/USDC:USDC", candles, 240, 10)
	if err != nil {
		t.Fatalf("NewArchiveProvider: %v", err)
	}

	extractor := feature.NewExtractor(nil, smc.DefaultParams(), nil)
	engine, err := NewEngine(Config{InitialEquity: 10000}, provider, extractor, NewRuleDecisionProvider(0.15), newTestRiskManager(t), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 单调上涨且无扫荡信号，规则决策始终观望。
	if result.Trades != 0 {
		t.Errorf("trades = %d, want 0", result.Trades)
	}
	if result.FinalEquity != 10000 {
		t.Errorf("final equity = %f, want 10000", result.FinalEquity)
	}
	if len(result.EquityCurve) == 0 {
		t.Errorf("equity curve should not be empty")
	}
}

func TestEngineRejectsMissingDeps(t *testing.T) {
	if _, err := NewEngine(Config{}, nil, nil, nil, nil, nil); err == nil {
		t.Errorf("expected error for missing provider")
	}
}

// emptySnapshotProvider 先给出一个没有K线的快照，再结束。
type emptySnapshotProvider struct {
	served bool
}

func (p *emptySnapshotProvider) Next(ctx context.Context) (exchange.MarketSnapshot, bool, error) {
	if p.served {
		return exchange.MarketSnapshot{}, false, nil
	}
	p.served = true
	return exchange.MarketSnapshot{Symbol: "BTC/USDC:USDC"}, true, nil
}

func TestEngineSkipsSnapshotWithoutCandles(t *testing.T) {
	extractor := feature.NewExtractor(nil, smc.DefaultParams(), nil)
	engine, err := NewEngine(Config{InitialEquity: 10000}, &emptySnapshotProvider{}, extractor, NewRuleDecisionProvider(0.15), newTestRiskManager(t), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Trades != 0 {
		t.Errorf("trades = %d, want 0", result.Trades)
	}
	if result.FinalEquity != 10000 {
		t.Errorf("final equity = %f, want 10000", result.FinalEquity)
	}
}
