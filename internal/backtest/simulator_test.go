package backtest

import (
	"math"
	"testing"
	"time"
)

func TestSimulatorAdvance(t *testing.T) {
	sim := NewSimulator(10000)

	sim.Advance(100)
	sim.AdjustExposure(0.5, 100, time.Now())
	sim.Advance(110) // 价格+10%，半仓 → 净值+5%

	if math.Abs(sim.Equity()-10500) > 1e-6 {
		t.Errorf("equity = %f, want 10500", sim.Equity())
	}
	if sim.TradeCount() != 1 {
		t.Errorf("trades = %d, want 1", sim.TradeCount())
	}

	returns := sim.ReturnHistory()
	if len(returns) != 1 || math.Abs(returns[0]-0.05) > 1e-9 {
		t.Errorf("returns = %v", returns)
	}
}

func TestSimulatorShortExposure(t *testing.T) {
	sim := NewSimulator(10000)

	sim.Advance(100)
	sim.AdjustExposure(-0.2, 100, time.Now())
	sim.Advance(90) // 价格-10%，空头两成仓 → 净值+2%

	if math.Abs(sim.Equity()-10200) > 1e-6 {
		t.Errorf("equity = %f, want 10200", sim.Equity())
	}

	summary := sim.Summary(90, time.Now())
	if summary.Side != "SHORT" {
		t.Errorf("side = %s, want SHORT", summary.Side)
	}
	if math.Abs(summary.UnrealizedPnlPercent-10) > 1e-6 {
		t.Errorf("pnl percent = %f, want 10", summary.UnrealizedPnlPercent)
	}
}

func TestSimulatorClose(t *testing.T) {
	sim := NewSimulator(10000)

	sim.Advance(100)
	sim.AdjustExposure(0.3, 100, time.Now())
	sim.AdjustExposure(0, 105, time.Now())

	if sim.Exposure() != 0 {
		t.Errorf("exposure = %f, want 0", sim.Exposure())
	}
	summary := sim.Summary(105, time.Now())
	if summary.Side != "" || summary.EntryPrice != 0 {
		t.Errorf("closed position summary = %+v", summary)
	}
}

func TestCalculateMetrics(t *testing.T) {
	equity := []float64{10000, 11000, 9900, 10450}
	returns := []float64{0.1, -0.1, 0.055}

	m := calculateMetrics(equity, returns)

	if math.Abs(m.TotalReturn-0.045) > 1e-9 {
		t.Errorf("total return = %f, want 0.045", m.TotalReturn)
	}
	// 峰值11000回撤到9900，恰好 -10%。
	if math.Abs(m.MaxDrawdown-0.1) > 1e-9 {
		t.Errorf("max drawdown = %f, want 0.1", m.MaxDrawdown)
	}
}

func TestCalculateMetrics_Empty(t *testing.T) {
	m := calculateMetrics(nil, nil)
	if m.TotalReturn != 0 || m.MaxDrawdown != 0 || m.SharpeRatio != 0 {
		t.Errorf("empty metrics = %+v", m)
	}
}
