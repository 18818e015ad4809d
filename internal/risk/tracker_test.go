package risk

import (
	"context"
	"testing"
	"time"

	"smc-trader/internal/config"
	"smc-trader/internal/store"
)

func newTestTracker(t *testing.T, cfg config.RiskConfig) *DailyTracker {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tracker, err := NewDailyTracker(st.DB(), cfg, nil)
	if err != nil {
		t.Fatalf("创建日度监控器失败: %v", err)
	}
	return tracker
}

func TestTrackerHaltPersists(t *testing.T) {
	tracker := newTestTracker(t, config.RiskConfig{
		MaxDailyLoss:        0.05,
		EnableDailyStopLoss: true,
	})
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	status, err := tracker.Update(ctx, day, 10000)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if status.Halted || status.StartEquity != 10000 {
		t.Fatalf("首次更新状态异常: %+v", status)
	}

	status, err = tracker.Update(ctx, day.Add(time.Hour), 9400)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !status.Halted {
		t.Fatalf("回撤 6%% 应触发停交易: %+v", status)
	}

	// 净值回升也不解除当日停交易。
	status, err = tracker.Update(ctx, day.Add(2*time.Hour), 9800)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !status.Halted {
		t.Errorf("停交易状态应持续到当日结束: %+v", status)
	}
}

func TestTrackerDisabledStopLoss(t *testing.T) {
	tracker := newTestTracker(t, config.RiskConfig{
		MaxDailyLoss:        0.05,
		EnableDailyStopLoss: false,
	})
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	if _, err := tracker.Update(ctx, day, 10000); err != nil {
		t.Fatalf("Update: %v", err)
	}
	status, err := tracker.Update(ctx, day.Add(time.Hour), 9000)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if status.Halted {
		t.Errorf("关闭日度止损后不应停交易: %+v", status)
	}
}

func TestTrackerNewDayResetsBaseline(t *testing.T) {
	tracker := newTestTracker(t, config.RiskConfig{
		MaxDailyLoss:        0.05,
		DailyLossResetHour:  8,
		EnableDailyStopLoss: true,
	})
	ctx := context.Background()

	day1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if _, err := tracker.Update(ctx, day1, 10000); err != nil {
		t.Fatalf("Update: %v", err)
	}
	status, err := tracker.Update(ctx, day1.Add(time.Hour), 9000)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !status.Halted {
		t.Fatalf("第一天应触发停交易: %+v", status)
	}

	// 次日 8 点后进入新交易日，以新净值为基准重新计。
	day2 := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)
	status, err = tracker.Update(ctx, day2, 9000)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if status.Halted {
		t.Errorf("新交易日不应继承停交易状态: %+v", status)
	}
	if status.StartEquity != 9000 {
		t.Errorf("新交易日基准净值 = %f, want 9000", status.StartEquity)
	}
}

func TestTradingDayResetHour(t *testing.T) {
	ts := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	if got := tradingDay(ts, 8); got != "2024-04-30" {
		t.Errorf("tradingDay = %s, want 2024-04-30", got)
	}
	if got := tradingDay(ts, 0); got != "2024-05-01" {
		t.Errorf("tradingDay = %s, want 2024-05-01", got)
	}
}
