package store

import (
	"context"
	"testing"
	"time"

	"smc-trader/internal/config"
	"smc-trader/internal/exchange"
)

func newTestRepo(t *testing.T) *CandleRepository {
	t.Helper()

	st, err := NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	repo, err := NewCandleRepository(st)
	if err != nil {
		t.Fatalf("创建K线仓储失败: %v", err)
	}
	return repo
}

func sampleCandles(start time.Time, n int) []exchange.Candle {
	candles := make([]exchange.Candle, 0, n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)
		candles = append(candles, exchange.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    10,
		})
	}
	return candles
}

func TestUpsertAndRange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := sampleCandles(start, 5)

	stored, err := repo.Upsert(ctx, "BTC/USDC:USDC", "1h", candles)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stored != 5 {
		t.Errorf("stored = %d, want 5", stored)
	}

	got, err := repo.Range(ctx, "BTC/USDC:USDC", "1h", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("candles not sorted at %d", i)
		}
	}
}

func TestUpsertOverwritesSameBar(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := sampleCandles(start, 1)

	if _, err := repo.Upsert(ctx, "BTC/USDC:USDC", "1h", candles); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// 同一根K线写入新数据应覆盖旧值，不产生重复行。
	candles[0].Close = 123.45
	if _, err := repo.Upsert(ctx, "BTC/USDC:USDC", "1h", candles); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	count, err := repo.Count(ctx, "BTC/USDC:USDC", "1h")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	got, err := repo.Range(ctx, "BTC/USDC:USDC", "1h", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if got[0].Close != 123.45 {
		t.Errorf("close = %f, want 123.45", got[0].Close)
	}
}

func TestRangeFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := repo.Upsert(ctx, "BTC/USDC:USDC", "1h", sampleCandles(start, 10)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.Range(ctx, "BTC/USDC:USDC", "1h", start.Add(2*time.Hour), start.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("len = %d, want 4", len(got))
	}

	// 不同周期彼此隔离。
	other, err := repo.Range(ctx, "BTC/USDC:USDC", "4h", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other timeframe len = %d, want 0", len(other))
	}
}

func TestLatestTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ts, err := repo.LatestTimestamp(ctx, "BTC/USDC:USDC", "1h")
	if err != nil {
		t.Fatalf("LatestTimestamp: %v", err)
	}
	if !ts.IsZero() {
		t.Errorf("empty repo should return zero time, got %v", ts)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := repo.Upsert(ctx, "BTC/USDC:USDC", "1h", sampleCandles(start, 3)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ts, err = repo.LatestTimestamp(ctx, "BTC/USDC:USDC", "1h")
	if err != nil {
		t.Fatalf("LatestTimestamp: %v", err)
	}
	want := start.Add(2 * time.Hour)
	if !ts.Equal(want) {
		t.Errorf("latest = %v, want %v", ts, want)
	}
}
