package fetcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"smc-trader/internal/config"
	"smc-trader/internal/exchange"
	"smc-trader/internal/store"
)

type fakeSource struct {
	symbol  string
	candles []exchange.Candle
	calls   int
}

func (f *fakeSource) Symbol() string { return f.symbol }

func (f *fakeSource) FetchCandlesSince(ctx context.Context, timeframe string, since int64, limit int64) ([]exchange.Candle, error) {
	f.calls++
	out := make([]exchange.Candle, 0, limit)
	for _, c := range f.candles {
		if c.Timestamp.UnixMilli() < since {
			continue
		}
		out = append(out, c)
		if int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func minuteCandles(start time.Time, n int) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	for i := range candles {
		price := 100 + float64(i)
		candles[i] = exchange.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    float64(i + 1),
		}
	}
	return candles
}

func newTestRepo(t *testing.T) *store.CandleRepository {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	repo, err := store.NewCandleRepository(st)
	if err != nil {
		t.Fatalf("初始化K线仓储失败: %v", err)
	}
	return repo
}

func TestBackfillPaginates(t *testing.T) {
	start := time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Minute)
	source := &fakeSource{
		symbol:  "BTC/USDC:USDC",
		candles: minuteCandles(start, 10),
	}
	repo := newTestRepo(t)

	f, err := New(config.FetcherConfig{
		Timeframe:     exchange.Timeframe1m,
		Lookback:      10 * time.Minute,
		BatchSize:     4,
		RatePerSecond: 1000,
		RateBurst:     10,
	}, source, repo, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	progress, err := f.Backfill(context.Background())
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	if progress.Fetched != 10 {
		t.Errorf("fetched = %d, want 10", progress.Fetched)
	}
	if progress.Batches < 3 {
		t.Errorf("batches = %d, want >= 3", progress.Batches)
	}

	count, err := repo.Count(context.Background(), source.symbol, exchange.Timeframe1m)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 10 {
		t.Errorf("stored = %d, want 10", count)
	}
}

func TestBackfillResumesFromLatest(t *testing.T) {
	start := time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Minute)
	all := minuteCandles(start, 10)

	source := &fakeSource{symbol: "BTC/USDC:USDC", candles: all}
	repo := newTestRepo(t)

	// 预先写入前5根，回补应只增量拉取其余部分。
	if _, err := repo.Upsert(context.Background(), source.symbol, exchange.Timeframe1m, all[:5]); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	f, err := New(config.FetcherConfig{
		Timeframe:     exchange.Timeframe1m,
		Lookback:      time.Hour,
		BatchSize:     100,
		RatePerSecond: 1000,
		RateBurst:     10,
	}, source, repo, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	progress, err := f.Backfill(context.Background())
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	if progress.Fetched != 5 {
		t.Errorf("fetched = %d, want 5", progress.Fetched)
	}
	wantFrom := all[4].Timestamp.Add(time.Minute)
	if !progress.From.Equal(wantFrom) {
		t.Errorf("from = %v, want %v", progress.From, wantFrom)
	}

	count, err := repo.Count(context.Background(), source.symbol, exchange.Timeframe1m)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 10 {
		t.Errorf("stored = %d, want 10", count)
	}
}

func TestBackfillReportsGaps(t *testing.T) {
	start := time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Minute)
	all := minuteCandles(start, 10)

	// 抽掉中间3根，模拟交易所返回不连续的K线。
	gapped := append(append([]exchange.Candle{}, all[:3]...), all[6:]...)
	source := &fakeSource{symbol: "BTC/USDC:USDC", candles: gapped}
	repo := newTestRepo(t)

	f, err := New(config.FetcherConfig{
		Timeframe:     exchange.Timeframe1m,
		Lookback:      20 * time.Minute,
		BatchSize:     100,
		RatePerSecond: 1000,
		RateBurst:     10,
	}, source, repo, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	progress, err := f.Backfill(context.Background())
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	if progress.Fetched != 7 {
		t.Errorf("fetched = %d, want 7", progress.Fetched)
	}
	if progress.Gaps != 3 {
		t.Errorf("gaps = %d, want 3", progress.Gaps)
	}
}

func TestBackfillContinuousHasNoGaps(t *testing.T) {
	start := time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Minute)
	source := &fakeSource{symbol: "BTC/USDC:USDC", candles: minuteCandles(start, 10)}
	repo := newTestRepo(t)

	// 小批次拉取时批与批之间也不应误报缺口。
	f, err := New(config.FetcherConfig{
		Timeframe:     exchange.Timeframe1m,
		Lookback:      20 * time.Minute,
		BatchSize:     4,
		RatePerSecond: 1000,
		RateBurst:     10,
	}, source, repo, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	progress, err := f.Backfill(context.Background())
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	if progress.Gaps != 0 {
		t.Errorf("gaps = %d, want 0", progress.Gaps)
	}
}

func TestExportAndReadCSV(t *testing.T) {
	start := time.Now().UTC().Add(-5 * time.Minute).Truncate(time.Minute)
	candles := minuteCandles(start, 5)

	source := &fakeSource{symbol: "BTC/USDC:USDC", candles: candles}
	repo := newTestRepo(t)

	if _, err := repo.Upsert(context.Background(), source.symbol, exchange.Timeframe1m, candles); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	csvPath := filepath.Join(t.TempDir(), "btc_1m.csv")
	f, err := New(config.FetcherConfig{
		Timeframe:     exchange.Timeframe1m,
		Lookback:      time.Hour,
		BatchSize:     100,
		RatePerSecond: 1000,
		RateBurst:     10,
		CSVPath:       csvPath,
	}, source, repo, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rows, err := f.ExportCSV(context.Background(), start.Add(-time.Minute), time.Now().UTC())
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if rows != 5 {
		t.Errorf("exported rows = %d, want 5", rows)
	}

	parsed, err := ReadCSV(csvPath)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(parsed) != 5 {
		t.Fatalf("parsed rows = %d, want 5", len(parsed))
	}
	if !parsed[0].Timestamp.Equal(candles[0].Timestamp) {
		t.Errorf("timestamp = %v, want %v", parsed[0].Timestamp, candles[0].Timestamp)
	}
	if parsed[2].Close != candles[2].Close {
		t.Errorf("close = %f, want %f", parsed[2].Close, candles[2].Close)
	}
}
