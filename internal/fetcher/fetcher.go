package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"smc-trader/internal/config"
	"smc-trader/internal/exchange"
	"smc-trader/internal/store"
)

type candleSource interface {
	FetchCandlesSince(ctx context.Context, timeframe string, since int64, limit int64) ([]exchange.Candle, error)
	Symbol() string
}

// Progress 汇总一次回补的结果。Gaps 为按时间周期推算出的缺失K线数量。
type Progress struct {
	Symbol    string
	Timeframe string
	Batches   int
	Fetched   int
	Stored    int
	Gaps      int
	From      time.Time
	To        time.Time
}

// Fetcher 负责把历史K线分批拉取并落库。
// 首次运行按 Lookback 回溯，之后从库内最新K线续传。
type Fetcher struct {
	cfg     config.FetcherConfig
	source  candleSource
	candles *store.CandleRepository
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New 创建 Fetcher。
func New(cfg config.FetcherConfig, source candleSource, candles *store.CandleRepository, logger *zap.Logger) (*Fetcher, error) {
	if source == nil {
		return nil, errors.New("fetcher: 数据源不能为空")
	}
	if candles == nil {
		return nil, errors.New("fetcher: K线仓储不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Timeframe == "" {
		cfg.Timeframe = exchange.Timeframe1m
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30 * 24 * time.Hour
	}

	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Fetcher{
		cfg:     cfg,
		source:  source,
		candles: candles,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  logger,
	}, nil
}

// Backfill 从上次落库位置（或 Lookback 起点）拉取到当前时刻。
func (f *Fetcher) Backfill(ctx context.Context) (Progress, error) {
	symbol := f.source.Symbol()
	progress := Progress{
		Symbol:    symbol,
		Timeframe: f.cfg.Timeframe,
	}

	interval, err := timeframeDuration(f.cfg.Timeframe)
	if err != nil {
		return progress, err
	}

	since, err := f.resumePoint(ctx, symbol, interval)
	if err != nil {
		return progress, err
	}
	progress.From = since

	f.logger.Info("开始回补历史K线",
		zap.String("symbol", symbol),
		zap.String("timeframe", f.cfg.Timeframe),
		zap.Time("since", since),
	)

	cursor := since
	var prevStored time.Time
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return progress, err
		}

		batch, err := f.source.FetchCandlesSince(ctx, f.cfg.Timeframe, cursor.UnixMilli(), int64(f.cfg.BatchSize))
		if err != nil {
			return progress, fmt.Errorf("fetcher: 拉取K线失败: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		// 交易所可能把 since 所在的K线重复返回，去掉游标之前的数据。
		batch = trimBefore(batch, cursor)
		if len(batch) == 0 {
			break
		}

		stored, err := f.candles.Upsert(ctx, symbol, f.cfg.Timeframe, batch)
		if err != nil {
			return progress, err
		}

		progress.Gaps += f.countGaps(prevStored, batch, interval)
		prevStored = batch[len(batch)-1].Timestamp

		progress.Batches++
		progress.Fetched += len(batch)
		progress.Stored += stored
		progress.To = batch[len(batch)-1].Timestamp

		f.logger.Debug("完成一批K线回补",
			zap.Int("batch", progress.Batches),
			zap.Int("count", len(batch)),
			zap.Time("last", progress.To),
		)

		// 不足一整批说明已经追上了最新数据。
		if len(batch) < f.cfg.BatchSize {
			break
		}

		cursor = progress.To.Add(interval)
		if !cursor.Before(time.Now().UTC()) {
			break
		}
	}

	f.logger.Info("历史K线回补完成",
		zap.Int("batches", progress.Batches),
		zap.Int("fetched", progress.Fetched),
		zap.Int("stored", progress.Stored),
		zap.Int("gaps", progress.Gaps),
		zap.Time("from", progress.From),
		zap.Time("to", progress.To),
	)

	return progress, nil
}

// countGaps 对照时间周期检查相邻K线的间隔，返回缺失的K线数量。
// prev 为上一批最后一根K线的时间，首批传零值。
func (f *Fetcher) countGaps(prev time.Time, batch []exchange.Candle, interval time.Duration) int {
	missing := 0
	for _, c := range batch {
		if !prev.IsZero() {
			if expected := prev.Add(interval); c.Timestamp.After(expected) {
				n := int(c.Timestamp.Sub(expected) / interval)
				missing += n
				f.logger.Warn("检测到K线缺口",
					zap.Time("expected", expected),
					zap.Time("actual", c.Timestamp),
					zap.Int("missing", n),
				)
			}
		}
		prev = c.Timestamp
	}
	return missing
}

// resumePoint 取库内最新K线之后的位置，没有历史数据时按 Lookback 回溯。
func (f *Fetcher) resumePoint(ctx context.Context, symbol string, interval time.Duration) (time.Time, error) {
	latest, err := f.candles.LatestTimestamp(ctx, symbol, f.cfg.Timeframe)
	if err != nil {
		return time.Time{}, err
	}
	if !latest.IsZero() {
		return latest.Add(interval), nil
	}
	return time.Now().UTC().Add(-f.cfg.Lookback).Truncate(interval), nil
}

func trimBefore(candles []exchange.Candle, cursor time.Time) []exchange.Candle {
	idx := 0
	for idx < len(candles) && candles[idx].Timestamp.Before(cursor) {
		idx++
	}
	return candles[idx:]
}

func timeframeDuration(timeframe string) (time.Duration, error) {
	switch timeframe {
	case exchange.Timeframe1m:
		return time.Minute, nil
	case exchange.Timeframe15m:
		return 15 * time.Minute, nil
	case exchange.Timeframe1h:
		return time.Hour, nil
	case exchange.Timeframe4h:
		return 4 * time.Hour, nil
	case exchange.Timeframe1d:
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("fetcher: 不支持的时间周期 %s", timeframe)
	}
}
