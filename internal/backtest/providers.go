package backtest

import (
	"context"
	"errors"

	"smc-trader/internal/ai"
	"smc-trader/internal/exchange"
	"smc-trader/internal/feature"
	"smc-trader/internal/position"
)

// SliceSnapshotProvider 以固定序列提供快照。
type SliceSnapshotProvider struct {
	snapshots []exchange.MarketSnapshot
	index     int
}

func NewSliceSnapshotProvider(snaps []exchange.MarketSnapshot) *SliceSnapshotProvider {
	return &SliceSnapshotProvider{snapshots: snaps}
}

func (p *SliceSnapshotProvider) Next(ctx context.Context) (exchange.MarketSnapshot, bool, error) {
	if p.index >= len(p.snapshots) {
		return exchange.MarketSnapshot{}, false, nil
	}
	snap := p.snapshots[p.index]
	p.index++
	return snap, true, nil
}

// ArchiveProvider 在历史1小时K线上滑动窗口生成快照，
// 4小时与日线序列由窗口内的1小时K线聚合得到。
type ArchiveProvider struct {
	symbol     string
	candles    []exchange.Candle
	windowSize int
	stepSize   int
	cursor     int
}

// NewArchiveProvider 创建历史数据快照源。
func NewArchiveProvider(symbol string, candles []exchange.Candle, windowSize, stepSize int) (*ArchiveProvider, error) {
	if windowSize <= 0 {
		windowSize = 240
	}
	if stepSize <= 0 {
		stepSize = 1
	}
	if len(candles) < windowSize {
		return nil, errors.New("backtest: 历史K线不足一个窗口")
	}

	return &ArchiveProvider{
		symbol:     symbol,
		candles:    candles,
		windowSize: windowSize,
		stepSize:   stepSize,
		cursor:     windowSize,
	}, nil
}

func (p *ArchiveProvider) Next(ctx context.Context) (exchange.MarketSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return exchange.MarketSnapshot{}, false, err
	}
	if p.cursor > len(p.candles) {
		return exchange.MarketSnapshot{}, false, nil
	}

	window := p.candles[p.cursor-p.windowSize : p.cursor]
	last := window[len(window)-1]

	snapshot := exchange.MarketSnapshot{
		Symbol:      p.symbol,
		Candles1H:   window,
		Candles4H:   aggregate(window, 4),
		Candles1D:   aggregate(window, 24),
		RetrievedAt: last.Timestamp,
	}

	p.cursor += p.stepSize
	return snapshot, true, nil
}

// aggregate 将1小时K线按 factor 根聚合为更大周期，尾部不足一组的丢弃。
func aggregate(candles []exchange.Candle, factor int) []exchange.Candle {
	if factor <= 1 || len(candles) < factor {
		return nil
	}

	out := make([]exchange.Candle, 0, len(candles)/factor)
	start := len(candles) % factor
	for i := start; i+factor <= len(candles); i += factor {
		group := candles[i : i+factor]
		agg := exchange.Candle{
			Timestamp: group[0].Timestamp,
			Open:      group[0].Open,
			High:      group[0].High,
			Low:       group[0].Low,
			Close:     group[len(group)-1].Close,
		}
		for _, c := range group {
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Volume += c.Volume
		}
		out = append(out, agg)
	}
	return out
}

// DecisionProviderFunc 允许使用函数作为决策提供者。
type DecisionProviderFunc func(ctx context.Context, features feature.FeatureSet, pos position.Summary) (ai.Decision, error)

func (f DecisionProviderFunc) Decide(ctx context.Context, features feature.FeatureSet, pos position.Summary) (ai.Decision, error) {
	if f == nil {
		return ai.Decision{}, errors.New("backtest: 决策函数未实现")
	}
	return f(ctx, features, pos)
}
