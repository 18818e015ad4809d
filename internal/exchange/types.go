package exchange

import "time"

const (
	// Timeframe15m 为短周期确认周期。
	Timeframe15m = "15m"
	// Timeframe1h 为主决策周期。
	Timeframe1h = "1h"
	// Timeframe4h 为趋势过滤周期。
	Timeframe4h = "4h"
	// Timeframe1d 为宏观背景周期。
	Timeframe1d = "1d"
	// Timeframe1m 为历史归档周期。
	Timeframe1m = "1m"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OrderBookLevel 表示盘口档位。
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBookSnapshot 为订单簿快照。
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
	Nonce     int64
}

// MarketSnapshot 聚合多个时间框架及盘口数据。
type MarketSnapshot struct {
	Symbol      string
	Candles15M  []Candle
	Candles1H   []Candle
	Candles4H   []Candle
	Candles1D   []Candle
	OrderBook   OrderBookSnapshot
	RetrievedAt time.Time
}

// SnapshotRequest 控制一次快照采集的参数。
type SnapshotRequest struct {
	Limit15M       int
	Limit1H        int
	Limit4H        int
	Limit1D        int
	OrderBookDepth int
}

// DefaultSnapshotRequest 返回默认快照参数。
func DefaultSnapshotRequest() SnapshotRequest {
	return SnapshotRequest{
		Limit15M:       200,
		Limit1H:        200,
		Limit4H:        200,
		Limit1D:        120,
		OrderBookDepth: 100,
	}
}
