package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"smc-trader/internal/exchange"
)

// envelope 为 Hyperliquid WebSocket 的统一消息外壳。
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// subscribeRequest 为订阅指令。
type subscribeRequest struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

type subscription struct {
	Type     string `json:"type"`
	Coin     string `json:"coin"`
	Interval string `json:"interval"`
}

// candleMessage 对应 candle 频道推送，价格与成交量为字符串。
type candleMessage struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Trades    int64  `json:"n"`
}

// Update 为推送给消费方的K线更新。
type Update struct {
	Coin       string
	Interval   string
	Candle     exchange.Candle
	Trades     int64
	ReceivedAt time.Time
}

func (m candleMessage) toUpdate(now time.Time) (Update, error) {
	values := make([]float64, 0, 5)
	for _, raw := range []string{m.Open, m.High, m.Low, m.Close, m.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Update{}, fmt.Errorf("stream: 解析K线数值失败 %q: %w", raw, err)
		}
		values = append(values, v)
	}

	return Update{
		Coin:     m.Symbol,
		Interval: m.Interval,
		Candle: exchange.Candle{
			Timestamp: time.UnixMilli(m.OpenTime).UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		},
		Trades:     m.Trades,
		ReceivedAt: now,
	}, nil
}
