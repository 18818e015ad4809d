package stream

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smc-trader/internal/config"
)

// StateHandler 在连接状态变化时回调，供监控记录。
type StateHandler func(state, detail string, attempt int)

// Client 订阅 Hyperliquid 的K线推送并转成内部更新。
// 连接断开后按固定间隔重连，消费方处理不过来时丢弃最旧之外的新数据。
type Client struct {
	cfg     config.StreamConfig
	coin    string
	logger  *zap.Logger
	updates chan Update
	onState StateHandler
}

// NewClient 创建推送客户端。
func NewClient(cfg config.StreamConfig, coin string, logger *zap.Logger) (*Client, error) {
	if coin == "" {
		return nil, errors.New("stream: coin 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.URL == "" {
		cfg.URL = "wss://api.hyperliquid.xyz/ws"
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}

	return &Client{
		cfg:     cfg,
		coin:    coin,
		logger:  logger,
		updates: make(chan Update, cfg.BufferSize),
	}, nil
}

// OnStateChange 注册连接状态回调。
func (c *Client) OnStateChange(handler StateHandler) {
	c.onState = handler
}

// Updates 返回K线更新通道。
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Run 维持订阅直到 ctx 取消，返回时关闭更新通道。
func (c *Client) Run(ctx context.Context) error {
	defer close(c.updates)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempt++
		err := c.runOnce(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		c.notify("disconnected", errString(err), attempt)
		c.logger.Warn("行情推送连接断开，准备重连",
			zap.Int("attempt", attempt),
			zap.Duration("delay", c.cfg.ReconnectDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := subscribeRequest{
		Method: "subscribe",
		Subscription: subscription{
			Type:     "candle",
			Coin:     c.coin,
			Interval: c.cfg.Interval,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	c.notify("connected", "", 0)
	c.logger.Info("行情推送已订阅",
		zap.String("coin", c.coin),
		zap.String("interval", c.cfg.Interval),
	)

	// 读循环由单独的 goroutine 负责，主循环处理心跳与取消。
	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(conn)
	}()

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-pingTicker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		update, ok, err := decodeUpdate(payload)
		if err != nil {
			c.logger.Warn("解析推送消息失败", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		select {
		case c.updates <- update:
		default:
			// 消费方滞后时丢弃新数据，快照拉取会补齐缺口。
			c.logger.Warn("更新通道已满，丢弃K线推送",
				zap.Time("candle_time", update.Candle.Timestamp),
			)
		}
	}
}

// decodeUpdate 解析单条推送，忽略非 candle 频道的消息。
func decodeUpdate(payload []byte) (Update, bool, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Update{}, false, err
	}

	if env.Channel != "candle" {
		return Update{}, false, nil
	}

	var msg candleMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return Update{}, false, err
	}

	update, err := msg.toUpdate(time.Now().UTC())
	if err != nil {
		return Update{}, false, err
	}

	return update, true, nil
}

func (c *Client) notify(state, detail string, attempt int) {
	if c.onState != nil {
		c.onState(state, detail, attempt)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
