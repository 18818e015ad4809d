package stream

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"smc-trader/internal/config"
)

func TestDecodeUpdate(t *testing.T) {
	payload := []byte(`{
		"channel": "candle",
		"data": {
			"t": 1700000000000,
			"T": 1700000059999,
			"s": "BTC",
			"i": "1m",
			"o": "50000.5",
			"c": "50100.25",
			"h": "50200",
			"l": "49950",
			"v": "12.5",
			"n": 321
		}
	}`)

	update, ok, err := decodeUpdate(payload)
	if err != nil {
		t.Fatalf("decodeUpdate: %v", err)
	}
	if !ok {
		t.Fatalf("candle message should be decoded")
	}

	if update.Coin != "BTC" || update.Interval != "1m" {
		t.Errorf("unexpected identity: %+v", update)
	}
	if !update.Candle.Timestamp.Equal(time.UnixMilli(1700000000000).UTC()) {
		t.Errorf("timestamp = %v", update.Candle.Timestamp)
	}
	if update.Candle.Open != 50000.5 || update.Candle.Close != 50100.25 {
		t.Errorf("prices = %+v", update.Candle)
	}
	if update.Candle.High != 50200 || update.Candle.Low != 49950 {
		t.Errorf("extremes = %+v", update.Candle)
	}
	if update.Candle.Volume != 12.5 {
		t.Errorf("volume = %f", update.Candle.Volume)
	}
	if update.Trades != 321 {
		t.Errorf("trades = %d", update.Trades)
	}
}

func TestDecodeUpdate_IgnoresOtherChannels(t *testing.T) {
	payload := []byte(`{"channel":"subscriptionResponse","data":{"method":"subscribe"}}`)

	_, ok, err := decodeUpdate(payload)
	if err != nil {
		t.Fatalf("decodeUpdate: %v", err)
	}
	if ok {
		t.Errorf("non-candle channel should be ignored")
	}
}

func TestDecodeUpdate_BadPrice(t *testing.T) {
	payload := []byte(`{"channel":"candle","data":{"t":0,"s":"BTC","i":"1m","o":"abc","c":"1","h":"1","l":"1","v":"1"}}`)

	_, _, err := decodeUpdate(payload)
	if err == nil {
		t.Errorf("invalid price should error")
	}
}

func TestReadLoopDropsWhenFull(t *testing.T) {
	messages := make([][]byte, 3)
	for i := range messages {
		openTime := int64(1700000000000) + int64(i)*60000
		messages[i] = []byte(fmt.Sprintf(
			`{"channel":"candle","data":{"t":%d,"T":%d,"s":"BTC","i":"1m","o":"100","c":"%d","h":"110","l":"90","v":"1","n":1}}`,
			openTime, openTime+59999, 100+i))
	}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	client, err := NewClient(config.StreamConfig{BufferSize: 1}, "BTC", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := client.readLoop(conn); err == nil {
		t.Fatalf("连接关闭后 readLoop 应返回错误")
	}

	// 缓冲区只有1个位置，后到的更新应被丢弃而不是阻塞读循环。
	if got := len(client.updates); got != 1 {
		t.Fatalf("buffered updates = %d, want 1", got)
	}
	update := <-client.updates
	if update.Candle.Close != 100 {
		t.Errorf("保留的应是最早一条更新, close = %f", update.Candle.Close)
	}
}
