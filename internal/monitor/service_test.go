package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"smc-trader/internal/config"
	"smc-trader/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("创建监控服务失败: %v", err)
	}
	return svc
}

func TestRecordAndListEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordStream(ctx, StreamPayload{State: "connected", Symbol: "BTC", Attempt: 1})
	svc.RecordError(ctx, "测试异常", errors.New("boom"), map[string]interface{}{"symbol": "BTC"})
	svc.RecordStream(ctx, StreamPayload{State: "disconnected", Symbol: "BTC", Attempt: 2})

	events, err := svc.ListEvents(ctx, EventStream, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("stream events = %d, want 2", len(events))
	}

	// 结果按时间倒序返回。
	raw, ok := events[0].Payload.(json.RawMessage)
	if !ok {
		t.Fatalf("payload type = %T", events[0].Payload)
	}
	var payload StreamPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("解析事件负载失败: %v", err)
	}
	if payload.State != "disconnected" || payload.Attempt != 2 {
		t.Errorf("latest payload = %+v", payload)
	}

	all, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all events = %d, want 3", len(all))
	}
}

func TestListEventsLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordStream(ctx, StreamPayload{State: "connected", Attempt: i})
	}

	events, err := svc.ListEvents(ctx, EventStream, 3)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("events = %d, want 3", len(events))
	}
}

func TestRecordSetsTimestamp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Record(ctx, Event{Type: EventStream, Payload: StreamPayload{State: "connected"}}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	events, err := svc.ListEvents(ctx, EventStream, 1)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Timestamp.IsZero() || time.Since(events[0].Timestamp) > time.Minute {
		t.Errorf("timestamp 未自动填充: %v", events[0].Timestamp)
	}
}
