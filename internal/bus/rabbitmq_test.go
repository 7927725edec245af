package bus

import (
	"context"
	"encoding/json"
	"testing"
)

func TestEnvelopeCarriesChannelAndPayload(t *testing.T) {
	msg := Message{
		TaskID: "t1",
		Status: StatusCompleted,
		Agent:  "task-manager",
	}
	body, err := json.Marshal(envelope{Channel: ChannelTaskUpdate, Payload: msg})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded struct {
		Channel string  `json:"channel"`
		Payload Message `json:"payload"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if decoded.Channel != ChannelTaskUpdate {
		t.Fatalf("unexpected channel: %q", decoded.Channel)
	}
	if decoded.Payload.TaskID != "t1" || decoded.Payload.Status != StatusCompleted {
		t.Fatalf("unexpected payload: %+v", decoded.Payload)
	}
}

func TestBridgeWithoutConnectionDoesNotBlockBus(t *testing.T) {
	eventBus := New()
	bridge := &RabbitMQBridge{}
	bridge.Attach(eventBus, ChannelTaskUpdate)

	// 转发失败只记日志，发布方不受影响。
	eventBus.Emit(context.Background(), ChannelTaskUpdate, Message{TaskID: "t1"})

	if err := bridge.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewRabbitMQBridgeRequiresURL(t *testing.T) {
	if _, err := NewRabbitMQBridge(RabbitMQBridgeConfig{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
