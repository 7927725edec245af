package bus

import (
	"context"
	"testing"
)

func TestEmitInvokesHandlersInRegistrationOrder(t *testing.T) {
	b := New()
	var order []string

	b.Register("test-channel", func(_ context.Context, _ Message) {
		order = append(order, "first")
	})
	b.Register("test-channel", func(_ context.Context, _ Message) {
		order = append(order, "second")
	})
	b.Register("other-channel", func(_ context.Context, _ Message) {
		order = append(order, "other")
	})

	b.Emit(context.Background(), "test-channel", Message{TaskID: "t1"})

	if len(order) != 2 {
		t.Fatalf("unexpected handler invocations: %v", order)
	}
	if order[0] != "first" || order[1] != "second" {
		t.Fatalf("handlers ran out of order: %v", order)
	}
}

func TestEmitWithoutListenersIsNoop(t *testing.T) {
	b := New()
	// 没有任何监听方时 Emit 不应崩溃或阻塞。
	b.Emit(context.Background(), "empty-channel", Message{TaskID: "t1"})
}

func TestRegisterCancelStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	cancel := b.Register("test-channel", func(_ context.Context, _ Message) {
		calls++
	})

	b.Emit(context.Background(), "test-channel", Message{})
	cancel()
	b.Emit(context.Background(), "test-channel", Message{})

	if calls != 1 {
		t.Fatalf("expected 1 call after cancel, got %d", calls)
	}
}

func TestSubscribeReceivesStampedMessages(t *testing.T) {
	b := New()
	ch := b.Subscribe("task-update")

	b.Emit(context.Background(), "task-update", Message{TaskID: "t1", Status: StatusCompleted})

	select {
	case msg := <-ch:
		if msg.TaskID != "t1" {
			t.Fatalf("unexpected task id: %q", msg.TaskID)
		}
		if msg.Timestamp == "" {
			t.Fatal("expected emitted message to carry a timestamp")
		}
	default:
		t.Fatal("expected a buffered message on the subscription channel")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch := b.Subscribe("task-update")
	b.Unsubscribe("task-update", ch)

	if _, ok := <-ch; ok {
		t.Fatal("expected subscription channel to be closed")
	}

	b.Emit(context.Background(), "task-update", Message{TaskID: "t1"})
}

func TestDirectChannelNaming(t *testing.T) {
	if got := Direct("task-manager", "observer"); got != "task-manager-observer" {
		t.Fatalf("unexpected channel name: %q", got)
	}
}
