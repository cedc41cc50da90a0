package event

import (
	"context"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestBus_PublishToTopic(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []string
	bus.Subscribe(TopicConnectivityLost, func(_ context.Context, e Event) {
		got = append(got, e.Topic)
	})
	bus.Subscribe(TopicLoginAttempt, func(_ context.Context, e Event) {
		t.Errorf("unexpected delivery of %q to login.attempt handler", e.Topic)
	})

	bus.Publish(context.Background(), New(TopicConnectivityLost, "daemon", ConnectivityLost{ConsecutiveFailures: 1}))

	if len(got) != 1 || got[0] != TopicConnectivityLost {
		t.Errorf("delivered = %v, want [%s]", got, TopicConnectivityLost)
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var count atomic.Int32
	bus.SubscribeAll(func(context.Context, Event) { count.Add(1) })

	bus.Publish(context.Background(), New(TopicLoginAttempt, "retry", nil))
	bus.Publish(context.Background(), New(TopicLoginExhausted, "retry", nil))

	if count.Load() != 2 {
		t.Errorf("count = %d, want 2", count.Load())
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var topicCalls, allCalls int
	unsub := bus.Subscribe(TopicLoginSucceeded, func(context.Context, Event) { topicCalls++ })
	unsubAll := bus.SubscribeAll(func(context.Context, Event) { allCalls++ })

	bus.Publish(context.Background(), New(TopicLoginSucceeded, "retry", nil))
	unsub()
	unsubAll()
	bus.Publish(context.Background(), New(TopicLoginSucceeded, "retry", nil))

	if topicCalls != 1 || allCalls != 1 {
		t.Errorf("topicCalls = %d, allCalls = %d, want 1, 1", topicCalls, allCalls)
	}
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var after bool
	bus.Subscribe(TopicTickPanicked, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(TopicTickPanicked, func(context.Context, Event) { after = true })

	bus.Publish(context.Background(), New(TopicTickPanicked, "daemon", nil))

	if !after {
		t.Error("handler after the panicking one was not called")
	}
}

func TestNew_StampsIDAndTime(t *testing.T) {
	a := New(TopicLoginAttempt, "retry", nil)
	b := New(TopicLoginAttempt, "retry", nil)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("IDs = %q, %q, want distinct non-empty", a.ID, b.ID)
	}
	if a.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
}
