package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	bodies   []string
	attrs    []map[string]string
}

func (f *fakePublisher) Publish(ctx context.Context, body string, attributes map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("sqs unavailable")
	}
	f.bodies = append(f.bodies, body)
	f.attrs = append(f.attrs, attributes)
	return nil
}

func TestDispatcher_PublishesAndRetries(t *testing.T) {
	pub := &fakePublisher{failures: 2}
	d := NewDispatcher(pub, Options{Workers: 1, Buffer: 4, MaxAttempts: 3, RetryBackoff: time.Millisecond}, zap.NewNop())
	d.sleep = func(time.Duration) {}
	d.Start()

	ev := OrderEvent{Type: TypeOrderCreated, OrderID: "o-1", Total: 150000, ItemCount: 2, PaymentMethod: "efectivo"}
	if err := d.Dispatch(ev); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if pub.calls != 3 || len(pub.bodies) != 1 {
		t.Fatalf("expected 3 attempts and one delivery, got %d/%d", pub.calls, len(pub.bodies))
	}
	var got OrderEvent
	if err := json.Unmarshal([]byte(pub.bodies[0]), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.OrderID != "o-1" || got.Type != TypeOrderCreated {
		t.Fatalf("unexpected event %+v", got)
	}
	if pub.attrs[0]["event_type"] != TypeOrderCreated {
		t.Fatalf("missing event_type attribute: %v", pub.attrs[0])
	}
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	pub := &fakePublisher{failures: 10}
	d := NewDispatcher(pub, Options{Workers: 1, MaxAttempts: 2}, zap.NewNop())
	d.Start()
	_ = d.Dispatch(OrderEvent{Type: TypeOrderCreated, OrderID: "o-2"})
	_ = d.Close(context.Background())
	if pub.calls != 2 || len(pub.bodies) != 0 {
		t.Fatalf("expected 2 failed attempts, got calls=%d bodies=%d", pub.calls, len(pub.bodies))
	}
}

func TestDispatcher_NonBlockingWhenFullOrClosed(t *testing.T) {
	d := NewDispatcher(&fakePublisher{}, Options{Workers: 1, Buffer: 1}, zap.NewNop())
	// workers not started: the buffer fills after one event
	if err := d.Dispatch(OrderEvent{OrderID: "a"}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := d.Dispatch(OrderEvent{OrderID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	d.Start()
	_ = d.Close(context.Background())
	if err := d.Dispatch(OrderEvent{OrderID: "c"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcher_InlinePublishesBeforeReturning(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	d := NewDispatcher(pub, Options{Inline: true, MaxAttempts: 2}, zap.NewNop())
	d.sleep = func(time.Duration) {}
	d.Start()

	if err := d.Dispatch(OrderEvent{Type: TypeOrderCreated, OrderID: "o-3"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	pub.mu.Lock()
	calls, delivered := pub.calls, len(pub.bodies)
	pub.mu.Unlock()
	if calls != 2 || delivered != 1 {
		t.Fatalf("expected the event published within Dispatch, got calls=%d bodies=%d", calls, delivered)
	}

	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := d.Dispatch(OrderEvent{OrderID: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
