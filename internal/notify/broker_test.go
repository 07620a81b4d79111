package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func event(kind domain.EventKind, orderID string) domain.OrderEvent {
	return domain.OrderEvent{Kind: kind, OrderID: orderID, OccurredAt: time.Now().UTC()}
}

func TestBroker_DeliversInPublishOrder(t *testing.T) {
	broker := NewBroker(nil)
	first := broker.Subscribe(8)
	second := broker.Subscribe(8)
	ctx := context.Background()

	kinds := []domain.EventKind{domain.EventOrderCreated, domain.EventOrderUpdated, domain.EventOrderDeleted}
	for _, kind := range kinds {
		if err := broker.Publish(ctx, event(kind, "order-1")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for _, sub := range []*Subscription{first, second} {
		for i, want := range kinds {
			got := <-sub.Events()
			if got.Kind != want {
				t.Fatalf("event %d: expected %s, got %s", i, want, got.Kind)
			}
		}
	}
}

func TestBroker_DropsSlowSubscriber(t *testing.T) {
	broker := NewBroker(nil)
	slow := broker.Subscribe(1)
	fast := broker.Subscribe(8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := broker.Publish(ctx, event(domain.EventOrderUpdated, fmt.Sprintf("order-%d", i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if broker.Subscribers() != 1 {
		t.Fatalf("expected slow subscriber to be dropped, got %d subscribers", broker.Subscribers())
	}

	received := 0
	for range slow.Events() {
		received++
	}
	if received != 1 {
		t.Fatalf("expected slow subscriber to receive buffered event only, got %d", received)
	}
	if !errors.Is(slow.Err(), ErrSubscriberLagged) {
		t.Fatalf("expected ErrSubscriberLagged, got %v", slow.Err())
	}
	if len(fast.Events()) != 3 {
		t.Fatalf("expected fast subscriber to keep all events, got %d", len(fast.Events()))
	}
}

func TestBroker_SubscriptionCloseIsIdempotent(t *testing.T) {
	broker := NewBroker(nil)
	sub := broker.Subscribe(1)

	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel")
	}
	if sub.Err() != nil {
		t.Fatalf("unsubscribe must not report a reason, got %v", sub.Err())
	}
	if err := broker.Publish(context.Background(), event(domain.EventOrderCreated, "order-1")); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}
}

func TestBroker_CloseClosesSubscriptions(t *testing.T) {
	broker := NewBroker(nil)
	sub := broker.Subscribe(1)

	broker.Close()
	broker.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected subscription channel to be closed")
	}
	late := broker.Subscribe(1)
	if _, ok := <-late.Events(); ok {
		t.Fatal("expected subscription after close to be closed")
	}
	for _, s := range []*Subscription{sub, late} {
		if !errors.Is(s.Err(), ErrBrokerClosed) {
			t.Fatalf("expected ErrBrokerClosed, got %v", s.Err())
		}
	}
	sub.Close()
}

func TestBroker_PublishRespectsCanceledContext(t *testing.T) {
	broker := NewBroker(nil)
	sub := broker.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := broker.Publish(ctx, event(domain.EventOrderCreated, "order-1")); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if len(sub.Events()) != 0 {
		t.Fatal("event must not be delivered for canceled publish")
	}
}

func TestBroker_ConcurrentPublishersKeepGlobalOrder(t *testing.T) {
	broker := NewBroker(nil)
	first := broker.Subscribe(1000)
	second := broker.Subscribe(1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = broker.Publish(ctx, event(domain.EventOrderUpdated, fmt.Sprintf("order-%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	if len(first.Events()) != 500 || len(second.Events()) != 500 {
		t.Fatalf("expected 500 events per subscriber, got %d and %d", len(first.Events()), len(second.Events()))
	}
	for i := 0; i < 500; i++ {
		a := <-first.Events()
		b := <-second.Events()
		if a.OrderID != b.OrderID {
			t.Fatalf("subscribers diverged at %d: %s vs %s", i, a.OrderID, b.OrderID)
		}
	}
}
