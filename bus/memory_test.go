package bus

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// --- Unit Tests ---

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	var got *Message
	_, err := b.Subscribe("task.submitted", func(msg *Message) error {
		got = msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	id, err := b.Publish("task.submitted", map[string]interface{}{"task_id": "t1"}, "orchestrator")
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	if got == nil {
		t.Fatal("handler not invoked")
	}
	if got.ID != id {
		t.Errorf("message ID = %q, want %q", got.ID, id)
	}
	if got.Topic != "task.submitted" {
		t.Errorf("Topic = %q", got.Topic)
	}
	if got.SenderID != "orchestrator" {
		t.Errorf("SenderID = %q", got.SenderID)
	}
	if got.Payload["task_id"] != "t1" {
		t.Errorf("Payload = %v", got.Payload)
	}
	if got.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestMemoryBus_DeliveryOrder(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.Subscribe("topic", func(msg *Message) error {
			order = append(order, i)
			return nil
		})
	}

	b.Publish("topic", nil, "")

	if len(order) != 5 {
		t.Fatalf("delivered to %d handlers, want 5", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("delivery order = %v, want registration order", order)
		}
	}
}

func TestMemoryBus_SubscriberFaultIsolation(t *testing.T) {
	b := NewMemoryBus(Config{Logger: &nopFaultLogger{}})
	defer b.Close()

	var delivered []string
	b.Subscribe("topic", func(msg *Message) error {
		delivered = append(delivered, "first")
		return errors.New("handler error")
	})
	b.Subscribe("topic", func(msg *Message) error {
		panic("handler panic")
	})
	b.Subscribe("topic", func(msg *Message) error {
		delivered = append(delivered, "third")
		return nil
	})

	if _, err := b.Publish("topic", nil, ""); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	if len(delivered) != 2 || delivered[1] != "third" {
		t.Errorf("delivered = %v, want error and panic isolated", delivered)
	}
}

func TestMemoryBus_MessageIDsMonotonic(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	for i := 1; i <= 3; i++ {
		id, _ := b.Publish("topic", nil, "")
		want := fmt.Sprintf("msg_%d", i)
		if id != want {
			t.Errorf("id = %q, want %q", id, want)
		}
	}
}

func TestMemoryBus_HistoryBounded(t *testing.T) {
	b := NewMemoryBus(Config{MaxHistory: 3})
	defer b.Close()

	for i := 1; i <= 5; i++ {
		b.Publish("topic", map[string]interface{}{"n": i}, "")
	}

	history := b.History("", 0)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	// Oldest evicted first.
	if history[0].Payload["n"] != 3 || history[2].Payload["n"] != 5 {
		t.Errorf("history = [%v..%v], want [3..5]", history[0].Payload["n"], history[2].Payload["n"])
	}
	if b.MessageCount() != 3 {
		t.Errorf("MessageCount = %d, want 3", b.MessageCount())
	}
}

func TestMemoryBus_HistoryFilterAndLimit(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	b.Publish("a", map[string]interface{}{"n": 1}, "")
	b.Publish("b", map[string]interface{}{"n": 2}, "")
	b.Publish("a", map[string]interface{}{"n": 3}, "")

	onlyA := b.History("a", 0)
	if len(onlyA) != 2 {
		t.Fatalf("topic filter: %d messages, want 2", len(onlyA))
	}

	latest := b.History("", 1)
	if len(latest) != 1 || latest[0].Payload["n"] != 3 {
		t.Errorf("limit should keep the most recent message")
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	count := 0
	sub, _ := b.Subscribe("topic", func(msg *Message) error {
		count++
		return nil
	})

	b.Publish("topic", nil, "")
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}
	// Safe to call twice.
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe error: %v", err)
	}
	b.Publish("topic", nil, "")

	if count != 1 {
		t.Errorf("handler invoked %d times, want 1", count)
	}
}

func TestMemoryBus_Topics(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	b.Subscribe("a", func(msg *Message) error { return nil })
	sub, _ := b.Subscribe("b", func(msg *Message) error { return nil })
	sub.Unsubscribe()

	topics := b.Topics()
	if len(topics) != 1 || topics[0] != "a" {
		t.Errorf("Topics = %v, want [a]", topics)
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	b := NewMemoryBus(Config{})
	b.Close()

	if _, err := b.Publish("topic", nil, ""); err != ErrClosed {
		t.Errorf("Publish after close: %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe("topic", func(msg *Message) error { return nil }); err != ErrClosed {
		t.Errorf("Subscribe after close: %v, want ErrClosed", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestMemoryBus_Validation(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	if _, err := b.Publish("", nil, ""); err != ErrInvalidTopic {
		t.Errorf("empty topic publish: %v, want ErrInvalidTopic", err)
	}
	if _, err := b.Subscribe("", func(msg *Message) error { return nil }); err != ErrInvalidTopic {
		t.Errorf("empty topic subscribe: %v, want ErrInvalidTopic", err)
	}
	if _, err := b.Subscribe("topic", nil); err != ErrNilHandler {
		t.Errorf("nil handler: %v, want ErrNilHandler", err)
	}
}

// --- Concurrency Tests ---

func TestMemoryBus_ConcurrentPublish(t *testing.T) {
	b := NewMemoryBus(Config{MaxHistory: 10000})
	defer b.Close()

	var mu sync.Mutex
	count := 0
	b.Subscribe("topic", func(msg *Message) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish("topic", nil, "")
			}
		}()
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("delivered %d messages, want 1000", count)
	}
	if b.MessageCount() != 1000 {
		t.Errorf("MessageCount = %d, want 1000", b.MessageCount())
	}
}

type nopFaultLogger struct{}

func (*nopFaultLogger) SubscriberError(topic string, err error) {}
