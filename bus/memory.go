package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	orcherrors "github.com/lydianai/agent.ailydian.com/errors"
	"github.com/lydianai/agent.ailydian.com/logging"
)

// MemoryBus implements MessageBus with in-process synchronous delivery.
type MemoryBus struct {
	config Config
	logger FaultLogger

	mu      sync.Mutex
	subs    map[string][]*memorySub
	history []*Message
	counter uint64
	closed  atomic.Bool
}

type memorySub struct {
	topic   string
	handler Handler
	bus     *MemoryBus
	removed atomic.Bool
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultConfig().MaxHistory
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("bus")
	}

	return &MemoryBus{
		config: cfg,
		logger: logger,
		subs:   make(map[string][]*memorySub),
	}
}

// Publish delivers the payload to every subscriber of the topic in
// registration order. Subscriber faults are logged and skipped so they
// cannot affect later subscribers or the publisher.
func (b *MemoryBus) Publish(topic string, payload map[string]interface{}, senderID string) (string, error) {
	if err := ValidateTopic(topic); err != nil {
		return "", err
	}
	if b.closed.Load() {
		return "", ErrClosed
	}

	msg := &Message{
		Topic:     topic,
		Payload:   payload,
		SenderID:  senderID,
		Timestamp: time.Now().UTC(),
	}

	b.mu.Lock()
	b.counter++
	msg.ID = fmt.Sprintf("msg_%d", b.counter)
	b.history = append(b.history, msg)
	if len(b.history) > b.config.MaxHistory {
		b.history = b.history[1:]
	}
	// Snapshot so a slow handler never holds the bus lock.
	subs := make([]*memorySub, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.removed.Load() {
			continue
		}
		b.deliver(sub, msg)
	}

	return msg.ID, nil
}

// deliver invokes one handler, isolating errors and panics.
func (b *MemoryBus) deliver(sub *memorySub, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.SubscriberError(msg.Topic, orcherrors.RecoverPanic(r))
		}
	}()
	if err := sub.handler(msg); err != nil {
		b.logger.SubscriberError(msg.Topic, err)
	}
}

// Subscribe registers a handler for a topic.
func (b *MemoryBus) Subscribe(topic string, handler Handler) (Subscription, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySub{
		topic:   topic,
		handler: handler,
		bus:     b,
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return sub, nil
}

// History returns retained messages oldest first, optionally filtered by
// topic and capped to the most recent limit entries.
func (b *MemoryBus) History(topic string, limit int) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []*Message
	if topic == "" {
		matched = make([]*Message, len(b.history))
		copy(matched, b.history)
	} else {
		for _, msg := range b.history {
			if msg.Topic == topic {
				matched = append(matched, msg)
			}
		}
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// Topics returns all topics with at least one subscriber.
func (b *MemoryBus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	topics := make([]string, 0, len(b.subs))
	for topic, subs := range b.subs {
		if len(subs) > 0 {
			topics = append(topics, topic)
		}
	}
	return topics
}

// MessageCount returns the number of retained messages.
func (b *MemoryBus) MessageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}

// Close shuts down the bus.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]*memorySub)
	return nil
}

// Topic returns the subscribed topic.
func (s *memorySub) Topic() string {
	return s.topic
}

// Unsubscribe removes the subscription.
func (s *memorySub) Unsubscribe() error {
	if s.removed.Swap(true) {
		return nil
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subs[s.topic]
	for i, sub := range subs {
		if sub == s {
			s.bus.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}
