// Package bus provides a topic-keyed publish/subscribe message bus for
// decoupled event notification between orchestration components.
//
// Delivery is synchronous: Publish invokes every current subscriber for the
// topic in registration order before returning. A bounded FIFO history of
// published messages is retained independent of delivery success.
package bus

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrClosed       = errors.New("bus closed")
	ErrInvalidTopic = errors.New("invalid topic")
	ErrNilHandler   = errors.New("nil handler")
)

// Message is an event published to a topic. Messages are immutable once
// published; subscribers must not modify the payload.
type Message struct {
	// ID is assigned by the bus, monotonically increasing per bus.
	ID string

	// Topic the message was published to.
	Topic string

	// Payload is the opaque message body.
	Payload map[string]interface{}

	// SenderID identifies the publisher. Empty for anonymous publishes.
	SenderID string

	// Timestamp is when the message was published.
	Timestamp time.Time
}

// Handler processes a delivered message. A returned error is logged and
// skipped; it never reaches the publisher or later subscribers.
type Handler func(msg *Message) error

// Subscription represents an active subscription.
type Subscription interface {
	// Topic returns the subscribed topic.
	Topic() string

	// Unsubscribe removes the subscription. Safe to call more than once.
	Unsubscribe() error
}

// MessageBus provides synchronous topic-based pub/sub with history.
type MessageBus interface {
	// Publish delivers the payload to all current subscribers of the topic
	// in registration order and returns the assigned message ID.
	Publish(topic string, payload map[string]interface{}, senderID string) (string, error)

	// Subscribe registers a handler for a topic.
	Subscribe(topic string, handler Handler) (Subscription, error)

	// History returns retained messages, oldest first. An empty topic
	// matches all topics; limit caps the number of most recent messages.
	History(topic string, limit int) []*Message

	// Topics returns all topics that currently have subscribers.
	Topics() []string

	// MessageCount returns the number of retained messages.
	MessageCount() int

	// Close shuts down the bus. Further publishes return ErrClosed.
	Close() error
}

// Config holds bus configuration.
type Config struct {
	// MaxHistory bounds the retained message history.
	// Default: 1000
	MaxHistory int

	// Logger for subscriber faults. Nil uses the logging default.
	Logger FaultLogger
}

// FaultLogger receives subscriber errors and recovered panics.
type FaultLogger interface {
	SubscriberError(topic string, err error)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxHistory: 1000,
	}
}

// ValidateTopic checks if a topic is valid.
func ValidateTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	return nil
}
