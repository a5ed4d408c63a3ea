package mq

import (
	"context"
	"time"
)

// MessageQueue is a broker connection that can both publish and consume.
type MessageQueue interface {
	Producer
	Consumer

	// Ping dials one broker.
	Ping(ctx context.Context) error
	Close() error
}

// Producer publishes messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer delivers topic messages to handlers.
type Consumer interface {
	// SubscribeWithOptions registers handler for topic. Subscriptions added
	// before Start begin consuming on Start; later ones start immediately.
	SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error

	Start() error
	Stop() error
}

// Message is one queue record. Key selects the partition and defaults to ID.
type Message struct {
	ID        string
	Key       string
	Body      []byte
	Headers   map[string]string
	Timestamp time.Time

	// Attempt counts deliveries to the current handler, starting at 1.
	Attempt int
}

// HandlerFunc processes one message. A non-nil error redelivers it after
// RetryDelay until MaxAttempts is reached, then the message is skipped.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions tunes a subscription. Zero values take defaults.
type SubscribeOptions struct {
	ConsumerGroup string
	Concurrency   int
	MaxAttempts   int
	RetryDelay    time.Duration
}

func (o SubscribeOptions) withDefaults(topic string) SubscribeOptions {
	if o.ConsumerGroup == "" {
		o.ConsumerGroup = "ctfoj-" + topic
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// NewMessage wraps body in a message stamped with the current time.
func NewMessage(body []byte) *Message {
	return &Message{Body: body, Headers: map[string]string{}, Timestamp: time.Now()}
}

func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	m.Headers[key] = value
}

func (m *Message) GetHeader(key string) (string, bool) {
	value, ok := m.Headers[key]
	return value, ok
}
