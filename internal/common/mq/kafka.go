package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"ctfoj/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	headerMessageID = "x-message-id"
	fetchBackoff    = 200 * time.Millisecond
)

var errQueueClosed = errors.New("message queue is closed")

// KafkaConfig configures the Kafka connection shared by producer and readers.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientID"`

	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`

	MaxBytes int           `yaml:"maxBytes"`
	MaxWait  time.Duration `yaml:"maxWait"`

	DialTimeout time.Duration `yaml:"dialTimeout"`
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.ClientID == "" {
		c.ClientID = "ctfoj"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 10 * time.Millisecond
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = int(kafka.RequireAll)
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 1 << 20
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 500 * time.Millisecond
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c
}

// KafkaQueue publishes through one writer and consumes with one reader per
// subscription.
type KafkaQueue struct {
	cfg    KafkaConfig
	dialer *kafka.Dialer
	writer *kafka.Writer

	mu      sync.Mutex
	subs    []*subscription
	running bool
	closed  bool
}

type subscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	parent  context.Context

	reader *kafka.Reader
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewKafkaQueue builds the queue without contacting the brokers.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	cfg = cfg.withDefaults()
	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout, DualStack: true}
	return &KafkaQueue{
		cfg:    cfg,
		dialer: dialer,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			Transport: &kafka.Transport{
				ClientID: cfg.ClientID,
				Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.DialContext(ctx, network, addr)
				},
			},
		},
	}, nil
}

func (q *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	switch {
	case topic == "":
		return errors.New("topic is required")
	case message == nil:
		return errors.New("message is nil")
	}
	return q.writer.WriteMessages(ctx, encode(topic, message))
}

func (q *KafkaQueue) SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" || handler == nil {
		return errors.New("topic and handler are required")
	}
	var o SubscribeOptions
	if opts != nil {
		o = *opts
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub := &subscription{topic: topic, handler: handler, opts: o.withDefaults(topic), parent: ctx}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	q.subs = append(q.subs, sub)
	if q.running {
		q.run(sub)
	}
	return nil
}

func (q *KafkaQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	if !q.running {
		for _, sub := range q.subs {
			q.run(sub)
		}
		q.running = true
	}
	return nil
}

// Stop cancels every reader and waits for in-flight handlers.
func (q *KafkaQueue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	var errs []error
	for _, sub := range q.subs {
		if sub.cancel == nil {
			continue
		}
		sub.cancel()
		sub.done.Wait()
		if err := sub.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader for %s: %w", sub.topic, err))
		}
		sub.cancel, sub.reader = nil, nil
	}
	q.running = false
	return errors.Join(errs...)
}

func (q *KafkaQueue) Ping(ctx context.Context) error {
	conn, err := q.dialer.DialContext(ctx, "tcp", q.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka %s: %w", q.cfg.Brokers[0], err)
	}
	return conn.Close()
}

func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	return errors.Join(q.Stop(), q.writer.Close())
}

// run starts a fetch loop feeding opts.Concurrency workers. Offsets are
// committed after the handler settles a message.
func (q *KafkaQueue) run(sub *subscription) {
	sub.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.cfg.Brokers,
		Topic:    sub.topic,
		GroupID:  sub.opts.ConsumerGroup,
		MaxBytes: q.cfg.MaxBytes,
		MaxWait:  q.cfg.MaxWait,
		Dialer:   q.dialer,
	})
	ctx, cancel := context.WithCancel(sub.parent)
	sub.cancel = cancel

	queue := make(chan kafka.Message)
	sub.done.Add(1 + sub.opts.Concurrency)
	go func() {
		defer sub.done.Done()
		defer close(queue)
		for {
			msg, err := sub.reader.FetchMessage(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Warn(ctx, "kafka fetch failed", zap.String("topic", sub.topic), zap.Error(err))
				time.Sleep(fetchBackoff)
				continue
			}
			select {
			case queue <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	for range sub.opts.Concurrency {
		go func() {
			defer sub.done.Done()
			for msg := range queue {
				sub.deliver(ctx, msg)
			}
		}()
	}
}

func (s *subscription) deliver(ctx context.Context, raw kafka.Message) {
	message := decode(raw)
	for message.Attempt = 1; ; message.Attempt++ {
		err := s.handler(ctx, message)
		if err == nil {
			break
		}
		fields := []zap.Field{
			zap.String("topic", s.topic),
			zap.String("message_id", message.ID),
			zap.Int("attempt", message.Attempt),
			zap.Error(err),
		}
		if message.Attempt >= s.opts.MaxAttempts {
			logger.Error(ctx, "kafka message skipped after repeated failures", fields...)
			break
		}
		logger.Warn(ctx, "kafka handler failed", fields...)
		select {
		case <-time.After(s.opts.RetryDelay):
		case <-ctx.Done():
			return
		}
	}
	if err := s.reader.CommitMessages(ctx, raw); err != nil && ctx.Err() == nil {
		logger.Warn(ctx, "kafka commit failed", zap.String("topic", s.topic), zap.Int64("offset", raw.Offset), zap.Error(err))
	}
}

func encode(topic string, m *Message) kafka.Message {
	key := m.Key
	if key == "" {
		key = m.ID
	}
	headers := make([]kafka.Header, 0, len(m.Headers)+1)
	if m.ID != "" {
		headers = append(headers, kafka.Header{Key: headerMessageID, Value: []byte(m.ID)})
	}
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{Topic: topic, Key: []byte(key), Value: m.Body, Headers: headers, Time: m.Timestamp}
}

func decode(raw kafka.Message) *Message {
	m := &Message{
		Key:       string(raw.Key),
		Body:      raw.Value,
		Headers:   make(map[string]string, len(raw.Headers)),
		Timestamp: raw.Time,
	}
	for _, h := range raw.Headers {
		if h.Key == headerMessageID {
			m.ID = string(h.Value)
			continue
		}
		m.Headers[h.Key] = string(h.Value)
	}
	if m.ID == "" {
		m.ID = m.Key
	}
	return m
}

var _ MessageQueue = (*KafkaQueue)(nil)
