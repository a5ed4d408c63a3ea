package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ctfoj/internal/common/mq"

	"github.com/google/uuid"
)

const (
	// DefaultSolvedTopic carries committed solves to the scoreboard worker.
	DefaultSolvedTopic = "ctf.solves"

	EventTypeHeader = "x-event-type"
	solvedHeader    = "solved"
)

// SolvedPublisher forwards solves to a message queue topic.
type SolvedPublisher struct {
	producer mq.Producer
	topic    string
}

func NewSolvedPublisher(producer mq.Producer, topic string) *SolvedPublisher {
	if topic == "" {
		topic = DefaultSolvedTopic
	}
	return &SolvedPublisher{producer: producer, topic: topic}
}

func (p *SolvedPublisher) OnSolved(ctx context.Context, ev Solved) error {
	if p == nil || p.producer == nil {
		return errors.New("solved publisher is nil")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal solved event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = uuid.NewString()
	message.Key = ev.UID
	message.SetHeader(EventTypeHeader, solvedHeader)
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish solved event failed: %w", err)
	}
	return nil
}

// DecodeSolved parses a queue message produced by SolvedPublisher.
// ok is false for messages of another type.
func DecodeSolved(message *mq.Message) (ev Solved, ok bool, err error) {
	if message == nil {
		return Solved{}, false, errors.New("message is nil")
	}
	if typ, found := message.GetHeader(EventTypeHeader); found && typ != solvedHeader {
		return Solved{}, false, nil
	}
	if err := json.Unmarshal(message.Body, &ev); err != nil {
		return Solved{}, false, fmt.Errorf("decode solved event failed: %w", err)
	}
	if ev.EventType != SolvedEventType || ev.UID == "" || ev.CID == "" {
		return Solved{}, false, nil
	}
	return ev, true, nil
}
