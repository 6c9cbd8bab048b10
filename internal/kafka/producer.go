package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/fathima-sithara/mailbox-service/internal/lock"
	kafkago "github.com/segmentio/kafka-go"
)

// Producer publishes mailbox domain events. Events for one conversation share
// a key so they land on one partition in order.
type Producer struct {
	writer *kafkago.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}
	return &Producer{writer: w, topic: topic}
}

func encodeEvent(ev domain.Event) (kafkago.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(lock.PairKey(ev.UserID, ev.PartnerID)),
		Value: b,
		Time:  ev.At,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}

func (p *Producer) Publish(ctx context.Context, ev domain.Event) error {
	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
