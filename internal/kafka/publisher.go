package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"kasbook/internal/events"
	"kasbook/internal/log"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends LedgerRecalculated events to a Kafka topic, keyed by
// trigger.
type Publisher struct {
	writer messageWriter
	topic  string
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func (p *Publisher) PublishRecalculated(ctx context.Context, ev events.LedgerRecalculated) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Trigger),
		Value: data,
		Time:  ev.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}

	slog.DebugContext(ctx, "Published ledger recalculated event",
		log.FieldComponent, log.ComponentKafka,
		"topic", p.topic,
		log.FieldTrigger, ev.Trigger)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ events.Publisher = (*Publisher)(nil)
