package bus

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes framed messages to a Kafka cluster, one Kafka topic per
// bus topic. The message key is the bus topic so a partition sees every
// message of a topic in order.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, topic string, payload []byte) error {
	framed, err := Frame(topic, payload)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(topic),
		Value: framed,
	})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
