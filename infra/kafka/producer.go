// Package kafka publishes trade events with segmentio/kafka-go.
package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Producer is a synchronous trade event writer. Messages with the same key
// land on the same partition and every write waits for all in-sync replicas.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	sugar := log.Sugar()
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: writeTimeout,
			ErrorLogger:  kafka.LoggerFunc(sugar.Errorf),
		},
	}
}

// Publish blocks until the broker acknowledges the event or ctx is done.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return errors.Wrapf(err, "kafka: write to %s", p.topic)
	}
	return nil
}

func (p *Producer) Close() error {
	return errors.Wrap(p.writer.Close(), "kafka: close")
}
