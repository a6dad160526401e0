package kafkaclient

import (
	"context"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// kafkaProducer is a Producer backed by a single kafka.Writer. Partition is
// always taken from the message itself, so the Writer's Balancer is left
// nil: per kafka-go's contract, an explicit Message.Partition is honored
// only when no Balancer is configured.
type kafkaProducer struct {
	writer *kafka.Writer
	log    *logrus.Entry
}

// NewProducer builds a Producer writing to brokers with the given
// per-message send timeout. Completion is delivered through each message's
// WriterData field, which kafka-go carries through to the Completion
// callback unmodified — the standard way to correlate an async write back
// to its caller.
func NewProducer(brokers []string, sendTimeout time.Duration, log *logrus.Entry) Producer {
	p := &kafkaProducer{log: log}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Async:        true,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: sendTimeout,
		Completion: func(messages []kafka.Message, err error) {
			for _, m := range messages {
				ch, ok := m.WriterData.(chan ProduceResult)
				if !ok {
					continue
				}
				ch <- ProduceResult{Partition: int32(m.Partition), Offset: m.Offset, Err: err}
				close(ch)
			}
		},
	}
	return p
}

func (p *kafkaProducer) Produce(ctx context.Context, topic string, partition int32, key, value []byte) <-chan ProduceResult {
	result := make(chan ProduceResult, 1)
	msg := kafka.Message{
		Topic:      topic,
		Partition:  int(partition),
		Key:        key,
		Value:      value,
		Time:       time.Now(),
		WriterData: result,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).WithField("topic", topic).Warn("produce enqueue failed")
		result <- ProduceResult{Partition: partition, Err: err}
		close(result)
	}
	return result
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}
