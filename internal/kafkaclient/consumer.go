package kafkaclient

import (
	"context"

	kafka "github.com/segmentio/kafka-go"
)

// kafkaConsumer is a Consumer backed by a single-partition kafka.Reader.
type kafkaConsumer struct {
	reader *kafka.Reader
}

// NewConsumer opens a reader bound to one topic partition, seeking to
// startOffset before the first read. The caller resolves the BEGIN sentinel
// to a concrete offset beforehand.
func NewConsumer(brokers []string, topic string, partition int32, startOffset int64) (Consumer, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: int(partition),
	})
	if err := reader.SetOffset(startOffset); err != nil {
		_ = reader.Close()
		return nil, err
	}
	return &kafkaConsumer{reader: reader}, nil
}

func (c *kafkaConsumer) ReadMessage(ctx context.Context) (Message, error) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Topic:     m.Topic,
		Partition: int32(m.Partition),
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
	}, nil
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}
