// Package kafkaclient narrows the broker's dependency on Kafka down to the
// handful of operations the publish and streaming cores actually need, with
// a github.com/segmentio/kafka-go backed implementation behind it.
package kafkaclient

import (
	"context"
	"time"
)

// Message is a single record read from a partition.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// ProduceResult is delivered asynchronously once a produced record has been
// acknowledged (or has failed) by the broker.
type ProduceResult struct {
	Partition int32
	Offset    int64
	Err       error
}

// Producer publishes single records to explicit partitions and reports
// completion asynchronously, so a caller coordinating many in-flight writes
// (topicrepo.SyncPostBatch) can wait on all of them without blocking one
// produce call on another.
type Producer interface {
	// Produce writes value (with an optional key) to topic's partition and
	// returns a channel that receives exactly one ProduceResult once the
	// broker has acknowledged the write or the write has failed.
	Produce(ctx context.Context, topic string, partition int32, key, value []byte) <-chan ProduceResult
	// Close releases the underlying connection. A closed Producer is
	// considered poisoned and must not be reused.
	Close() error
}

// Consumer reads records from a single topic partition starting at a given
// offset.
type Consumer interface {
	ReadMessage(ctx context.Context) (Message, error)
	Close() error
}

// TopicSpec describes a topic to create.
type TopicSpec struct {
	Topic             string
	Partitions        int
	ReplicationFactor int16
	RetentionMs       int64
	SegmentMs         int64
}

// Admin performs topic lifecycle and metadata operations.
type Admin interface {
	CreateTopic(ctx context.Context, spec TopicSpec) error
	DeleteTopic(ctx context.Context, topic string) error
	TopicExists(ctx context.Context, topic string) (bool, error)
	Partitions(ctx context.Context, topic string) ([]int32, error)
	// PartitionLeaders maps each partition of topic to the broker id
	// currently leading it.
	PartitionLeaders(ctx context.Context, topic string) (map[int32]string, error)
	NewestOffset(ctx context.Context, topic string, partition int32) (int64, error)
	OldestOffset(ctx context.Context, topic string, partition int32) (int64, error)
}
