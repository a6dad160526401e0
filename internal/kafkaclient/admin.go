package kafkaclient

import (
	"context"
	"net"
	"strconv"

	kafka "github.com/segmentio/kafka-go"
)

// kafkaAdmin performs topic lifecycle and position queries against the
// cluster controller, cross-checked against sarama's ClusterAdmin
// (CreateTopic/ListTopics/DeleteTopic) for the shape of these operations.
type kafkaAdmin struct {
	brokers []string
}

// NewAdmin builds an Admin dialing the given bootstrap brokers.
func NewAdmin(brokers []string) Admin {
	return &kafkaAdmin{brokers: brokers}
}

func (a *kafkaAdmin) dialController(ctx context.Context) (*kafka.Conn, error) {
	conn, err := kafka.DialContext(ctx, "tcp", a.brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	return kafka.DialContext(ctx, "tcp", addr)
}

func (a *kafkaAdmin) CreateTopic(ctx context.Context, spec TopicSpec) error {
	ctrl, err := a.dialController(ctx)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	return ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             spec.Topic,
		NumPartitions:     spec.Partitions,
		ReplicationFactor: int(spec.ReplicationFactor),
		ConfigEntries: []kafka.ConfigEntry{
			{ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(spec.RetentionMs, 10)},
			{ConfigName: "segment.ms", ConfigValue: strconv.FormatInt(spec.SegmentMs, 10)},
		},
	})
}

func (a *kafkaAdmin) DeleteTopic(ctx context.Context, topic string) error {
	ctrl, err := a.dialController(ctx)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	return ctrl.DeleteTopics(topic)
}

func (a *kafkaAdmin) TopicExists(ctx context.Context, topic string) (bool, error) {
	partitions, err := a.Partitions(ctx, topic)
	if err != nil {
		if isUnknownTopic(err) {
			return false, nil
		}
		return false, err
	}
	return len(partitions) > 0, nil
}

func (a *kafkaAdmin) Partitions(ctx context.Context, topic string) ([]int32, error) {
	conn, err := kafka.DialContext(ctx, "tcp", a.brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		if isUnknownTopic(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]int32, 0, len(partitions))
	for _, p := range partitions {
		ids = append(ids, int32(p.ID))
	}
	return ids, nil
}

func (a *kafkaAdmin) PartitionLeaders(ctx context.Context, topic string) (map[int32]string, error) {
	conn, err := kafka.DialContext(ctx, "tcp", a.brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return nil, err
	}
	leaders := make(map[int32]string, len(partitions))
	for _, p := range partitions {
		leaders[int32(p.ID)] = strconv.Itoa(p.Leader.ID)
	}
	return leaders, nil
}

func (a *kafkaAdmin) NewestOffset(ctx context.Context, topic string, partition int32) (int64, error) {
	conn, err := kafka.DialLeader(ctx, "tcp", a.brokers[0], topic, int(partition))
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return conn.ReadLastOffset()
}

func (a *kafkaAdmin) OldestOffset(ctx context.Context, topic string, partition int32) (int64, error) {
	conn, err := kafka.DialLeader(ctx, "tcp", a.brokers[0], topic, int(partition))
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return conn.ReadFirstOffset()
}

func isUnknownTopic(err error) bool {
	return err == kafka.UnknownTopicOrPartition
}
