package kafkaclient

import (
	"errors"
	"testing"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestIsUnknownTopic(t *testing.T) {
	assert.True(t, isUnknownTopic(kafka.UnknownTopicOrPartition))
	assert.False(t, isUnknownTopic(errors.New("some other error")))
}

func TestInterfacesAreSatisfiedByKafkaBackedTypes(t *testing.T) {
	var _ Producer = (*kafkaProducer)(nil)
	var _ Consumer = (*kafkaConsumer)(nil)
	var _ Admin = (*kafkaAdmin)(nil)
}
