package kafkaclient

import (
	"context"
	"errors"
	"net"

	kafka "github.com/segmentio/kafka-go"
)

// IsConnectionError reports whether err is a connection-class failure
// (timeout, network, unknown-server). Only these count against a broker's
// circuit breaker; every other failure means the broker itself is healthy
// and the individual record failed.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var ke kafka.Error
	if errors.As(err, &ke) {
		switch ke {
		case kafka.Unknown, kafka.RequestTimedOut, kafka.NetworkException, kafka.BrokerNotAvailable:
			return true
		}
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// NeedsProducerReset reports whether err indicates the producer's cached
// cluster metadata is stale enough that the handle should be terminated and
// replaced rather than returned to the pool.
func NeedsProducerReset(err error) bool {
	if err == nil {
		return false
	}
	var ke kafka.Error
	if errors.As(err, &ke) {
		switch ke {
		case kafka.LeaderNotAvailable, kafka.NotLeaderForPartition, kafka.UnknownTopicOrPartition:
			return true
		}
	}
	return false
}

// IsTopicAlreadyExists reports whether err means the topic already exists,
// including a topic pending deletion.
func IsTopicAlreadyExists(err error) bool {
	var ke kafka.Error
	return errors.As(err, &ke) && ke == kafka.TopicAlreadyExists
}
