// Package topicrepo is the Topic Repository: topic lifecycle, position
// queries, cursor validation, the synchronous batched publish path, and the
// streaming consumer factory.
package topicrepo

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/helixagent/eventbroker/internal/breaker"
	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/config"
	"github.com/helixagent/eventbroker/internal/kafkaclient"
	"github.com/helixagent/eventbroker/internal/producerpool"
)

// ConsumerFactory opens a consumer for one topic partition positioned at
// startOffset. The repository uses short-lived consumers for nothing — all
// position queries go through Admin — so the factory is only exercised by
// CreateEventConsumer.
type ConsumerFactory func(topic string, partition int32, startOffset int64) (kafkaclient.Consumer, error)

// Repository coordinates topic administration, position queries, cursor
// validation and the publish path against one Kafka cluster. It exclusively
// owns the circuit-breaker registry.
type Repository struct {
	admin    kafkaclient.Admin
	pool     *producerpool.Pool
	breakers *breaker.Registry
	cfg      config.KafkaConfig
	openCons ConsumerFactory
	log      *logrus.Entry
}

// New creates a Repository.
func New(admin kafkaclient.Admin, pool *producerpool.Pool, breakers *breaker.Registry, cfg config.KafkaConfig, openCons ConsumerFactory, log *logrus.Entry) *Repository {
	return &Repository{
		admin:    admin,
		pool:     pool,
		breakers: breakers,
		cfg:      cfg,
		openCons: openCons,
		log:      log,
	}
}

// Breakers exposes the circuit-breaker registry for metrics export. The
// registry itself stays owned by the repository.
func (r *Repository) Breakers() *breaker.Registry {
	return r.breakers
}

// CreateTopic creates a topic named by a fresh random UUID with the given
// partition count and retention, using the configured replication factor
// and segment-rotation period. A topic that already exists (including one
// pending deletion) fails the call.
func (r *Repository) CreateTopic(ctx context.Context, partitionCount int, retentionMs int64) (string, error) {
	topicID := uuid.NewString()

	err := r.admin.CreateTopic(ctx, kafkaclient.TopicSpec{
		Topic:             topicID,
		Partitions:        partitionCount,
		ReplicationFactor: r.cfg.ReplicationFactor,
		RetentionMs:       retentionMs,
		SegmentMs:         r.cfg.SegmentRotationMs,
	})
	if err != nil {
		if kafkaclient.IsTopicAlreadyExists(err) {
			return "", brokererr.New(brokererr.KindTopicCreation, "topic already exists", err).WithTopic(topicID)
		}
		return "", brokererr.New(brokererr.KindTopicCreation, "unable to create topic", err).WithTopic(topicID)
	}

	r.log.WithFields(logrus.Fields{"topic": topicID, "partitions": partitionCount}).Info("topic created")
	return topicID, nil
}

// DeleteTopic issues a deletion request. Deletion is asynchronous on the
// broker side; a nil return only means the request was accepted.
func (r *Repository) DeleteTopic(ctx context.Context, topic string) error {
	if err := r.admin.DeleteTopic(ctx, topic); err != nil {
		return brokererr.New(brokererr.KindTopicDeletion, "unable to delete topic", err).WithTopic(topic)
	}
	r.log.WithField("topic", topic).Info("topic deletion requested")
	return nil
}

// TopicExists reports whether topic is present in the cluster metadata.
func (r *Repository) TopicExists(ctx context.Context, topic string) (bool, error) {
	exists, err := r.admin.TopicExists(ctx, topic)
	if err != nil {
		return false, brokererr.New(brokererr.KindServiceUnavailable, "unable to check topic existence", err).WithTopic(topic)
	}
	return exists, nil
}
