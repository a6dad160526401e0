package topicrepo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/kafkaclient/kafkaclienttest"
)

func TestCreateTopic_UsesUUIDAndConfiguredDefaults(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	repo := newTestRepo(t, admin, &kafkaclienttest.FakeProducer{})

	topicID, err := repo.CreateTopic(context.Background(), 8, 72*3600*1000)
	require.NoError(t, err)

	_, err = uuid.Parse(topicID)
	assert.NoError(t, err, "topic id must be a UUID")

	require.Len(t, admin.Created, 1)
	spec := admin.Created[0]
	assert.Equal(t, topicID, spec.Topic)
	assert.Equal(t, 8, spec.Partitions)
	assert.Equal(t, int16(1), spec.ReplicationFactor)
	assert.Equal(t, int64(72*3600*1000), spec.RetentionMs)
	assert.Equal(t, int64(1000), spec.SegmentMs)
}

func TestCreateTopic_FailsAsTopicCreation(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	admin.CreateErr = errors.New("controller not available")
	repo := newTestRepo(t, admin, &kafkaclienttest.FakeProducer{})

	_, err := repo.CreateTopic(context.Background(), 1, 1000)
	require.Error(t, err)
	assert.True(t, brokererr.Of(err, brokererr.KindTopicCreation))
}

func TestDeleteTopic(t *testing.T) {
	admin := seededAdmin(t)
	repo := newTestRepo(t, admin, &kafkaclienttest.FakeProducer{})
	ctx := context.Background()

	require.NoError(t, repo.DeleteTopic(ctx, "T"))

	exists, err := repo.TopicExists(ctx, "T")
	require.NoError(t, err)
	assert.False(t, exists)

	admin.DeleteErr = errors.New("nope")
	err = repo.DeleteTopic(ctx, "T")
	assert.True(t, brokererr.Of(err, brokererr.KindTopicDeletion))
}

func TestTopicExists_FailsAsServiceUnavailable(t *testing.T) {
	admin := seededAdmin(t)
	admin.MetadataErr = errors.New("listing failed")
	repo := newTestRepo(t, admin, &kafkaclienttest.FakeProducer{})

	_, err := repo.TopicExists(context.Background(), "T")
	require.Error(t, err)
	assert.True(t, brokererr.Of(err, brokererr.KindServiceUnavailable))
}
