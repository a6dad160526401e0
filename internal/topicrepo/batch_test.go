package topicrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixagent/eventbroker/internal/breaker"
	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/config"
	"github.com/helixagent/eventbroker/internal/kafkaclient"
	"github.com/helixagent/eventbroker/internal/kafkaclient/kafkaclienttest"
	"github.com/helixagent/eventbroker/internal/producerpool"
)

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		RequestTimeout:    100 * time.Millisecond,
		SendTimeout:       100 * time.Millisecond,
		PollTimeout:       20 * time.Millisecond,
		ReplicationFactor: 1,
		SegmentRotationMs: 1000,
	}
}

func newTestRepo(t *testing.T, admin *kafkaclienttest.FakeAdmin, producer *kafkaclienttest.FakeProducer) *Repository {
	t.Helper()
	pool, err := producerpool.New(1, func() (kafkaclient.Producer, error) {
		return producer, nil
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(admin, pool, breaker.NewRegistry(breaker.DefaultConfig()), testKafkaConfig(), nil, logrus.NewEntry(log))
}

func TestSyncPostBatch_EmptyBatchIsANoOp(t *testing.T) {
	repo := newTestRepo(t, kafkaclienttest.NewFakeAdmin(), &kafkaclienttest.FakeProducer{})
	assert.NoError(t, repo.SyncPostBatch(context.Background(), "t", nil))
}

func TestSyncPostBatch_AllSubmitted(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	require.NoError(t, admin.CreateTopic(context.Background(), kafkaclient.TopicSpec{Topic: "t", Partitions: 2}))
	producer := &kafkaclienttest.FakeProducer{}
	repo := newTestRepo(t, admin, producer)

	batch := []*BatchItem{
		NewBatchItem(`{"n":1}`, "0"),
		NewBatchItem(`{"n":2}`, "1"),
		NewBatchItem(`{"n":3}`, "0"),
	}
	require.NoError(t, repo.SyncPostBatch(context.Background(), "t", batch))

	for _, item := range batch {
		status, detail := item.Response()
		assert.Equal(t, StatusSubmitted, status)
		assert.Empty(t, detail)
		assert.Equal(t, StepPublished, item.Step())
	}
	assert.Len(t, producer.Produced, 3)
}

// Publish order within one partition must match batch order, since it
// defines the per-partition commit order.
func TestSyncPostBatch_PreservesPerPartitionOrder(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	require.NoError(t, admin.CreateTopic(context.Background(), kafkaclient.TopicSpec{Topic: "t", Partitions: 1}))
	producer := &kafkaclienttest.FakeProducer{}
	repo := newTestRepo(t, admin, producer)

	batch := []*BatchItem{
		NewBatchItem("a", "0"),
		NewBatchItem("b", "0"),
		NewBatchItem("c", "0"),
	}
	require.NoError(t, repo.SyncPostBatch(context.Background(), "t", batch))

	require.Len(t, producer.Produced, 3)
	assert.Equal(t, "a", string(producer.Produced[0].Value))
	assert.Equal(t, "b", string(producer.Produced[1].Value))
	assert.Equal(t, "c", string(producer.Produced[2].Value))
}

func TestSyncPostBatch_ShortCircuitsWhenBreakerOpen(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	require.NoError(t, admin.CreateTopic(context.Background(), kafkaclient.TopicSpec{Topic: "t", Partitions: 1}))
	admin.SetLeader("t", 0, "7")
	producer := &kafkaclienttest.FakeProducer{}
	repo := newTestRepo(t, admin, producer)

	// Trip broker 7's breaker before publishing.
	cb := repo.breakers.Get("7")
	for i := 0; i < breaker.DefaultConfig().FailureThreshold; i++ {
		cb.MarkFailure()
	}
	require.Equal(t, breaker.StateOpen, cb.State())

	batch := []*BatchItem{
		NewBatchItem("a", "0"),
		NewBatchItem("b", "0"),
		NewBatchItem("c", "0"),
	}
	err := repo.SyncPostBatch(context.Background(), "t", batch)
	require.Error(t, err)
	assert.True(t, brokererr.Of(err, brokererr.KindEventPublishing))

	for _, item := range batch {
		status, detail := item.Response()
		assert.Equal(t, StatusFailed, status)
		assert.Equal(t, "short circuited", detail)
		assert.Equal(t, "7", item.BrokerID())
	}
	assert.Empty(t, producer.Produced, "no record may reach the producer through an open breaker")
}

func TestSyncPostBatch_TerminatesProducerOnStaleMetadata(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	require.NoError(t, admin.CreateTopic(context.Background(), kafkaclient.TopicSpec{Topic: "t", Partitions: 1}))
	producer := &kafkaclienttest.FakeProducer{
		ErrOnCall: map[int]error{1: kafka.NotLeaderForPartition},
	}
	repo := newTestRepo(t, admin, producer)

	batch := []*BatchItem{
		NewBatchItem("a", "0"),
		NewBatchItem("b", "0"),
	}
	err := repo.SyncPostBatch(context.Background(), "t", batch)
	require.Error(t, err)
	assert.True(t, brokererr.Of(err, brokererr.KindEventPublishing))

	status, _ := batch[0].Response()
	assert.Equal(t, StatusSubmitted, status)
	status, detail := batch[1].Response()
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, "internal error", detail)

	assert.True(t, producer.Closed(), "stale-metadata failure must terminate the producer")
}

func TestSyncPostBatch_TimesOutAndSweeps(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	require.NoError(t, admin.CreateTopic(context.Background(), kafkaclient.TopicSpec{Topic: "t", Partitions: 1}))
	hold := make(chan struct{})
	defer close(hold)
	producer := &kafkaclienttest.FakeProducer{Hold: hold}
	repo := newTestRepo(t, admin, producer)

	batch := []*BatchItem{
		NewBatchItem("a", "0"),
		NewBatchItem("b", "0"),
	}
	err := repo.SyncPostBatch(context.Background(), "t", batch)
	require.Error(t, err)
	assert.True(t, brokererr.Of(err, brokererr.KindEventPublishing))

	for _, item := range batch {
		status, detail := item.Response()
		assert.Equal(t, StatusFailed, status)
		assert.Equal(t, "timed out", detail)
	}
	assert.False(t, producer.Closed(), "a timed-out producer is released, not terminated")

	// The producer went back to the pool despite the timeout.
	h, terr := repo.pool.Take(context.Background())
	require.NoError(t, terr)
	repo.pool.Release(h)
}

func TestSyncPostBatch_CancelledContextSweepsAsInterrupted(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	require.NoError(t, admin.CreateTopic(context.Background(), kafkaclient.TopicSpec{Topic: "t", Partitions: 1}))
	hold := make(chan struct{})
	defer close(hold)
	producer := &kafkaclienttest.FakeProducer{Hold: hold}
	repo := newTestRepo(t, admin, producer)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	batch := []*BatchItem{NewBatchItem("a", "0")}
	err := repo.SyncPostBatch(ctx, "t", batch)
	require.Error(t, err)

	status, detail := batch[0].Response()
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, "interrupted", detail)
}

// Connection-class completion failures count against the broker's breaker;
// record-level failures count as success from the breaker's perspective.
func TestSyncPostBatch_BreakerSeesOnlyConnectionFailures(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	require.NoError(t, admin.CreateTopic(context.Background(), kafkaclient.TopicSpec{Topic: "t", Partitions: 1}))
	admin.SetLeader("t", 0, "3")
	producer := &kafkaclienttest.FakeProducer{Err: errors.New("record too large")}
	repo := newTestRepo(t, admin, producer)

	batch := []*BatchItem{NewBatchItem("a", "0")}
	err := repo.SyncPostBatch(context.Background(), "t", batch)
	require.Error(t, err)

	assert.Equal(t, breaker.StateClosed, repo.breakers.Get("3").State())
	assert.Equal(t, 0, repo.breakers.Get("3").InFlight())
}

// Circuit breaker isolation: failures against broker X never move broker
// Y's breaker.
func TestSyncPostBatch_BreakerIsolationAcrossBrokers(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	require.NoError(t, admin.CreateTopic(context.Background(), kafkaclient.TopicSpec{Topic: "t", Partitions: 2}))
	admin.SetLeader("t", 0, "10")
	admin.SetLeader("t", 1, "11")
	producer := &kafkaclienttest.FakeProducer{
		ErrOnCall: map[int]error{0: kafka.RequestTimedOut},
	}
	repo := newTestRepo(t, admin, producer)

	batch := []*BatchItem{
		NewBatchItem("a", "0"),
		NewBatchItem("b", "1"),
	}
	err := repo.SyncPostBatch(context.Background(), "t", batch)
	require.Error(t, err)

	assert.Equal(t, breaker.StateClosed, repo.breakers.Get("11").State())
}

// Fail-sweep closure: every item leaves SyncPostBatch as SUBMITTED or as
// FAILED with a non-empty detail, on every path.
func TestSyncPostBatch_FailSweepClosure(t *testing.T) {
	admin := kafkaclienttest.NewFakeAdmin()
	require.NoError(t, admin.CreateTopic(context.Background(), kafkaclient.TopicSpec{Topic: "t", Partitions: 2}))
	producer := &kafkaclienttest.FakeProducer{
		ErrOnCall: map[int]error{0: errors.New("boom")},
	}
	repo := newTestRepo(t, admin, producer)

	batch := []*BatchItem{
		NewBatchItem("a", "0"),
		NewBatchItem("b", "1"),
		NewBatchItem("c", "0"),
	}
	_ = repo.SyncPostBatch(context.Background(), "t", batch)

	for i, item := range batch {
		status, detail := item.Response()
		if status == StatusSubmitted {
			continue
		}
		assert.Equal(t, StatusFailed, status, "item %d", i)
		assert.NotEmpty(t, detail, "item %d", i)
	}
}

func TestBatchItem_SubmittedIsNeverDowngraded(t *testing.T) {
	item := NewBatchItem("a", "0")
	item.markSubmitted()
	item.fail("too late")

	status, detail := item.Response()
	assert.Equal(t, StatusSubmitted, status)
	assert.Empty(t, detail)
}

func TestBatchItem_FirstDetailWins(t *testing.T) {
	item := NewBatchItem("a", "0")
	item.fail("short circuited")
	item.fail("internal error")

	_, detail := item.Response()
	assert.Equal(t, "short circuited", detail)
}

func TestSyncPostBatch_PanicsOnMissingPartition(t *testing.T) {
	repo := newTestRepo(t, kafkaclienttest.NewFakeAdmin(), &kafkaclienttest.FakeProducer{})
	assert.Panics(t, func() {
		_ = repo.SyncPostBatch(context.Background(), "t", []*BatchItem{NewBatchItem("a", "")})
	})
}
