// Package kafkaclienttest provides hand-written kafkaclient fakes shared by
// the producerpool and topicrepo test suites, avoiding a real broker
// dependency in unit tests.
package kafkaclienttest

import (
	"context"
	"sync"

	"github.com/helixagent/eventbroker/internal/kafkaclient"
)

// FakeProducer is a Producer whose every produce either succeeds with a
// caller-assigned offset or fails with Err, and which records whether it
// has been closed so pool tests can assert poisoned producers are replaced.
type FakeProducer struct {
	mu     sync.Mutex
	Err    error
	offset int64
	closed bool

	// ErrOnCall fails only the produce with the given zero-based call
	// index, overriding Err for that call.
	ErrOnCall map[int]error

	// Hold, when non-nil, delays every result until the channel is closed,
	// so timeout paths can be exercised deterministically.
	Hold chan struct{}

	// Produced records every call for assertions.
	Produced []FakeProduceCall
}

// FakeProduceCall captures one Produce invocation.
type FakeProduceCall struct {
	Topic     string
	Partition int32
	Key       []byte
	Value     []byte
}

func (f *FakeProducer) Produce(_ context.Context, topic string, partition int32, key, value []byte) <-chan kafkaclient.ProduceResult {
	result := make(chan kafkaclient.ProduceResult, 1)

	f.mu.Lock()
	call := len(f.Produced)
	f.Produced = append(f.Produced, FakeProduceCall{Topic: topic, Partition: partition, Key: key, Value: value})
	err := f.Err
	if e, ok := f.ErrOnCall[call]; ok {
		err = e
	}
	offset := f.offset
	if err == nil {
		f.offset++
	}
	hold := f.Hold
	f.mu.Unlock()

	deliver := func() {
		result <- kafkaclient.ProduceResult{Partition: partition, Offset: offset, Err: err}
		close(result)
	}
	if hold != nil {
		go func() {
			<-hold
			deliver()
		}()
	} else {
		deliver()
	}
	return result
}

func (f *FakeProducer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (f *FakeProducer) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeConsumer replays a fixed slice of messages, then blocks until ctx is
// done.
type FakeConsumer struct {
	mu       sync.Mutex
	Messages []kafkaclient.Message
	idx      int
	closed   bool
}

func (f *FakeConsumer) ReadMessage(ctx context.Context) (kafkaclient.Message, error) {
	f.mu.Lock()
	if f.idx < len(f.Messages) {
		m := f.Messages[f.idx]
		f.idx++
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafkaclient.Message{}, ctx.Err()
}

func (f *FakeConsumer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// FakeAdmin is an in-memory Admin, backed by a map of topic -> partition
// count, with caller-assigned newest/oldest offsets per partition.
type FakeAdmin struct {
	mu      sync.Mutex
	topics  map[string]int
	newest  map[string]map[int32]int64
	oldest  map[string]map[int32]int64
	leaders map[string]map[int32]string

	CreateErr error
	DeleteErr error
	// MetadataErr fails every metadata/offset query, for exercising the
	// ServiceUnavailable paths.
	MetadataErr error

	// Created records every CreateTopic spec for assertions.
	Created []kafkaclient.TopicSpec
}

// NewFakeAdmin returns an empty FakeAdmin.
func NewFakeAdmin() *FakeAdmin {
	return &FakeAdmin{
		topics:  make(map[string]int),
		newest:  make(map[string]map[int32]int64),
		oldest:  make(map[string]map[int32]int64),
		leaders: make(map[string]map[int32]string),
	}
}

func (a *FakeAdmin) CreateTopic(_ context.Context, spec kafkaclient.TopicSpec) error {
	if a.CreateErr != nil {
		return a.CreateErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.topics[spec.Topic] = spec.Partitions
	a.Created = append(a.Created, spec)
	return nil
}

func (a *FakeAdmin) DeleteTopic(_ context.Context, topic string) error {
	if a.DeleteErr != nil {
		return a.DeleteErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.topics, topic)
	return nil
}

func (a *FakeAdmin) TopicExists(_ context.Context, topic string) (bool, error) {
	if a.MetadataErr != nil {
		return false, a.MetadataErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.topics[topic]
	return ok, nil
}

func (a *FakeAdmin) Partitions(_ context.Context, topic string) ([]int32, error) {
	if a.MetadataErr != nil {
		return nil, a.MetadataErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.topics[topic]
	if !ok {
		return nil, nil
	}
	ids := make([]int32, n)
	for i := range ids {
		ids[i] = int32(i)
	}
	return ids, nil
}

// SetLeader fixes the leader broker id reported for a partition.
func (a *FakeAdmin) SetLeader(topic string, partition int32, brokerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.leaders[topic] == nil {
		a.leaders[topic] = make(map[int32]string)
	}
	a.leaders[topic][partition] = brokerID
}

func (a *FakeAdmin) PartitionLeaders(_ context.Context, topic string) (map[int32]string, error) {
	if a.MetadataErr != nil {
		return nil, a.MetadataErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.topics[topic]
	leaders := make(map[int32]string, n)
	for i := 0; i < n; i++ {
		leaders[int32(i)] = "1"
	}
	for p, id := range a.leaders[topic] {
		leaders[p] = id
	}
	return leaders, nil
}

// SetOffsets lets a test fix the newest/oldest offset returned for a
// partition.
func (a *FakeAdmin) SetOffsets(topic string, partition int32, oldest, newest int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.oldest[topic] == nil {
		a.oldest[topic] = make(map[int32]int64)
	}
	if a.newest[topic] == nil {
		a.newest[topic] = make(map[int32]int64)
	}
	a.oldest[topic][partition] = oldest
	a.newest[topic][partition] = newest
}

func (a *FakeAdmin) NewestOffset(_ context.Context, topic string, partition int32) (int64, error) {
	if a.MetadataErr != nil {
		return 0, a.MetadataErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.newest[topic][partition], nil
}

func (a *FakeAdmin) OldestOffset(_ context.Context, topic string, partition int32) (int64, error) {
	if a.MetadataErr != nil {
		return 0, a.MetadataErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.oldest[topic][partition], nil
}
