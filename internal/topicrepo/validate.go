package topicrepo

import (
	"context"
	"fmt"

	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/cursor"
)

// partitionBounds is the retained window of one topic keyed by partition:
// oldest is the before-oldest position, newest the next-to-be-written one.
type partitionBounds struct {
	oldest map[int32]int64
	newest map[int32]int64
}

func (r *Repository) loadBounds(ctx context.Context, topics []string) (map[string]partitionBounds, error) {
	bounds := make(map[string]partitionBounds, len(topics))
	for _, topic := range topics {
		partitions, err := r.admin.Partitions(ctx, topic)
		if err != nil {
			return nil, brokererr.New(brokererr.KindServiceUnavailable, "unable to load partitions", err).WithTopic(topic)
		}
		b := partitionBounds{
			oldest: make(map[int32]int64, len(partitions)),
			newest: make(map[int32]int64, len(partitions)),
		}
		for _, p := range partitions {
			oldest, err := r.admin.OldestOffset(ctx, topic, p)
			if err != nil {
				return nil, brokererr.New(brokererr.KindServiceUnavailable, "unable to load oldest offset", err).WithTopic(topic)
			}
			newest, err := r.admin.NewestOffset(ctx, topic, p)
			if err != nil {
				return nil, brokererr.New(brokererr.KindServiceUnavailable, "unable to load newest offset", err).WithTopic(topic)
			}
			b.oldest[p] = oldest - 1
			b.newest[p] = newest
		}
		bounds[topic] = b
	}
	return bounds, nil
}

// ValidateCursors checks every cursor against the current retained window
// of its partition and returns the normalized internal forms in input
// order. A cursor equal to the newest position is the tail and is accepted:
// the consumer will simply wait for the next record.
func (r *Repository) ValidateCursors(ctx context.Context, cursors []cursor.TopicPosition) ([]cursor.InternalCursor, error) {
	topics := distinctTopics(cursors)
	bounds, err := r.loadBounds(ctx, topics)
	if err != nil {
		return nil, err
	}

	internals := make([]cursor.InternalCursor, 0, len(cursors))
	for _, c := range cursors {
		internal, err := cursor.ToInternal(c)
		if err != nil {
			return nil, err
		}

		b := bounds[c.Topic]
		newest, ok := b.newest[internal.Partition]
		if !ok {
			return nil, brokererr.New(brokererr.KindPartitionNotFound,
				fmt.Sprintf("partition %s not found", c.Partition), nil).WithTopic(c.Topic)
		}
		if internal.Offset < b.oldest[internal.Partition] || internal.Offset > newest {
			return nil, brokererr.New(brokererr.KindUnavailable, "cursor UNAVAILABLE", nil).WithTopic(c.Topic)
		}
		internals = append(internals, internal)
	}
	return internals, nil
}

// ValidateCommitCursor checks that the cursor parses and its partition
// exists for the topic. It deliberately does not check the offset against
// the retained window: a commit may refer to a record that has aged out
// since it was consumed.
func (r *Repository) ValidateCommitCursor(ctx context.Context, c cursor.TopicPosition) error {
	internal, err := cursor.ToInternal(c)
	if err != nil {
		return err
	}

	partitions, err := r.admin.Partitions(ctx, c.Topic)
	if err != nil {
		return brokererr.New(brokererr.KindServiceUnavailable, "unable to load partitions", err).WithTopic(c.Topic)
	}
	for _, p := range partitions {
		if p == internal.Partition {
			return nil
		}
	}
	return brokererr.New(brokererr.KindPartitionNotFound,
		fmt.Sprintf("partition %s not found", c.Partition), nil).WithTopic(c.Topic)
}

func distinctTopics(cursors []cursor.TopicPosition) []string {
	seen := make(map[string]struct{}, 1)
	var topics []string
	for _, c := range cursors {
		if _, ok := seen[c.Topic]; ok {
			continue
		}
		seen[c.Topic] = struct{}{}
		topics = append(topics, c.Topic)
	}
	return topics
}
