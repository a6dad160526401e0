package topicrepo

import (
	"context"
	"strconv"

	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/cursor"
)

// Edge selects a boundary of the retained window for MaterializePositions.
type Edge string

const (
	// EdgeBegin is the oldest boundary: the first record still retained.
	EdgeBegin Edge = "BEGIN"
	// EdgeEnd is the newest boundary: the next-to-be-written position.
	EdgeEnd Edge = "END"
)

// LoadNewestPosition returns, for every partition of every given topic, the
// next-to-be-written position: one past the last committed offset.
func (r *Repository) LoadNewestPosition(ctx context.Context, topics []string) ([]cursor.TopicPosition, error) {
	var positions []cursor.TopicPosition
	for _, topic := range topics {
		partitions, err := r.admin.Partitions(ctx, topic)
		if err != nil {
			return nil, brokererr.New(brokererr.KindServiceUnavailable, "unable to load partitions", err).WithTopic(topic)
		}
		for _, p := range partitions {
			newest, err := r.admin.NewestOffset(ctx, topic, p)
			if err != nil {
				return nil, brokererr.New(brokererr.KindServiceUnavailable, "unable to load newest offset", err).WithTopic(topic)
			}
			positions = append(positions, cursor.TopicPosition{
				Topic:     topic,
				Partition: strconv.FormatInt(int64(p), 10),
				Offset:    strconv.FormatInt(newest, 10),
			})
		}
	}
	return positions, nil
}

// LoadOldestPosition returns per partition the oldest available position.
// With positionOnExisting=false the offset denotes "before the oldest
// record", the form used as a streaming start; with true it is one greater
// and denotes the first existing record, the form used by commit cursors'
// read-after convention.
func (r *Repository) LoadOldestPosition(ctx context.Context, topics []string, positionOnExisting bool) ([]cursor.TopicPosition, error) {
	var positions []cursor.TopicPosition
	for _, topic := range topics {
		partitions, err := r.admin.Partitions(ctx, topic)
		if err != nil {
			return nil, brokererr.New(brokererr.KindServiceUnavailable, "unable to load partitions", err).WithTopic(topic)
		}
		for _, p := range partitions {
			oldest, err := r.admin.OldestOffset(ctx, topic, p)
			if err != nil {
				return nil, brokererr.New(brokererr.KindServiceUnavailable, "unable to load oldest offset", err).WithTopic(topic)
			}
			if !positionOnExisting {
				oldest--
			}
			positions = append(positions, cursor.TopicPosition{
				Topic:     topic,
				Partition: strconv.FormatInt(int64(p), 10),
				Offset:    strconv.FormatInt(oldest, 10),
			})
		}
	}
	return positions, nil
}

// MaterializePositions returns a partition-to-offset map suitable for
// initializing a subscription at the given edge of topic's retained window.
func (r *Repository) MaterializePositions(ctx context.Context, topic string, edge Edge) (map[int32]int64, error) {
	partitions, err := r.admin.Partitions(ctx, topic)
	if err != nil {
		return nil, brokererr.New(brokererr.KindServiceUnavailable, "unable to load partitions", err).WithTopic(topic)
	}

	out := make(map[int32]int64, len(partitions))
	for _, p := range partitions {
		var offset int64
		switch edge {
		case EdgeBegin:
			offset, err = r.admin.OldestOffset(ctx, topic, p)
		default:
			offset, err = r.admin.NewestOffset(ctx, topic, p)
		}
		if err != nil {
			return nil, brokererr.New(brokererr.KindServiceUnavailable, "unable to materialize positions", err).WithTopic(topic)
		}
		out[p] = offset
	}
	return out, nil
}
