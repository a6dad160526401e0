package streamctl

import (
	"context"
	"encoding/json"

	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/cursor"
)

// cursorHeaderEntry is one element of the X-nakadi-cursors header.
type cursorHeaderEntry struct {
	Partition string `json:"partition"`
	Offset    string `json:"offset"`
}

// GetStreamingStart resolves where streaming begins for et. With no
// cursors header the stream starts at the newest position of every
// partition. With a header, each entry names its partition's start
// explicitly, the BEGIN sentinel standing for the partition's oldest
// available position.
func (c *Controller) GetStreamingStart(ctx context.Context, et *EventType, cursorsHeader string) ([]cursor.TopicPosition, error) {
	if cursorsHeader == "" {
		return c.repo.LoadNewestPosition(ctx, []string{et.TopicID})
	}

	var entries []cursorHeaderEntry
	if err := json.Unmarshal([]byte(cursorsHeader), &entries); err != nil {
		return nil, brokererr.New(brokererr.KindUnparseableCursor, "incorrect syntax of X-nakadi-cursors header", err)
	}
	if len(entries) == 0 {
		return nil, brokererr.New(brokererr.KindInvalidFormat, "cursors are absent", nil)
	}

	// The oldest positions are loaded once, only if some entry needs them.
	var oldestByPartition map[string]string
	positions := make([]cursor.TopicPosition, 0, len(entries))
	for _, entry := range entries {
		if cursor.IsBegin(entry.Offset) {
			if oldestByPartition == nil {
				oldest, err := c.repo.LoadOldestPosition(ctx, []string{et.TopicID}, false)
				if err != nil {
					return nil, err
				}
				oldestByPartition = make(map[string]string, len(oldest))
				for _, p := range oldest {
					oldestByPartition[p.Partition] = p.Offset
				}
			}
			offset, ok := oldestByPartition[entry.Partition]
			if !ok {
				return nil, brokererr.New(brokererr.KindPartitionNotFound, "partition "+entry.Partition+" not found", nil).WithTopic(et.TopicID)
			}
			positions = append(positions, cursor.TopicPosition{
				Topic:     et.TopicID,
				Partition: entry.Partition,
				Offset:    offset,
			})
			continue
		}

		p := cursor.TopicPosition{
			Topic:     et.TopicID,
			Partition: entry.Partition,
			Offset:    entry.Offset,
		}
		if _, err := cursor.ToInternal(p); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, nil
}
