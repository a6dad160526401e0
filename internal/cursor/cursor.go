// Package cursor implements the bijection between the user-facing
// (partition, offset) string pair and the internal normalized
// (partition-index, offset-long) form, per spec §4.1.
package cursor

import (
	"strconv"
	"strings"

	"github.com/helixagent/eventbroker/internal/brokererr"
)

// BeginSentinel is the case-insensitive offset value meaning "before the
// oldest available record".
const BeginSentinel = "BEGIN"

// IsBegin reports whether offset is the BEGIN sentinel, case-insensitively.
func IsBegin(offset string) bool {
	return strings.EqualFold(offset, BeginSentinel)
}

// TopicPosition is the immutable, user-visible cursor representation.
// Offset is a decimal string, the BEGIN sentinel, or empty (only valid when
// requesting "from newest").
type TopicPosition struct {
	Topic     string
	Partition string
	Offset    string
}

// InternalCursor is the normalized, totally-ordered-within-a-partition form.
type InternalCursor struct {
	Topic     string
	Partition int32
	Offset    int64
}

// ToInternal converts a TopicPosition to an InternalCursor. Conversion is
// total when both fields parse; otherwise it fails with a typed
// brokererr.Error per spec §4.1.
func ToInternal(p TopicPosition) (InternalCursor, error) {
	if p.Partition == "" {
		return InternalCursor{}, brokererr.New(brokererr.KindNullPartition, "partition is required", nil)
	}
	if p.Offset == "" {
		return InternalCursor{}, brokererr.New(brokererr.KindNullOffset, "offset is required", nil)
	}

	partition, err := strconv.ParseInt(p.Partition, 10, 32)
	if err != nil {
		return InternalCursor{}, brokererr.New(brokererr.KindInvalidFormat, "partition is not an integer", err)
	}

	offset, err := strconv.ParseInt(p.Offset, 10, 64)
	if err != nil {
		return InternalCursor{}, brokererr.New(brokererr.KindInvalidFormat, "offset is not an integer", err)
	}

	return InternalCursor{
		Topic:     p.Topic,
		Partition: int32(partition),
		Offset:    offset,
	}, nil
}

// ToPosition converts an InternalCursor back to its wire representation.
// ToInternal(ToPosition(c)) == c for any valid c (testable property #4).
func ToPosition(c InternalCursor) TopicPosition {
	return TopicPosition{
		Topic:     c.Topic,
		Partition: strconv.FormatInt(int64(c.Partition), 10),
		Offset:    strconv.FormatInt(c.Offset, 10),
	}
}

// Compare orders two internal cursors. Partitions must match for the
// ordering to be meaningful; within a partition it is a total order on
// offset (testable property #5). Cursors from different partitions compare
// by partition index first so Compare is still a well-defined total
// function, but callers must not rely on that ordering as a commit order
// guarantee across partitions (spec §5).
func Compare(a, b InternalCursor) int {
	if a.Partition != b.Partition {
		if a.Partition < b.Partition {
			return -1
		}
		return 1
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	default:
		return 0
	}
}
