package streamctl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/cursor"
)

func TestGetStreamingStart_NoHeaderStartsFromNewest(t *testing.T) {
	repo := &fakeRepo{
		newest: []cursor.TopicPosition{
			{Topic: "T", Partition: "0", Offset: "100"},
			{Topic: "T", Partition: "1", Offset: "200"},
		},
	}
	c := newTestController(t, repo, nil)

	start, err := c.GetStreamingStart(context.Background(), &EventType{Name: "e", TopicID: "T"}, "")
	require.NoError(t, err)
	assert.Equal(t, repo.newest, start)
}

func TestGetStreamingStart_BeginSubstitutesOldest(t *testing.T) {
	repo := &fakeRepo{
		oldest: []cursor.TopicPosition{
			{Topic: "T", Partition: "0", Offset: "5"},
		},
	}
	c := newTestController(t, repo, nil)

	start, err := c.GetStreamingStart(context.Background(), &EventType{Name: "e", TopicID: "T"},
		`[{"partition":"0","offset":"BEGIN"}]`)
	require.NoError(t, err)
	require.Len(t, start, 1)
	assert.Equal(t, cursor.TopicPosition{Topic: "T", Partition: "0", Offset: "5"}, start[0])
}

func TestGetStreamingStart_BeginIsCaseInsensitive(t *testing.T) {
	repo := &fakeRepo{
		oldest: []cursor.TopicPosition{{Topic: "T", Partition: "0", Offset: "5"}},
	}
	c := newTestController(t, repo, nil)

	start, err := c.GetStreamingStart(context.Background(), &EventType{Name: "e", TopicID: "T"},
		`[{"partition":"0","offset":"begin"}]`)
	require.NoError(t, err)
	assert.Equal(t, "5", start[0].Offset)
}

func TestGetStreamingStart_ExplicitCursorsPassThrough(t *testing.T) {
	c := newTestController(t, &fakeRepo{}, nil)

	start, err := c.GetStreamingStart(context.Background(), &EventType{Name: "e", TopicID: "T"},
		`[{"partition":"0","offset":"12"},{"partition":"1","offset":"34"}]`)
	require.NoError(t, err)
	assert.Equal(t, []cursor.TopicPosition{
		{Topic: "T", Partition: "0", Offset: "12"},
		{Topic: "T", Partition: "1", Offset: "34"},
	}, start)
}

func TestGetStreamingStart_MalformedHeaderIsUnparseable(t *testing.T) {
	c := newTestController(t, &fakeRepo{}, nil)

	_, err := c.GetStreamingStart(context.Background(), &EventType{Name: "e", TopicID: "T"}, `{not json`)
	require.Error(t, err)
	assert.True(t, brokererr.Of(err, brokererr.KindUnparseableCursor))
}

func TestGetStreamingStart_EmptyListIsInvalidFormat(t *testing.T) {
	c := newTestController(t, &fakeRepo{}, nil)

	_, err := c.GetStreamingStart(context.Background(), &EventType{Name: "e", TopicID: "T"}, `[]`)
	require.Error(t, err)
	assert.True(t, brokererr.Of(err, brokererr.KindInvalidFormat))
}

func TestGetStreamingStart_MissingFieldsAreNullErrors(t *testing.T) {
	c := newTestController(t, &fakeRepo{}, nil)
	ctx := context.Background()
	et := &EventType{Name: "e", TopicID: "T"}

	_, err := c.GetStreamingStart(ctx, et, `[{"offset":"12"}]`)
	assert.True(t, brokererr.Of(err, brokererr.KindNullPartition))

	_, err = c.GetStreamingStart(ctx, et, `[{"partition":"0"}]`)
	assert.True(t, brokererr.Of(err, brokererr.KindNullOffset))
}

func TestGetStreamingStart_BeginForUnknownPartition(t *testing.T) {
	repo := &fakeRepo{
		oldest: []cursor.TopicPosition{{Topic: "T", Partition: "0", Offset: "5"}},
	}
	c := newTestController(t, repo, nil)

	_, err := c.GetStreamingStart(context.Background(), &EventType{Name: "e", TopicID: "T"},
		`[{"partition":"7","offset":"BEGIN"}]`)
	require.Error(t, err)
	assert.True(t, brokererr.Of(err, brokererr.KindPartitionNotFound))
}
