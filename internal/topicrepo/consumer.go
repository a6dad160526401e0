package topicrepo

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/helixagent/eventbroker/internal/cursor"
	"github.com/helixagent/eventbroker/internal/kafkaclient"
)

// ConsumedEvent is one record read from the log together with the cursor a
// client should commit to resume reading after it.
type ConsumedEvent struct {
	Payload      string
	NextPosition cursor.TopicPosition
}

// EventConsumer reads events from a fixed set of partitions, merged into a
// single stream.
type EventConsumer interface {
	// ReadEvent returns the next available event, or (nil, nil) when no
	// event arrived within the configured poll timeout — the signal the
	// streaming loop uses to emit keep-alives and re-check limits.
	ReadEvent(ctx context.Context) (*ConsumedEvent, error)
	Close() error
}

// CreateEventConsumer validates cursors and returns an EventConsumer seeded
// with them and the configured poll timeout. Each cursor's offset names the
// next record to read for its partition; a cursor at the tail simply waits
// for the next record to be written. Offsets below the first retained
// record (the BEGIN form) are clamped up to it.
func (r *Repository) CreateEventConsumer(ctx context.Context, cursors []cursor.TopicPosition) (EventConsumer, error) {
	internals, err := r.ValidateCursors(ctx, cursors)
	if err != nil {
		return nil, err
	}

	bounds, err := r.loadBounds(ctx, distinctTopics(cursors))
	if err != nil {
		return nil, err
	}

	mc := &mergingConsumer{
		pollTimeout: r.cfg.PollTimeout,
		events:      make(chan consumedOrError),
		log:         r.log,
	}
	mc.ctx, mc.cancel = context.WithCancel(context.Background())

	for _, internal := range internals {
		start := internal.Offset
		if first := bounds[internal.Topic].oldest[internal.Partition] + 1; start < first {
			start = first
		}
		c, err := r.openCons(internal.Topic, internal.Partition, start)
		if err != nil {
			_ = mc.Close()
			return nil, err
		}
		mc.consumers = append(mc.consumers, c)
		mc.wg.Add(1)
		go mc.pump(c)
	}
	return mc, nil
}

type consumedOrError struct {
	event *ConsumedEvent
	err   error
}

// mergingConsumer fans the per-partition consumers into one channel, so a
// single streaming loop can drain any number of partitions with one poll.
type mergingConsumer struct {
	pollTimeout time.Duration
	consumers   []kafkaclient.Consumer
	events      chan consumedOrError
	log         *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

func (m *mergingConsumer) pump(c kafkaclient.Consumer) {
	defer m.wg.Done()
	for {
		msg, err := c.ReadMessage(m.ctx)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			select {
			case m.events <- consumedOrError{err: err}:
			case <-m.ctx.Done():
			}
			return
		}
		ev := &ConsumedEvent{
			Payload: string(msg.Value),
			NextPosition: cursor.TopicPosition{
				Topic:     msg.Topic,
				Partition: strconv.FormatInt(int64(msg.Partition), 10),
				Offset:    strconv.FormatInt(msg.Offset+1, 10),
			},
		}
		select {
		case m.events <- consumedOrError{event: ev}:
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *mergingConsumer) ReadEvent(ctx context.Context) (*ConsumedEvent, error) {
	timer := time.NewTimer(m.pollTimeout)
	defer timer.Stop()

	select {
	case coe := <-m.events:
		return coe.event, coe.err
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mergingConsumer) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.cancel()
		for _, c := range m.consumers {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		m.wg.Wait()
	})
	return err
}
