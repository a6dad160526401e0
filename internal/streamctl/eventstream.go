package streamctl

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/helixagent/eventbroker/internal/cursor"
	"github.com/helixagent/eventbroker/internal/topicrepo"
)

// Flusher pushes buffered output to the client between batches.
type Flusher interface {
	Flush()
}

// EventStream pulls from an EventConsumer and writes framed JSON batches to
// the output. Batches are keyed by partition: each line carries the
// partition's current cursor and the events read since the last flush.
type EventStream struct {
	consumer topicrepo.EventConsumer
	out      io.Writer
	flusher  Flusher
	params   Params
	log      *logrus.Entry

	// cursors tracks the latest known position per partition, initialized
	// from the start cursors and advanced as events arrive.
	cursors map[string]cursor.TopicPosition
	// order keeps keep-alive output stable across flushes.
	order []string

	batches    map[string][]string
	batchCount int
	sent       int
}

// NewEventStream builds a stream positioned at start, writing to out.
func NewEventStream(consumer topicrepo.EventConsumer, start []cursor.TopicPosition, out io.Writer, flusher Flusher, params Params, log *logrus.Entry) *EventStream {
	s := &EventStream{
		consumer: consumer,
		out:      out,
		flusher:  flusher,
		params:   params,
		log:      log,
		cursors:  make(map[string]cursor.TopicPosition, len(start)),
		batches:  make(map[string][]string),
	}
	for _, c := range start {
		s.cursors[c.Partition] = c
		s.order = append(s.order, c.Partition)
	}
	return s
}

// StreamEvents runs until the client disconnects (ready reports false), the
// stream limits are met, or reading or writing fails.
func (s *EventStream) StreamEvents(ctx context.Context, ready func() bool) {
	var (
		started    = time.Now()
		lastFlush  = time.Now()
		keepAlives = 0
	)

	for ready() {
		if s.params.StreamTimeout > 0 && time.Since(started) >= s.params.StreamTimeout {
			break
		}
		if s.params.StreamLimit > 0 && s.sent >= s.params.StreamLimit {
			break
		}

		ev, err := s.consumer.ReadEvent(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.WithError(err).Warn("reading from consumer failed, closing stream")
			}
			return
		}

		if ev != nil {
			s.cursors[ev.NextPosition.Partition] = ev.NextPosition
			if !s.knownPartition(ev.NextPosition.Partition) {
				s.order = append(s.order, ev.NextPosition.Partition)
			}
			s.batches[ev.NextPosition.Partition] = append(s.batches[ev.NextPosition.Partition], ev.Payload)
			s.batchCount++
			s.sent++
		}

		flushDue := s.params.BatchFlushTimeout > 0 && time.Since(lastFlush) >= s.params.BatchFlushTimeout
		batchFull := s.params.BatchLimit > 0 && s.batchCount >= s.params.BatchLimit
		if !batchFull && !flushDue {
			continue
		}

		wroteEvents := s.batchCount > 0
		if err := s.flush(!wroteEvents); err != nil {
			s.log.WithError(err).Debug("writing to client failed, closing stream")
			return
		}
		lastFlush = time.Now()

		if wroteEvents {
			keepAlives = 0
			continue
		}
		keepAlives++
		if s.params.StreamKeepAliveLimit > 0 && keepAlives >= s.params.StreamKeepAliveLimit {
			break
		}
	}

	// Final flush of anything accumulated before the loop ended.
	if s.batchCount > 0 {
		_ = s.flush(false)
	}
}

// Close closes the underlying consumer.
func (s *EventStream) Close() error {
	return s.consumer.Close()
}

func (s *EventStream) knownPartition(p string) bool {
	for _, known := range s.order {
		if known == p {
			return true
		}
	}
	return false
}

// flush writes one line per partition carrying events; with keepAlive set
// it writes a cursor-only line for every partition instead.
func (s *EventStream) flush(keepAlive bool) error {
	var sb strings.Builder
	for _, partition := range s.order {
		events := s.batches[partition]
		if len(events) == 0 && !keepAlive {
			continue
		}
		writeBatchLine(&sb, s.cursors[partition], events)
	}
	s.batches = make(map[string][]string)
	s.batchCount = 0

	if sb.Len() == 0 {
		return nil
	}
	if _, err := io.WriteString(s.out, sb.String()); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeBatchLine frames one partition batch. The payloads are opaque JSON
// documents and are embedded verbatim.
func writeBatchLine(sb *strings.Builder, c cursor.TopicPosition, events []string) {
	sb.WriteString(`{"cursor":{"partition":"`)
	sb.WriteString(c.Partition)
	sb.WriteString(`","offset":"`)
	sb.WriteString(c.Offset)
	sb.WriteString(`"}`)
	if len(events) > 0 {
		sb.WriteString(`,"events":[`)
		for i, e := range events {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(e)
		}
		sb.WriteByte(']')
	}
	sb.WriteString("}\n")
}
