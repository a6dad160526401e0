package streamctl

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/config"
	"github.com/helixagent/eventbroker/internal/connwatch"
	"github.com/helixagent/eventbroker/internal/cursor"
	"github.com/helixagent/eventbroker/internal/metrics"
	"github.com/helixagent/eventbroker/internal/slotlimiter"
	"github.com/helixagent/eventbroker/internal/topicrepo"
)

// TopicRepository is the slice of the Topic Repository the controller
// depends on.
type TopicRepository interface {
	LoadNewestPosition(ctx context.Context, topics []string) ([]cursor.TopicPosition, error)
	LoadOldestPosition(ctx context.Context, topics []string, positionOnExisting bool) ([]cursor.TopicPosition, error)
	TopicExists(ctx context.Context, topic string) (bool, error)
	CreateEventConsumer(ctx context.Context, cursors []cursor.TopicPosition) (topicrepo.EventConsumer, error)
}

// Sink is the streaming response the controller writes into. Begin commits
// the 200 status with the x-json-stream content type and flushes the
// headers; after Begin no problem response is possible anymore.
type Sink interface {
	Begin() error
	io.Writer
	Flush()
}

// Request carries everything the controller needs from one HTTP request.
type Request struct {
	EventTypeName string
	CursorsHeader string
	Client        Client
	// Params holds the request's explicit limit overrides; zero fields fall
	// back to the configured defaults.
	Params Params
}

// Controller serves the streaming endpoint's lifecycle.
type Controller struct {
	registry  EventTypeRegistry
	repo      TopicRepository
	limiter   *slotlimiter.Limiter
	blacklist Blacklist
	metrics   *metrics.Metrics
	defaults  config.StreamingConfig
	log       *logrus.Entry
}

// New creates a Controller.
func New(registry EventTypeRegistry, repo TopicRepository, limiter *slotlimiter.Limiter, blacklist Blacklist, m *metrics.Metrics, defaults config.StreamingConfig, log *logrus.Entry) *Controller {
	return &Controller{
		registry:  registry,
		repo:      repo,
		limiter:   limiter,
		blacklist: blacklist,
		metrics:   m,
		defaults:  defaults,
		log:       log,
	}
}

// Stream runs one streaming request end to end. An error return means no
// byte of the response has been written yet and the caller must map it to
// a problem response; once sink.Begin succeeds, all failures are handled by
// closing the stream.
func (c *Controller) Stream(ctx context.Context, req Request, sink Sink) error {
	if c.blacklist.IsBlocked(req.Client.ID, req.EventTypeName) {
		return brokererr.New(brokererr.KindIllegalScope, "application or event type is blocked", nil)
	}

	// Connection readiness combines two flags: the watcher's, set on client
	// disconnect, and the controller's own, cleared on exit.
	watcher := connwatch.Watch(ctx, connwatch.DefaultPollInterval)
	var streaming atomic.Bool
	streaming.Store(true)
	defer streaming.Store(false)
	ready := func() bool {
		return streaming.Load() && !watcher.ConnectionClosed()
	}

	et, err := c.registry.Get(req.EventTypeName)
	if err != nil {
		return err
	}
	if !req.Client.HasAnyScope(et.ReadScopes) {
		return brokererr.New(brokererr.KindIllegalScope,
			fmt.Sprintf("client %s has no read scope for event type %s", req.Client.ID, et.Name), nil)
	}

	exists, err := c.repo.TopicExists(ctx, et.TopicID)
	if err != nil {
		return err
	}
	if !exists {
		// An event type whose topic is gone is broken state, not a client
		// mistake.
		return brokererr.New(brokererr.KindServiceUnavailable, "topic is absent in kafka", nil).
			WithTopic(et.TopicID).WithHTTPStatus(500)
	}

	params := c.mergeParams(req.Params)
	start, err := c.GetStreamingStart(ctx, et, req.CursorsHeader)
	if err != nil {
		return err
	}

	var lease *slotlimiter.Lease
	if c.defaults.LimitConsumersNumber {
		partitions, err := partitionsOf(start)
		if err != nil {
			return err
		}
		var ok bool
		lease, ok = c.limiter.AcquireConnectionSlots(req.Client.ID, et.Name, partitions)
		if !ok {
			return brokererr.New(brokererr.KindNoConnectionSlots,
				fmt.Sprintf("connection slots for event type %s exhausted", et.Name), nil)
		}
	}
	defer c.limiter.ReleaseConnectionSlots(lease)

	consumer, err := c.repo.CreateEventConsumer(ctx, start)
	if err != nil {
		return err
	}

	c.metrics.Consumers.WithLabelValues(et.Name).Inc()
	defer c.metrics.Consumers.WithLabelValues(et.Name).Dec()

	if err := sink.Begin(); err != nil {
		_ = consumer.Close()
		return brokererr.New(brokererr.KindServiceUnavailable, "unable to commit response", err).WithHTTPStatus(500)
	}

	stream := NewEventStream(consumer, start, sink, sink, params, c.log)
	defer func() {
		if err := stream.Close(); err != nil {
			c.log.WithError(err).Warn("closing event stream failed")
		}
	}()

	c.log.WithFields(logrus.Fields{
		"event_type": et.Name,
		"client":     req.Client.ID,
		"partitions": len(start),
	}).Debug("streaming started")

	stream.StreamEvents(ctx, ready)
	return nil
}

func (c *Controller) mergeParams(p Params) Params {
	if p.BatchLimit == 0 {
		p.BatchLimit = c.defaults.BatchLimit
	}
	if p.StreamLimit == 0 {
		p.StreamLimit = c.defaults.StreamLimit
	}
	if p.BatchFlushTimeout == 0 {
		p.BatchFlushTimeout = c.defaults.BatchFlushTimeout
	}
	if p.StreamTimeout == 0 {
		p.StreamTimeout = c.defaults.StreamTimeout
	}
	if p.StreamKeepAliveLimit == 0 {
		p.StreamKeepAliveLimit = c.defaults.StreamKeepAliveLimit
	}
	return p
}

func partitionsOf(positions []cursor.TopicPosition) ([]int32, error) {
	partitions := make([]int32, 0, len(positions))
	for _, p := range positions {
		n, err := strconv.ParseInt(p.Partition, 10, 32)
		if err != nil {
			return nil, brokererr.New(brokererr.KindInvalidFormat, "partition is not an integer", err)
		}
		partitions = append(partitions, int32(n))
	}
	return partitions, nil
}
