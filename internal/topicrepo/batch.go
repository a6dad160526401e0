package topicrepo

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/kafkaclient"
)

// PublishingStep tracks how far a batch item has moved through the publish
// pipeline.
type PublishingStep string

const (
	StepNone       PublishingStep = "NONE"
	StepPublishing PublishingStep = "PUBLISHING"
	StepPublished  PublishingStep = "PUBLISHED"
)

// PublishingStatus is the per-item outcome reported back to the caller.
type PublishingStatus string

const (
	// StatusNone means no outcome has been recorded yet. Every item leaves
	// SyncPostBatch with a final status; StatusNone only exists in flight.
	StatusNone      PublishingStatus = ""
	StatusSubmitted PublishingStatus = "SUBMITTED"
	StatusFailed    PublishingStatus = "FAILED"
	StatusAborted   PublishingStatus = "ABORTED"
)

// BatchItem is one event of a publish batch. It is owned by a single
// SyncPostBatch call but mutated from producer completion callbacks, so all
// state transitions go through the mutex. Status upgrades are monotonic:
// once SUBMITTED an item never changes again, and a recorded detail is
// never overwritten by the fail-sweep.
type BatchItem struct {
	mu sync.Mutex

	event     string
	partition string
	brokerID  string
	step      PublishingStep
	status    PublishingStatus
	detail    string
}

// NewBatchItem creates an item carrying event destined for partition.
func NewBatchItem(event, partition string) *BatchItem {
	return &BatchItem{
		event:     event,
		partition: partition,
		step:      StepNone,
	}
}

// Event returns the opaque payload.
func (b *BatchItem) Event() string { return b.event }

// Partition returns the pre-assigned partition in string form.
func (b *BatchItem) Partition() string { return b.partition }

// BrokerID returns the leader broker id assigned just before publish.
func (b *BatchItem) BrokerID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.brokerID
}

// Step returns the current publishing step.
func (b *BatchItem) Step() PublishingStep {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.step
}

// Response returns the item's final (status, detail) pair.
func (b *BatchItem) Response() (PublishingStatus, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, b.detail
}

func (b *BatchItem) assignBroker(id string) {
	b.mu.Lock()
	b.brokerID = id
	b.mu.Unlock()
}

func (b *BatchItem) setStep(s PublishingStep) {
	b.mu.Lock()
	b.step = s
	b.mu.Unlock()
}

// markSubmitted records success. SUBMITTED is terminal.
func (b *BatchItem) markSubmitted() {
	b.mu.Lock()
	b.step = StepPublished
	b.status = StatusSubmitted
	b.mu.Unlock()
}

// fail records a failure with detail unless the item already submitted or
// already carries a detail.
func (b *BatchItem) fail(detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == StatusSubmitted {
		return
	}
	b.status = StatusFailed
	if b.detail == "" {
		b.detail = detail
	}
}

// inFlight is one submitted record waiting for its completion callback.
type inFlight struct {
	item   *BatchItem
	result <-chan kafkaclient.ProduceResult
}

// SyncPostBatch publishes every item of batch to topicID and blocks until
// all submitted records are acknowledged, the send deadline passes, or ctx
// is cancelled. Per-broker circuit breakers gate each send; a breaker that
// refuses fails the item as "short circuited" without sending. On return
// every item is either SUBMITTED or FAILED with a non-empty detail, and a
// non-nil error of kind EventPublishing signals that at least one item did
// not make it.
//
// An item with an empty partition is a caller bug and panics: partitions
// are assigned upstream before the batch ever reaches the repository.
func (r *Repository) SyncPostBatch(ctx context.Context, topicID string, batch []*BatchItem) error {
	if len(batch) == 0 {
		return nil
	}
	for i, item := range batch {
		if item.partition == "" {
			panic(fmt.Sprintf("topicrepo: batch item %d has no partition assigned", i))
		}
	}

	producer, err := r.pool.Take(ctx)
	if err != nil {
		failRemaining(batch, "internal error")
		return brokererr.New(brokererr.KindEventPublishing, "no producer available", err).WithTopic(topicID)
	}

	leaders, err := r.admin.PartitionLeaders(ctx, topicID)
	if err != nil {
		failRemaining(batch, "internal error")
		r.pool.Release(producer)
		return brokererr.New(brokererr.KindEventPublishing, "unable to resolve partition leaders", err).WithTopic(topicID)
	}

	inflight := r.submitBatch(ctx, producer, topicID, leaders, batch)

	needsReset, wait := r.awaitCompletions(ctx, inflight)
	switch {
	case wait != nil:
		// Deadline or cancellation: anything still unresolved did not make
		// it; the straggling callbacks race the sweep but can only upgrade
		// an item to SUBMITTED, never downgrade one.
		r.pool.Release(producer)
		failRemaining(batch, wait.detail)
		return brokererr.New(brokererr.KindEventPublishing, wait.detail, wait.cause).WithTopic(topicID)
	case needsReset:
		// Stale leadership metadata poisons the producer handle; replace it
		// rather than recycling it.
		if terr := r.pool.Terminate(producer); terr != nil {
			r.log.WithError(terr).Warn("replacing poisoned producer failed")
		}
	default:
		r.pool.Release(producer)
	}

	if anyFailed(batch) {
		failRemaining(batch, "internal error")
		return brokererr.New(brokererr.KindEventPublishing, "one or more events failed to publish", nil).WithTopic(topicID)
	}
	return nil
}

// submitBatch moves every item to PUBLISHING and sends those its broker's
// breaker admits, returning the in-flight set.
func (r *Repository) submitBatch(ctx context.Context, producer kafkaclient.Producer, topicID string, leaders map[int32]string, batch []*BatchItem) []inFlight {
	var inflight []inFlight
	for _, item := range batch {
		item.setStep(StepPublishing)

		partition, perr := strconv.ParseInt(item.partition, 10, 32)
		if perr != nil {
			item.fail("internal error")
			continue
		}
		brokerID, ok := leaders[int32(partition)]
		if !ok {
			item.fail("internal error")
			continue
		}
		item.assignBroker(brokerID)

		cb := r.breakers.Get(brokerID)
		if !cb.AllowRequest() {
			item.fail("short circuited")
			continue
		}

		cb.MarkStart()
		result := producer.Produce(ctx, topicID, int32(partition), nil, []byte(item.event))
		inflight = append(inflight, inFlight{item: item, result: result})
	}
	return inflight
}

// waitFailure describes why the aggregate wait ended before all callbacks
// resolved.
type waitFailure struct {
	detail string
	cause  error
}

// awaitCompletions consumes every completion callback, applying the
// per-item semantics, until all resolve or the publish deadline passes.
// needsReset reports whether any completion carried a stale-metadata error.
func (r *Repository) awaitCompletions(ctx context.Context, inflight []inFlight) (needsReset bool, failure *waitFailure) {
	if len(inflight) == 0 {
		return false, nil
	}

	deadline := r.cfg.SendTimeout + r.cfg.RequestTimeout
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	var (
		mu    sync.Mutex
		reset bool
	)
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, f := range inflight {
		wg.Add(1)
		go func(f inFlight) {
			defer wg.Done()
			res := <-f.result
			cb := r.breakers.Get(f.item.BrokerID())
			if res.Err != nil {
				f.item.fail("internal error")
				if kafkaclient.IsConnectionError(res.Err) {
					cb.MarkFailure()
				} else {
					cb.MarkSuccessfully()
				}
				if kafkaclient.NeedsProducerReset(res.Err) {
					mu.Lock()
					reset = true
					mu.Unlock()
				}
				return
			}
			f.item.markSubmitted()
			cb.MarkSuccessfully()
		}(f)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		mu.Lock()
		defer mu.Unlock()
		return reset, nil
	case <-timer.C:
		return false, &waitFailure{detail: "timed out"}
	case <-ctx.Done():
		return false, &waitFailure{detail: "interrupted", cause: ctx.Err()}
	}
}

// failRemaining is the fail-sweep: every item without a final status gets
// FAILED with detail; items already failed but lacking a detail get one.
func failRemaining(batch []*BatchItem, detail string) {
	for _, item := range batch {
		item.mu.Lock()
		if item.status == StatusSubmitted {
			item.mu.Unlock()
			continue
		}
		item.status = StatusFailed
		if item.detail == "" {
			item.detail = detail
		}
		item.mu.Unlock()
	}
}

func anyFailed(batch []*BatchItem) bool {
	for _, item := range batch {
		if status, _ := item.Response(); status != StatusSubmitted {
			return true
		}
	}
	return false
}
