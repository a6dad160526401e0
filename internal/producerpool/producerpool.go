// Package producerpool adapts the teacher's ResourcePool idiom
// (internal/concurrency/semaphore.go in the retrieved pack) into a bounded,
// typed pool of kafkaclient.Producer handles, generalized with a Terminate
// operation so a handle poisoned by stale cluster metadata can be replaced
// rather than returned to circulation.
package producerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/helixagent/eventbroker/internal/kafkaclient"
)

// Factory creates a new producer handle. It is called once per pool slot at
// construction time and again whenever Terminate replaces a poisoned
// handle.
type Factory func() (kafkaclient.Producer, error)

// Pool is a fixed-size pool of kafkaclient.Producer handles.
type Pool struct {
	handles chan kafkaclient.Producer
	factory Factory

	mu     sync.Mutex
	closed bool
}

// New creates a Pool of size handles, all built eagerly via factory. It
// fails fast if any handle cannot be constructed, closing whatever handles
// it had already created.
func New(size int, factory Factory) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("producerpool: size must be positive, got %d", size)
	}

	p := &Pool{
		handles: make(chan kafkaclient.Producer, size),
		factory: factory,
	}

	for i := 0; i < size; i++ {
		h, err := factory()
		if err != nil {
			p.drainAndClose()
			return nil, fmt.Errorf("producerpool: building handle %d/%d: %w", i+1, size, err)
		}
		p.handles <- h
	}

	return p, nil
}

// Take checks out a handle, blocking until one is available or ctx is
// done.
func (p *Pool) Take(ctx context.Context) (kafkaclient.Producer, error) {
	select {
	case h, ok := <-p.handles:
		if !ok {
			return nil, fmt.Errorf("producerpool: pool is closed")
		}
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a healthy handle to the pool.
func (p *Pool) Release(h kafkaclient.Producer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = h.Close()
		return
	}
	p.handles <- h
}

// Terminate closes a poisoned handle and replaces it with a freshly built
// one, so the pool's total capacity never shrinks because of a single bad
// connection. If the factory fails to build a replacement, the slot is
// permanently lost and the error is returned to the caller;
// topicrepo.SyncPostBatch logs it and still reports the batch's own outcome.
func (p *Pool) Terminate(h kafkaclient.Producer) error {
	_ = h.Close()

	fresh, err := p.factory()
	if err != nil {
		return fmt.Errorf("producerpool: replacing poisoned handle: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = fresh.Close()
		return nil
	}
	p.handles <- fresh
	return nil
}

// Close closes every handle currently checked into the pool and marks it
// closed; handles still checked out are closed as they are Released or
// Terminated.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.drainAndClose()
}

func (p *Pool) drainAndClose() {
	close(p.handles)
	for h := range p.handles {
		_ = h.Close()
	}
}
