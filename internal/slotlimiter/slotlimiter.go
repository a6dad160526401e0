// Package slotlimiter bounds how many concurrent streaming connections may
// consume a single (client, event type, partition) at once, per spec §4.5.
// It is grounded on the teacher's internal/concurrency/semaphore.go
// Semaphore (channel-capacity-as-permits) idiom, generalized from a single
// shared permit pool into a lazily created permit pool per key.
package slotlimiter

import "sync"

// Key identifies one partition's admission slot.
type Key struct {
	ClientID  string
	EventType string
	Partition int32
}

// Limiter tracks in-use slots per Key, each bounded by the same max.
type Limiter struct {
	max int

	mu   sync.Mutex
	used map[Key]int
}

// New creates a Limiter allowing up to max concurrent connections per Key.
func New(max int) *Limiter {
	return &Limiter{
		max:  max,
		used: make(map[Key]int),
	}
}

// Lease represents a successful acquisition across one or more partitions.
// Release is idempotent: calling it more than once only decrements the
// underlying counters the first time.
type Lease struct {
	limiter    *Limiter
	clientID   string
	eventType  string
	partitions []int32

	mu       sync.Mutex
	released bool
}

// AcquireConnectionSlots attempts to reserve one slot per partition in
// partitions, all or nothing: if any partition is already at max, no
// partition's counter is touched and ok is false.
func (l *Limiter) AcquireConnectionSlots(clientID, eventType string, partitions []int32) (lease *Lease, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range partitions {
		k := Key{ClientID: clientID, EventType: eventType, Partition: p}
		if l.used[k] >= l.max {
			return nil, false
		}
	}

	for _, p := range partitions {
		k := Key{ClientID: clientID, EventType: eventType, Partition: p}
		l.used[k]++
	}

	return &Lease{
		limiter:    l,
		clientID:   clientID,
		eventType:  eventType,
		partitions: append([]int32(nil), partitions...),
	}, true
}

// ReleaseConnectionSlots releases every slot held by lease. Safe to call
// more than once, from more than one goroutine, and with a nil lease.
func (l *Limiter) ReleaseConnectionSlots(lease *Lease) {
	if lease == nil {
		return
	}

	lease.mu.Lock()
	if lease.released {
		lease.mu.Unlock()
		return
	}
	lease.released = true
	lease.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range lease.partitions {
		k := Key{ClientID: lease.clientID, EventType: lease.eventType, Partition: p}
		if l.used[k] > 0 {
			l.used[k]--
		}
		if l.used[k] == 0 {
			delete(l.used, k)
		}
	}
}

// InUse reports the current number of held slots for a single key, for
// tests and metrics.
func (l *Limiter) InUse(clientID, eventType string, partition int32) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[Key{ClientID: clientID, EventType: eventType, Partition: partition}]
}
