// Package connwatch detects that a streaming client has disconnected,
// so the streaming controller can stop pushing to a consumer nobody is
// reading from. It is grounded on the teacher's
// internal/background/stuck_detector.go shape: a shared flag, polled on a
// bounded cadence rather than pushed, generalized here from a CPU/heartbeat
// check to an HTTP request-context check.
package connwatch

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultPollInterval matches the teacher's stuck-detector cadence order of
// magnitude: frequent enough to notice a disconnect promptly, coarse enough
// not to burn CPU on every open stream.
const DefaultPollInterval = 1 * time.Second

// Watcher reports whether the HTTP request it was armed against has been
// closed by the client.
type Watcher struct {
	closed atomic.Bool
	done   chan struct{}
}

// Watch arms a Watcher against ctx (normally an *http.Request's context),
// polling every interval until ctx is done. It returns immediately; the
// polling runs in its own goroutine and exits once the connection closes.
func Watch(ctx context.Context, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	w := &Watcher{done: make(chan struct{})}
	go w.poll(ctx, interval)
	return w
}

func (w *Watcher) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.trip()
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				w.trip()
				return
			}
		}
	}
}

func (w *Watcher) trip() {
	if w.closed.CompareAndSwap(false, true) {
		close(w.done)
	}
}

// ConnectionClosed reports whether the watched connection has closed.
func (w *Watcher) ConnectionClosed() bool {
	return w.closed.Load()
}

// Done returns a channel that is closed the moment the watcher detects a
// disconnect, for callers that want to select on it directly instead of
// polling ConnectionClosed.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}
