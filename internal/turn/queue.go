// Package turn implements TurnRouter, its SpeechQueue, and
// BargeInCoordinator (spec.md §4.3/§4.8 backpressure layer 2),
// grounded on the original system's RouteTurnThread and MainEventLoop
// (original_source apps/rtagent/backend/api/v1/handlers/acs_media_lifecycle.py).
package turn

import (
	"sync"
	"sync/atomic"

	"github.com/rapidaai/voicecore/internal/wire"
)

const defaultQueueCapacity = 10

// SpeechQueue is a bounded single-consumer mpsc queue of speech events.
// On overflow it drops the oldest queued event rather than blocking the
// producer (the recognizer callback thread), per spec.md §4.3/§5.
type SpeechQueue struct {
	mu            sync.Mutex
	cond          *sync.Cond
	buf           []wire.SpeechEvent
	capacity      int
	closed        bool
	dropped       atomic.Int64
	highWatermark atomic.Int64
}

// NewSpeechQueue builds a SpeechQueue with the given bounded capacity.
// capacity <= 0 uses the spec default of 10.
func NewSpeechQueue(capacity int) *SpeechQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	q := &SpeechQueue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues event, dropping the oldest queued event if the queue is
// at capacity. Never blocks.
func (q *SpeechQueue) Push(event wire.SpeechEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if len(q.buf) >= q.capacity {
		q.buf = q.buf[1:]
		q.dropped.Add(1)
	}
	q.buf = append(q.buf, event)
	if n := int64(len(q.buf)); n > q.highWatermark.Load() {
		q.highWatermark.Store(n)
	}
	q.cond.Signal()
}

// Pop blocks until an event is available or the queue is closed, in
// which case it returns (nil, false).
func (q *SpeechQueue) Pop() (wire.SpeechEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return wire.SpeechEvent{}, false
	}
	event := q.buf[0]
	q.buf = q.buf[1:]
	return event, true
}

// Drain discards all currently-queued events (used on barge-in) and
// returns how many were removed.
func (q *SpeechQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.buf)
	q.buf = nil
	return n
}

// Close unblocks any pending Pop with (nil, false) and stops accepting
// new events.
func (q *SpeechQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Dropped returns the cumulative count of events dropped due to
// overflow.
func (q *SpeechQueue) Dropped() int64 { return q.dropped.Load() }

// HighWatermark returns the largest queue length observed.
func (q *SpeechQueue) HighWatermark() int64 { return q.highWatermark.Load() }
