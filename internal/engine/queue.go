package engine

import (
	"sync"

	"remapd/internal/event"
)

// item is one entry of the merged dispatch queue: either a key event or a
// timer-fired signal.
type item struct {
	ev    event.KeyEvent
	timer *TimerHandle
}

func (it item) isTimer() bool { return it.timer != nil }

// queue merges raw key events and timer-fired signals into the single
// ordered stream the dispatcher consumes. Both kinds are FIFO among
// themselves; when both are ready in the same dispatch step, key events
// win. That rule is what makes a release scheduled for the same instant
// as a tap-hold timeout resolve as a tap.
//
// The queue grows without bound rather than dropping: losing a keystroke
// is a correctness violation, and the producer is a human hand.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	evs    []item
	timers []item
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// pushEvent appends a key event. Pushing to a closed queue is a no-op.
func (q *queue) pushEvent(ev event.KeyEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.evs = append(q.evs, item{ev: ev})
	q.cond.Signal()
	return true
}

// pushTimer appends a timer-fired signal.
func (q *queue) pushTimer(h *TimerHandle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.timers = append(q.timers, item{timer: h})
	q.cond.Signal()
}

// pop blocks for the next item. It returns ok=false once the queue is
// closed and drained of key events; undelivered timer signals are
// discarded at that point.
func (q *queue) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if len(q.evs) > 0 {
			it := q.evs[0]
			q.evs = q.evs[1:]
			return it, true
		}
		if q.closed {
			return item{}, false
		}
		if len(q.timers) > 0 {
			it := q.timers[0]
			q.timers = q.timers[1:]
			return it, true
		}
		q.cond.Wait()
	}
}

// close wakes the consumer and stops accepting new items.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
