package engine

import (
	"time"

	"remapd/internal/event"
)

// TimerHandle identifies one scheduled single-shot timer. A handle's
// cancelled flag is written and read only on the dispatcher goroutine, so
// cancellation and an observed firing are mutually exclusive by
// construction: a fired signal already sitting in the queue when Cancel
// runs is discarded at pop time.
type TimerHandle struct {
	code      event.Code
	cancelled bool
	timer     *time.Timer
}

// Scheduler schedules and cancels the single-shot timers that drive
// tap-hold, multi-tap, macro and compose resolution. Fired timers are
// posted into the dispatcher's merged queue, never delivered by callback,
// so timer signals share the total order with key events.
type Scheduler interface {
	// Schedule arms a timer owned by the instance on code.
	Schedule(code event.Code, d time.Duration) *TimerHandle

	// Cancel marks the handle dead. Called only from the dispatcher
	// goroutine; after Cancel returns the loop can never observe the
	// handle as fired.
	Cancel(h *TimerHandle)
}

// clockScheduler is the production scheduler, backed by time.AfterFunc.
type clockScheduler struct {
	q *queue
}

func newClockScheduler(q *queue) *clockScheduler {
	return &clockScheduler{q: q}
}

func (s *clockScheduler) Schedule(code event.Code, d time.Duration) *TimerHandle {
	h := &TimerHandle{code: code}
	h.timer = time.AfterFunc(d, func() {
		s.q.pushTimer(h)
	})
	return h
}

func (s *clockScheduler) Cancel(h *TimerHandle) {
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
}
