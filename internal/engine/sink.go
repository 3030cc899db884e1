package engine

import (
	"time"

	"remapd/internal/event"
)

// Sink accepts the engine's ordered output events. The device layer's
// uinput sink satisfies it; tests use a recorder.
type Sink interface {
	Send(ev event.KeyEvent) error
}

// outputQueueSize absorbs output backpressure. The dispatcher must never
// block on device writes, and dropping a keystroke is not an option, so
// the queue is sized far beyond anything a macro burst can produce.
const outputQueueSize = 4096

// PacedSink decouples the dispatcher from device writes: Send only
// queues, and a writer goroutine forwards to the device while enforcing
// the configured minimum delay between events.
type PacedSink struct {
	dev   Sink
	delay time.Duration
	ch    chan event.KeyEvent
	done  chan struct{}
	errc  chan error
}

// NewPacedSink wraps dev. delay is the key-seq-delay setting; zero means
// no pacing.
func NewPacedSink(dev Sink, delay time.Duration) *PacedSink {
	return &PacedSink{
		dev:   dev,
		delay: delay,
		ch:    make(chan event.KeyEvent, outputQueueSize),
		done:  make(chan struct{}),
		errc:  make(chan error, 1),
	}
}

// Send queues ev for emission. It never blocks the dispatcher beyond the
// queue append; a device write failure surfaces on Err.
func (s *PacedSink) Send(ev event.KeyEvent) error {
	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// Run forwards queued events to the device until Close. It returns the
// first write error; any write failure is fatal for the daemon.
func (s *PacedSink) Run() error {
	for {
		select {
		case ev := <-s.ch:
			if err := s.dev.Send(ev); err != nil {
				select {
				case s.errc <- err:
				default:
				}
				return err
			}
			if s.delay > 0 {
				time.Sleep(s.delay)
			}
		case <-s.done:
			// Drain what was queued before shutdown so no accepted
			// event is lost.
			for {
				select {
				case ev := <-s.ch:
					if err := s.dev.Send(ev); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}

// Err reports a pending write error without blocking.
func (s *PacedSink) Err() error {
	select {
	case err := <-s.errc:
		return err
	default:
		return nil
	}
}

// Close stops the writer after draining.
func (s *PacedSink) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
