// Package engine implements the runtime remapping core: the event
// dispatcher, the per-button state machines, the compose buffer, the
// command gate, and the timer scheduler that together decide which
// synthetic events to emit and when.
//
// All mutable state lives on a single dispatcher goroutine. Input pumps,
// timer callbacks and the output writer communicate with it only through
// the merged queue and the paced sink, so no two state machines are ever
// touched concurrently.
package engine

import (
	"fmt"
	"time"

	"remapd/internal/button"
	"remapd/internal/event"
	"remapd/internal/layers"
	"remapd/internal/logging"
)

// ComposeEntry is one compose sequence the engine matches against.
type ComposeEntry struct {
	Sequence []event.Code
	Out      button.Button
}

// Config carries everything the dispatcher needs, threaded in explicitly
// so the core is testable without the CLI or device collaborators.
type Config struct {
	// Stack is the runtime layer stack built from the compiled keymap.
	Stack *layers.Stack

	// Compose is the compiled compose table, sorted by sequence length.
	Compose []ComposeEntry

	// ComposeDelay is the per-key timeout inside an active sequence.
	ComposeDelay time.Duration

	// Fallthrough re-emits unmapped events instead of consuming them.
	Fallthrough bool

	// Gate authorizes shell buttons.
	Gate *Gate

	// Sink receives the ordered output events.
	Sink Sink

	// Runner launches authorized shell commands.
	Runner Runner

	// Clock stamps emitted events. Nil selects the system clock.
	Clock Clock

	// Scheduler drives timed resolution. Nil selects the production
	// scheduler posting into the engine's own queue.
	Scheduler Scheduler

	// Logger receives diagnostics. Nil selects the default logger.
	Logger *logging.Logger
}

// instance is the mutable runtime state of one engaged physical key: the
// button's state machine plus at most one pending timer. A physical key
// has at most one live instance at a time.
type instance struct {
	code  event.Code
	act   action
	timer *TimerHandle
}

// Engine is the event dispatcher and the owner of all button state.
type Engine struct {
	stack        *layers.Stack
	composeTable []ComposeEntry
	composeDelay time.Duration
	reemit       bool
	gate         *Gate
	sink         Sink
	runner       Runner
	clock        Clock
	sched        Scheduler
	log          *logging.Logger

	q         *queue
	instances map[event.Code]*instance

	// pending is the single undecided tap-hold instance, if any. While a
	// lazy tap-hold is pending, events for other keys are deferred; an
	// eager one instead resolves as hold on the first interrupting press.
	pending  *instance
	deferred []event.KeyEvent
	flushing bool

	compose composeState

	// swallow marks keys whose press was consumed by the compose buffer;
	// their release (and repeats) are consumed too, wherever the buffer
	// has moved on to by then.
	swallow map[event.Code]bool

	fatalErr error
}

// New builds an engine. The configuration is immutable afterwards.
func New(cfg Config) *Engine {
	e := &Engine{
		stack:        cfg.Stack,
		composeTable: cfg.Compose,
		composeDelay: cfg.ComposeDelay,
		reemit:       cfg.Fallthrough,
		gate:         cfg.Gate,
		sink:         cfg.Sink,
		runner:       cfg.Runner,
		clock:        cfg.Clock,
		sched:        cfg.Scheduler,
		log:          cfg.Logger,
		q:            newQueue(),
		instances:    make(map[event.Code]*instance),
		swallow:      make(map[event.Code]bool),
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	if e.sched == nil {
		e.sched = newClockScheduler(e.q)
	}
	if e.log == nil {
		e.log = logging.Default()
	}
	if e.gate == nil {
		e.gate = NewGate(false)
	}
	if e.runner == nil {
		e.runner = NewExecRunner(e.log)
	}
	return e
}

// Push hands a raw key event to the dispatcher. It is the input pump's
// entry point and safe to call from any goroutine.
func (e *Engine) Push(ev event.KeyEvent) error {
	if !e.q.pushEvent(ev) {
		return ErrStopped
	}
	return nil
}

// Run is the dispatch loop. It returns nil after Stop, or the first fatal
// error (a failed output write).
func (e *Engine) Run() error {
	for {
		it, ok := e.q.pop()
		if !ok {
			return e.fatalErr
		}
		e.process(it)
		if e.fatalErr != nil {
			return e.fatalErr
		}
	}
}

// Stop shuts the dispatcher down. Queued key events are still processed;
// undelivered timer signals are discarded.
func (e *Engine) Stop() {
	e.q.close()
}

// process handles one queue item. It is the only place state transitions
// happen, which is what serializes every machine on the dispatcher.
func (e *Engine) process(it item) {
	if it.isTimer() {
		e.processTimer(it.timer)
		e.flushDeferred()
		return
	}

	if e.deferring() && it.ev.Code != e.pending.code {
		e.deferred = append(e.deferred, it.ev)
		return
	}

	e.dispatchKey(it.ev)
	e.flushDeferred()
}

// deferring reports whether a lazy tap-hold is pending, which queues all
// events for other keys until it resolves.
func (e *Engine) deferring() bool {
	if e.pending == nil {
		return false
	}
	th, ok := e.pending.act.(*tapHoldAction)
	return ok && !th.eager
}

// flushDeferred replays events queued behind a lazy tap-hold once it has
// resolved. Replay stops as soon as another lazy tap-hold goes pending.
func (e *Engine) flushDeferred() {
	if e.flushing {
		return
	}
	e.flushing = true
	for !e.deferring() && len(e.deferred) > 0 {
		ev := e.deferred[0]
		e.deferred = e.deferred[1:]
		e.dispatchKey(ev)
	}
	e.flushing = false
}

func (e *Engine) dispatchKey(ev event.KeyEvent) {
	switch ev.Transition {
	case event.Press:
		e.dispatchPress(ev)
	case event.Release:
		e.dispatchRelease(ev)
	case event.Repeat:
		e.dispatchRepeat(ev)
	}
}

func (e *Engine) dispatchPress(ev event.KeyEvent) {
	if e.compose.active && e.composeCollect(ev) {
		return
	}

	if inst := e.instances[ev.Code]; inst != nil {
		// A press with a live instance means a non-reentrant machine is
		// still working (macro mid-emission); the machine decides.
		inst.act.press(e, inst, ev)
		return
	}

	// The one deliberate reordering point: an eager tap-hold resolves as
	// hold before the interrupting press is dispatched, so the new key is
	// resolved against the layer or modifier the hold establishes.
	if e.pending != nil && e.pending.code != ev.Code {
		if th, ok := e.pending.act.(*tapHoldAction); ok && th.eager {
			th.resolveHold(e, e.pending)
		}
	}

	b, ok := e.stack.Resolve(ev.Code)
	if !ok {
		if e.reemit {
			b = button.Fallthrough{}
		} else {
			b = button.Pass{}
		}
	}

	inst := &instance{code: ev.Code, act: e.newAction(b, ev)}
	e.instances[ev.Code] = inst
	inst.act.press(e, inst, ev)
}

func (e *Engine) dispatchRelease(ev event.KeyEvent) {
	if inst := e.instances[ev.Code]; inst != nil {
		if inst.act.release(e, inst, ev) {
			e.destroy(inst)
		}
		return
	}
	if e.swallow[ev.Code] {
		delete(e.swallow, ev.Code)
		return
	}
	e.log.Debug("unmatched release dropped",
		"key", logging.KeyName(event.CodeName(ev.Code)))
}

func (e *Engine) dispatchRepeat(ev event.KeyEvent) {
	if e.swallow[ev.Code] {
		return
	}
	if inst := e.instances[ev.Code]; inst != nil {
		inst.act.repeat(e, inst, ev)
		return
	}
	if e.reemit {
		e.emit(ev.Code, event.Repeat)
	}
}

func (e *Engine) processTimer(h *TimerHandle) {
	if h.cancelled {
		return
	}
	inst := e.instances[h.code]
	if inst == nil || inst.timer != h {
		// Stale handle from a machine that moved on. Cancellation
		// discipline makes this unreachable; dropping it is still the
		// only sound response.
		return
	}
	inst.timer = nil
	if inst.act.timerFired(e, inst) {
		e.destroy(inst)
	}
}

// destroy retires an instance. Idempotent: compose teardown can race a
// timer-driven teardown within a single dispatch step.
func (e *Engine) destroy(inst *instance) {
	if inst.timer != nil {
		e.sched.Cancel(inst.timer)
		inst.timer = nil
	}
	if e.instances[inst.code] == inst {
		delete(e.instances, inst.code)
	}
	if e.pending == inst {
		e.pending = nil
	}
}

// newAction builds the state machine for a resolved button.
func (e *Engine) newAction(b button.Button, ev event.KeyEvent) action {
	switch v := b.(type) {
	case button.TapHold:
		return &tapHoldAction{tap: v.Tap, hold: v.Hold, timeout: v.Timeout, eager: v.Eager}
	case button.MultiTap:
		return &multiTapAction{steps: v.Steps}
	case button.Macro:
		return &macroAction{steps: v.Steps, src: ev}
	case button.ComposeTrigger:
		return &composeAction{}
	default:
		return &holdAction{btn: b}
	}
}

// emit sends one synthetic event to the output sink. A send failure is
// fatal: remapping with a dead output device would eat keystrokes.
func (e *Engine) emit(code event.Code, tr event.Transition) {
	ev := event.KeyEvent{Code: code, Transition: tr, At: e.clock.Now()}
	if err := e.sink.Send(ev); err != nil {
		if e.fatalErr == nil {
			e.fatalErr = fmt.Errorf("output sink: %w", err)
		}
	}
}

// resolution reports a non-fatal per-event failure and keeps going.
func (e *Engine) resolution(op string, err error) {
	rerr := &ResolutionError{Op: op, Err: err}
	e.log.Warn("resolution error", "error", rerr)
}
