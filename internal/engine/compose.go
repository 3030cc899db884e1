package engine

import (
	"remapd/internal/event"
	"remapd/internal/logging"
)

// composeState is the engine's single compose buffer. While active, every
// key press is captured into the buffer instead of dispatching, and the
// presses' releases are swallowed no matter when they arrive.
type composeState struct {
	active    bool
	trigger   *instance
	collected []event.Code
}

// composeAction holds the trigger key's side of a sequence: it opens the
// buffer on press and keeps the instance alive until both the sequence
// and the physical key are finished.
type composeAction struct {
	released bool
	over     bool
}

func (a *composeAction) press(e *Engine, inst *instance, ev event.KeyEvent) {
	e.startCompose(inst)
}

func (a *composeAction) release(e *Engine, inst *instance, ev event.KeyEvent) bool {
	a.released = true
	return a.over
}

func (a *composeAction) repeat(e *Engine, inst *instance, ev event.KeyEvent) {}

func (a *composeAction) timerFired(e *Engine, inst *instance) bool {
	e.log.Debug("compose sequence timed out",
		"collected", len(e.compose.collected))
	e.compose.active = false
	a.over = true
	return a.released
}

func (e *Engine) startCompose(inst *instance) {
	e.compose.active = true
	e.compose.trigger = inst
	e.compose.collected = e.compose.collected[:0]
	inst.timer = e.sched.Schedule(inst.code, e.composeDelay)
}

// composeCollect consumes one press while the buffer is active. Returns
// true when the press was captured; a second press of the trigger key
// resets the buffer rather than extending it.
func (e *Engine) composeCollect(ev event.KeyEvent) bool {
	trig := e.compose.trigger
	if ev.Code == trig.code {
		e.compose.collected = e.compose.collected[:0]
		e.rearmCompose(trig)
		return true
	}

	e.compose.collected = append(e.compose.collected, ev.Code)
	e.swallow[ev.Code] = true

	exact, prefix := e.matchCompose()
	if exact != nil {
		e.finishCompose(trig)
		e.tapTree(exact.Out, ev)
		return true
	}
	if !prefix {
		e.log.Debug("compose sequence failed",
			"key", logging.KeyName(event.CodeName(ev.Code)),
			"collected", len(e.compose.collected))
		e.finishCompose(trig)
		return true
	}
	e.rearmCompose(trig)
	return true
}

// matchCompose compares the buffer against the table: an exact entry wins
// immediately; prefix reports whether any entry can still match.
func (e *Engine) matchCompose() (exact *ComposeEntry, prefix bool) {
	got := e.compose.collected
	for i := range e.composeTable {
		ent := &e.composeTable[i]
		if len(ent.Sequence) < len(got) {
			continue
		}
		if !codesEqual(ent.Sequence[:len(got)], got) {
			continue
		}
		if len(ent.Sequence) == len(got) {
			return ent, false
		}
		prefix = true
	}
	return nil, prefix
}

func codesEqual(a, b []event.Code) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rearmCompose restarts the per-key window on the trigger instance.
func (e *Engine) rearmCompose(trig *instance) {
	if trig.timer != nil {
		e.sched.Cancel(trig.timer)
	}
	trig.timer = e.sched.Schedule(trig.code, e.composeDelay)
}

// finishCompose closes the buffer, matched or not, and retires the
// trigger instance if its key was already released.
func (e *Engine) finishCompose(trig *instance) {
	e.compose.active = false
	if trig.timer != nil {
		e.sched.Cancel(trig.timer)
		trig.timer = nil
	}
	act := trig.act.(*composeAction)
	act.over = true
	if act.released {
		e.destroy(trig)
	}
}
