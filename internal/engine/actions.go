package engine

import (
	"time"

	"remapd/internal/button"
	"remapd/internal/event"
)

// action is the state machine behind one engaged key. The engine calls
// every method on the dispatcher goroutine only. release and timerFired
// report whether the instance is finished and should be retired.
type action interface {
	press(e *Engine, inst *instance, ev event.KeyEvent)
	release(e *Engine, inst *instance, ev event.KeyEvent) bool
	repeat(e *Engine, inst *instance, ev event.KeyEvent)
	timerFired(e *Engine, inst *instance) bool
}

// holdAction drives every stateless button tree: press walks the press
// half, release walks the release half, done.
type holdAction struct {
	btn button.Button
	src event.KeyEvent
}

func (a *holdAction) press(e *Engine, inst *instance, ev event.KeyEvent) {
	a.src = ev
	e.pressTree(a.btn, ev)
}

func (a *holdAction) release(e *Engine, inst *instance, ev event.KeyEvent) bool {
	e.releaseTree(a.btn, ev)
	return true
}

func (a *holdAction) repeat(e *Engine, inst *instance, ev event.KeyEvent) {
	if c, ok := repeatCode(a.btn, a.src); ok {
		e.emit(c, event.Repeat)
	}
}

func (a *holdAction) timerFired(e *Engine, inst *instance) bool {
	return false
}

// tapHoldAction resolves a key as tap or hold. Until resolution the key
// emits nothing; resolution is release before timeout (tap), timeout
// (hold), or, for the eager variant, an interrupting press (hold).
type tapHoldAction struct {
	tap     button.Button
	hold    button.Button
	timeout time.Duration
	eager   bool

	held bool // resolved as hold, release pending
	src  event.KeyEvent
}

func (a *tapHoldAction) press(e *Engine, inst *instance, ev event.KeyEvent) {
	if e.pending == inst {
		return
	}
	a.src = ev
	inst.timer = e.sched.Schedule(inst.code, a.timeout)
	e.pending = inst
}

func (a *tapHoldAction) release(e *Engine, inst *instance, ev event.KeyEvent) bool {
	if a.held {
		e.releaseTree(a.hold, ev)
		return true
	}
	// Released inside the window: a tap. The queue delivers a release
	// ahead of a timer signal from the same instant, so ties resolve here.
	e.sched.Cancel(inst.timer)
	inst.timer = nil
	e.pending = nil
	e.tapTree(a.tap, ev)
	return true
}

func (a *tapHoldAction) repeat(e *Engine, inst *instance, ev event.KeyEvent) {
	if !a.held {
		return
	}
	if c, ok := repeatCode(a.hold, a.src); ok {
		e.emit(c, event.Repeat)
	}
}

func (a *tapHoldAction) timerFired(e *Engine, inst *instance) bool {
	a.resolveHold(e, inst)
	return false
}

// resolveHold commits the hold branch. Reached by timeout or, for eager
// tap-holds, by an interrupting press.
func (a *tapHoldAction) resolveHold(e *Engine, inst *instance) {
	if a.held {
		return
	}
	if inst.timer != nil {
		e.sched.Cancel(inst.timer)
		inst.timer = nil
	}
	a.held = true
	e.pending = nil
	e.pressTree(a.hold, a.src)
}

// multiTapAction counts rapid press/release cycles and commits the step
// action matching the final count. The final step commits immediately;
// earlier counts commit when the window expires, as a tap if the key is
// up or as a hold if it is still down.
type multiTapAction struct {
	steps []button.TapStep

	count     int
	down      bool
	committed bool
	commit    button.Button
	src       event.KeyEvent
}

func (a *multiTapAction) press(e *Engine, inst *instance, ev event.KeyEvent) {
	if a.committed {
		return
	}
	a.src = ev
	a.down = true
	a.count++
	if inst.timer != nil {
		e.sched.Cancel(inst.timer)
		inst.timer = nil
	}
	if a.count >= len(a.steps) {
		a.commitNow(e)
		return
	}
	inst.timer = e.sched.Schedule(inst.code, a.steps[a.count-1].Timeout)
}

func (a *multiTapAction) release(e *Engine, inst *instance, ev event.KeyEvent) bool {
	a.down = false
	if a.committed {
		e.releaseTree(a.commit, ev)
		return true
	}
	return false
}

func (a *multiTapAction) repeat(e *Engine, inst *instance, ev event.KeyEvent) {
	if !a.committed {
		return
	}
	if c, ok := repeatCode(a.commit, a.src); ok {
		e.emit(c, event.Repeat)
	}
}

func (a *multiTapAction) timerFired(e *Engine, inst *instance) bool {
	act := a.steps[a.count-1].Action
	if a.down {
		a.commit = act
		a.committed = true
		e.pressTree(act, a.src)
		return false
	}
	e.tapTree(act, a.src)
	return true
}

func (a *multiTapAction) commitNow(e *Engine) {
	a.commit = a.steps[len(a.steps)-1].Action
	a.committed = true
	e.pressTree(a.commit, a.src)
}

// macroAction emits its steps as taps, suspending before any step that
// carries a delay. The triggering key is non-reentrant while the macro
// runs: further presses of it are ignored.
type macroAction struct {
	steps []button.MacroStep
	src   event.KeyEvent

	idx      int
	running  bool
	released bool
}

func (a *macroAction) press(e *Engine, inst *instance, ev event.KeyEvent) {
	if a.running {
		return
	}
	a.running = true
	a.released = false
	a.runFrom(e, inst, 0)
}

func (a *macroAction) release(e *Engine, inst *instance, ev event.KeyEvent) bool {
	a.released = true
	return !a.running
}

func (a *macroAction) repeat(e *Engine, inst *instance, ev event.KeyEvent) {}

func (a *macroAction) timerFired(e *Engine, inst *instance) bool {
	e.tapTree(a.steps[a.idx].Button, a.src)
	a.runFrom(e, inst, a.idx+1)
	return !a.running && a.released
}

// runFrom emits steps starting at i until the end or the next delayed
// step, which re-arms the timer and suspends.
func (a *macroAction) runFrom(e *Engine, inst *instance, i int) {
	for ; i < len(a.steps); i++ {
		if a.steps[i].Delay > 0 {
			a.idx = i
			inst.timer = e.sched.Schedule(inst.code, a.steps[i].Delay)
			return
		}
		e.tapTree(a.steps[i].Button, a.src)
	}
	a.running = false
}
