package engine

import (
	"remapd/internal/button"
	"remapd/internal/event"
)

// The tree walks cover every stateless button form. Stateful forms
// (tap-hold, multi-tap, delayed macros, the compose trigger) never appear
// below an expression root, so the walks never need timers or instance
// state and can run to completion inside one dispatch step.

// pressTree performs the press half of a button tree. ev is the physical
// event that triggered the walk; fallthrough nodes re-emit its code.
func (e *Engine) pressTree(b button.Button, ev event.KeyEvent) {
	switch v := b.(type) {
	case button.Emit:
		e.emit(v.Code, event.Press)
	case button.Fallthrough:
		e.emit(ev.Code, event.Press)
	case button.Pass:
	case button.LayerOp:
		e.applyLayerOp(v, event.Press)
	case button.Around:
		e.pressTree(v.Outer, ev)
		e.pressTree(v.Inner, ev)
	case button.Shell:
		e.runShell(v)
	case button.Macro:
		// Only delay-free macros nest; emit the whole burst on press.
		for _, step := range v.Steps {
			e.tapTree(step.Button, ev)
		}
	}
}

// releaseTree mirrors pressTree. Around unwinds inner before outer so the
// synthetic events bracket properly.
func (e *Engine) releaseTree(b button.Button, ev event.KeyEvent) {
	switch v := b.(type) {
	case button.Emit:
		e.emit(v.Code, event.Release)
	case button.Fallthrough:
		e.emit(ev.Code, event.Release)
	case button.Pass:
	case button.LayerOp:
		e.applyLayerOp(v, event.Release)
	case button.Around:
		e.releaseTree(v.Inner, ev)
		e.releaseTree(v.Outer, ev)
	case button.Shell:
		// Fire-on-press; release is a no-op.
	case button.Macro:
		// Burst already emitted on press.
	}
}

// tapTree emits a full press/release cycle of b. Used for resolved taps,
// macro steps and compose outputs.
func (e *Engine) tapTree(b button.Button, ev event.KeyEvent) {
	e.pressTree(b, ev)
	e.releaseTree(b, ev)
}

// repeatCode finds the key a held tree should autorepeat as: the
// innermost emitting node. Trees that end in layer ops or commands do not
// autorepeat.
func repeatCode(b button.Button, ev event.KeyEvent) (event.Code, bool) {
	switch v := b.(type) {
	case button.Emit:
		return v.Code, true
	case button.Fallthrough:
		return ev.Code, true
	case button.Around:
		if c, ok := repeatCode(v.Inner, ev); ok {
			return c, true
		}
		return repeatCode(v.Outer, ev)
	default:
		return 0, false
	}
}

func (e *Engine) applyLayerOp(op button.LayerOp, tr event.Transition) {
	switch op.Mode {
	case button.Hold:
		if tr == event.Press {
			e.stack.Push(op.Layer)
		} else {
			e.stack.Pop(op.Layer)
		}
	case button.Toggle:
		if tr == event.Press {
			e.stack.Toggle(op.Layer)
		}
	}
}

// runShell authorizes and launches a shell button. Denials and launch
// failures are per-event resolution errors, never fatal.
func (e *Engine) runShell(b button.Shell) {
	if err := e.gate.Authorize(b.Command); err != nil {
		e.resolution("cmd", err)
		return
	}
	if err := e.runner.Run(b.Command); err != nil {
		e.resolution("cmd", err)
	}
}
