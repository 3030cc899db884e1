// Package button defines the compiled button tree the engine executes.
//
// Buttons are produced by the keymap compiler, are immutable for the
// process lifetime, and form a cycle-free recursive variant: layer
// references inside LayerOp are symbolic names resolved against the layer
// stack at runtime, never structural links between layers.
package button

import (
	"fmt"
	"time"

	"remapd/internal/event"
)

// Button is the sealed interface over all button variants. The engine
// switches on the concrete type; no variant carries mutable state.
type Button interface {
	// String renders the button in the configuration's expression form,
	// used in diagnostics and compile error messages.
	String() string

	button()
}

// Emit re-emits a fixed key code for each press/release transition of the
// physical key. This is the plain remap case.
type Emit struct {
	Code event.Code
}

// TapHold acts as Tap when released before Timeout and as Hold otherwise.
// The button is ambiguous between press and resolution; Eager selects the
// interrupt policy while undecided.
type TapHold struct {
	Tap     Button
	Hold    Button
	Timeout time.Duration

	// Eager resolves Hold immediately when another key is pressed while
	// undecided, so the interrupting key sees the held layer or modifier.
	// When false the interrupting events are deferred until resolution.
	Eager bool
}

// TapStep is one step of a MultiTap: the action committed at this tap
// count and the window within which a further tap extends the count.
type TapStep struct {
	Action  Button
	Timeout time.Duration
}

// MultiTap commits to one of Steps depending on how many consecutive taps
// of the physical key arrive within the step timeouts.
type MultiTap struct {
	Steps []TapStep
}

// LayerMode distinguishes hold-style from toggle-style layer buttons.
type LayerMode int

const (
	// Hold pushes the layer on press and pops it on release.
	Hold LayerMode = iota
	// Toggle flips the layer's active state on press; release is ignored.
	Toggle
)

// LayerOp activates or deactivates a named layer.
type LayerOp struct {
	Layer string
	Mode  LayerMode
}

// Around brackets Inner with Outer: outer press, inner press on press;
// inner release, outer release on release. Compound modifiers compile to
// this shape, including those derived by the implicit-around expansion.
type Around struct {
	Outer Button
	Inner Button
}

// ComposeTrigger starts a compose sequence. The sequence table lives in
// the engine, not on the button, so several bindings can share it.
type ComposeTrigger struct{}

// MacroStep is one button tapped by a macro, optionally after a delay.
type MacroStep struct {
	Button Button

	// Delay, when non-zero, suspends the macro before this step without
	// blocking the dispatch loop.
	Delay time.Duration
}

// Macro taps each step in order on press. Release is a no-op and a press
// while the macro is still emitting is ignored.
type Macro struct {
	Steps []MacroStep
}

// Shell runs a shell command on press, subject to the command gate.
type Shell struct {
	Command string
}

// Fallthrough re-emits the unmodified physical event.
type Fallthrough struct{}

// Pass consumes the event with no output.
type Pass struct{}

func (Emit) button()           {}
func (TapHold) button()        {}
func (MultiTap) button()       {}
func (LayerOp) button()        {}
func (Around) button()         {}
func (ComposeTrigger) button() {}
func (Macro) button()          {}
func (Shell) button()          {}
func (Fallthrough) button()    {}
func (Pass) button()           {}

func (b Emit) String() string { return keyName(b.Code) }

func (b TapHold) String() string {
	kind := "tap-hold"
	if b.Eager {
		kind = "tap-hold-eager"
	}
	return fmt.Sprintf("(%s %d %s %s)", kind, b.Timeout.Milliseconds(), b.Tap, b.Hold)
}

func (b MultiTap) String() string {
	s := "(multi-tap"
	for _, step := range b.Steps {
		s += fmt.Sprintf(" %d %s", step.Timeout.Milliseconds(), step.Action)
	}
	return s + ")"
}

func (b LayerOp) String() string {
	if b.Mode == Toggle {
		return fmt.Sprintf("(layer-toggle %s)", b.Layer)
	}
	return fmt.Sprintf("(layer-hold %s)", b.Layer)
}

func (b Around) String() string { return fmt.Sprintf("(around %s %s)", b.Outer, b.Inner) }

func (ComposeTrigger) String() string { return "compose" }

func (b Macro) String() string {
	s := "(macro"
	for _, step := range b.Steps {
		if step.Delay > 0 {
			s += fmt.Sprintf(" :delay %d", step.Delay.Milliseconds())
		}
		s += " " + step.Button.String()
	}
	return s + ")"
}

func (b Shell) String() string { return fmt.Sprintf("(cmd %q)", b.Command) }

func (Fallthrough) String() string { return "_" }

func (Pass) String() string { return "XX" }

// keyName is the short config-facing name of a code, "KEY_" stripped and
// lowercased by the keymap package; here we fall back to the evdev name.
func keyName(c event.Code) string { return event.CodeName(c) }
