// Package event defines the key event types exchanged between the device
// layer and the remapping engine.
package event

import (
	"fmt"
	"time"

	"github.com/holoplot/go-evdev"
)

// Code identifies a physical key. It is the evdev key code of the event as
// read from the device, and the code written to the virtual device on output.
type Code = evdev.EvCode

// Transition is the press/release/repeat state of a key event. The numeric
// values match the evdev EV_KEY value encoding so device conversion is a
// cast in both directions.
type Transition int32

const (
	Release Transition = 0
	Press   Transition = 1
	Repeat  Transition = 2
)

// String returns the lowercase transition name.
func (t Transition) String() string {
	switch t {
	case Release:
		return "release"
	case Press:
		return "press"
	case Repeat:
		return "repeat"
	default:
		return fmt.Sprintf("transition(%d)", int32(t))
	}
}

// KeyEvent is a single key event. Instances are immutable once created;
// the engine never mutates an event it received.
type KeyEvent struct {
	// Code is the physical key the event belongs to.
	Code Code

	// Transition is press, release or repeat.
	Transition Transition

	// At is the monotonic instant the event was read from the device,
	// or the instant a synthetic event was produced.
	At time.Time
}

// String renders the event for diagnostics. Key identity is included; the
// logging layer decides whether key identities may reach the log output.
func (e KeyEvent) String() string {
	return fmt.Sprintf("%s %s", CodeName(e.Code), e.Transition)
}

// CodeName returns the evdev name for a key code, such as "KEY_A".
func CodeName(c Code) string {
	return evdev.CodeName(evdev.EV_KEY, c)
}
