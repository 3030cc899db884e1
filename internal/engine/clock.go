package engine

import "time"

// Clock is the engine's time source. The production clock is the system
// monotonic clock; tests substitute a manual one so every timing decision
// is deterministic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real monotonic clock.
func SystemClock() Clock { return systemClock{} }
