package engine

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	// ErrCommandDenied is returned by the command gate when a shell
	// button fires without allow-cmd set.
	ErrCommandDenied = errors.New("shell commands are disabled (allow-cmd is not set)")

	// ErrStopped is returned by Push after the engine has shut down.
	ErrStopped = errors.New("engine is stopped")
)

// ResolutionError is a non-fatal per-event failure: a failed compose
// sequence, a denied shell command. It is reported and the loop continues.
type ResolutionError struct {
	Op  string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
