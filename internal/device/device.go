// Package device binds the engine to real input and output hardware:
// grabbed evdev keyboards on the input side, a uinput virtual keyboard on
// the output side, plus a log-only sink for running without uinput.
package device

import (
	"context"
	"errors"
	"strings"

	"remapd/internal/event"
	"remapd/internal/logging"
)

// ErrNoKeyboard is returned when keyboard auto-detection finds nothing.
var ErrNoKeyboard = errors.New("no keyboard device found")

// Source is a grabbed input device feeding raw key events into the
// engine. Pause and Resume drop and retake the exclusive grab across
// system suspend without losing the device.
type Source interface {
	// Run forwards key events to push until ctx is cancelled or the
	// device fails. A cancelled ctx returns nil; a device failure returns
	// the read error so the caller can attempt reconnection.
	Run(ctx context.Context, push func(event.KeyEvent) error) error

	// Path identifies the underlying device node.
	Path() string

	Pause() error
	Resume() error
	Close() error
}

// Sink writes the engine's output events to a device. It extends the
// engine's sink contract with a lifecycle.
type Sink interface {
	Send(ev event.KeyEvent) error
	Close() error
}

// splitToken separates a device token into kind and argument:
// "evdev:/dev/input/event3" is ("evdev", "/dev/input/event3"), a bare
// "uinput" is ("uinput", "").
func splitToken(token string) (kind, arg string) {
	if i := strings.IndexByte(token, ':'); i >= 0 {
		return token[:i], token[i+1:]
	}
	return token, ""
}

// LogSink discards events after logging them. It backs the "log" output
// token; key identities still honor the log-keys setting.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink returns a sink that only logs.
func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(ev event.KeyEvent) error {
	s.log.Info("would emit",
		"key", logging.KeyName(event.CodeName(ev.Code)),
		"transition", ev.Transition.String())
	return nil
}

func (s *LogSink) Close() error { return nil }
