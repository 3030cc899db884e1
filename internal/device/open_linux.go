package device

import (
	"fmt"

	"remapd/internal/logging"
)

// OpenSource resolves an input token. "evdev" auto-detects a keyboard;
// "evdev:/dev/input/event3" opens a specific node. The device is grabbed
// before this returns.
func OpenSource(token string, log *logging.Logger) (Source, error) {
	kind, arg := splitToken(token)
	switch kind {
	case "evdev", "":
		return OpenEvdevSource(arg, log)
	default:
		return nil, fmt.Errorf("unknown input token %q", token)
	}
}

// OpenSink resolves an output token. "uinput" creates the virtual
// keyboard, "uinput:name" with a custom device name, "log" only logs.
func OpenSink(token string, log *logging.Logger) (Sink, error) {
	kind, arg := splitToken(token)
	switch kind {
	case "uinput", "":
		return OpenUinputSink(arg)
	case "log":
		return NewLogSink(log), nil
	default:
		return nil, fmt.Errorf("unknown output token %q", token)
	}
}
