package device

import (
	"fmt"

	evdev "github.com/holoplot/go-evdev"

	"remapd/internal/event"
)

// DefaultOutputName is the virtual keyboard's device name unless the
// output token overrides it.
const DefaultOutputName = "remapd virtual keyboard"

// uinputSink is the virtual keyboard every remapped event is written to.
// The device advertises the full EV_KEY range so any code the keymap can
// emit is accepted by the kernel.
type uinputSink struct {
	dev *evdev.InputDevice
}

// OpenUinputSink creates the virtual keyboard. Requires write access to
// /dev/uinput.
func OpenUinputSink(name string) (Sink, error) {
	if name == "" {
		name = DefaultOutputName
	}
	dev, err := evdev.CreateDevice(name, evdev.InputID{
		BusType: 0x03,
		Vendor:  0x4711,
		Product: 0x0816,
		Version: 1,
	}, map[evdev.EvType][]evdev.EvCode{
		evdev.EV_KEY: allKeyCodes(),
	})
	if err != nil {
		return nil, fmt.Errorf("create uinput device %q: %w", name, err)
	}
	return &uinputSink{dev: dev}, nil
}

// maxKeyCode is the top of the EV_KEY code range (KEY_MAX in input.h).
const maxKeyCode = 0x2ff

func allKeyCodes() []evdev.EvCode {
	codes := make([]evdev.EvCode, 0, maxKeyCode)
	for c := evdev.EvCode(1); c < maxKeyCode; c++ {
		codes = append(codes, c)
	}
	return codes
}

// Send writes one key event followed by a SYN_REPORT so every event is
// its own frame. Output pacing happens upstream in the engine's sink.
func (s *uinputSink) Send(ev event.KeyEvent) error {
	key := &evdev.InputEvent{
		Type:  evdev.EV_KEY,
		Code:  ev.Code,
		Value: int32(ev.Transition),
	}
	if err := s.dev.WriteOne(key); err != nil {
		return fmt.Errorf("write key event: %w", err)
	}
	syn := &evdev.InputEvent{
		Type: evdev.EV_SYN,
		Code: evdev.SYN_REPORT,
	}
	if err := s.dev.WriteOne(syn); err != nil {
		return fmt.Errorf("write syn report: %w", err)
	}
	return nil
}

func (s *uinputSink) Close() error {
	return s.dev.Close()
}
