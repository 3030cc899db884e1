package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"remapd/internal/event"
	"remapd/internal/logging"
)

// evdevSource is an exclusively grabbed evdev keyboard. While grabbed, no
// other consumer of the device sees its events; the engine's output
// device is the only keyboard the session observes.
type evdevSource struct {
	dev  *evdev.InputDevice
	path string
	log  *logging.Logger

	mu      sync.Mutex
	grabbed bool
	closed  bool
}

// OpenEvdevSource opens and grabs the keyboard at path. An empty path
// auto-detects the first device that looks like a keyboard.
func OpenEvdevSource(path string, log *logging.Logger) (Source, error) {
	if path == "" {
		var err error
		path, err = DetectKeyboard()
		if err != nil {
			return nil, err
		}
		log.Info("keyboard auto-detected", "path", path)
	}

	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input device %s: %w", path, err)
	}

	s := &evdevSource{dev: dev, path: path, log: log}
	if err := s.Resume(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("grab %s: %w", path, err)
	}
	return s, nil
}

func (s *evdevSource) Path() string { return s.path }

// Run pumps EV_KEY events into push. Non-key event types (SYN, MSC, LED)
// are dropped; the output device synthesizes its own reports.
func (s *evdevSource) Run(ctx context.Context, push func(event.KeyEvent) error) error {
	// Close the fd when ctx ends so a blocked read returns.
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		ev, err := s.dev.ReadOne()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		if err := s.deliver(ev, push); err != nil {
			return err
		}
	}
}

// deliver forwards one raw event to the engine. Non-key events are
// dropped, as is anything read while the grab is released: an ungrabbed
// node delivers to the whole system as well, so remapping those events
// would duplicate every key typed around a suspend.
func (s *evdevSource) deliver(ev *evdev.InputEvent, push func(event.KeyEvent) error) error {
	if ev.Type != evdev.EV_KEY {
		return nil
	}
	s.mu.Lock()
	grabbed := s.grabbed
	s.mu.Unlock()
	if !grabbed {
		return nil
	}
	ke := event.KeyEvent{
		Code:       ev.Code,
		Transition: event.Transition(ev.Value),
		At:         time.Unix(ev.Time.Sec, ev.Time.Usec*1000),
	}
	s.log.Debug("input event",
		"key", logging.KeyName(event.CodeName(ke.Code)),
		"transition", ke.Transition.String())
	return push(ke)
}

// Pause drops the exclusive grab, handing the device back to the rest of
// the system. Used across suspend so a wake-up key reaches the kernel.
func (s *evdevSource) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.grabbed || s.closed {
		return nil
	}
	if err := s.dev.Ungrab(); err != nil {
		return fmt.Errorf("ungrab %s: %w", s.path, err)
	}
	s.grabbed = false
	return nil
}

// Resume retakes the exclusive grab.
func (s *evdevSource) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grabbed || s.closed {
		return nil
	}
	if err := s.dev.Grab(); err != nil {
		return fmt.Errorf("grab %s: %w", s.path, err)
	}
	s.grabbed = true
	return nil
}

func (s *evdevSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.grabbed {
		s.dev.Ungrab()
		s.grabbed = false
	}
	return s.dev.Close()
}
