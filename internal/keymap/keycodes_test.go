package keymap

import (
	"errors"
	"testing"

	"github.com/holoplot/go-evdev"
)

func TestKeyFromName(t *testing.T) {
	tests := []struct {
		name string
		want evdev.EvCode
	}{
		{"a", evdev.KEY_A},
		{"A", evdev.KEY_A},
		{"caps", evdev.KEY_CAPSLOCK},
		{"capslock", evdev.KEY_CAPSLOCK},
		{"lsft", evdev.KEY_LEFTSHIFT},
		{"esc", evdev.KEY_ESC},
		{"spc", evdev.KEY_SPACE},
		{"left", evdev.KEY_LEFT},
		{"f12", evdev.KEY_F12},
		{"kp5", evdev.KEY_KP5},
		{"KEY_A", evdev.KEY_A},
		{"key_leftshift", evdev.KEY_LEFTSHIFT},
		{"code:30", evdev.KEY_A},
	}

	for _, tt := range tests {
		got, err := KeyFromName(tt.name)
		if err != nil {
			t.Errorf("KeyFromName(%q): %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("KeyFromName(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestKeyFromNameUnknown(t *testing.T) {
	for _, name := range []string{"", "nosuchkey", "KEY_NOT_A_REAL_KEY", "code:9999", "code:x"} {
		_, err := KeyFromName(name)
		if !errors.Is(err, ErrUnknownKey) {
			t.Errorf("KeyFromName(%q): expected ErrUnknownKey, got %v", name, err)
		}
	}
}

func TestNameForKey(t *testing.T) {
	if got := NameForKey(evdev.KEY_A); got != "a" {
		t.Errorf("NameForKey(KEY_A) = %q, want a", got)
	}
	// Prefers the shortest alias.
	if got := NameForKey(evdev.KEY_LEFTSHIFT); got != "lsft" {
		t.Errorf("NameForKey(KEY_LEFTSHIFT) = %q, want lsft", got)
	}
}
