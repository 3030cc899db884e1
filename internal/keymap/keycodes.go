package keymap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holoplot/go-evdev"

	"remapd/internal/event"
)

// Key name errors.
var (
	ErrUnknownKey = errors.New("unknown key name")
)

// keyNames maps the short configuration-facing key names to evdev codes.
// Aliases follow common remapper conventions; the canonical evdev names
// ("KEY_A") and raw codes ("code:30") are accepted as well.
var keyNames = map[string]event.Code{
	// Letters
	"a": evdev.KEY_A, "b": evdev.KEY_B, "c": evdev.KEY_C, "d": evdev.KEY_D,
	"e": evdev.KEY_E, "f": evdev.KEY_F, "g": evdev.KEY_G, "h": evdev.KEY_H,
	"i": evdev.KEY_I, "j": evdev.KEY_J, "k": evdev.KEY_K, "l": evdev.KEY_L,
	"m": evdev.KEY_M, "n": evdev.KEY_N, "o": evdev.KEY_O, "p": evdev.KEY_P,
	"q": evdev.KEY_Q, "r": evdev.KEY_R, "s": evdev.KEY_S, "t": evdev.KEY_T,
	"u": evdev.KEY_U, "v": evdev.KEY_V, "w": evdev.KEY_W, "x": evdev.KEY_X,
	"y": evdev.KEY_Y, "z": evdev.KEY_Z,

	// Digits
	"1": evdev.KEY_1, "2": evdev.KEY_2, "3": evdev.KEY_3, "4": evdev.KEY_4,
	"5": evdev.KEY_5, "6": evdev.KEY_6, "7": evdev.KEY_7, "8": evdev.KEY_8,
	"9": evdev.KEY_9, "0": evdev.KEY_0,

	// Function keys
	"f1": evdev.KEY_F1, "f2": evdev.KEY_F2, "f3": evdev.KEY_F3,
	"f4": evdev.KEY_F4, "f5": evdev.KEY_F5, "f6": evdev.KEY_F6,
	"f7": evdev.KEY_F7, "f8": evdev.KEY_F8, "f9": evdev.KEY_F9,
	"f10": evdev.KEY_F10, "f11": evdev.KEY_F11, "f12": evdev.KEY_F12,

	// Modifiers
	"lsft": evdev.KEY_LEFTSHIFT, "leftshift": evdev.KEY_LEFTSHIFT,
	"rsft": evdev.KEY_RIGHTSHIFT, "rightshift": evdev.KEY_RIGHTSHIFT,
	"lctl": evdev.KEY_LEFTCTRL, "leftctrl": evdev.KEY_LEFTCTRL,
	"rctl": evdev.KEY_RIGHTCTRL, "rightctrl": evdev.KEY_RIGHTCTRL,
	"lalt": evdev.KEY_LEFTALT, "leftalt": evdev.KEY_LEFTALT,
	"ralt": evdev.KEY_RIGHTALT, "rightalt": evdev.KEY_RIGHTALT,
	"lmet": evdev.KEY_LEFTMETA, "leftmeta": evdev.KEY_LEFTMETA,
	"rmet": evdev.KEY_RIGHTMETA, "rightmeta": evdev.KEY_RIGHTMETA,

	// Whitespace and control
	"esc": evdev.KEY_ESC, "escape": evdev.KEY_ESC,
	"tab": evdev.KEY_TAB,
	"ret": evdev.KEY_ENTER, "return": evdev.KEY_ENTER, "enter": evdev.KEY_ENTER,
	"spc": evdev.KEY_SPACE, "space": evdev.KEY_SPACE,
	"bspc": evdev.KEY_BACKSPACE, "backspace": evdev.KEY_BACKSPACE,
	"caps": evdev.KEY_CAPSLOCK, "capslock": evdev.KEY_CAPSLOCK,
	"compose": evdev.KEY_COMPOSE, "menu": evdev.KEY_COMPOSE,

	// Punctuation
	"grave": evdev.KEY_GRAVE, "minus": evdev.KEY_MINUS, "equal": evdev.KEY_EQUAL,
	"lbrc": evdev.KEY_LEFTBRACE, "rbrc": evdev.KEY_RIGHTBRACE,
	"scln": evdev.KEY_SEMICOLON, "semicolon": evdev.KEY_SEMICOLON,
	"apo": evdev.KEY_APOSTROPHE, "apostrophe": evdev.KEY_APOSTROPHE,
	"bsl": evdev.KEY_BACKSLASH, "backslash": evdev.KEY_BACKSLASH,
	"comma": evdev.KEY_COMMA, "dot": evdev.KEY_DOT, "slash": evdev.KEY_SLASH,
	"102d": evdev.KEY_102ND,

	// Navigation
	"up": evdev.KEY_UP, "down": evdev.KEY_DOWN,
	"left": evdev.KEY_LEFT, "right": evdev.KEY_RIGHT,
	"home": evdev.KEY_HOME, "end": evdev.KEY_END,
	"pgup": evdev.KEY_PAGEUP, "pageup": evdev.KEY_PAGEUP,
	"pgdn": evdev.KEY_PAGEDOWN, "pagedown": evdev.KEY_PAGEDOWN,
	"ins": evdev.KEY_INSERT, "insert": evdev.KEY_INSERT,
	"del": evdev.KEY_DELETE, "delete": evdev.KEY_DELETE,

	// Locks and system
	"nlck": evdev.KEY_NUMLOCK, "slck": evdev.KEY_SCROLLLOCK,
	"ssrq": evdev.KEY_SYSRQ, "sysrq": evdev.KEY_SYSRQ, "print": evdev.KEY_SYSRQ,
	"pause": evdev.KEY_PAUSE,

	// Keypad
	"kp0": evdev.KEY_KP0, "kp1": evdev.KEY_KP1, "kp2": evdev.KEY_KP2,
	"kp3": evdev.KEY_KP3, "kp4": evdev.KEY_KP4, "kp5": evdev.KEY_KP5,
	"kp6": evdev.KEY_KP6, "kp7": evdev.KEY_KP7, "kp8": evdev.KEY_KP8,
	"kp9": evdev.KEY_KP9,
	"kpdot": evdev.KEY_KPDOT, "kpenter": evdev.KEY_KPENTER,
	"kpplus": evdev.KEY_KPPLUS, "kpminus": evdev.KEY_KPMINUS,
	"kpmul": evdev.KEY_KPASTERISK, "kpdiv": evdev.KEY_KPSLASH,

	// Media
	"mute": evdev.KEY_MUTE, "volu": evdev.KEY_VOLUMEUP, "vold": evdev.KEY_VOLUMEDOWN,
	"brup": evdev.KEY_BRIGHTNESSUP, "brdn": evdev.KEY_BRIGHTNESSDOWN,
	"play": evdev.KEY_PLAYPAUSE, "next": evdev.KEY_NEXTSONG, "prev": evdev.KEY_PREVIOUSSONG,
}

// maxKeyCode bounds the scan used to resolve canonical KEY_* names.
const maxKeyCode = 0x2ff

// KeyFromName resolves a configuration key name to an evdev code.
// Accepted forms, in order: a short alias from the table above, a
// canonical evdev name such as "KEY_A", and a raw "code:<n>" escape for
// keys without a name.
func KeyFromName(name string) (event.Code, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnknownKey)
	}

	if code, ok := keyNames[strings.ToLower(name)]; ok {
		return code, nil
	}

	if upper := strings.ToUpper(name); strings.HasPrefix(upper, "KEY_") {
		for c := event.Code(0); c <= maxKeyCode; c++ {
			if event.CodeName(c) == upper {
				return c, nil
			}
		}
	}

	if rest, ok := strings.CutPrefix(name, "code:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 || n > maxKeyCode {
			return 0, fmt.Errorf("%w: bad raw code %q", ErrUnknownKey, rest)
		}
		return event.Code(n), nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// NameForKey returns the short alias for a code when the table has one,
// falling back to the canonical evdev name.
func NameForKey(code event.Code) string {
	best := ""
	for name, c := range keyNames {
		if c != code {
			continue
		}
		if best == "" || len(name) < len(best) || (len(name) == len(best) && name < best) {
			best = name
		}
	}
	if best != "" {
		return best
	}
	return event.CodeName(code)
}
