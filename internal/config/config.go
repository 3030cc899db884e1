// Package config handles configuration loading, validation, and management
// for remapd.
//
// The configuration file is TOML with four sections: [daemon] for runtime
// default settings (each one overridable from the command line), [aliases]
// for named button expressions, [layers.<name>] for the key mappings, and
// [compose] for the compose sequence table. The expression syntax inside
// the string values is owned by the keymap package; config only carries
// the raw text.
package config

import (
	"time"
)

// Config holds the complete daemon configuration.
type Config struct {
	// Daemon holds the runtime default settings.
	Daemon DaemonConfig `toml:"daemon"`

	// Aliases maps alias names to button expressions. A mapping value
	// of "@name" refers to an alias.
	Aliases map[string]string `toml:"aliases"`

	// Layers maps layer names to key-name -> button-expression tables.
	// A layer named "base" is required.
	Layers map[string]map[string]string `toml:"layers"`

	// Compose maps space-separated key sequences to the button emitted
	// when the sequence follows the compose trigger.
	Compose map[string]string `toml:"compose"`
}

// DaemonConfig holds the default settings. Every field can be overridden
// by a command-line flag; the flag wins when both are given.
type DaemonConfig struct {
	// LogLevel is the diagnostic verbosity: debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `toml:"log_format"`

	// LogOutput is "stderr", "stdout", "file", or "both".
	LogOutput string `toml:"log_output"`

	// LogFile is the log file path when LogOutput includes "file".
	LogFile string `toml:"log_file"`

	// LogKeys permits key identities in log output. Off by default so
	// diagnostics can never double as a keylog.
	LogKeys bool `toml:"log_keys"`

	// Input selects the input source backend, e.g. "evdev" or
	// "evdev:/dev/input/event3".
	Input string `toml:"input"`

	// Output selects the output sink backend, e.g. "uinput",
	// "uinput:My Keyboard", or "log".
	Output string `toml:"output"`

	// StartDelayMs delays grabbing the input device so the Enter release
	// of a launching terminal passes through to its own application.
	StartDelayMs int `toml:"start_delay_ms"`

	// KeySeqDelayMs is the minimum delay enforced between emitted events.
	KeySeqDelayMs int `toml:"key_seq_delay_ms"`

	// CmpSeq names the physical key acting as the compose trigger.
	// Empty disables the setting; keys mapped to the "compose" expression
	// still trigger.
	CmpSeq string `toml:"cmp_seq"`

	// CmpSeqDelayMs is the per-key timeout inside an active compose
	// sequence.
	CmpSeqDelayMs int `toml:"cmp_seq_delay_ms"`

	// AllowCmd authorizes (cmd ...) buttons to spawn shell commands.
	AllowCmd bool `toml:"allow_cmd"`

	// Fallthrough re-emits unmapped events instead of consuming them.
	Fallthrough bool `toml:"fallthrough"`

	// ImplicitAround controls expansion of shorthand modifier notation
	// such as "C-a": "around" expands it to an around button, "disabled"
	// rejects the shorthand at compile time.
	ImplicitAround string `toml:"implicit_around"`

	// TapHoldPolicy is the default interrupt policy for tap-hold buttons
	// that do not pick one themselves: "eager" or "lazy".
	TapHoldPolicy string `toml:"tap_hold_policy"`
}

// StartDelay returns the device grab delay as a duration.
func (c *Config) StartDelay() time.Duration {
	return time.Duration(c.Daemon.StartDelayMs) * time.Millisecond
}

// KeySeqDelay returns the inter-event output delay as a duration.
func (c *Config) KeySeqDelay() time.Duration {
	return time.Duration(c.Daemon.KeySeqDelayMs) * time.Millisecond
}

// CmpSeqDelay returns the compose per-key timeout as a duration.
func (c *Config) CmpSeqDelay() time.Duration {
	return time.Duration(c.Daemon.CmpSeqDelayMs) * time.Millisecond
}

// EagerTapHold reports whether the default tap-hold policy is eager.
func (c *Config) EagerTapHold() bool {
	return c.Daemon.TapHoldPolicy == "eager"
}
