package config

import (
	"fmt"
	"strings"
)

// BaseLayer is the name of the required bottom layer.
const BaseLayer = "base"

// ValidationError describes a semantically invalid configuration value.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the structural and semantic constraints the rest of the
// daemon relies on. Key names and button expressions are validated later
// by the keymap compiler; Validate only guarantees the shape around them.
func (c *Config) Validate() error {
	d := &c.Daemon

	if !validLogLevels[strings.ToLower(d.LogLevel)] {
		return &ValidationError{Field: "daemon.log_level", Msg: fmt.Sprintf("unknown level %q", d.LogLevel)}
	}

	switch d.LogFormat {
	case "text", "json":
	default:
		return &ValidationError{Field: "daemon.log_format", Msg: fmt.Sprintf("must be text or json, got %q", d.LogFormat)}
	}

	switch d.LogOutput {
	case "stderr", "stdout", "file", "both":
	default:
		return &ValidationError{Field: "daemon.log_output", Msg: fmt.Sprintf("must be stderr, stdout, file, or both, got %q", d.LogOutput)}
	}

	if (d.LogOutput == "file" || d.LogOutput == "both") && d.LogFile == "" {
		return &ValidationError{Field: "daemon.log_file", Msg: "required when log_output includes file"}
	}

	switch d.ImplicitAround {
	case "around", "disabled":
	default:
		return &ValidationError{Field: "daemon.implicit_around", Msg: fmt.Sprintf("must be around or disabled, got %q", d.ImplicitAround)}
	}

	switch d.TapHoldPolicy {
	case "eager", "lazy":
	default:
		return &ValidationError{Field: "daemon.tap_hold_policy", Msg: fmt.Sprintf("must be eager or lazy, got %q", d.TapHoldPolicy)}
	}

	for field, v := range map[string]int{
		"daemon.start_delay_ms":    d.StartDelayMs,
		"daemon.key_seq_delay_ms":  d.KeySeqDelayMs,
		"daemon.cmp_seq_delay_ms":  d.CmpSeqDelayMs,
	} {
		if v < 0 {
			return &ValidationError{Field: field, Msg: "must not be negative"}
		}
	}

	if d.Input == "" {
		return &ValidationError{Field: "daemon.input", Msg: "must not be empty"}
	}
	if d.Output == "" {
		return &ValidationError{Field: "daemon.output", Msg: "must not be empty"}
	}

	if len(c.Layers) == 0 {
		return &ValidationError{Field: "layers", Msg: "at least the base layer is required"}
	}
	if _, ok := c.Layers[BaseLayer]; !ok {
		return &ValidationError{Field: "layers", Msg: "a layer named base is required"}
	}
	for name, mapping := range c.Layers {
		if name == "" {
			return &ValidationError{Field: "layers", Msg: "layer name must not be empty"}
		}
		for key, expr := range mapping {
			if strings.TrimSpace(expr) == "" {
				return &ValidationError{
					Field: fmt.Sprintf("layers.%s.%s", name, key),
					Msg:   "button expression must not be empty",
				}
			}
		}
	}

	for name, expr := range c.Aliases {
		if strings.TrimSpace(expr) == "" {
			return &ValidationError{Field: "aliases." + name, Msg: "alias expression must not be empty"}
		}
	}

	for seq, expr := range c.Compose {
		if strings.TrimSpace(seq) == "" {
			return &ValidationError{Field: "compose", Msg: "sequence must not be empty"}
		}
		if strings.TrimSpace(expr) == "" {
			return &ValidationError{Field: "compose." + seq, Msg: "emitted button must not be empty"}
		}
	}

	if len(c.Compose) > 0 && d.CmpSeqDelayMs == 0 {
		return &ValidationError{Field: "daemon.cmp_seq_delay_ms", Msg: "must be positive when compose sequences are defined"}
	}

	return nil
}
