package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads, decodes, and validates the configuration file at path.
// Unknown keys in the file are a validation error: a typo in a setting
// name must not silently fall back to a default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse decodes and validates configuration text.
func Parse(text string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, &ValidationError{
			Field: undecoded[0].String(),
			Msg:   "unknown configuration key",
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
