package config

// Default setting values. Boolean settings default to false, so only the
// non-zero defaults appear here.
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultLogOutput      = "stderr"
	DefaultInput          = "evdev"
	DefaultOutput         = "uinput"
	DefaultStartDelayMs   = 300
	DefaultCmpSeqDelayMs  = 500
	DefaultImplicitAround = "around"
	DefaultTapHoldPolicy  = "lazy"
)

// DefaultConfig returns a configuration with every default setting filled
// in and no layers. It is the base both the file and the flags layer onto.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			LogLevel:       DefaultLogLevel,
			LogFormat:      DefaultLogFormat,
			LogOutput:      DefaultLogOutput,
			Input:          DefaultInput,
			Output:         DefaultOutput,
			StartDelayMs:   DefaultStartDelayMs,
			CmpSeqDelayMs:  DefaultCmpSeqDelayMs,
			ImplicitAround: DefaultImplicitAround,
			TapHoldPolicy:  DefaultTapHoldPolicy,
		},
		Aliases: map[string]string{},
		Layers:  map[string]map[string]string{},
		Compose: map[string]string{},
	}
}

// applyDefaults fills unset string and numeric fields with their defaults.
// Booleans are left alone: false is the default for every boolean setting.
func (c *Config) applyDefaults() {
	d := &c.Daemon
	if d.LogLevel == "" {
		d.LogLevel = DefaultLogLevel
	}
	if d.LogFormat == "" {
		d.LogFormat = DefaultLogFormat
	}
	if d.LogOutput == "" {
		d.LogOutput = DefaultLogOutput
	}
	if d.Input == "" {
		d.Input = DefaultInput
	}
	if d.Output == "" {
		d.Output = DefaultOutput
	}
	if d.StartDelayMs == 0 {
		d.StartDelayMs = DefaultStartDelayMs
	}
	if d.CmpSeqDelayMs == 0 {
		d.CmpSeqDelayMs = DefaultCmpSeqDelayMs
	}
	if d.ImplicitAround == "" {
		d.ImplicitAround = DefaultImplicitAround
	}
	if d.TapHoldPolicy == "" {
		d.TapHoldPolicy = DefaultTapHoldPolicy
	}
	if c.Aliases == nil {
		c.Aliases = map[string]string{}
	}
	if c.Layers == nil {
		c.Layers = map[string]map[string]string{}
	}
	if c.Compose == nil {
		c.Compose = map[string]string{}
	}
}
