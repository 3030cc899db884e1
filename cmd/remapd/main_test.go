package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remapd/internal/config"
)

const sampleConfig = `
[daemon]
log_level = "error"

[layers.base]
caps = "(tap-hold 200 esc (layer-hold nav))"
a = "a"

[layers.nav]
h = "left"
`

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remapd.toml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func setArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = args
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	f := parseFlags([]string{
		"--allow-cmd",
		"--start-delay", "500",
		"--input", "evdev:/dev/input/event7",
		"--cmp-seq", "ralt",
		"cfg.toml",
	})

	cfg := config.DefaultConfig()
	cfg.Daemon.KeySeqDelayMs = 12
	f.apply(cfg)

	assert.True(t, cfg.Daemon.AllowCmd)
	assert.Equal(t, 500, cfg.Daemon.StartDelayMs)
	assert.Equal(t, "evdev:/dev/input/event7", cfg.Daemon.Input)
	assert.Equal(t, "ralt", cfg.Daemon.CmpSeq)

	// Flags not given leave the file's values alone.
	assert.Equal(t, 12, cfg.Daemon.KeySeqDelayMs)
	assert.Equal(t, "uinput", cfg.Daemon.Output)
}

func TestUnsetBoolFlagDoesNotClobber(t *testing.T) {
	f := parseFlags([]string{"cfg.toml"})

	cfg := config.DefaultConfig()
	cfg.Daemon.AllowCmd = true
	cfg.Daemon.Fallthrough = true
	f.apply(cfg)

	assert.True(t, cfg.Daemon.AllowCmd)
	assert.True(t, cfg.Daemon.Fallthrough)
}

func TestRunDryRunValidConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	setArgs(t, "remapd", "--dry-run", path)

	assert.Equal(t, exitOK, run())
}

func TestRunDryRunBadExpression(t *testing.T) {
	path := writeConfig(t, `
[layers.base]
caps = "(tap-hold 200 esc"
`)
	setArgs(t, "remapd", "--dry-run", path)

	assert.Equal(t, exitConfig, run())
}

func TestRunMissingConfigFile(t *testing.T) {
	setArgs(t, "remapd", "--dry-run", filepath.Join(t.TempDir(), "absent.toml"))

	assert.Equal(t, exitConfig, run())
}

func TestRunRejectsFlagOverrideFailingValidation(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	setArgs(t, "remapd", "--dry-run", "--implicit-around", "sometimes", path)

	assert.Equal(t, exitConfig, run())
}

func TestPidfileSingleInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remapd.pid")

	release, err := acquirePidfile(path)
	require.NoError(t, err)

	_, err = acquirePidfile(path)
	assert.Error(t, err, "second instance must be refused while the first holds the lock")

	release()

	release2, err := acquirePidfile(path)
	require.NoError(t, err)
	release2()
}
