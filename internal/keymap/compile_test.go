package keymap

import (
	"testing"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remapd/internal/button"
	"remapd/internal/config"
)

func compileText(t *testing.T, text string) *Compiled {
	t.Helper()
	cfg, err := config.Parse(text)
	require.NoError(t, err, "config should parse")
	compiled, err := Compile(cfg)
	require.NoError(t, err, "keymap should compile")
	return compiled
}

// =============================================================================
// Expression parsing
// =============================================================================

func TestParseExprAtoms(t *testing.T) {
	tests := []struct {
		expr string
		want button.Button
	}{
		{"a", button.Emit{Code: evdev.KEY_A}},
		{"_", button.Fallthrough{}},
		{"XX", button.Pass{}},
		{"pass", button.Pass{}},
		{"cmp", button.ComposeTrigger{}},
		{"left", button.Emit{Code: evdev.KEY_LEFT}},
	}
	for _, tt := range tests {
		b, err := ParseExpr(tt.expr)
		require.NoError(t, err, "expr %q", tt.expr)
		assert.Equal(t, tt.want, b, "expr %q", tt.expr)
	}
}

func TestParseExprShorthand(t *testing.T) {
	b, err := ParseExpr("C-a")
	require.NoError(t, err)
	assert.Equal(t, button.Around{
		Outer: button.Emit{Code: evdev.KEY_LEFTCTRL},
		Inner: button.Emit{Code: evdev.KEY_A},
	}, b)

	b, err = ParseExpr("C-S-a")
	require.NoError(t, err)
	assert.Equal(t, button.Around{
		Outer: button.Emit{Code: evdev.KEY_LEFTCTRL},
		Inner: button.Around{
			Outer: button.Emit{Code: evdev.KEY_LEFTSHIFT},
			Inner: button.Emit{Code: evdev.KEY_A},
		},
	}, b)
}

func TestParseExprForms(t *testing.T) {
	b, err := ParseExpr("(tap-hold 200 esc (layer-hold nav))")
	require.NoError(t, err)
	th, ok := b.(button.TapHold)
	require.True(t, ok, "expected TapHold, got %T", b)
	assert.Equal(t, 200*time.Millisecond, th.Timeout)
	assert.Equal(t, button.Emit{Code: evdev.KEY_ESC}, th.Tap)
	assert.Equal(t, button.LayerOp{Layer: "nav", Mode: button.Hold}, th.Hold)

	b, err = ParseExpr("(multi-tap 200 a 300 b)")
	require.NoError(t, err)
	mt := b.(button.MultiTap)
	require.Len(t, mt.Steps, 2)
	assert.Equal(t, 200*time.Millisecond, mt.Steps[0].Timeout)
	assert.Equal(t, button.Emit{Code: evdev.KEY_B}, mt.Steps[1].Action)

	b, err = ParseExpr("(macro h i :delay 50 ret)")
	require.NoError(t, err)
	m := b.(button.Macro)
	require.Len(t, m.Steps, 3)
	assert.Equal(t, time.Duration(0), m.Steps[0].Delay)
	assert.Equal(t, 50*time.Millisecond, m.Steps[2].Delay)
	assert.Equal(t, button.Emit{Code: evdev.KEY_ENTER}, m.Steps[2].Button)

	b, err = ParseExpr(`(cmd "notify-send hi")`)
	require.NoError(t, err)
	assert.Equal(t, button.Shell{Command: "notify-send hi"}, b)

	b, err = ParseExpr("(around lsft (around lctl a))")
	require.NoError(t, err)
	assert.Equal(t, button.Around{
		Outer: button.Emit{Code: evdev.KEY_LEFTSHIFT},
		Inner: button.Around{
			Outer: button.Emit{Code: evdev.KEY_LEFTCTRL},
			Inner: button.Emit{Code: evdev.KEY_A},
		},
	}, b)
}

func TestParseExprEagerVariants(t *testing.T) {
	b, err := ParseExpr("(tap-hold-eager 150 a lsft)")
	require.NoError(t, err)
	assert.True(t, b.(button.TapHold).Eager)

	b, err = ParseExpr("(tap-hold-lazy 150 a lsft)")
	require.NoError(t, err)
	assert.False(t, b.(button.TapHold).Eager)
}

func TestParseExprErrors(t *testing.T) {
	bad := []string{
		"",
		"(tap-hold a b c)",
		"(tap-hold 0 a b)",
		"(tap-hold 200 a)",
		"(multi-tap 200 a)",
		"(layer-hold)",
		"(unknown-form a)",
		"(around a b",
		"a b",
		"(macro)",
		"(macro :delay 50)",
		"nosuchkey",
		`"quoted"`,
	}
	for _, expr := range bad {
		_, err := ParseExpr(expr)
		assert.Error(t, err, "expr %q should not parse", expr)
	}
}

// =============================================================================
// Full compilation
// =============================================================================

func TestCompileLayersAndAliases(t *testing.T) {
	compiled := compileText(t, `
[aliases]
sft-a = "(around lsft a)"

[layers.base]
caps = "(tap-hold 200 esc (layer-hold nav))"
a    = "@sft-a"

[layers.nav]
a = "left"
`)

	require.Len(t, compiled.Layers, 2)
	base := compiled.Layers["base"]
	assert.Equal(t, button.Around{
		Outer: button.Emit{Code: evdev.KEY_LEFTSHIFT},
		Inner: button.Emit{Code: evdev.KEY_A},
	}, base.Mapping[evdev.KEY_A])

	stack, err := compiled.Stack()
	require.NoError(t, err)
	assert.Equal(t, "base", stack.Base())
}

func TestCompileUndefinedLayerRef(t *testing.T) {
	cfg, err := config.Parse(`
[layers.base]
caps = "(layer-hold nav)"
`)
	require.NoError(t, err)
	_, err = Compile(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined layer")
}

func TestCompileAliasCycle(t *testing.T) {
	cfg, err := config.Parse(`
[aliases]
x = "@y"
y = "@x"

[layers.base]
a = "@x"
`)
	require.NoError(t, err)
	_, err = Compile(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestCompileDuplicateKeyAlias(t *testing.T) {
	// "esc" and "escape" name the same physical key.
	cfg, err := config.Parse(`
[layers.base]
esc    = "a"
escape = "b"
`)
	require.NoError(t, err)
	_, err = Compile(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapped twice")
}

func TestCompileComposeTable(t *testing.T) {
	compiled := compileText(t, `
[daemon]
cmp_seq = "ralt"

[layers.base]
a = "a"

[compose]
"e apo" = "(around ralt e)"
"a a"   = "q"
`)

	require.Len(t, compiled.Compose, 2)
	for _, entry := range compiled.Compose {
		assert.Len(t, entry.Sequence, 2)
	}

	// cmp_seq binds the trigger on the base layer.
	base := compiled.Layers["base"]
	assert.Equal(t, button.ComposeTrigger{}, base.Mapping[evdev.KEY_RIGHTALT])
}

func TestCompileComposePrefixShadowing(t *testing.T) {
	cfg, err := config.Parse(`
[layers.base]
a = "a"

[compose]
"e"     = "q"
"e apo" = "w"
`)
	require.NoError(t, err)
	_, err = Compile(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shadows")
}

func TestCompileMissingBaseLayer(t *testing.T) {
	// A hand-built config can bypass Parse's validation; Compile must
	// still fail cleanly instead of writing the compose trigger into a
	// layer that does not exist.
	cfg := config.DefaultConfig()
	cfg.Daemon.CmpSeq = "ralt"
	cfg.Layers = map[string]map[string]string{
		"nav": {"a": "left"},
	}

	_, err := Compile(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base layer")
}

func TestCompileCmpSeqConflict(t *testing.T) {
	cfg, err := config.Parse(`
[daemon]
cmp_seq = "caps"

[layers.base]
caps = "esc"
`)
	require.NoError(t, err)
	_, err = Compile(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already mapped")
}

func TestCompileImplicitAroundDisabled(t *testing.T) {
	cfg, err := config.Parse(`
[daemon]
implicit_around = "disabled"

[layers.base]
a = "C-a"
`)
	require.NoError(t, err)
	_, err = Compile(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "implicit-around")
}

func TestCompileTapHoldDefaultPolicy(t *testing.T) {
	compiled := compileText(t, `
[daemon]
tap_hold_policy = "eager"

[layers.base]
caps = "(tap-hold 200 esc lsft)"
`)
	th := compiled.Layers["base"].Mapping[evdev.KEY_CAPSLOCK].(button.TapHold)
	assert.True(t, th.Eager, "daemon policy should set the default eagerness")
}
