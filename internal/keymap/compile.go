// Package keymap compiles the textual configuration into the immutable
// button and layer tree the engine executes.
package keymap

import (
	"fmt"
	"sort"
	"strings"

	"remapd/internal/button"
	"remapd/internal/config"
	"remapd/internal/event"
	"remapd/internal/layers"
)

// CompileError reports where in the configuration a compile failed.
type CompileError struct {
	Where string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("keymap: %s: %v", e.Where, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// ComposeEntry is one compiled compose sequence.
type ComposeEntry struct {
	// Sequence is the physical keys that must follow the trigger.
	Sequence []event.Code

	// Out is the button tapped when the sequence matches exactly.
	Out button.Button
}

// Compiled is the validated, immutable result of compiling a
// configuration: the layer tree plus the compose table.
type Compiled struct {
	// Base is the name of the bottom layer, always "base".
	Base string

	// Layers holds every defined layer.
	Layers map[string]layers.Layer

	// Compose holds the compose sequences, sorted by sequence length so
	// prefix matching can stop at the first exact hit.
	Compose []ComposeEntry
}

// Compile builds the button and layer tree from a validated configuration.
// Every failure is a construction-time error; the engine never sees an
// undefined layer, key, or alias at runtime.
func Compile(cfg *config.Config) (*Compiled, error) {
	p := &parser{
		aliases:        cfg.Aliases,
		visiting:       map[string]bool{},
		implicitAround: cfg.Daemon.ImplicitAround == "around",
		eagerDefault:   cfg.EagerTapHold(),
		layerRefs:      map[string]string{},
	}

	out := &Compiled{
		Base:   config.BaseLayer,
		Layers: make(map[string]layers.Layer, len(cfg.Layers)),
	}

	for name, mapping := range cfg.Layers {
		layer := layers.Layer{
			Name:    name,
			Mapping: make(map[event.Code]button.Button, len(mapping)),
		}
		for keyName, expr := range mapping {
			code, err := KeyFromName(keyName)
			if err != nil {
				return nil, &CompileError{Where: fmt.Sprintf("layers.%s.%s", name, keyName), Err: err}
			}
			b, err := p.parseExpr(expr)
			if err != nil {
				return nil, &CompileError{Where: fmt.Sprintf("layers.%s.%s", name, keyName), Err: err}
			}
			if _, dup := layer.Mapping[code]; dup {
				return nil, &CompileError{
					Where: fmt.Sprintf("layers.%s.%s", name, keyName),
					Err:   fmt.Errorf("key mapped twice in layer %s", name),
				}
			}
			if err := validateTree(b, true); err != nil {
				return nil, &CompileError{Where: fmt.Sprintf("layers.%s.%s", name, keyName), Err: err}
			}
			layer.Mapping[code] = b
		}
		out.Layers[name] = layer
	}

	// Config validation enforces this too, but Compile is also called
	// directly on hand-built configs; without the base layer the compose
	// trigger below would write into a nil map.
	if _, ok := out.Layers[out.Base]; !ok {
		return nil, &CompileError{Where: "layers", Err: fmt.Errorf("base layer %q is not defined", out.Base)}
	}

	if err := bindComposeTrigger(cfg, out); err != nil {
		return nil, err
	}

	if err := compileComposeTable(cfg, p, out); err != nil {
		return nil, err
	}

	// Every layer name referenced by a layer-hold or layer-toggle button
	// must be defined; resolving an undefined layer is never a runtime
	// condition.
	for ref := range p.layerRefs {
		if _, ok := out.Layers[ref]; !ok {
			return nil, &CompileError{Where: "layers", Err: fmt.Errorf("layer operation references undefined layer %q", ref)}
		}
	}

	return out, nil
}

// bindComposeTrigger applies the cmp_seq setting: the named key becomes
// the compose trigger on the base layer. An explicit mapping for the same
// key is a conflict the user has to resolve, not a silent override.
func bindComposeTrigger(cfg *config.Config, out *Compiled) error {
	if cfg.Daemon.CmpSeq == "" {
		return nil
	}
	code, err := KeyFromName(cfg.Daemon.CmpSeq)
	if err != nil {
		return &CompileError{Where: "daemon.cmp_seq", Err: err}
	}
	base := out.Layers[out.Base]
	if existing, ok := base.Mapping[code]; ok {
		if _, isTrigger := existing.(button.ComposeTrigger); !isTrigger {
			return &CompileError{
				Where: "daemon.cmp_seq",
				Err:   fmt.Errorf("key %s is already mapped to %s in the base layer", cfg.Daemon.CmpSeq, existing),
			}
		}
		return nil
	}
	base.Mapping[code] = button.ComposeTrigger{}
	return nil
}

func compileComposeTable(cfg *config.Config, p *parser, out *Compiled) error {
	for seq, expr := range cfg.Compose {
		var codes []event.Code
		for _, keyName := range strings.Fields(seq) {
			code, err := KeyFromName(keyName)
			if err != nil {
				return &CompileError{Where: "compose." + seq, Err: err}
			}
			codes = append(codes, code)
		}
		if len(codes) == 0 {
			return &CompileError{Where: "compose", Err: fmt.Errorf("empty sequence")}
		}
		b, err := p.parseExpr(expr)
		if err != nil {
			return &CompileError{Where: "compose." + seq, Err: err}
		}
		if err := validateComposeOut(b); err != nil {
			return &CompileError{Where: "compose." + seq, Err: err}
		}
		out.Compose = append(out.Compose, ComposeEntry{Sequence: codes, Out: b})
	}

	sort.Slice(out.Compose, func(i, j int) bool {
		return len(out.Compose[i].Sequence) < len(out.Compose[j].Sequence)
	})

	// A sequence that is a strict prefix of another would make the longer
	// one unreachable: exact matches emit immediately.
	for i, a := range out.Compose {
		for _, b := range out.Compose[i+1:] {
			if len(a.Sequence) < len(b.Sequence) && isPrefix(a.Sequence, b.Sequence) {
				return &CompileError{
					Where: "compose",
					Err:   fmt.Errorf("sequence %s shadows a longer sequence", seqString(a.Sequence)),
				}
			}
		}
	}

	return nil
}

// validateTree enforces the nesting rules the engine's single-timer-per-key
// invariant depends on: ambiguous buttons (tap-hold, multi-tap) and macros
// with step delays own the key's one pending timer, so they are only legal
// as the root of a mapping expression.
func validateTree(b button.Button, root bool) error {
	switch v := b.(type) {
	case button.TapHold:
		if !root {
			return fmt.Errorf("tap-hold cannot nest inside another button")
		}
		if err := validateTree(v.Tap, false); err != nil {
			return err
		}
		return validateTree(v.Hold, false)
	case button.MultiTap:
		if !root {
			return fmt.Errorf("multi-tap cannot nest inside another button")
		}
		for _, step := range v.Steps {
			if err := validateTree(step.Action, false); err != nil {
				return err
			}
		}
		return nil
	case button.Macro:
		for _, step := range v.Steps {
			if !root && step.Delay > 0 {
				return fmt.Errorf("macro with :delay cannot nest inside another button")
			}
			if err := validateTree(step.Button, false); err != nil {
				return err
			}
		}
		return nil
	case button.Around:
		if err := validateTree(v.Outer, false); err != nil {
			return err
		}
		return validateTree(v.Inner, false)
	case button.ComposeTrigger:
		if !root {
			return fmt.Errorf("cmp cannot nest inside another button")
		}
		return nil
	default:
		return nil
	}
}

// validateComposeOut checks the button emitted by a compose sequence. The
// emission is synthetic (no physical event backs it), so fallthrough has
// nothing to re-emit and stateful buttons have no key to attach to.
func validateComposeOut(b button.Button) error {
	switch v := b.(type) {
	case button.TapHold, button.MultiTap, button.ComposeTrigger:
		return fmt.Errorf("%s cannot be emitted by a compose sequence", b)
	case button.Fallthrough:
		return fmt.Errorf("fallthrough cannot be emitted by a compose sequence")
	case button.Macro:
		for _, step := range v.Steps {
			if step.Delay > 0 {
				return fmt.Errorf("macro with :delay cannot be emitted by a compose sequence")
			}
			if err := validateComposeOut(step.Button); err != nil {
				return err
			}
		}
		return nil
	case button.Around:
		if err := validateComposeOut(v.Outer); err != nil {
			return err
		}
		return validateComposeOut(v.Inner)
	default:
		return nil
	}
}

func isPrefix(short, long []event.Code) bool {
	for i, c := range short {
		if long[i] != c {
			return false
		}
	}
	return true
}

func seqString(codes []event.Code) string {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = NameForKey(c)
	}
	return strings.Join(names, " ")
}

// Stack builds the runtime layer stack for a compiled keymap.
func (c *Compiled) Stack() (*layers.Stack, error) {
	return layers.New(c.Base, c.Layers)
}
