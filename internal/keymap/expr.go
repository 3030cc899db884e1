package keymap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"remapd/internal/button"
)

// Button expression syntax, used as the values of [layers.*], [aliases]
// and [compose] entries:
//
//	a                          plain remap (emit KEY_A)
//	_                          fallthrough (re-emit the physical event)
//	XX                         pass (consume without output)
//	cmp                        compose trigger
//	@name                      alias reference
//	C-a, C-S-a                 shorthand modifier notation (implicit around)
//	(around lsft a)            explicit around
//	(tap-hold 200 a lsft)      tap-hold, default interrupt policy
//	(tap-hold-eager 200 a lsft)
//	(tap-hold-lazy 200 a lsft)
//	(layer-hold nav)           push layer while held
//	(layer-toggle nav)         toggle layer on press
//	(multi-tap 200 a 200 b)    per-step timeout and action pairs
//	(macro h i :delay 50 ret)  tap steps in order, optional delays
//	(cmd "notify-send hi")     shell command, gated by allow-cmd

// shorthand modifier prefixes for the implicit-around notation.
var shorthandMods = map[string]string{
	"C": "lctl",
	"S": "lsft",
	"A": "lalt",
	"M": "lmet",
}

type parser struct {
	// aliases is the raw alias table; references are expanded inline with
	// cycle detection via visiting.
	aliases  map[string]string
	visiting map[string]bool

	// implicitAround enables the C-/S-/A-/M- shorthand.
	implicitAround bool

	// eagerDefault is the tap-hold interrupt policy when the expression
	// does not pick one.
	eagerDefault bool

	// layerRefs collects every layer name referenced by a parsed
	// expression, for definedness validation after all layers are built.
	layerRefs map[string]string
}

// ParseExpr parses a single button expression with no alias table and
// default settings. The keymap compiler uses the internal parser type;
// ParseExpr exists for tools and tests.
func ParseExpr(text string) (button.Button, error) {
	p := &parser{
		aliases:        map[string]string{},
		visiting:       map[string]bool{},
		implicitAround: true,
		layerRefs:      map[string]string{},
	}
	return p.parseExpr(text)
}

func (p *parser) parseExpr(text string) (button.Button, error) {
	toks, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	b, err := p.parse(toks)
	if err != nil {
		return nil, err
	}
	if !toks.empty() {
		return nil, fmt.Errorf("trailing tokens after %s", b)
	}
	return b, nil
}

func (p *parser) parse(toks *tokenStream) (button.Button, error) {
	tok, ok := toks.next()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	if tok.kind == tokClose {
		return nil, fmt.Errorf("unexpected )")
	}
	if tok.kind == tokOpen {
		return p.parseForm(toks)
	}
	if tok.quoted {
		return nil, fmt.Errorf("quoted string %q is only valid inside (cmd ...)", tok.text)
	}
	return p.parseAtom(tok.text)
}

func (p *parser) parseForm(toks *tokenStream) (button.Button, error) {
	head, ok := toks.next()
	if !ok || head.kind != tokAtom {
		return nil, fmt.Errorf("expected form name after (")
	}

	var b button.Button
	var err error
	switch head.text {
	case "tap-hold":
		b, err = p.parseTapHold(toks, p.eagerDefault)
	case "tap-hold-eager":
		b, err = p.parseTapHold(toks, true)
	case "tap-hold-lazy":
		b, err = p.parseTapHold(toks, false)
	case "multi-tap":
		b, err = p.parseMultiTap(toks)
	case "layer-hold":
		b, err = p.parseLayerOp(toks, button.Hold)
	case "layer-toggle":
		b, err = p.parseLayerOp(toks, button.Toggle)
	case "around":
		b, err = p.parseAround(toks)
	case "macro":
		b, err = p.parseMacro(toks)
	case "cmd":
		b, err = p.parseCmd(toks)
	default:
		return nil, fmt.Errorf("unknown form %q", head.text)
	}
	if err != nil {
		return nil, err
	}

	if tok, ok := toks.next(); !ok || tok.kind != tokClose {
		return nil, fmt.Errorf("missing ) after (%s ...)", head.text)
	}
	return b, nil
}

func (p *parser) parseAtom(text string) (button.Button, error) {
	switch text {
	case "_":
		return button.Fallthrough{}, nil
	case "XX", "pass":
		return button.Pass{}, nil
	case "cmp":
		return button.ComposeTrigger{}, nil
	}

	if name, ok := strings.CutPrefix(text, "@"); ok {
		return p.expandAlias(name)
	}

	if b, ok, err := p.parseShorthand(text); ok || err != nil {
		return b, err
	}

	code, err := KeyFromName(text)
	if err != nil {
		return nil, err
	}
	return button.Emit{Code: code}, nil
}

// parseShorthand handles the C-/S-/A-/M- modifier notation. It reports
// ok=false when text is not shorthand at all, so plain key names with no
// modifier prefix flow on to the key table.
func (p *parser) parseShorthand(text string) (button.Button, bool, error) {
	parts := strings.Split(text, "-")
	if len(parts) < 2 {
		return nil, false, nil
	}
	for _, mod := range parts[:len(parts)-1] {
		if _, ok := shorthandMods[mod]; !ok {
			return nil, false, nil
		}
	}

	if !p.implicitAround {
		return nil, true, fmt.Errorf("shorthand %q requires implicit-around", text)
	}

	inner, err := p.parseAtom(parts[len(parts)-1])
	if err != nil {
		return nil, true, err
	}
	for i := len(parts) - 2; i >= 0; i-- {
		code, err := KeyFromName(shorthandMods[parts[i]])
		if err != nil {
			return nil, true, err
		}
		inner = button.Around{Outer: button.Emit{Code: code}, Inner: inner}
	}
	return inner, true, nil
}

func (p *parser) expandAlias(name string) (button.Button, error) {
	expr, ok := p.aliases[name]
	if !ok {
		return nil, fmt.Errorf("undefined alias @%s", name)
	}
	if p.visiting[name] {
		return nil, fmt.Errorf("alias cycle through @%s", name)
	}
	p.visiting[name] = true
	defer delete(p.visiting, name)
	return p.parseExpr(expr)
}

func (p *parser) parseTapHold(toks *tokenStream, eager bool) (button.Button, error) {
	timeout, err := p.parseMillis(toks)
	if err != nil {
		return nil, fmt.Errorf("tap-hold: %w", err)
	}
	tap, err := p.parse(toks)
	if err != nil {
		return nil, fmt.Errorf("tap-hold tap action: %w", err)
	}
	hold, err := p.parse(toks)
	if err != nil {
		return nil, fmt.Errorf("tap-hold hold action: %w", err)
	}
	return button.TapHold{Tap: tap, Hold: hold, Timeout: timeout, Eager: eager}, nil
}

func (p *parser) parseMultiTap(toks *tokenStream) (button.Button, error) {
	var steps []button.TapStep
	for {
		if toks.peekClose() {
			break
		}
		timeout, err := p.parseMillis(toks)
		if err != nil {
			return nil, fmt.Errorf("multi-tap step %d: %w", len(steps)+1, err)
		}
		action, err := p.parse(toks)
		if err != nil {
			return nil, fmt.Errorf("multi-tap step %d: %w", len(steps)+1, err)
		}
		steps = append(steps, button.TapStep{Action: action, Timeout: timeout})
	}
	if len(steps) < 2 {
		return nil, fmt.Errorf("multi-tap needs at least 2 steps, got %d", len(steps))
	}
	return button.MultiTap{Steps: steps}, nil
}

func (p *parser) parseLayerOp(toks *tokenStream, mode button.LayerMode) (button.Button, error) {
	tok, ok := toks.next()
	if !ok || tok.kind != tokAtom {
		return nil, fmt.Errorf("layer operation needs a layer name")
	}
	p.layerRefs[tok.text] = tok.text
	return button.LayerOp{Layer: tok.text, Mode: mode}, nil
}

func (p *parser) parseAround(toks *tokenStream) (button.Button, error) {
	outer, err := p.parse(toks)
	if err != nil {
		return nil, fmt.Errorf("around outer: %w", err)
	}
	inner, err := p.parse(toks)
	if err != nil {
		return nil, fmt.Errorf("around inner: %w", err)
	}
	return button.Around{Outer: outer, Inner: inner}, nil
}

func (p *parser) parseMacro(toks *tokenStream) (button.Button, error) {
	var steps []button.MacroStep
	var delay time.Duration
	for {
		if toks.peekClose() {
			break
		}
		tok, _ := toks.next()
		if tok.kind == tokAtom && tok.text == ":delay" {
			d, err := p.parseMillis(toks)
			if err != nil {
				return nil, fmt.Errorf("macro :delay: %w", err)
			}
			delay = d
			continue
		}
		toks.push(tok)
		b, err := p.parse(toks)
		if err != nil {
			return nil, fmt.Errorf("macro step %d: %w", len(steps)+1, err)
		}
		steps = append(steps, button.MacroStep{Button: b, Delay: delay})
		delay = 0
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("macro needs at least one step")
	}
	if delay != 0 {
		return nil, fmt.Errorf("macro :delay needs a following step")
	}
	return button.Macro{Steps: steps}, nil
}

func (p *parser) parseCmd(toks *tokenStream) (button.Button, error) {
	tok, ok := toks.next()
	if !ok || tok.kind != tokAtom {
		return nil, fmt.Errorf("cmd needs a command string")
	}
	if strings.TrimSpace(tok.text) == "" {
		return nil, fmt.Errorf("cmd command must not be empty")
	}
	return button.Shell{Command: tok.text}, nil
}

func (p *parser) parseMillis(toks *tokenStream) (time.Duration, error) {
	tok, ok := toks.next()
	if !ok || tok.kind != tokAtom {
		return 0, fmt.Errorf("expected a timeout in milliseconds")
	}
	n, err := strconv.Atoi(tok.text)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad timeout %q, want a positive millisecond count", tok.text)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Tokenizer

type tokenKind int

const (
	tokAtom tokenKind = iota
	tokOpen
	tokClose
)

type token struct {
	kind   tokenKind
	text   string
	quoted bool
}

type tokenStream struct {
	toks []token
	pos  int
	back []token
}

func (s *tokenStream) next() (token, bool) {
	if n := len(s.back); n > 0 {
		t := s.back[n-1]
		s.back = s.back[:n-1]
		return t, true
	}
	if s.pos >= len(s.toks) {
		return token{}, false
	}
	t := s.toks[s.pos]
	s.pos++
	return t, true
}

func (s *tokenStream) push(t token) { s.back = append(s.back, t) }

func (s *tokenStream) peekClose() bool {
	t, ok := s.next()
	if !ok {
		return true
	}
	s.push(t)
	return t.kind == tokClose
}

func (s *tokenStream) empty() bool {
	return len(s.back) == 0 && s.pos >= len(s.toks)
}

func tokenize(text string) (*tokenStream, error) {
	var toks []token
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokOpen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokClose})
			i++
		case c == '"':
			end := strings.IndexByte(text[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated string in %q", text)
			}
			toks = append(toks, token{kind: tokAtom, text: text[i+1 : i+1+end], quoted: true})
			i += end + 2
		default:
			j := i
			for j < len(text) && !strings.ContainsRune(" \t\n()\"", rune(text[j])) {
				j++
			}
			toks = append(toks, token{kind: tokAtom, text: text[i:j]})
			i = j
		}
	}
	return &tokenStream{toks: toks}, nil
}
