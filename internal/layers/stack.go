// Package layers implements the runtime layer stack: the ordered set of
// active layers a physical key code is resolved against.
package layers

import (
	"fmt"

	"remapd/internal/button"
	"remapd/internal/event"
)

// Layer is one named, immutable key-to-button mapping. Layers are built by
// the keymap compiler and never change after construction.
type Layer struct {
	Name    string
	Mapping map[event.Code]button.Button
}

// Stack is the mutable runtime state: the ordered sequence of active layer
// names over the immutable layer set. The base layer sits at the bottom of
// every possible stack state and can never be removed.
//
// Stack is not safe for concurrent use; all calls happen on the dispatcher
// goroutine.
type Stack struct {
	layers map[string]Layer
	base   string

	// active is ordered bottom to top; active[0] is always the base layer.
	active []string
}

// New builds a stack with the given base layer active. Every layer name a
// compiled button can reference must be present in all; referencing an
// undefined layer is a construction-time error of the keymap compiler, so
// New only validates the base.
func New(base string, all map[string]Layer) (*Stack, error) {
	if _, ok := all[base]; !ok {
		return nil, fmt.Errorf("base layer %q is not defined", base)
	}
	return &Stack{
		layers: all,
		base:   base,
		active: []string{base},
	}, nil
}

// Resolve scans the active layers top to bottom and returns the first
// button mapped for code. The second result is false when no active layer
// maps the code; the caller decides between fallthrough and silence.
func (s *Stack) Resolve(code event.Code) (button.Button, bool) {
	for i := len(s.active) - 1; i >= 0; i-- {
		if b, ok := s.layers[s.active[i]].Mapping[code]; ok {
			return b, true
		}
	}
	return nil, false
}

// Push activates a layer on top of the stack. Pushing a layer that is
// already active, or the base layer, is a no-op: activation is idempotent.
func (s *Stack) Push(name string) {
	if name == s.base || s.IsActive(name) {
		return
	}
	if _, ok := s.layers[name]; !ok {
		return
	}
	s.active = append(s.active, name)
}

// Pop deactivates the occurrence of name nearest the top of the stack.
// Popping an inactive layer or the base layer is a no-op.
func (s *Stack) Pop(name string) {
	if name == s.base {
		return
	}
	for i := len(s.active) - 1; i >= 1; i-- {
		if s.active[i] == name {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

// Toggle pushes name if it is inactive and pops it otherwise.
func (s *Stack) Toggle(name string) {
	if s.IsActive(name) {
		s.Pop(name)
		return
	}
	s.Push(name)
}

// IsActive reports whether name is anywhere in the active sequence.
func (s *Stack) IsActive(name string) bool {
	for _, n := range s.active {
		if n == name {
			return true
		}
	}
	return false
}

// Active returns a copy of the active layer names, bottom to top.
func (s *Stack) Active() []string {
	out := make([]string, len(s.active))
	copy(out, s.active)
	return out
}

// Base returns the base layer name.
func (s *Stack) Base() string { return s.base }

// Defined reports whether a layer name exists in the layer set.
func (s *Stack) Defined(name string) bool {
	_, ok := s.layers[name]
	return ok
}
