package engine

// Gate authorizes shell-command buttons. It is a pure function of the
// allow-cmd setting: stateless, never blocking.
type Gate struct {
	allow bool
}

// NewGate builds a gate from the allow-cmd setting.
func NewGate(allow bool) *Gate {
	return &Gate{allow: allow}
}

// Authorize returns nil when cmd may spawn and ErrCommandDenied otherwise.
func (g *Gate) Authorize(cmd string) error {
	if !g.allow {
		return ErrCommandDenied
	}
	return nil
}
