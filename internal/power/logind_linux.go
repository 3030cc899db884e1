// Package power listens for systemd-logind suspend notifications so the
// daemon can release its exclusive device grab across sleep. Without
// this, a key held through suspend can wedge the kernel's idea of the
// keyboard state, and some firmwares refuse to wake on a grabbed device.
package power

import (
	"context"

	"github.com/godbus/dbus/v5"

	"remapd/internal/logging"
)

const (
	logindInterface = "org.freedesktop.login1.Manager"
	logindMember    = "PrepareForSleep"
	logindPath      = "/org/freedesktop/login1"
)

// Monitor watches logind's PrepareForSleep signal and invokes the
// callbacks on the way down and the way up.
type Monitor struct {
	log     *logging.Logger
	onSleep func()
	onWake  func()
}

// NewMonitor builds a monitor. The callbacks run on the monitor's
// goroutine and must not block for long.
func NewMonitor(log *logging.Logger, onSleep, onWake func()) *Monitor {
	return &Monitor{log: log, onSleep: onSleep, onWake: onWake}
}

// Run subscribes and dispatches until ctx is cancelled. A missing system
// bus or logind is not an error: headless and minimal systems simply run
// without suspend handling.
func (m *Monitor) Run(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		m.log.Warn("system bus unavailable, suspend handling disabled", "error", err)
		return nil
	}
	defer conn.Close()

	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember(logindMember),
		dbus.WithMatchObjectPath(logindPath),
	)
	if err != nil {
		m.log.Warn("logind signal match failed, suspend handling disabled", "error", err)
		return nil
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)

	m.log.Debug("suspend monitor running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			m.dispatch(sig)
		}
	}
}

func (m *Monitor) dispatch(sig *dbus.Signal) {
	if sig.Name != logindInterface+"."+logindMember || len(sig.Body) != 1 {
		return
	}
	sleeping, ok := sig.Body[0].(bool)
	if !ok {
		return
	}
	if sleeping {
		m.log.Info("system suspending, releasing device grab")
		if m.onSleep != nil {
			m.onSleep()
		}
		return
	}
	m.log.Info("system resumed, retaking device grab")
	if m.onWake != nil {
		m.onWake()
	}
}
