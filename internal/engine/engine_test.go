package engine

import (
	"errors"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remapd/internal/button"
	"remapd/internal/event"
	"remapd/internal/layers"
	"remapd/internal/logging"
)

const (
	keyA    = evdev.KEY_A
	keyB    = evdev.KEY_B
	keyH    = evdev.KEY_H
	keyLeft = evdev.KEY_LEFT
	keyEsc  = evdev.KEY_ESC
	keyCaps = evdev.KEY_CAPSLOCK
	keySft  = evdev.KEY_LEFTSHIFT
	keyRet  = evdev.KEY_ENTER
	keyQ    = evdev.KEY_Q
	keyW    = evdev.KEY_W
)

type emitted struct {
	code event.Code
	tr   event.Transition
}

type recordSink struct {
	evs []event.KeyEvent
	err error
}

func (s *recordSink) Send(ev event.KeyEvent) error {
	if s.err != nil {
		return s.err
	}
	s.evs = append(s.evs, ev)
	return nil
}

func (s *recordSink) got() []emitted {
	out := make([]emitted, 0, len(s.evs))
	for _, ev := range s.evs {
		out = append(out, emitted{ev.Code, ev.Transition})
	}
	return out
}

// fakeScheduler records armed timers so tests decide when time passes.
type fakeScheduler struct {
	armed []*TimerHandle
	durs  []time.Duration
}

func (s *fakeScheduler) Schedule(code event.Code, d time.Duration) *TimerHandle {
	h := &TimerHandle{code: code}
	s.armed = append(s.armed, h)
	s.durs = append(s.durs, d)
	return h
}

func (s *fakeScheduler) Cancel(h *TimerHandle) { h.cancelled = true }

// fire delivers the oldest live timer to the dispatcher.
func (s *fakeScheduler) fire(t *testing.T, e *Engine) {
	t.Helper()
	for i, h := range s.armed {
		if h.cancelled {
			continue
		}
		s.armed = append(s.armed[:i], s.armed[i+1:]...)
		s.durs = append(s.durs[:i], s.durs[i+1:]...)
		e.process(item{timer: h})
		return
	}
	t.Fatal("no live timer to fire")
}

func (s *fakeScheduler) live() int {
	n := 0
	for _, h := range s.armed {
		if !h.cancelled {
			n++
		}
	}
	return n
}

type recordRunner struct {
	cmds []string
	err  error
}

func (r *recordRunner) Run(cmd string) error {
	if r.err != nil {
		return r.err
	}
	r.cmds = append(r.cmds, cmd)
	return nil
}

func mkStack(t *testing.T, maps map[string]map[event.Code]button.Button) *layers.Stack {
	t.Helper()
	all := make(map[string]layers.Layer, len(maps))
	for name, m := range maps {
		all[name] = layers.Layer{Name: name, Mapping: m}
	}
	st, err := layers.New("base", all)
	require.NoError(t, err)
	return st
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	l, err := logging.New(&logging.Config{Level: logging.LevelError, Output: "stderr"})
	require.NoError(t, err)
	return l
}

func mkEngine(t *testing.T, cfg Config) (*Engine, *recordSink, *fakeScheduler) {
	t.Helper()
	sink := &recordSink{}
	sched := &fakeScheduler{}
	if cfg.Sink == nil {
		cfg.Sink = sink
	}
	cfg.Scheduler = sched
	if cfg.Logger == nil {
		cfg.Logger = testLogger(t)
	}
	if cfg.Runner == nil {
		cfg.Runner = &recordRunner{}
	}
	return New(cfg), sink, sched
}

func press(e *Engine, c event.Code)   { e.process(item{ev: event.KeyEvent{Code: c, Transition: event.Press}}) }
func release(e *Engine, c event.Code) { e.process(item{ev: event.KeyEvent{Code: c, Transition: event.Release}}) }
func repeat(e *Engine, c event.Code)  { e.process(item{ev: event.KeyEvent{Code: c, Transition: event.Repeat}}) }

func TestEmitRemapsPressReleaseRepeat(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyCaps: button.Emit{Code: keyEsc}},
		}),
	})

	press(e, keyCaps)
	repeat(e, keyCaps)
	release(e, keyCaps)

	assert.Equal(t, []emitted{
		{keyEsc, event.Press},
		{keyEsc, event.Repeat},
		{keyEsc, event.Release},
	}, sink.got())
}

func TestPassConsumesSilently(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.Pass{}},
		}),
	})

	press(e, keyA)
	release(e, keyA)

	assert.Empty(t, sink.got())
}

func TestUnmappedKeyConsumedByDefault(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{"base": {}}),
	})

	press(e, keyA)
	release(e, keyA)

	assert.Empty(t, sink.got())
}

func TestUnmappedKeyReemittedWithFallthrough(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{
		Stack:       mkStack(t, map[string]map[event.Code]button.Button{"base": {}}),
		Fallthrough: true,
	})

	press(e, keyA)
	repeat(e, keyA)
	release(e, keyA)

	assert.Equal(t, []emitted{
		{keyA, event.Press},
		{keyA, event.Repeat},
		{keyA, event.Release},
	}, sink.got())
}

func TestFallthroughButtonReemitsPhysicalKey(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.Fallthrough{}},
		}),
	})

	press(e, keyA)
	release(e, keyA)

	assert.Equal(t, []emitted{
		{keyA, event.Press},
		{keyA, event.Release},
	}, sink.got())
}

func TestUnmatchedReleaseDropped(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{
		Stack:       mkStack(t, map[string]map[event.Code]button.Button{"base": {}}),
		Fallthrough: true,
	})

	// A release with no prior press: key was down before the grab.
	release(e, keyA)

	assert.Empty(t, sink.got())
}

func tapHoldBase(eager bool) map[string]map[event.Code]button.Button {
	return map[string]map[event.Code]button.Button{
		"base": {
			keyCaps: button.TapHold{
				Tap:     button.Emit{Code: keyEsc},
				Hold:    button.Emit{Code: keySft},
				Timeout: 200 * time.Millisecond,
				Eager:   eager,
			},
			keyA: button.Emit{Code: keyA},
		},
	}
}

func TestTapHoldReleasedEarlyIsTap(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{Stack: mkStack(t, tapHoldBase(false))})

	press(e, keyCaps)
	assert.Empty(t, sink.got(), "undecided tap-hold must stay silent")
	release(e, keyCaps)

	assert.Equal(t, []emitted{
		{keyEsc, event.Press},
		{keyEsc, event.Release},
	}, sink.got())
	assert.Zero(t, sched.live(), "tap resolution must cancel the timer")
}

func TestTapHoldTimeoutIsHold(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{Stack: mkStack(t, tapHoldBase(false))})

	press(e, keyCaps)
	sched.fire(t, e)
	repeat(e, keyCaps)
	release(e, keyCaps)

	assert.Equal(t, []emitted{
		{keySft, event.Press},
		{keySft, event.Repeat},
		{keySft, event.Release},
	}, sink.got())
}

func TestTapHoldReleaseBeatsSimultaneousTimeout(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{Stack: mkStack(t, tapHoldBase(false))})

	press(e, keyCaps)

	// Release and timeout land in the same dispatch step; the queue hands
	// key events over first, so the timer signal must arrive stale.
	h := sched.armed[0]
	release(e, keyCaps)
	assert.True(t, h.cancelled)
	e.process(item{timer: h})

	assert.Equal(t, []emitted{
		{keyEsc, event.Press},
		{keyEsc, event.Release},
	}, sink.got())
}

func TestLazyTapHoldDefersOtherKeysUntilTap(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{Stack: mkStack(t, tapHoldBase(false))})

	press(e, keyCaps)
	press(e, keyA)
	release(e, keyA)
	assert.Empty(t, sink.got(), "events behind an undecided lazy tap-hold must wait")

	release(e, keyCaps)

	assert.Equal(t, []emitted{
		{keyEsc, event.Press},
		{keyEsc, event.Release},
		{keyA, event.Press},
		{keyA, event.Release},
	}, sink.got())
}

func TestLazyTapHoldDefersOtherKeysUntilHold(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{Stack: mkStack(t, tapHoldBase(false))})

	press(e, keyCaps)
	press(e, keyA)
	sched.fire(t, e)

	assert.Equal(t, []emitted{
		{keySft, event.Press},
		{keyA, event.Press},
	}, sink.got())
}

func TestEagerTapHoldResolvesHoldOnInterrupt(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{Stack: mkStack(t, tapHoldBase(true))})

	press(e, keyCaps)
	press(e, keyA)
	release(e, keyA)
	release(e, keyCaps)

	assert.Equal(t, []emitted{
		{keySft, event.Press},
		{keyA, event.Press},
		{keyA, event.Release},
		{keySft, event.Release},
	}, sink.got())
}

func navScenario() map[string]map[event.Code]button.Button {
	return map[string]map[event.Code]button.Button{
		"base": {
			keyCaps: button.TapHold{
				Tap:     button.Emit{Code: keyEsc},
				Hold:    button.LayerOp{Layer: "nav", Mode: button.Hold},
				Timeout: 200 * time.Millisecond,
				Eager:   true,
			},
			keyH: button.Emit{Code: keyH},
		},
		"nav": {
			keyH: button.Emit{Code: keyLeft},
		},
	}
}

func TestTapHoldLayerScenario(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{Stack: mkStack(t, navScenario())})

	// Held past the timeout: nav is active and h becomes left.
	press(e, keyCaps)
	sched.fire(t, e)
	press(e, keyH)
	release(e, keyH)
	release(e, keyCaps)

	// Quick tap afterwards: esc, and h is plain again.
	press(e, keyCaps)
	release(e, keyCaps)
	press(e, keyH)
	release(e, keyH)

	assert.Equal(t, []emitted{
		{keyLeft, event.Press},
		{keyLeft, event.Release},
		{keyEsc, event.Press},
		{keyEsc, event.Release},
		{keyH, event.Press},
		{keyH, event.Release},
	}, sink.got())
	assert.Equal(t, []string{"base"}, e.stack.Active())
}

func TestEagerHoldInterruptResolvesThroughNewLayer(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{Stack: mkStack(t, navScenario())})

	// The interrupting press must see nav already active.
	press(e, keyCaps)
	press(e, keyH)
	release(e, keyH)
	release(e, keyCaps)

	assert.Equal(t, []emitted{
		{keyLeft, event.Press},
		{keyLeft, event.Release},
	}, sink.got())
}

func TestLayerHoldReleaseUsesPressTimeResolution(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {
				keyCaps: button.LayerOp{Layer: "nav", Mode: button.Hold},
				keyH:    button.Emit{Code: keyH},
			},
			"nav": {keyH: button.Emit{Code: keyLeft}},
		}),
	})

	// h pressed under nav, nav dropped, then h released: the release must
	// pair with the press-time resolution, not re-resolve as plain h.
	press(e, keyCaps)
	press(e, keyH)
	release(e, keyCaps)
	release(e, keyH)

	assert.Equal(t, []emitted{
		{keyLeft, event.Press},
		{keyLeft, event.Release},
	}, sink.got())
}

func TestLayerToggleIsInvolutive(t *testing.T) {
	e, _, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.LayerOp{Layer: "alt", Mode: button.Toggle}},
			"alt":  {},
		}),
	})

	press(e, keyA)
	release(e, keyA)
	assert.True(t, e.stack.IsActive("alt"))

	press(e, keyA)
	release(e, keyA)
	assert.False(t, e.stack.IsActive("alt"))
	assert.Equal(t, []string{"base"}, e.stack.Active())
}

func TestAroundBracketsInner(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.Around{
				Outer: button.Emit{Code: keySft},
				Inner: button.Emit{Code: keyA},
			}},
		}),
	})

	press(e, keyA)
	release(e, keyA)

	assert.Equal(t, []emitted{
		{keySft, event.Press},
		{keyA, event.Press},
		{keyA, event.Release},
		{keySft, event.Release},
	}, sink.got())
}

func multiTapBase() map[string]map[event.Code]button.Button {
	return map[string]map[event.Code]button.Button{
		"base": {keyA: button.MultiTap{Steps: []button.TapStep{
			{Action: button.Emit{Code: keyA}, Timeout: 150 * time.Millisecond},
			{Action: button.Emit{Code: keyEsc}, Timeout: 150 * time.Millisecond},
		}}},
	}
}

func TestMultiTapSingleCommitsOnTimeout(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{Stack: mkStack(t, multiTapBase())})

	press(e, keyA)
	release(e, keyA)
	assert.Empty(t, sink.got(), "multi-tap must stay silent inside the window")
	sched.fire(t, e)

	assert.Equal(t, []emitted{
		{keyA, event.Press},
		{keyA, event.Release},
	}, sink.got())
}

func TestMultiTapDoubleCommitsAtFinalPress(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{Stack: mkStack(t, multiTapBase())})

	press(e, keyA)
	release(e, keyA)
	press(e, keyA)
	assert.Equal(t, []emitted{{keyEsc, event.Press}}, sink.got(),
		"final count commits immediately at the press")
	release(e, keyA)

	assert.Equal(t, []emitted{
		{keyEsc, event.Press},
		{keyEsc, event.Release},
	}, sink.got())
	assert.Zero(t, sched.live())
}

func TestMultiTapHeldFirstTapCommitsAsHold(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{Stack: mkStack(t, multiTapBase())})

	press(e, keyA)
	sched.fire(t, e)
	assert.Equal(t, []emitted{{keyA, event.Press}}, sink.got())
	repeat(e, keyA)
	release(e, keyA)

	assert.Equal(t, []emitted{
		{keyA, event.Press},
		{keyA, event.Repeat},
		{keyA, event.Release},
	}, sink.got())
}

func TestMacroEmitsStepsInOrder(t *testing.T) {
	e, sink, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.Macro{Steps: []button.MacroStep{
				{Button: button.Emit{Code: keyQ}},
				{Button: button.Emit{Code: keyW}},
			}}},
		}),
	})

	press(e, keyA)
	release(e, keyA)

	assert.Equal(t, []emitted{
		{keyQ, event.Press},
		{keyQ, event.Release},
		{keyW, event.Press},
		{keyW, event.Release},
	}, sink.got())
}

func TestMacroDelaySuspendsWithoutBlocking(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {
				keyA: button.Macro{Steps: []button.MacroStep{
					{Button: button.Emit{Code: keyQ}},
					{Button: button.Emit{Code: keyRet}, Delay: 50 * time.Millisecond},
				}},
				keyB: button.Emit{Code: keyB},
			},
		}),
	})

	press(e, keyA)
	assert.Equal(t, []emitted{
		{keyQ, event.Press},
		{keyQ, event.Release},
	}, sink.got(), "emission suspends before the delayed step")

	// Other keys keep flowing while the macro waits.
	press(e, keyB)
	release(e, keyB)

	sched.fire(t, e)
	release(e, keyA)

	assert.Equal(t, []emitted{
		{keyQ, event.Press},
		{keyQ, event.Release},
		{keyB, event.Press},
		{keyB, event.Release},
		{keyRet, event.Press},
		{keyRet, event.Release},
	}, sink.got())
}

func TestMacroNotReentrantWhileRunning(t *testing.T) {
	e, sink, sched := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.Macro{Steps: []button.MacroStep{
				{Button: button.Emit{Code: keyQ}},
				{Button: button.Emit{Code: keyW}, Delay: 50 * time.Millisecond},
			}}},
		}),
	})

	press(e, keyA)
	release(e, keyA)
	press(e, keyA) // ignored while the first run is suspended
	sched.fire(t, e)

	assert.Equal(t, []emitted{
		{keyQ, event.Press},
		{keyQ, event.Release},
		{keyW, event.Press},
		{keyW, event.Release},
	}, sink.got())
	assert.Zero(t, sched.live(), "no second macro run scheduled")
}

func TestShellDeniedByGate(t *testing.T) {
	runner := &recordRunner{}
	e, sink, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.Shell{Command: "notify-send hi"}},
		}),
		Gate:   NewGate(false),
		Runner: runner,
	})

	press(e, keyA)
	release(e, keyA)

	assert.Empty(t, runner.cmds, "gate must deny without allow-cmd")
	assert.Empty(t, sink.got())
	assert.NoError(t, e.fatalErr, "a denial is not fatal")
}

func TestShellAllowedRuns(t *testing.T) {
	runner := &recordRunner{}
	e, _, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.Shell{Command: "notify-send hi"}},
		}),
		Gate:   NewGate(true),
		Runner: runner,
	})

	press(e, keyA)
	release(e, keyA)
	press(e, keyA)
	release(e, keyA)

	assert.Equal(t, []string{"notify-send hi", "notify-send hi"}, runner.cmds)
}

func TestShellRunnerFailureIsNotFatal(t *testing.T) {
	runner := &recordRunner{err: errors.New("spawn failed")}
	e, _, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.Shell{Command: "x"}},
		}),
		Gate:   NewGate(true),
		Runner: runner,
	})

	press(e, keyA)
	release(e, keyA)

	assert.NoError(t, e.fatalErr)
}

func TestSinkFailureIsFatal(t *testing.T) {
	sink := &recordSink{err: errors.New("device gone")}
	e, _, _ := mkEngine(t, Config{
		Stack: mkStack(t, map[string]map[event.Code]button.Button{
			"base": {keyA: button.Emit{Code: keyA}},
		}),
		Sink: sink,
	})

	press(e, keyA)

	require.Error(t, e.fatalErr)
	assert.Contains(t, e.fatalErr.Error(), "device gone")
}

func TestQueuePrefersKeyEventsOverTimers(t *testing.T) {
	q := newQueue()
	h := &TimerHandle{code: keyA}
	q.pushTimer(h)
	q.pushEvent(event.KeyEvent{Code: keyA, Transition: event.Release})

	it, ok := q.pop()
	require.True(t, ok)
	assert.False(t, it.isTimer(), "key events outrank ready timer signals")

	it, ok = q.pop()
	require.True(t, ok)
	assert.True(t, it.isTimer())
}

func TestQueueCloseDrainsEventsDiscardsTimers(t *testing.T) {
	q := newQueue()
	q.pushEvent(event.KeyEvent{Code: keyA, Transition: event.Press})
	q.pushTimer(&TimerHandle{code: keyA})
	q.close()

	it, ok := q.pop()
	require.True(t, ok)
	assert.False(t, it.isTimer())

	_, ok = q.pop()
	assert.False(t, ok)

	assert.False(t, q.pushEvent(event.KeyEvent{Code: keyA}))
}

func TestRunResolvesHoldWithRealTimers(t *testing.T) {
	sink := &recordSink{}
	e := New(Config{
		Stack:  mkStack(t, tapHoldBase(false)),
		Sink:   sink,
		Logger: testLogger(t),
	})

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	require.NoError(t, e.Push(event.KeyEvent{Code: keyCaps, Transition: event.Press}))
	time.Sleep(400 * time.Millisecond)
	require.NoError(t, e.Push(event.KeyEvent{Code: keyCaps, Transition: event.Release}))
	time.Sleep(50 * time.Millisecond)
	e.Stop()
	require.NoError(t, <-done)

	assert.Equal(t, []emitted{
		{keySft, event.Press},
		{keySft, event.Release},
	}, sink.got())

	assert.ErrorIs(t, e.Push(event.KeyEvent{Code: keyA}), ErrStopped)
}

func TestPacedSinkPreservesOrderAndDrains(t *testing.T) {
	dev := &recordSink{}
	ps := NewPacedSink(dev, 0)

	done := make(chan error, 1)
	go func() { done <- ps.Run() }()

	for i := 0; i < 10; i++ {
		tr := event.Press
		if i%2 == 1 {
			tr = event.Release
		}
		require.NoError(t, ps.Send(event.KeyEvent{Code: keyA, Transition: tr}))
	}
	ps.Close()
	require.NoError(t, <-done)

	require.Len(t, dev.got(), 10)
	for i, ev := range dev.got() {
		want := event.Press
		if i%2 == 1 {
			want = event.Release
		}
		assert.Equal(t, want, ev.tr)
	}
}
