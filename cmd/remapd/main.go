// remapd - Keyboard remapping daemon
//
// remapd exclusively grabs a physical keyboard, reinterprets its events
// through a user-defined keymap (layers, tap-hold, multi-tap, compose
// sequences, macros), and re-emits the result on a virtual uinput
// keyboard.
//
//	remapd [flags] CONFIG.toml
//
// Exit codes: 0 clean shutdown or successful dry run, 1 fatal runtime or
// device error, 2 usage or configuration error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"remapd/internal/config"
	"remapd/internal/device"
	"remapd/internal/engine"
	"remapd/internal/keymap"
	"remapd/internal/logging"
	"remapd/internal/power"
)

// version is stamped by the build.
var version = "dev"

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run())
}

// flagSet carries the parsed command line; values only apply when the
// flag was actually given, so the config file keeps its say otherwise.
type flagSet struct {
	fs *flag.FlagSet

	dryRun         bool
	showVersion    bool
	logLevel       string
	startDelay     int
	allowCmd       bool
	fallthroughOn  bool
	cmpSeq         string
	cmpSeqDelay    int
	keySeqDelay    int
	implicitAround string
	output         string
	input          string
}

func parseFlags(args []string) *flagSet {
	f := &flagSet{fs: flag.NewFlagSet("remapd", flag.ExitOnError)}
	f.fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: remapd [flags] CONFIG.toml")
		f.fs.PrintDefaults()
	}

	f.fs.BoolVar(&f.dryRun, "dry-run", false, "validate the configuration and exit")
	f.fs.BoolVar(&f.showVersion, "version", false, "print version and exit")
	f.fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.fs.IntVar(&f.startDelay, "start-delay", 0, "milliseconds to wait before grabbing the keyboard")
	f.fs.BoolVar(&f.allowCmd, "allow-cmd", false, "permit (cmd ...) buttons to spawn shell commands")
	f.fs.BoolVar(&f.fallthroughOn, "fallthrough", false, "re-emit unmapped events instead of consuming them")
	f.fs.StringVar(&f.cmpSeq, "cmp-seq", "", "key name acting as the compose trigger")
	f.fs.IntVar(&f.cmpSeqDelay, "cmp-seq-delay", 0, "compose per-key timeout in milliseconds")
	f.fs.IntVar(&f.keySeqDelay, "key-seq-delay", 0, "minimum delay between emitted events in milliseconds")
	f.fs.StringVar(&f.implicitAround, "implicit-around", "", "shorthand modifier expansion: around or disabled")
	f.fs.StringVar(&f.output, "output", "", "output token: uinput, uinput:NAME, or log")
	f.fs.StringVar(&f.input, "input", "", "input token: evdev or evdev:PATH")

	f.fs.Parse(args)
	return f
}

// apply overrides the [daemon] section with every flag the user actually
// passed. The flag wins over the file; unset flags leave the file alone.
func (f *flagSet) apply(cfg *config.Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "log-level":
			cfg.Daemon.LogLevel = f.logLevel
		case "start-delay":
			cfg.Daemon.StartDelayMs = f.startDelay
		case "allow-cmd":
			cfg.Daemon.AllowCmd = f.allowCmd
		case "fallthrough":
			cfg.Daemon.Fallthrough = f.fallthroughOn
		case "cmp-seq":
			cfg.Daemon.CmpSeq = f.cmpSeq
		case "cmp-seq-delay":
			cfg.Daemon.CmpSeqDelayMs = f.cmpSeqDelay
		case "key-seq-delay":
			cfg.Daemon.KeySeqDelayMs = f.keySeqDelay
		case "implicit-around":
			cfg.Daemon.ImplicitAround = f.implicitAround
		case "output":
			cfg.Daemon.Output = f.output
		case "input":
			cfg.Daemon.Input = f.input
		}
	})
}

func run() int {
	f := parseFlags(os.Args[1:])

	if f.showVersion {
		fmt.Printf("remapd %s\n", version)
		return exitOK
	}

	if f.fs.NArg() != 1 {
		f.fs.Usage()
		return exitConfig
	}
	configPath := f.fs.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remapd: %v\n", err)
		return exitConfig
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "remapd: %v\n", err)
		return exitConfig
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remapd: logging: %v\n", err)
		return exitConfig
	}
	defer log.Close()
	logging.SetDefault(log)
	logging.SetLogKeys(cfg.Daemon.LogKeys)

	compiled, err := keymap.Compile(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remapd: %v\n", err)
		return exitConfig
	}

	if f.dryRun {
		fmt.Printf("configuration ok: %d layers, %d compose sequences\n",
			len(compiled.Layers), len(compiled.Compose))
		return exitOK
	}

	if err := daemon(cfg, compiled, log); err != nil {
		log.Error("fatal", "error", err)
		return exitRuntime
	}
	return exitOK
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Daemon.LogLevel)
	if err != nil {
		return nil, err
	}
	format := logging.FormatText
	if cfg.Daemon.LogFormat == "json" {
		format = logging.FormatJSON
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Daemon.LogOutput
	if cfg.Daemon.LogFile != "" {
		lc.FilePath = cfg.Daemon.LogFile
	}
	return logging.New(lc)
}

// daemon is the long-running half: devices, engine, suspend handling,
// reconnection. It returns nil on a signal-driven shutdown.
func daemon(cfg *config.Config, compiled *keymap.Compiled, log *logging.Logger) error {
	stack, err := compiled.Stack()
	if err != nil {
		return err
	}

	release, err := acquirePidfile(pidfilePath())
	if err != nil {
		return fmt.Errorf("another remapd instance is running: %w", err)
	}
	defer release()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out, err := device.OpenSink(cfg.Daemon.Output, log.WithComponent("device"))
	if err != nil {
		return err
	}
	defer out.Close()

	paced := engine.NewPacedSink(out, cfg.KeySeqDelay())
	pacedDone := make(chan error, 1)
	go func() { pacedDone <- paced.Run() }()

	composeTable := make([]engine.ComposeEntry, 0, len(compiled.Compose))
	for _, ent := range compiled.Compose {
		composeTable = append(composeTable, engine.ComposeEntry{
			Sequence: ent.Sequence,
			Out:      ent.Out,
		})
	}

	eng := engine.New(engine.Config{
		Stack:        stack,
		Compose:      composeTable,
		ComposeDelay: cfg.CmpSeqDelay(),
		Fallthrough:  cfg.Daemon.Fallthrough,
		Gate:         engine.NewGate(cfg.Daemon.AllowCmd),
		Sink:         paced,
		Runner:       engine.NewExecRunner(log.WithComponent("cmd")),
		Logger:       log.WithComponent("engine"),
	})
	engDone := make(chan error, 1)
	go func() { engDone <- eng.Run() }()

	// The start delay lets the Enter release that launched us reach the
	// application it was typed into, not the grab.
	if d := cfg.StartDelay(); d > 0 {
		log.Debug("delaying device grab", "delay", d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			eng.Stop()
			paced.Close()
			return nil
		}
	}

	holder := &sourceHolder{}
	src, err := device.OpenSource(cfg.Daemon.Input, log.WithComponent("device"))
	if err != nil {
		eng.Stop()
		paced.Close()
		return err
	}
	holder.set(src)
	log.Info("remapping active", "input", src.Path(), "version", version)

	go power.NewMonitor(log.WithComponent("power"),
		func() { holder.pause() },
		func() { holder.resume() },
	).Run(ctx)

	pumpDone := make(chan error, 1)
	go func() { pumpDone <- pump(ctx, cfg, holder, eng, log) }()

	var fatal error
	engExited := false
	select {
	case <-ctx.Done():
	case fatal = <-engDone:
		engExited = true
		cancel()
	case fatal = <-pumpDone:
		cancel()
	case fatal = <-pacedDone:
		cancel()
	}

	holder.close()
	eng.Stop()
	if !engExited {
		if err := <-engDone; err != nil && fatal == nil {
			fatal = err
		}
	}
	paced.Close()
	out.Close()
	log.Info("shutdown complete")
	return fatal
}

// pump feeds the engine from the current source, reopening the device
// when it disappears. A keyboard unplug is survivable; only a failed
// reopen after reconnection is fatal.
func pump(ctx context.Context, cfg *config.Config, holder *sourceHolder, eng *engine.Engine, log *logging.Logger) error {
	for {
		src := holder.get()
		if src == nil {
			return nil
		}
		err := src.Run(ctx, eng.Push)
		if ctx.Err() != nil || err == nil {
			return nil
		}

		log.Warn("input device lost", "path", src.Path(), "error", err)
		path := src.Path()
		src.Close()

		if err := device.AwaitDevice(ctx, cfg.Daemon.Input, path, log); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		src, err = device.OpenSource(cfg.Daemon.Input, log)
		if err != nil {
			return fmt.Errorf("reopen input device: %w", err)
		}
		holder.set(src)
		log.Info("input device reacquired", "path", src.Path())
	}
}

// sourceHolder tracks the live source across reconnects so suspend
// callbacks always reach the current device.
type sourceHolder struct {
	mu  sync.Mutex
	src device.Source
}

func (h *sourceHolder) set(s device.Source) {
	h.mu.Lock()
	h.src = s
	h.mu.Unlock()
}

func (h *sourceHolder) get() device.Source {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.src
}

func (h *sourceHolder) pause() {
	if s := h.get(); s != nil {
		if err := s.Pause(); err != nil {
			logging.Warn("pause failed", "error", err)
		}
	}
}

func (h *sourceHolder) resume() {
	if s := h.get(); s != nil {
		if err := s.Resume(); err != nil {
			logging.Warn("resume failed", "error", err)
		}
	}
}

func (h *sourceHolder) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.src != nil {
		h.src.Close()
		h.src = nil
	}
}
