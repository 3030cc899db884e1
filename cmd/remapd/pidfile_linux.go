package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// pidfilePath picks /run for root and XDG_RUNTIME_DIR otherwise. Two
// daemons fighting over one keyboard grab produce maddening symptoms, so
// single-instancing is enforced with a lock, not just a stale pid check.
func pidfilePath() string {
	if os.Geteuid() == 0 {
		return "/run/remapd.pid"
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "remapd.pid")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("remapd-%d.pid", os.Getuid()))
}

// acquirePidfile takes an exclusive flock on the pidfile and writes our
// pid into it. The lock dies with the process, so crashes never leave a
// stale lock behind.
func acquirePidfile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return nil, err
	}

	return func() {
		f.Close()
		os.Remove(path)
	}, nil
}
