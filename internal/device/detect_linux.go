package device

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// DetectKeyboard returns the event node of the first device that looks
// like a real keyboard. Detection runs in two passes: the /dev/input/by-id
// symlinks the kernel creates for physical keyboards, then every handler
// from /proc/bus/input/devices, confirmed by probing the device's EV_KEY
// capabilities so mice with a few buttons do not qualify.
func DetectKeyboard() (string, error) {
	for _, path := range keyboardCandidates() {
		if isKeyboard(path) {
			return path, nil
		}
	}
	return "", ErrNoKeyboard
}

func keyboardCandidates() []string {
	var paths []string

	byID, _ := filepath.Glob("/dev/input/by-id/*-kbd")
	for _, link := range byID {
		if resolved, err := filepath.EvalSymlinks(link); err == nil {
			paths = append(paths, resolved)
		}
	}

	if f, err := os.Open("/proc/bus/input/devices"); err == nil {
		paths = append(paths, scanProcDevices(f)...)
		f.Close()
	}

	return paths
}

// scanProcDevices extracts the event handler of every block in
// /proc/bus/input/devices that advertises key capabilities.
func scanProcDevices(r io.Reader) []string {
	var (
		devices []string
		handler string
		hasKeys bool
	)

	flush := func() {
		if hasKeys && handler != "" {
			devices = append(devices, handler)
		}
		handler = ""
		hasKeys = false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					handler = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			// A long key bitmap means a real key matrix, not a power
			// button or a mouse with extras.
			hasKeys = len(strings.TrimPrefix(line, "B: KEY=")) > 16
		case line == "":
			flush()
		}
	}
	flush()
	return devices
}

// isKeyboard probes path for the letter and enter keys, the minimal
// capability set every keyboard has.
func isKeyboard(path string) bool {
	dev, err := evdev.Open(path)
	if err != nil {
		return false
	}
	defer dev.Close()

	hasA, hasEnter := false, false
	for _, c := range dev.CapableEvents(evdev.EV_KEY) {
		switch c {
		case evdev.KEY_A:
			hasA = true
		case evdev.KEY_ENTER:
			hasEnter = true
		}
	}
	return hasA && hasEnter
}
