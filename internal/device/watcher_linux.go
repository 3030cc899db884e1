package device

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"remapd/internal/logging"
)

// detectKeyboard is swappable for tests.
var detectKeyboard = DetectKeyboard

// AwaitDevice blocks until a usable input device exists again, watching
// the directory of the lost node for creation. With a fixed token
// ("evdev:/dev/input/event3") only that exact node satisfies the wait;
// with auto-detect ("evdev") any new event node triggers a fresh
// keyboard scan, so a keyboard that re-enumerates under a different
// number after replugging is still found. Used after a keyboard
// disappears (unplug, firmware reset) so the daemon can re-grab instead
// of dying.
func AwaitDevice(ctx context.Context, token, path string, log *logging.Logger) error {
	_, fixed := splitToken(token)
	auto := fixed == ""

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	// The node may have come back between the failure and the watch.
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if auto {
		if _, err := detectKeyboard(); err == nil {
			return nil
		}
	}

	log.Info("waiting for device to return", "path", path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			if ev.Name == path {
				return nil
			}
			if auto && strings.HasPrefix(filepath.Base(ev.Name), "event") {
				if found, err := detectKeyboard(); err == nil {
					log.Info("replacement keyboard detected", "path", found)
					return nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("device watcher error", "error", err)
		}
	}
}
