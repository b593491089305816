package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joeychilson/strmanip/logger"
)

const (
	defaultDebounce = 200 * time.Millisecond
	debounceTick    = 50 * time.Millisecond
)

// Watcher reports changes to a fixed set of files. Rapid saves to the same
// file are collapsed into one change once the file has been quiet for the
// debounce period.
//
// Parent directories are watched rather than the files themselves so that
// editors which save by renaming a temp file are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	log      logger.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher watches paths. A debounce of zero uses the default.
func NewWatcher(paths []string, debounce time.Duration, log logger.Logger) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if log == nil {
		log = logger.Noop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		files:    make(map[string]bool, len(paths)),
		debounce: debounce,
		log:      log,
		pending:  make(map[string]time.Time),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		w.files[abs] = true

		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	return w, nil
}

// Run delivers debounced changes to onChange until ctx is cancelled.
// It closes the underlying watcher before returning.
func (w *Watcher) Run(ctx context.Context, onChange func(changed []string)) error {
	defer w.watcher.Close()

	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch error", "error", err)

		case <-ticker.C:
			if changed := w.due(time.Now()); len(changed) > 0 {
				onChange(changed)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if !w.files[name] {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	w.log.Debug("file event", "path", name, "op", event.Op.String())

	w.mu.Lock()
	w.pending[name] = time.Now()
	w.mu.Unlock()
}

// due removes and returns the pending files that have been quiet long enough.
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changed []string
	for name, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			changed = append(changed, name)
			delete(w.pending, name)
		}
	}
	slices.Sort(changed)
	return changed
}
