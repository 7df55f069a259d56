// Package watcher reports statement files as they land in an inbox directory.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/scanner"
)

// DefaultSettle is how long a file must go without writes before it is reported.
const DefaultSettle = 500 * time.Millisecond

const minTick = time.Millisecond

// Event is a settled statement file, or a watcher error.
type Event struct {
	Path  string
	Error error // nil for normal events, non-nil for fsnotify errors
}

// InboxWatcher watches a single directory (not recursively) using fsnotify.
// Files are reported once writes to them have stopped for the settle period,
// so partially copied downloads are not picked up.
type InboxWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	settle  time.Duration
	events  chan Event
	done    chan struct{}
	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a watcher on dir. The directory is created if missing.
func New(dir string, settle time.Duration) (*InboxWatcher, error) {
	if settle <= 0 {
		settle = DefaultSettle
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory %s: %w", dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch inbox directory %s: %w", dir, err)
	}

	return &InboxWatcher{
		watcher: fw,
		dir:     dir,
		settle:  settle,
		events:  make(chan Event, 100),
		done:    make(chan struct{}),
	}, nil
}

// Dir returns the watched directory.
func (w *InboxWatcher) Dir() string {
	return w.dir
}

// Start begins watching and returns the event channel. Subsequent calls
// return the same channel. The channel is closed when the watcher stops.
func (w *InboxWatcher) Start() <-chan Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started && !w.closed {
		w.started = true
		go w.watch()
	}
	return w.events
}

func (w *InboxWatcher) watch() {
	defer close(w.events)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(tickInterval(w.settle))
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !scanner.IsStatementFile(ev.Name) {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
				pending[ev.Name] = time.Now()
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				delete(pending, ev.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if !w.send(Event{Error: err}) {
				return
			}

		case now := <-ticker.C:
			for _, path := range settled(pending, now, w.settle) {
				delete(pending, path)
				if !w.send(Event{Path: path}) {
					return
				}
			}
		}
	}
}

// tickInterval is how often pending files are checked for settle.
func tickInterval(settle time.Duration) time.Duration {
	return max(settle/2, minTick)
}

// send delivers ev unless the watcher is closing.
func (w *InboxWatcher) send(ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.done:
		return false
	}
}

// settled returns the pending paths idle for at least d, oldest first.
func settled(pending map[string]time.Time, now time.Time, d time.Duration) []string {
	var paths []string
	for path, last := range pending {
		if now.Sub(last) >= d {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		if !pending[paths[i]].Equal(pending[paths[j]]) {
			return pending[paths[i]].Before(pending[paths[j]])
		}
		return paths[i] < paths[j]
	})
	return paths
}

// Close stops the watcher and releases resources. It is safe to call twice.
func (w *InboxWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	if !w.started {
		close(w.events)
	}
	return w.watcher.Close()
}

// Archive moves a handled file into the named subdirectory of its inbox,
// for example "processed" or "failed". The subdirectory is not watched.
func Archive(path, subdir string) (string, error) {
	dest := filepath.Join(filepath.Dir(path), subdir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	target := filepath.Join(dest, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		target = fmt.Sprintf("%s-%d%s", target[:len(target)-len(ext)], time.Now().UnixNano(), ext)
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", path, err)
	}
	return target, nil
}
