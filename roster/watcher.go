package roster

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce absorbs the write+rename bursts editors and
// provisioning tools produce when replacing a file.
const defaultDebounce = 250 * time.Millisecond

// Watcher re-loads the roster file when it changes and delivers the new
// seed set. Watching covers the parent directory because most writers
// replace the file rather than update it in place.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	events chan Seed

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewWatcher builds a watcher for the roster at path.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		debounce: defaultDebounce,
		logger:   logger,
		fsw:      fsw,
		events:   make(chan Seed, 4),
	}, nil
}

// Events returns the channel of reloaded seeds.
func (w *Watcher) Events() <-chan Seed {
	return w.events
}

// Start begins watching the roster file's directory.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	go w.loop(subCtx)
	w.logger.Info("roster watcher started", "path", w.path)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.events)

	var timer *time.Timer
	var timerC <-chan time.Time

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("roster watch error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	seed, err := Load(w.path)
	if err != nil {
		// Keep the previous roster; a half-written file shows up here.
		w.logger.Warn("roster reload failed", "path", w.path, "error", err)
		return
	}
	select {
	case w.events <- *seed:
		w.logger.Info("roster reloaded", "people", len(seed.People), "equipment", len(seed.Equipment))
	case <-ctx.Done():
	}
}

// Stop cancels watching and releases the underlying notifier.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	w.running = false
	if err := w.fsw.Close(); err != nil {
		w.logger.Debug("close watcher", "error", err)
	}
}
