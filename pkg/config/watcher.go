package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the bursts of events editors emit on save.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reloads the config file when it changes and hands each good
// version to onChange. A file that fails to load is reported to onError and
// the previous config stays in effect.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func(*Config)
	onError  func(error)

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// NewWatcher watches path. onError may be nil.
func NewWatcher(path string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		watcher:  watcher,
		path:     path,
		debounce: DefaultDebounce,
		onChange: onChange,
		onError:  onError,
		done:     make(chan struct{}),
	}, nil
}

// Start watches until ctx ends. The directory is watched rather than the
// file so editors that replace the file on save are followed.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.watcher.Close()
		return fmt.Errorf("failed to watch config file: %w", err)
	}
	log.Info("config: watching %s", w.path)
	go w.watch(ctx)
	return nil
}

// Done is closed once the watcher stopped.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()
	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			log.Debug("config: watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				log.Debug("config: %s %s", event.Op, event.Name)
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error("config: watcher error: %v", err)
		}
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Warn("config: reload failed: %v", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	log.Info("config: reloaded %s", w.path)
	w.onChange(cfg)
}
