package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/compozy/relay/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDelay coalesces the burst of events a single save produces.
const DefaultWatchDelay = 100 * time.Millisecond

// Watcher reports changes to configuration files. It watches the parent
// directory of each file so saves that replace the file by renaming a
// temporary one are seen too. Events arriving within the delay of each
// other trigger one notification.
type Watcher struct {
	fs        *fsnotify.Watcher
	log       logger.Logger
	delay     time.Duration
	mu        sync.Mutex
	files     map[string]context.Context
	dirs      map[string]int
	listeners []func()
	pending   *time.Timer
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewWatcher creates a watcher logging through the logger of ctx.
func NewWatcher(ctx context.Context, delay time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		fs:    fsw,
		log:   logger.FromContext(ctx).With("component", "config_watcher"),
		delay: delay,
		files: make(map[string]context.Context),
		dirs:  make(map[string]int),
		done:  make(chan struct{}),
	}, nil
}

// Watch reports changes of the existing file at path until ctx is done.
func (w *Watcher) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("cannot watch %s: %w", abs, err)
	}
	dir := filepath.Dir(abs)
	w.mu.Lock()
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			w.mu.Unlock()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = ctx
	w.mu.Unlock()
	go func() {
		select {
		case <-ctx.Done():
			w.forget(abs)
		case <-w.done:
		}
	}()
	w.startOnce.Do(func() { go w.run() })
	return nil
}

// OnChange registers fn to run after a watched file changed.
func (w *Watcher) OnChange(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

func (w *Watcher) forget(abs string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; !ok {
		return
	}
	delete(w.files, abs)
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return
	}
	delete(w.dirs, dir)
	if err := w.fs.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
		w.log.Debug("Failed to remove watch", "dir", dir, "error", err)
	}
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.mu.Lock()
			ctx, watched := w.files[filepath.Clean(ev.Name)]
			w.mu.Unlock()
			if watched && ctx.Err() == nil {
				w.log.Debug("Configuration file changed", "path", ev.Name)
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Error("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	if w.delay <= 0 {
		w.notify()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.delay, w.notify)
}

func (w *Watcher) notify() {
	select {
	case <-w.done:
		return
	default:
	}
	w.mu.Lock()
	listeners := append([]func(){}, w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Close stops watching. Pending notifications are dropped.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.pending != nil {
			w.pending.Stop()
		}
		w.mu.Unlock()
		if cerr := w.fs.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
	})
	return err
}
