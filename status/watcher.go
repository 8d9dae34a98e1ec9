package status

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to artifacts in one status directory. Callers
// that poll for an artifact use Wait in place of a plain sleep so they
// wake as soon as the helper's hook writes the file.
type Watcher struct {
	dir    string
	w      *fsnotify.Watcher
	logger *slog.Logger

	mu      sync.Mutex
	waiters map[string][]chan struct{}

	done chan struct{}
	once sync.Once
}

// NewWatcher starts watching dir.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w := &Watcher{
		dir:     filepath.Clean(dir),
		w:       fw,
		logger:  logger.With("component", "status"),
		waiters: map[string][]chan struct{}{},
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("artifact changed", "path", ev.Name, "op", ev.Op.String())
			w.wake(filepath.Clean(ev.Name))
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) wake(path string) {
	w.mu.Lock()
	chans := w.waiters[path]
	delete(w.waiters, path)
	w.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

// Wait blocks until path changes, d elapses or ctx is done. It returns
// ctx.Err() only when ctx ended.
func (w *Watcher) Wait(ctx context.Context, path string, d time.Duration) error {
	ch := make(chan struct{})
	path = filepath.Clean(path)

	w.mu.Lock()
	w.waiters[path] = append(w.waiters[path], ch)
	w.mu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ch:
		return nil
	case <-t.C:
	case <-w.done:
	case <-ctx.Done():
		w.forget(path, ch)
		return ctx.Err()
	}
	w.forget(path, ch)
	return nil
}

func (w *Watcher) forget(path string, ch chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	chans := w.waiters[path]
	for i, c := range chans {
		if c == ch {
			w.waiters[path] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(w.waiters[path]) == 0 {
		delete(w.waiters, path)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.w.Close()
	})
	return err
}
