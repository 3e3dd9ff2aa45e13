// Package watch triggers a callback once the session store has been quiet
// for a debounce window after a change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler runs after the debounce window closes. Errors are logged and the
// watcher keeps going.
type Handler func(ctx context.Context) error

// Watcher watches one directory, non-recursively.
type Watcher struct {
	dir      string
	debounce time.Duration
	handler  Handler
	match    func(name string) bool
	logger   *slog.Logger
	ready    chan struct{}
}

// New returns a Watcher for dir. match selects the base names that count as
// changes; nil matches everything.
func New(dir string, debounce time.Duration, match func(name string) bool, handler Handler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if match == nil {
		match = func(string) bool { return true }
	}
	return &Watcher{dir: dir, debounce: debounce, handler: handler, match: match, logger: logger, ready: make(chan struct{})}
}

// SessionFiles matches session files and the active sessions index.
func SessionFiles(name string) bool {
	return strings.HasSuffix(name, ".md") || name == ".current-sessions"
}

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run blocks until ctx is cancelled. Pending changes are flushed through the
// handler before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	close(w.ready)
	w.logger.Info("watching session store", "dir", w.dir, "debounce", w.debounce)

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := 0

	fire := func(ctx context.Context) {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if pending == 0 {
			return
		}
		w.logger.Debug("session store settled", "changes", pending)
		pending = 0
		if err := w.handler(ctx); err != nil {
			w.logger.Error("watch handler failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			fire(context.WithoutCancel(ctx))
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if ev.Op == fsnotify.Chmod || !w.match(filepath.Base(ev.Name)) {
				continue
			}
			pending++
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			w.logger.Warn("watch error", "error", err)
		case <-timerC:
			timer, timerC = nil, nil
			fire(ctx)
		}
	}
}
