// Package watch reports changes to a single file.
package watch

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher signals on Changes whenever the watched file is written,
// created or renamed into place. Bursts of events collapse into one pending
// signal.
type Watcher struct {
	w       *fsnotify.Watcher
	path    string
	logger  *zap.Logger
	changes chan struct{}
	errs    chan error
	done    chan struct{}
}

// New watches path. The parent directory is watched so editors that save
// by renaming a temp file over path are still seen.
func New(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		w:       fw,
		path:    abs,
		logger:  logger,
		changes: make(chan struct{}, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("file changed", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
				w.logger.Warn("dropped watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) Changes() <-chan struct{} { return w.changes }
func (w *Watcher) Errors() <-chan error     { return w.errs }
func (w *Watcher) Path() string             { return w.path }

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.w.Close()
	<-w.done
	return err
}

// Run calls fn once and then after every change until ctx is done or fn
// fails. Watcher errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.changes:
			if err := fn(); err != nil {
				return err
			}
		case err := <-w.errs:
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}
