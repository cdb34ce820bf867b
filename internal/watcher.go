package internal

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultTemplateDebounce = 250 * time.Millisecond

// TemplateWatcher regenerates the configuration when the operator edits the
// Corefile template. The parent directory is watched because editors often
// replace files by rename.
type TemplateWatcher struct {
	path     string
	server   domain.DNSServer
	debounce time.Duration
	log      *zap.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	done    chan struct{}
}

func NewTemplateWatcher(path string, server domain.DNSServer, debounce time.Duration, log *zap.Logger) *TemplateWatcher {
	if debounce <= 0 {
		debounce = defaultTemplateDebounce
	}
	return &TemplateWatcher{
		path:     filepath.Clean(path),
		server:   server,
		debounce: debounce,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (w *TemplateWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create template watcher")
	}
	err = watcher.Add(filepath.Dir(w.path))
	if err != nil {
		watcher.Close()
		return errors.Wrapf(err, "watch %v", filepath.Dir(w.path))
	}
	w.watcher = watcher
	w.log.Info("watching corefile template", zap.String("path", w.path))

	go w.run(ctx)
	return nil
}

func (w *TemplateWatcher) Stop() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *TemplateWatcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.log.Debug("template changed", zap.String("op", event.Op.String()))
				w.schedule(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("template watcher error", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

func (w *TemplateWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.log.Info("regenerating configuration after template change")
		if err := w.server.UpdateAndReload(ctx); err != nil {
			w.log.Error("regenerate configuration", zap.Error(err))
		}
	})
}
