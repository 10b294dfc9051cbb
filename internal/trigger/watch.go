package trigger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/yungbote/ragdesk-backend/internal/objectstore"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

const (
	LocalEventType = "local.storage.object.finalized"
	watchDebounce  = 750 * time.Millisecond
)

// EventHandler receives one event per settled file.
type EventHandler func(ctx context.Context, ev StorageEvent)

// Watcher turns PDF writes in a local directory into storage events. Writes
// to the same file are debounced so a copy in progress yields one event.
type Watcher struct {
	log      *logger.Logger
	dir      string
	handle   EventHandler
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

func NewWatcher(log *logger.Logger, dir string, handle EventHandler) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		log:      log.With("service", "DirectoryWatcher", "dir", dir),
		dir:      dir,
		handle:   handle,
		debounce: watchDebounce,
		fsw:      fsw,
		timers:   map[string]*time.Timer{},
	}, nil
}

// Run blocks until ctx is cancelled, then waits for in-flight handlers.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("watching for pdfs")
	defer func() {
		_ = w.fsw.Close()
		w.mu.Lock()
		w.closed = true
		for _, t := range w.timers {
			t.Stop()
		}
		w.mu.Unlock()
		w.wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.onEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) onEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if !objectstore.IsPDF(ev.Name) {
		return
	}
	path := ev.Name
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()
		if ctx.Err() != nil {
			return
		}
		w.fire(ctx, path)
	})
}

func (w *Watcher) fire(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	w.handle(ctx, StorageEvent{
		ID:      uuid.NewString(),
		Type:    LocalEventType,
		Bucket:  w.dir,
		Name:    filepath.ToSlash(rel),
		Updated: info.ModTime().UTC().Format(time.RFC3339),
	})
}
