package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/expipe/pkg/core"
)

// DebounceInterval coalesces bursts of events on the same document.
const DebounceInterval = 50 * time.Millisecond

// Watch reports changes to documents whose logical path matches pattern
// (doublestar syntax, "" matches everything). The channel is closed when
// ctx is done.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("watch: %w: bad pattern %q", core.ErrInvalid, pattern)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := r.recursiveAdd(watcher, r.Path); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	events := make(chan core.Event)
	w := &watchWorker{
		repo:      r,
		pattern:   pattern,
		events:    events,
		watcher:   watcher,
		debouncer: newDebouncer(DebounceInterval),
	}
	r.setWatcherActive(true)

	lifecycle.Go(ctx, w.run, lifecycle.WithErrorHandler(func(err error) {
		w.handleError(fmt.Errorf("watcher: %w", err))
	}))
	return events, nil
}

// recursiveAdd registers dir and every visible directory below it.
func (r *Repository) recursiveAdd(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// logicalPath maps a file name to the backend path of its document.
func (r *Repository) logicalPath(name string) (string, bool) {
	if !strings.HasSuffix(name, Ext) || isTempFile(name) {
		return "", false
	}
	rel, err := filepath.Rel(r.Path, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return "", false
		}
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), Ext), true
}

func (r *Repository) setWatcherActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watcherActive = active
}

type watchWorker struct {
	repo      *Repository
	pattern   string
	events    chan core.Event
	watcher   *fsnotify.Watcher
	debouncer *debouncer
}

func (w *watchWorker) logger() *slog.Logger {
	if w.repo.config.Logger != nil {
		return w.repo.config.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (w *watchWorker) handleError(err error) {
	if w.repo.config.ErrorHandler != nil {
		w.repo.config.ErrorHandler(err)
		return
	}
	w.logger().Error("watcher error", "error", err)
}

func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if w.logger().Enabled(ctx, slog.LevelDebug) {
				w.logger().Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			}
		}
	}()
	defer close(w.events)
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()

	err = w.loop(ctx)
	// Flush pending timers before the channel is closed.
	w.debouncer.stopAndWait(5 * time.Second)
	return err
}

func (w *watchWorker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.process(ctx, event)
		case werr, ok := <-w.watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.handleError(werr)
		}
	}
}

func (w *watchWorker) process(ctx context.Context, event fsnotify.Event) {
	w.logger().Debug("event received", "name", event.Name, "op", event.Op.String())

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.repo.recursiveAdd(w.watcher, event.Name); err != nil {
				w.handleError(err)
			}
			w.reconcile(ctx, event.Name)
			return
		}
	}

	var typ core.EventType
	switch {
	case event.Has(fsnotify.Create):
		typ = core.EventCreate
	case event.Has(fsnotify.Write):
		typ = core.EventModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		typ = core.EventDelete
	default:
		return
	}

	w.emit(ctx, event.Name, typ)
}

// reconcile reports documents written into a new directory before it was
// added to the watcher.
func (w *watchWorker) reconcile(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			w.emit(ctx, p, core.EventCreate)
		}
		return nil
	})
}

func (w *watchWorker) emit(ctx context.Context, name string, typ core.EventType) {
	path, ok := w.repo.logicalPath(name)
	if !ok {
		return
	}
	if w.pattern != "" {
		if match, _ := doublestar.Match(w.pattern, path); !match {
			return
		}
	}
	w.debouncer.add(core.Event{Type: typ, Path: path, Timestamp: time.Now().Unix()}, func(e core.Event) {
		// The channel may already be closed if the worker is stopping.
		defer func() { _ = recover() }()
		select {
		case w.events <- e:
		case <-ctx.Done():
		}
	})
}

// debouncer delivers the last event seen for a path once the path has been
// quiet for the interval. A create followed by writes is reported as a create.
type debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	stopped bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	event core.Event
	timer *time.Timer
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval, pending: make(map[string]*pendingEvent)}
}

func (d *debouncer) add(e core.Event, deliver func(core.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.pending[e.Path]; ok {
		if p.timer.Stop() {
			if p.event.Type == core.EventCreate && e.Type == core.EventModify {
				e.Type = core.EventCreate
			}
			p.event = e
			p.timer.Reset(d.interval)
			return
		}
	}
	d.wg.Add(1)
	p := &pendingEvent{event: e}
	p.timer = time.AfterFunc(d.interval, func() {
		defer d.wg.Done()
		d.mu.Lock()
		ev := p.event
		if d.pending[ev.Path] == p {
			delete(d.pending, ev.Path)
		}
		d.mu.Unlock()
		deliver(ev)
	})
	d.pending[e.Path] = p
}

// stopAndWait rejects new events and waits for in-flight deliveries.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for path, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
			delete(d.pending, path)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
