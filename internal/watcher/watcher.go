// Package watcher observes file_watch task triggers via fsnotify and
// enqueues debounced events.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/taskconfig"
)

// EnqueueFunc enqueues taskName with the given metadata. The watcher
// never calls enqueue directly on the queue type: that would couple this
// package to the lockfile protocol, when all it needs is "make this task
// runnable."
type EnqueueFunc func(taskName string, metadata map[string]string) error

// Watcher observes every file_watch-triggered task in cfgs, debouncing
// per (task, absolute path) and forwarding accepted events to enqueue.
type Watcher struct {
	tasks   []*taskconfig.Config
	enqueue EnqueueFunc
	log     *logger.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time

	now func() time.Time
}

// New constructs a Watcher over the file_watch-triggered subset of cfgs.
func New(cfgs []*taskconfig.Config, enqueue EnqueueFunc, log *logger.Logger) *Watcher {
	var tasks []*taskconfig.Config
	for _, c := range cfgs {
		if c.IsEnabled() && c.Trigger.Type == taskconfig.TriggerFileWatch {
			tasks = append(tasks, c)
		}
	}
	return &Watcher{tasks: tasks, enqueue: enqueue, log: log, lastSeen: map[string]time.Time{}, now: time.Now}
}

// Run observes the registered paths until ctx is cancelled or fsnotify
// reports a fatal setup error. Per-event errors from fsnotify are logged
// and do not stop observation.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	watchedDirs := map[string]bool{}
	for _, t := range w.tasks {
		dir := filepath.Dir(t.Trigger.Path)
		if watchedDirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			return err
		}
		watchedDirs[dir] = true
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Emit(logger.WatcherTriggered, func(e *logger.Event) {
				e.Error = err.Error()
				e.Extra = map[string]any{"fsnotify_error": true}
			})
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	kind := fileEventFromOp(ev.Op)
	if kind == "" {
		return
	}
	base := filepath.Base(ev.Name)
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		abs = ev.Name
	}

	for _, t := range w.tasks {
		if t.Trigger.Event != kind {
			continue
		}
		matched, err := filepath.Match(t.Trigger.Pattern, base)
		if err != nil || !matched {
			continue
		}
		if w.debounced(t.Name, abs, t.Trigger.DebounceMS) {
			w.log.Emit(logger.WatcherDebounced, func(e *logger.Event) {
				e.TaskName = t.Name
				e.Extra = map[string]any{"path": abs}
			})
			continue
		}

		ts := w.now()
		meta := map[string]string{"path": abs, "event": string(kind), "timestamp": ts.Format(time.RFC3339)}
		if err := w.enqueue(t.Name, meta); err != nil {
			w.log.Emit(logger.WatcherTriggered, func(e *logger.Event) {
				e.TaskName = t.Name
				e.Error = err.Error()
			})
			continue
		}
		w.log.Emit(logger.WatcherTriggered, func(e *logger.Event) {
			e.TaskName = t.Name
			e.Extra = map[string]any{"path": abs, "event": string(kind)}
		})
	}
}

// debounced reports whether this (task, path) pair saw an accepted event
// within the last debounceMS milliseconds, updating the last-seen
// timestamp as a side effect when the event is accepted (not debounced).
func (w *Watcher) debounced(taskName, absPath string, debounceMS int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := taskName + "\x00" + absPath
	now := w.now()
	if last, ok := w.lastSeen[key]; ok {
		if now.Sub(last) < time.Duration(debounceMS)*time.Millisecond {
			return true
		}
	}
	w.lastSeen[key] = now
	return false
}

func fileEventFromOp(op fsnotify.Op) taskconfig.FileEvent {
	switch {
	case op&fsnotify.Create != 0:
		return taskconfig.EventCreated
	case op&fsnotify.Write != 0:
		return taskconfig.EventModified
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return taskconfig.EventDeleted
	default:
		return ""
	}
}
