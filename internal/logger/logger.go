// Package logger appends structured JSON-lined lifecycle events, with
// size-based rotation and archival of the rotated files.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind enumerates the lifecycle events Clodputer records.
type Kind string

const (
	TaskEnqueued              Kind = "task_enqueued"
	TaskStarted               Kind = "task_started"
	TaskCompleted             Kind = "task_completed"
	TaskFailed                Kind = "task_failed"
	TaskTimeout               Kind = "task_timeout"
	TaskConfigError           Kind = "task_config_error"
	TaskDisabledSkipped       Kind = "task_disabled_skipped"
	TaskDeferred              Kind = "task_deferred"
	CleanupKilled             Kind = "cleanup_killed"
	CleanupOrphanSwept        Kind = "cleanup_orphan_swept"
	QueueRecoveredFromCorrupt Kind = "queue_recovered_from_corruption"
	LockAcquired              Kind = "lock_acquired"
	LockReleased              Kind = "lock_released"
	LockStaleRemoved          Kind = "lock_stale_removed"
	WatcherTriggered          Kind = "watcher_triggered"
	WatcherDebounced          Kind = "watcher_debounced"
	CronInstalled             Kind = "cron_installed"
	CronUninstalled           Kind = "cron_uninstalled"
	RetryScheduled            Kind = "retry_scheduled"
	TaskActionLog             Kind = "task_action_log"
	QueueCleared              Kind = "queue_cleared"
)

// Event is one JSON-lined log entry. Fields beyond the fixed set travel in
// Extra so the schema can grow without breaking existing readers.
type Event struct {
	Timestamp       time.Time      `json:"timestamp"`
	Event           Kind           `json:"event"`
	TaskName        string         `json:"task_name,omitempty"`
	TaskID          string         `json:"task_id,omitempty"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
	ReturnCode      *int           `json:"return_code,omitempty"`
	Status          string         `json:"status,omitempty"`
	Error           string         `json:"error,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// MaxActiveBytes is the rotation threshold: once the active log exceeds
// this size, the next write triggers a rotation first.
const MaxActiveBytes = 10 * 1024 * 1024

// DefaultKeepArchives is how many rotated archive files prune_archives
// retains.
const DefaultKeepArchives = 6

// Logger appends events to a single active JSONL file, rotating into a
// dated archive directory when the active file grows past MaxActiveBytes.
//
// No logger is a package-level singleton: callers construct one and pass
// it explicitly, keeping tests isolated (per the design note against
// module-level logging singletons).
type Logger struct {
	path       string
	archiveDir string

	mu      sync.Mutex
	onError func(error)

	// now is overridable for deterministic rotation-archive naming in tests.
	now func() time.Time
}

// New constructs a Logger writing to path, archiving rotated files into
// archiveDir. onError, if non-nil, receives write/rotation failures
// instead of the logger ever panicking or returning an error the caller
// must check on every call: a writer failure never crashes the caller.
func New(path, archiveDir string, onError func(error)) *Logger {
	if onError == nil {
		onError = func(error) {}
	}
	return &Logger{path: path, archiveDir: archiveDir, onError: onError, now: time.Now}
}

// Emit appends one event, stamping Timestamp if it is zero, rotating first
// if the active file has grown past MaxActiveBytes.
func (l *Logger) Emit(kind Kind, mutate func(*Event)) {
	e := &Event{Event: kind, Timestamp: l.now()}
	if mutate != nil {
		mutate(e)
	}
	l.emit(e)
}

func (l *Logger) emit(e *Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		l.onError(fmt.Errorf("logger: marshal event: %w", err))
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeededLocked(); err != nil {
		l.onError(fmt.Errorf("logger: rotate: %w", err))
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) //nolint:gosec // path is state-dir controlled
	if err != nil {
		l.onError(fmt.Errorf("logger: open: %w", err))
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		l.onError(fmt.Errorf("logger: write: %w", err))
		return
	}
	if err := f.Sync(); err != nil {
		l.onError(fmt.Errorf("logger: sync: %w", err))
	}
}

// RotateIfNeeded rotates the active log file into the archive directory
// if it has grown past MaxActiveBytes. Safe to call at any time.
func (l *Logger) RotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateIfNeededLocked()
}

func (l *Logger) rotateIfNeededLocked() error {
	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < MaxActiveBytes {
		return nil
	}
	return l.rotateLocked()
}

// rotateLocked performs the rotation: rename the active file into the
// archive directory under this month's name, then let the next Emit
// recreate the active file. A concurrent follower watching the active
// file sees the rename and re-opens.
func (l *Logger) rotateLocked() error {
	if err := os.MkdirAll(l.archiveDir, 0700); err != nil {
		return err
	}
	month := l.now().Format("2006-01")
	dest := filepath.Join(l.archiveDir, month+".log")

	// If this month's archive already exists (many rotations within the
	// same month), append the active file's contents onto it instead of
	// clobbering.
	if _, err := os.Stat(dest); err == nil {
		return l.appendIntoArchiveLocked(dest)
	}

	if err := os.Rename(l.path, dest); err != nil {
		return err
	}
	return l.PruneArchives(DefaultKeepArchives)
}

func (l *Logger) appendIntoArchiveLocked(dest string) error {
	src, err := os.Open(l.path) //nolint:gosec // state-dir controlled path
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	out, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) //nolint:gosec // state-dir controlled path
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	buf := make([]byte, 64*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr != nil {
			break
		}
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return os.Remove(l.path)
}

// PruneArchives removes the oldest archive files beyond keep, ordered by
// filename (archive names are YYYY-MM.log so lexical order is chronological).
func (l *Logger) PruneArchives(keep int) error {
	entries, err := os.ReadDir(l.archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return nil
	}
	// lexical sort == chronological for YYYY-MM.log names
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	toRemove := names[:len(names)-keep]
	for _, n := range toRemove {
		if err := os.Remove(filepath.Join(l.archiveDir, n)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
