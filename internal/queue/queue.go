package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clodputer/clodputer/internal/statedir"
	"github.com/clodputer/clodputer/internal/taskconfig"
)

// ErrAlreadyRunning is returned by PromoteRunning when an item is already
// running.
var ErrAlreadyRunning = fmt.Errorf("an item is already running")

// CorruptionHandler is invoked whenever Open quarantines a corrupt queue
// document, so the caller can emit queue_recovered_from_corruption.
type CorruptionHandler func(quarantinePath string)

// Queue is the crash-safe, priority-aware task queue. A Queue value wraps
// the on-disk document; every mutating method persists the full document
// atomically (write-temp + fsync + rename) before returning, so the
// in-memory copy is always an invariant-preserving cache of disk, never
// the other way around.
type Queue struct {
	path string

	mu    sync.Mutex
	state State

	now func() time.Time
}

// Open loads the queue document at path. A document that fails to parse
// is quarantined (moved to a "queue.corrupt-<ts>.json" sibling) and
// replaced with an empty queue; onCorrupt, if non-nil, is told where the
// quarantined file went.
func Open(path string, onCorrupt CorruptionHandler) (*Queue, error) {
	q := &Queue{path: path, state: State{Queued: []Item{}}, now: time.Now}

	data, err := os.ReadFile(path) //nolint:gosec // state-dir controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return q, nil
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		base := strings.TrimSuffix(path, filepath.Ext(path))
		quarantine := fmt.Sprintf("%s.corrupt-%d.json", base, time.Now().UnixNano())
		if renameErr := os.Rename(path, quarantine); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, fmt.Errorf("quarantine corrupt queue: %w", renameErr)
		}
		if onCorrupt != nil {
			onCorrupt(quarantine)
		}
		if err := q.persistLocked(); err != nil {
			return nil, err
		}
		return q, nil
	}
	if st.Queued == nil {
		st.Queued = []Item{}
	}
	q.state = st
	return q, nil
}

// reloadLocked refreshes q.state from the live document. A missing file
// means another process (or a Clear) reinitialized the queue; an
// unreadable or unparseable one leaves the cached state in place, since
// corruption handling belongs to Open's quarantine path, not here. Must
// be called with q.mu held.
func (q *Queue) reloadLocked() {
	data, err := os.ReadFile(q.path) //nolint:gosec // state-dir controlled path
	if err != nil {
		if os.IsNotExist(err) {
			q.state = State{Queued: []Item{}}
		}
		return
	}
	if len(data) == 0 {
		q.state = State{Queued: []Item{}}
		return
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return
	}
	if st.Queued == nil {
		st.Queued = []Item{}
	}
	q.state = st
}

func (q *Queue) persistLocked() error {
	data, err := json.MarshalIndent(q.state, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return statedir.WriteFileAtomic(q.path, data, 0600)
}

// Snapshot returns a deep-enough copy of the current state for read-only
// display (status, queue dump).
func (q *Queue) Snapshot() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.Clone()
}

// Enqueue creates a new Item with attempt_count=0 and not_before=now(),
// persists it, and returns its ID.
//
// Unlike every other mutation, Enqueue is called from trigger processes
// (the watcher daemon, cron-invoked runs) whose Queue handle may outlive
// many executor lifetimes, so it re-reads the on-disk document before
// applying its change: a stale in-memory cache must not clobber a
// concurrent executor's promotes, completes, and fails.
func (q *Queue) Enqueue(name string, priority taskconfig.Priority, metadata map[string]string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reloadLocked()

	id := uuid.NewString()
	item := Item{
		ID:         id,
		Name:       name,
		Priority:   priority,
		EnqueuedAt: q.now(),
		NotBefore:  q.now(),
		Metadata:   metadata,
	}
	q.state.Queued = append(q.state.Queued, item)
	if err := q.persistLocked(); err != nil {
		// Roll back the in-memory append: disk write failed, so the
		// in-memory copy must not drift ahead of what's durable.
		q.state.Queued = q.state.Queued[:len(q.state.Queued)-1]
		return "", err
	}
	return id, nil
}

// Peek returns the next eligible item per priority-desc, enqueued_at-asc
// ordering, skipping items whose not_before is still in the future. It
// does not mutate the queue.
func (q *Queue) Peek() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peekLocked()
}

func (q *Queue) peekLocked() (*Item, bool) {
	now := q.now()
	candidates := make([]Item, 0, len(q.state.Queued))
	for _, it := range q.state.Queued {
		if it.NotBefore.After(now) {
			continue
		}
		candidates = append(candidates, it)
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := priorityRank(candidates[i].Priority), priorityRank(candidates[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return candidates[i].EnqueuedAt.Before(candidates[j].EnqueuedAt)
	})
	item := candidates[0]
	return &item, true
}

// priorityRank sorts "high" before "normal": lower rank dequeues first.
func priorityRank(p taskconfig.Priority) int {
	if p == taskconfig.PriorityHigh {
		return 0
	}
	return 1
}

// PromoteRunning moves the item with the given ID from queued to running,
// stamping StartedAt and PID. Fails with ErrAlreadyRunning if another item
// is already running.
func (q *Queue) PromoteRunning(id string, pid int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state.Running != nil {
		return ErrAlreadyRunning
	}

	idx := -1
	for i, it := range q.state.Queued {
		if it.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("item %s not found in queue", id)
	}

	item := q.state.Queued[idx]
	item.PID = pid
	started := q.now()
	item.StartedAt = &started

	prevQueued := q.state.Queued
	prevRunning := q.state.Running

	q.state.Queued = append(append([]Item{}, prevQueued[:idx]...), prevQueued[idx+1:]...)
	q.state.Running = &item

	if err := q.persistLocked(); err != nil {
		q.state.Queued = prevQueued
		q.state.Running = prevRunning
		return err
	}
	return nil
}

// Result describes a terminal outcome for Complete/Fail bookkeeping, kept
// deliberately minimal: the executor owns interpreting richer results,
// the queue only needs to know the item is done.
type Result struct {
	Status string
}

// Complete removes the running item with the given ID. Returns an error
// if no item with that ID is currently running.
func (q *Queue) Complete(id string, _ Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state.Running == nil || q.state.Running.ID != id {
		return fmt.Errorf("item %s is not running", id)
	}
	prevRunning := q.state.Running
	q.state.Running = nil
	if err := q.persistLocked(); err != nil {
		q.state.Running = prevRunning
		return err
	}
	return nil
}

// RetryPolicy is the subset of taskconfig.Retry the queue needs to decide
// whether and when to re-enqueue a failed item.
type RetryPolicy struct {
	Enabled             bool
	MaxAttempts         int
	Backoff             taskconfig.Backoff
	InitialDelaySeconds int
	MaxDelaySeconds     int
}

// Fail removes the item with the given ID, wherever it currently sits:
// running (the common case, after a spawned child exits) or still
// queued, for failures detected before spawn (config errors, a disabled
// task, a child process that could not be started). If
// retryable and the task's retry policy allows another attempt, the item
// is re-enqueued with attempt_count incremented and not_before set from
// the backoff schedule; otherwise the failure is terminal. Returns
// whether the item was re-enqueued.
func (q *Queue) Fail(id string, retryable bool, policy RetryPolicy) (requeued bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, fromRunning, queuedIdx, ferr := q.locateLocked(id)
	if ferr != nil {
		return false, ferr
	}

	prevRunning := q.state.Running
	prevQueued := q.state.Queued

	if fromRunning {
		q.state.Running = nil
	} else {
		q.state.Queued = append(append([]Item{}, q.state.Queued[:queuedIdx]...), q.state.Queued[queuedIdx+1:]...)
	}

	shouldRetry := retryable && policy.Enabled && item.AttemptCount+1 < policy.MaxAttempts
	if shouldRetry {
		item.AttemptCount++
		delay := Backoff(policy, item.AttemptCount)
		item.NotBefore = q.now().Add(delay)
		item.PID = 0
		item.StartedAt = nil
		q.state.Queued = append(q.state.Queued, item)
	}

	if err := q.persistLocked(); err != nil {
		q.state.Running = prevRunning
		q.state.Queued = prevQueued
		return false, err
	}
	return shouldRetry, nil
}

// Defer pushes back a still-queued item's not_before without consuming a
// retry attempt, used by the executor's resource gate: the item has been
// peeked but not yet promoted to running.
func (q *Queue) Defer(id string, notBefore time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.state.Queued {
		if q.state.Queued[i].ID == id {
			prev := q.state.Queued[i].NotBefore
			q.state.Queued[i].NotBefore = notBefore
			if err := q.persistLocked(); err != nil {
				q.state.Queued[i].NotBefore = prev
				return err
			}
			return nil
		}
	}
	return fmt.Errorf("item %s not found in queue", id)
}

// locateLocked finds id in running or queued state. Must be called with
// q.mu held.
func (q *Queue) locateLocked(id string) (item Item, fromRunning bool, queuedIdx int, err error) {
	if q.state.Running != nil && q.state.Running.ID == id {
		return *q.state.Running, true, -1, nil
	}
	for i, it := range q.state.Queued {
		if it.ID == id {
			return it, false, i, nil
		}
	}
	return Item{}, false, -1, fmt.Errorf("item %s not found", id)
}

// Clear removes every queued item. Running is untouched: clear affects
// only queued work, never an in-flight execution.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	prev := q.state.Queued
	q.state.Queued = []Item{}
	if err := q.persistLocked(); err != nil {
		q.state.Queued = prev
		return err
	}
	return nil
}
