package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clodputer/clodputer/internal/taskconfig"
)

func TestEnqueuePeekOrdering(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(filepath.Join(dir, "queue.json"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	q.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	id1, _ := q.Enqueue("first-normal", taskconfig.PriorityNormal, nil)
	_, _ = q.Enqueue("second-normal", taskconfig.PriorityNormal, nil)
	id3, _ := q.Enqueue("third-high", taskconfig.PriorityHigh, nil)

	item, ok := q.Peek()
	if !ok {
		t.Fatal("expected an eligible item")
	}
	if item.ID != id3 {
		t.Errorf("Peek() = %q, want high-priority item %q", item.ID, id3)
	}

	if err := q.PromoteRunning(id3, 4242); err != nil {
		t.Fatalf("PromoteRunning: %v", err)
	}
	if err := q.Complete(id3, Result{Status: "success"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	item, ok = q.Peek()
	if !ok || item.ID != id1 {
		t.Errorf("Peek() after high completes = %+v, want first-normal FIFO", item)
	}
}

func TestNotBeforeSkipped(t *testing.T) {
	dir := t.TempDir()
	q, _ := Open(filepath.Join(dir, "queue.json"), nil)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, _ := q.Enqueue("future", taskconfig.PriorityNormal, nil)

	q.mu.Lock()
	for i := range q.state.Queued {
		if q.state.Queued[i].ID == id {
			q.state.Queued[i].NotBefore = now.Add(time.Hour)
		}
	}
	q.mu.Unlock()

	if _, ok := q.Peek(); ok {
		t.Error("expected no eligible item while not_before is in the future")
	}

	q.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, ok := q.Peek(); !ok {
		t.Error("expected item to become eligible after not_before passes")
	}
}

func TestPromoteRunningAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	q, _ := Open(filepath.Join(dir, "queue.json"), nil)

	id1, _ := q.Enqueue("a", taskconfig.PriorityNormal, nil)
	id2, _ := q.Enqueue("b", taskconfig.PriorityNormal, nil)

	if err := q.PromoteRunning(id1, 1); err != nil {
		t.Fatalf("PromoteRunning: %v", err)
	}
	if err := q.PromoteRunning(id2, 2); err != ErrAlreadyRunning {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestFailRetriesThenTerminal(t *testing.T) {
	dir := t.TempDir()
	q, _ := Open(filepath.Join(dir, "queue.json"), nil)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, _ := q.Enqueue("flaky", taskconfig.PriorityNormal, nil)
	policy := RetryPolicy{Enabled: true, MaxAttempts: 2, Backoff: taskconfig.BackoffFixed, InitialDelaySeconds: 1}

	if err := q.PromoteRunning(id, 1); err != nil {
		t.Fatal(err)
	}
	requeued, err := q.Fail(id, true, policy)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if !requeued {
		t.Fatal("expected first failure to be retried (attempt 1 < max 2)")
	}

	// The retry is scheduled one second out (fixed backoff); move the
	// clock past it so the item is eligible again.
	q.now = func() time.Time { return now.Add(2 * time.Second) }

	item, ok := q.Peek()
	if !ok {
		t.Fatal("expected retried item back in queue")
	}
	if item.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", item.AttemptCount)
	}

	if err := q.PromoteRunning(item.ID, 1); err != nil {
		t.Fatal(err)
	}
	requeued, err = q.Fail(item.ID, true, policy)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if requeued {
		t.Fatal("expected second failure to be terminal (attempt 2 >= max 2)")
	}

	if _, ok := q.Peek(); ok {
		t.Error("expected queue empty after terminal failure")
	}
	snap := q.Snapshot()
	if snap.Running != nil {
		t.Error("expected nothing running after terminal failure")
	}
}

func TestClearOnlyAffectsQueued(t *testing.T) {
	dir := t.TempDir()
	q, _ := Open(filepath.Join(dir, "queue.json"), nil)

	runningID, _ := q.Enqueue("running-task", taskconfig.PriorityNormal, nil)
	_, _ = q.Enqueue("queued-task", taskconfig.PriorityNormal, nil)
	if err := q.PromoteRunning(runningID, 1); err != nil {
		t.Fatal(err)
	}

	if err := q.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	snap := q.Snapshot()
	if snap.Running == nil || snap.Running.ID != runningID {
		t.Error("Clear removed the running item; should only affect queued")
	}
	if len(snap.Queued) != 0 {
		t.Errorf("len(Queued) = %d, want 0 after Clear", len(snap.Queued))
	}
}

func TestOpenRecoversFromCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}

	var quarantined string
	q, err := Open(path, func(p string) { quarantined = p })
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if quarantined == "" {
		t.Error("expected onCorrupt callback to fire")
	}
	if _, err := os.Stat(quarantined); err != nil {
		t.Errorf("expected quarantine file to exist: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recovered queue: %v", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("recovered queue is not valid JSON: %v", err)
	}
	if st.Running != nil || len(st.Queued) != 0 {
		t.Errorf("recovered state = %+v, want empty", st)
	}
	if _, ok := q.Peek(); ok {
		t.Error("expected empty queue after recovery")
	}
}

func TestFailOnQueuedItemBeforePromotion(t *testing.T) {
	dir := t.TempDir()
	q, _ := Open(filepath.Join(dir, "queue.json"), nil)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, _ := q.Enqueue("bad-config", taskconfig.PriorityNormal, nil)
	policy := RetryPolicy{Enabled: true, MaxAttempts: 3, Backoff: taskconfig.BackoffFixed, InitialDelaySeconds: 1}

	// Config validation failure happens before the item is ever promoted
	// to running, so Fail must find it in Queued.
	requeued, err := q.Fail(id, false, policy)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if requeued {
		t.Fatal("expected non-retryable failure to be terminal")
	}
	if _, ok := q.Peek(); ok {
		t.Error("expected queue empty after terminal config-error failure")
	}

	id2, _ := q.Enqueue("transient", taskconfig.PriorityNormal, nil)
	requeued, err = q.Fail(id2, true, policy)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if !requeued {
		t.Fatal("expected retryable queued-item failure to be requeued")
	}
	// The retry is scheduled one second out (fixed backoff); move the
	// clock past it so the item is eligible again.
	q.now = func() time.Time { return now.Add(2 * time.Second) }
	item, ok := q.Peek()
	if !ok || item.ID != id2 {
		t.Fatal("expected requeued item back in queue")
	}
	if item.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", item.AttemptCount)
	}
}

func TestDeferPushesBackNotBeforeWithoutAttempt(t *testing.T) {
	dir := t.TempDir()
	q, _ := Open(filepath.Join(dir, "queue.json"), nil)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, _ := q.Enqueue("resource-heavy", taskconfig.PriorityNormal, nil)

	if _, ok := q.Peek(); !ok {
		t.Fatal("expected item eligible before defer")
	}

	deferredUntil := now.Add(30 * time.Second)
	if err := q.Defer(id, deferredUntil); err != nil {
		t.Fatalf("Defer: %v", err)
	}

	if _, ok := q.Peek(); ok {
		t.Error("expected item ineligible immediately after defer")
	}

	q.now = func() time.Time { return deferredUntil.Add(time.Second) }
	item, ok := q.Peek()
	if !ok || item.ID != id {
		t.Fatal("expected item eligible again once not_before passes")
	}
	if item.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0 (defer must not consume an attempt)", item.AttemptCount)
	}
}

// TestEnqueueReloadsOnDiskStateAcrossHandles simulates the watcher daemon
// holding one Queue handle while a separate executor process (its own
// Open against the same path) runs an item to completion. The daemon's
// next Enqueue must build on the executor's persisted state, not
// resurrect the completed item from its own stale cache.
func TestEnqueueReloadsOnDiskStateAcrossHandles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")

	watcherQ, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open (watcher handle): %v", err)
	}
	execQ, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open (executor handle): %v", err)
	}

	id, err := execQ.Enqueue("done-elsewhere", taskconfig.PriorityNormal, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := execQ.PromoteRunning(id, 1); err != nil {
		t.Fatal(err)
	}
	if err := execQ.Complete(id, Result{Status: "success"}); err != nil {
		t.Fatal(err)
	}

	newID, err := watcherQ.Enqueue("fresh", taskconfig.PriorityNormal, nil)
	if err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	snap := reopened.Snapshot()
	if snap.Running != nil {
		t.Errorf("Running = %+v, want nil (completed item must stay gone)", snap.Running)
	}
	if len(snap.Queued) != 1 {
		t.Fatalf("len(Queued) = %d, want only the fresh item: %+v", len(snap.Queued), snap.Queued)
	}
	if snap.Queued[0].ID != newID {
		t.Errorf("Queued[0].ID = %q, want %q", snap.Queued[0].ID, newID)
	}
}

func TestUniqueIDsAcrossRunningAndQueued(t *testing.T) {
	dir := t.TempDir()
	q, _ := Open(filepath.Join(dir, "queue.json"), nil)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id, err := q.Enqueue("t", taskconfig.PriorityNormal, nil)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
