package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clodputer/clodputer/internal/statedir"
)

func withTempState(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(statedir.EnvStateDir, dir)
	return dir
}

func writeTask(t *testing.T, root, name, body string) {
	t.Helper()
	tasksDir := filepath.Join(root, "tasks")
	if err := os.MkdirAll(tasksDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tasksDir, name+".yaml"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCmdList_NoTasks(t *testing.T) {
	withTempState(t)
	if code := cmdList(nil); code != ExitOK {
		t.Fatalf("cmdList = %d, want %d", code, ExitOK)
	}
}

func TestCmdList_WithInvalidTaskReportsError(t *testing.T) {
	root := withTempState(t)
	writeTask(t, root, "broken", "not: [valid")
	if code := cmdList(nil); code != ExitError {
		t.Fatalf("cmdList = %d, want %d", code, ExitError)
	}
}

func TestCmdRun_UnknownTaskFails(t *testing.T) {
	withTempState(t)
	if code := cmdRun([]string{"does-not-exist", "--enqueue-only"}); code != ExitError {
		t.Fatalf("cmdRun = %d, want %d", code, ExitError)
	}
}

func TestCmdRun_EnqueueOnly(t *testing.T) {
	root := withTempState(t)
	writeTask(t, root, "greet", `
name: greet
trigger:
  type: manual
task:
  prompt: "say hi"
`)
	if code := cmdRun([]string{"--enqueue-only", "greet"}); code != ExitOK {
		t.Fatalf("cmdRun = %d, want %d", code, ExitOK)
	}

	if code := cmdQueue(nil); code != ExitOK {
		t.Fatalf("cmdQueue = %d, want %d", code, ExitOK)
	}
}

func TestCmdRun_InvalidPriorityIsUsageError(t *testing.T) {
	withTempState(t)
	if code := cmdRun([]string{"--priority", "urgent", "--enqueue-only", "greet"}); code != ExitUsage {
		t.Fatalf("cmdRun = %d, want %d", code, ExitUsage)
	}
}

func TestCmdQueue_Clear(t *testing.T) {
	root := withTempState(t)
	writeTask(t, root, "greet", `
name: greet
trigger:
  type: manual
task:
  prompt: "say hi"
`)
	if code := cmdRun([]string{"--enqueue-only", "greet"}); code != ExitOK {
		t.Fatalf("cmdRun = %d", code)
	}
	if code := cmdQueue([]string{"--clear"}); code != ExitOK {
		t.Fatalf("cmdQueue --clear = %d, want %d", code, ExitOK)
	}

	e, err := newEnv()
	if err != nil {
		t.Fatal(err)
	}
	q, err := e.openQueue()
	if err != nil {
		t.Fatal(err)
	}
	snap := q.Snapshot()
	if len(snap.Queued) != 0 {
		t.Errorf("expected empty queue after clear, got %d items", len(snap.Queued))
	}
}

func TestCmdDoctor_RunsWithoutPanicking(t *testing.T) {
	withTempState(t)
	code := cmdDoctor([]string{"--json"})
	if code != ExitOK && code != ExitError {
		t.Fatalf("cmdDoctor returned unexpected code %d", code)
	}
}

func TestCmdSchedulePreview_RejectsNonCronTask(t *testing.T) {
	root := withTempState(t)
	writeTask(t, root, "greet", `
name: greet
trigger:
  type: manual
task:
  prompt: "say hi"
`)
	if code := cmdSchedulePreview([]string{"greet"}); code != ExitError {
		t.Fatalf("cmdSchedulePreview = %d, want %d", code, ExitError)
	}
}

func TestCmdSchedulePreview_CronTask(t *testing.T) {
	root := withTempState(t)
	writeTask(t, root, "nightly", `
name: nightly
trigger:
  type: cron
  expression: "@daily"
task:
  prompt: "run the nightly job"
`)
	if code := cmdSchedulePreview([]string{"--count", "3", "nightly"}); code != ExitOK {
		t.Fatalf("cmdSchedulePreview = %d, want %d", code, ExitOK)
	}
}

func TestCmdStatus_EmptyQueue(t *testing.T) {
	withTempState(t)
	if code := cmdStatus(nil); code != ExitOK {
		t.Fatalf("cmdStatus = %d, want %d", code, ExitOK)
	}
}

func TestCmdInit_CreatesLayoutAndMarker(t *testing.T) {
	root := withTempState(t)
	if code := cmdInit(nil); code != ExitOK {
		t.Fatalf("cmdInit = %d, want %d", code, ExitOK)
	}
	if _, err := os.Stat(statedir.OnboardMarkerPath(root)); err != nil {
		t.Errorf("onboarding marker missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "tasks")); err != nil {
		t.Errorf("tasks dir missing: %v", err)
	}
}

func TestCmdWatch_StatusWhenNotRunning(t *testing.T) {
	withTempState(t)
	if code := cmdWatch([]string{"--status"}); code != ExitOK {
		t.Fatalf("cmdWatch --status = %d, want %d", code, ExitOK)
	}
}
