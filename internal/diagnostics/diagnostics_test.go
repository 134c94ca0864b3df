package diagnostics

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/statedir"
)

func TestOverall(t *testing.T) {
	cases := []struct {
		name   string
		checks []Check
		want   Status
	}{
		{"empty", nil, StatusOK},
		{"all ok", []Check{{Status: StatusOK}, {Status: StatusOK}}, StatusOK},
		{"one warn", []Check{{Status: StatusOK}, {Status: StatusWarn}}, StatusWarn},
		{"error wins", []Check{{Status: StatusWarn}, {Status: StatusError}}, StatusError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Overall(c.checks); got != c.want {
				t.Errorf("Overall() = %v, want %v", got, c.want)
			}
		})
	}
}

func newTestLogger(t *testing.T, root string) *logger.Logger {
	t.Helper()
	return logger.New(statedir.LogPath(root), statedir.ArchivePath(root), func(err error) {
		t.Logf("logger error: %v", err)
	})
}

func TestRunChecks_FreshStateDirHasNoQueueOrLock(t *testing.T) {
	root := t.TempDir()
	if err := statedir.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}
	log := newTestLogger(t, root)

	checks := RunChecks(root, log)
	byName := map[string]Check{}
	for _, c := range checks {
		byName[c.Name] = c
	}

	if c := byName["state_dir"]; c.Status != StatusOK {
		t.Errorf("state_dir check = %+v, want ok", c)
	}
	if c := byName["lockfile"]; c.Status != StatusOK {
		t.Errorf("lockfile check = %+v, want ok (no lock held)", c)
	}
	if c := byName["queue"]; c.Status != StatusOK {
		t.Errorf("queue check = %+v, want ok (no queue document yet)", c)
	}
	if c := byName["onboarding"]; c.Status != StatusWarn {
		t.Errorf("onboarding check = %+v, want warn (no marker written)", c)
	}
}

func TestCheckLockfile_RemovesStaleLock(t *testing.T) {
	root := t.TempDir()
	if err := statedir.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}
	log := newTestLogger(t, root)

	// A PID astronomically unlikely to be alive on any real system.
	deadPID := 1 << 30
	if err := os.WriteFile(statedir.LockPath(root), []byte(strconv.Itoa(deadPID)), 0600); err != nil {
		t.Fatal(err)
	}

	c := checkLockfile(root, log)
	if c.Status != StatusWarn {
		t.Fatalf("checkLockfile = %+v, want warn (stale removal)", c)
	}
	if _, err := os.Stat(statedir.LockPath(root)); !os.IsNotExist(err) {
		t.Errorf("expected stale lockfile to be removed, stat err = %v", err)
	}
}

func TestCheckQueue_FlagsCorruptContent(t *testing.T) {
	root := t.TempDir()
	if err := statedir.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(statedir.QueuePath(root), []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}

	c := checkQueue(root)
	if c.Status != StatusError {
		t.Errorf("checkQueue = %+v, want error for unparseable document", c)
	}
}

func TestCheckQueue_FlagsDuplicateIDs(t *testing.T) {
	root := t.TempDir()
	if err := statedir.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}
	doc := `{"running":null,"queued":[{"id":"dup","name":"a","not_before":"2026-01-01T00:00:00Z","enqueued_at":"2026-01-01T00:00:00Z"},{"id":"dup","name":"b","not_before":"2026-01-01T00:00:00Z","enqueued_at":"2026-01-01T00:00:00Z"}]}`
	if err := os.WriteFile(statedir.QueuePath(root), []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	c := checkQueue(root)
	if c.Status != StatusError {
		t.Errorf("checkQueue = %+v, want error for duplicate ids", c)
	}
}

func TestCheckTaskDefinitions(t *testing.T) {
	root := t.TempDir()
	tasksDir := filepath.Join(root, "tasks")
	if err := os.MkdirAll(tasksDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tasksDir, "ok.yaml"), []byte(`
name: ok
trigger:
  type: manual
task:
  prompt: "hi"
`), 0644); err != nil {
		t.Fatal(err)
	}

	c := checkTaskDefinitions(root)
	if c.Status != StatusOK {
		t.Errorf("checkTaskDefinitions = %+v, want ok", c)
	}

	if err := os.WriteFile(filepath.Join(tasksDir, "bad.yaml"), []byte("not: [valid"), 0644); err != nil {
		t.Fatal(err)
	}
	c = checkTaskDefinitions(root)
	if c.Status != StatusError {
		t.Errorf("checkTaskDefinitions = %+v, want error once an invalid file exists", c)
	}
}

func TestCheckOnboarding(t *testing.T) {
	root := t.TempDir()

	if c := checkOnboarding(root); c.Status != StatusWarn {
		t.Errorf("checkOnboarding = %+v, want warn before marker exists", c)
	}

	if err := statedir.WriteFileAtomic(statedir.OnboardMarkerPath(root), []byte("ok\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if c := checkOnboarding(root); c.Status != StatusOK {
		t.Errorf("checkOnboarding = %+v, want ok after marker written", c)
	}
}

func TestCheckClockYear(t *testing.T) {
	if c := checkClockYear(2026); c.Status != StatusOK {
		t.Errorf("checkClockYear(2026) = %+v, want ok", c)
	}
	if c := checkClockYear(2010); c.Status != StatusWarn {
		t.Errorf("checkClockYear(2010) = %+v, want warn", c)
	}
	if c := checkClockYear(2200); c.Status != StatusWarn {
		t.Errorf("checkClockYear(2200) = %+v, want warn", c)
	}
}
