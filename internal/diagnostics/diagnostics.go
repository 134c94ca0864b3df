// Package diagnostics implements `clodputer doctor`'s health check suite:
// lockfile freshness, queue invariants, task definitions, the cron and
// watcher daemons, the LLM CLI path, and log directory budget.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/clodputer/clodputer/internal/croninstall"
	"github.com/clodputer/clodputer/internal/envsettings"
	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/procutil"
	"github.com/clodputer/clodputer/internal/queue"
	"github.com/clodputer/clodputer/internal/statedir"
	"github.com/clodputer/clodputer/internal/taskconfig"
	"github.com/clodputer/clodputer/internal/watcher"
)

// Status is the severity of a single check result.
type Status string

const (
	StatusOK    Status = "ok"
	StatusWarn  Status = "warn"
	StatusError Status = "error"
)

// Check is the result of one health check.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Overall computes the worst status across results: any error wins, then
// any warn, otherwise ok.
func Overall(checks []Check) Status {
	for _, c := range checks {
		if c.Status == StatusError {
			return StatusError
		}
	}
	for _, c := range checks {
		if c.Status == StatusWarn {
			return StatusWarn
		}
	}
	return StatusOK
}

// fault-injection seams for the writability check: swap the fallible
// syscalls under test rather than mocking the filesystem.
var (
	writeStringFn = func(f *os.File, s string) error { _, err := f.WriteString(s); return err }
	syncFileFn    = func(f *os.File) error { return f.Sync() }
	removeFileFn  = os.Remove
)

// RunChecks runs the full diagnostic suite against the state directory at
// root. Apart from the writability probe file that checkStateDir creates
// and removes again, the only mutation performed is removing a lockfile
// whose PID is demonstrably dead (logged via log as lock_stale_removed).
func RunChecks(root string, log *logger.Logger) []Check {
	return []Check{
		checkStateDir(root),
		CheckClock(),
		checkLockfile(root, log),
		checkQueue(root),
		checkTaskDefinitions(root),
		checkCronInstall(root),
		checkWatcherDaemon(root),
		checkLLMCLI(root),
		checkLogDirectory(root),
		checkOnboarding(root),
	}
}

func checkStateDir(root string) Check {
	result := Check{Name: "state_dir"}

	info, err := os.Stat(root)
	if err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("state directory is missing or unreadable: %v", err)
		result.Hint = "run `clodputer init`"
		return result
	}
	if !info.IsDir() {
		result.Status = StatusError
		result.Message = root + " is not a directory"
		return result
	}

	testFile := filepath.Join(root, ".clodputer-doctor-test")
	f, err := os.OpenFile(testFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			_ = removeFileFn(testFile)
			f, err = os.OpenFile(testFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		}
		if err != nil {
			result.Status = StatusError
			result.Message = fmt.Sprintf("cannot create test file: %v", err)
			return result
		}
	}

	if err := writeStringFn(f, "clodputer doctor test"); err != nil {
		_ = f.Close()
		_ = removeFileFn(testFile)
		result.Status = StatusError
		result.Message = fmt.Sprintf("cannot write to test file: %v", err)
		return result
	}
	if err := syncFileFn(f); err != nil {
		_ = f.Close()
		_ = removeFileFn(testFile)
		result.Status = StatusError
		result.Message = fmt.Sprintf("cannot sync test file: %v", err)
		return result
	}
	_ = f.Close()

	if err := removeFileFn(testFile); err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("cannot remove test file: %v", err)
		return result
	}

	result.Status = StatusOK
	return result
}

func checkLockfile(root string, log *logger.Logger) Check {
	result := Check{Name: "lockfile"}
	path := statedir.LockPath(root)

	pid, err := queue.HolderPID(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.Status = StatusOK
			result.Message = "no executor lock held"
			return result
		}
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("lockfile unreadable: %v", err)
		return result
	}

	if procutil.IsProcessAlive(pid) {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("held by live executor (pid %d)", pid)
		return result
	}

	if err := removeFileFn(path); err != nil && !os.IsNotExist(err) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("stale lockfile (dead pid %d) could not be removed: %v", pid, err)
		return result
	}
	if log != nil {
		log.Emit(logger.LockStaleRemoved, func(e *logger.Event) {
			e.Extra = map[string]any{"pid": pid, "source": "doctor"}
		})
	}
	result.Status = StatusWarn
	result.Message = fmt.Sprintf("removed stale lockfile held by dead pid %d", pid)
	return result
}

func checkQueue(root string) Check {
	result := Check{Name: "queue"}
	path := statedir.QueuePath(root)

	data, err := os.ReadFile(path) //nolint:gosec // state-dir controlled path
	if err != nil {
		if os.IsNotExist(err) {
			result.Status = StatusOK
			result.Message = "no queue document yet"
			return result
		}
		result.Status = StatusError
		result.Message = fmt.Sprintf("cannot read queue document: %v", err)
		return result
	}

	var state queue.State
	if err := json.Unmarshal(data, &state); err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("queue document is not valid JSON: %v", err)
		result.Hint = "the next executor run will quarantine and reinitialize it automatically"
		return result
	}

	seen := map[string]bool{}
	if state.Running != nil {
		seen[state.Running.ID] = true
	}
	for _, item := range state.Queued {
		if seen[item.ID] {
			result.Status = StatusError
			result.Message = fmt.Sprintf("duplicate queue item id %q", item.ID)
			return result
		}
		seen[item.ID] = true
		if item.AttemptCount < 0 {
			result.Status = StatusError
			result.Message = fmt.Sprintf("item %q has negative attempt_count", item.ID)
			return result
		}
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("%d queued, running=%v", len(state.Queued), state.Running != nil)
	return result
}

func checkTaskDefinitions(root string) Check {
	result := Check{Name: "task_definitions"}

	cfgs, errs := taskconfig.LoadAll(root)
	if len(errs) > 0 {
		result.Status = StatusError
		result.Message = fmt.Sprintf("%d task file(s) failed validation", len(errs))
		result.Hint = errs[0].Error()
		return result
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("%d task(s) loaded", len(cfgs))
	return result
}

func checkCronInstall(root string) Check {
	result := Check{Name: "cron_install"}

	cfgs, _ := taskconfig.LoadAll(root)
	entries := croninstall.EntriesFromConfigs(cfgs)
	if len(entries) == 0 {
		result.Status = StatusOK
		result.Message = "no cron-triggered tasks configured"
		return result
	}

	bin, err := os.Executable()
	if err != nil {
		bin = "clodputer"
	}
	io := croninstall.SystemCrontab{}
	current, err := io.Read()
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot read system crontab: %v", err)
		return result
	}
	wouldBe, err := croninstall.Preview(io, root, bin, entries)
	if err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("cannot render cron entries: %v", err)
		return result
	}
	if current != wouldBe {
		result.Status = StatusWarn
		result.Message = "installed cron block is out of sync with task definitions"
		result.Hint = "run `clodputer install` to refresh it"
		return result
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("%d cron entries installed and current", len(entries))
	return result
}

func checkWatcherDaemon(root string) Check {
	result := Check{Name: "watcher_daemon"}

	cfgs, _ := taskconfig.LoadAll(root)
	var needed int
	for _, c := range cfgs {
		if c.IsEnabled() && c.Trigger.Type == taskconfig.TriggerFileWatch {
			needed++
		}
	}
	if needed == 0 {
		result.Status = StatusOK
		result.Message = "no file_watch tasks configured"
		return result
	}

	st, err := watcher.Status(root)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot read watcher pidfile: %v", err)
		return result
	}
	if !st.Running {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d file_watch task(s) configured but the watcher daemon is not running", needed)
		result.Hint = "run `clodputer watch --daemon`"
		return result
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("watcher daemon running (pid %d)", st.PID)
	return result
}

func checkLLMCLI(root string) Check {
	result := Check{Name: "llm_cli"}

	path, err := envsettings.ResolveLLMCLIPath(root)
	if err != nil || path == "" {
		result.Status = StatusError
		result.Message = "no LLM CLI path configured"
		result.Hint = "set " + envsettings.EnvLLMCLIPath + " or configure it via env.json"
		return result
	}

	// A bare command name (the default) resolves through PATH, the same
	// way the executor's exec.Command call will.
	if !strings.ContainsRune(path, os.PathSeparator) {
		resolved, lookErr := exec.LookPath(path)
		if lookErr != nil {
			result.Status = StatusError
			result.Message = fmt.Sprintf("LLM CLI %q not found on PATH: %v", path, lookErr)
			result.Hint = "set " + envsettings.EnvLLMCLIPath + " or configure it via env.json"
			return result
		}
		path = resolved
	}

	info, err := os.Stat(path)
	if err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("configured LLM CLI path %q does not exist: %v", path, err)
		return result
	}
	if info.IsDir() {
		result.Status = StatusError
		result.Message = fmt.Sprintf("configured LLM CLI path %q is a directory", path)
		return result
	}
	if !isExecutable(info) {
		result.Status = StatusError
		result.Message = fmt.Sprintf("configured LLM CLI path %q is not executable", path)
		return result
	}

	result.Status = StatusOK
	result.Message = path
	return result
}

// logBudgetBytes is the rough ceiling past which the log directory is
// flagged, matching the same order of magnitude logger uses to decide
// when to rotate the active file times the number of archives it keeps.
const logBudgetBytes = int64(logger.MaxActiveBytes) * int64(logger.DefaultKeepArchives+1)

func checkLogDirectory(root string) Check {
	result := Check{Name: "log_directory"}

	var total int64
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if walkErr != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot measure log directory size: %v", walkErr)
		return result
	}

	if total > logBudgetBytes {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("state directory is %d bytes, over the %d byte budget", total, logBudgetBytes)
		result.Hint = "prune old entries under archive/"
		return result
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("%d bytes", total)
	return result
}

func checkOnboarding(root string) Check {
	result := Check{Name: "onboarding"}

	if _, err := os.Stat(statedir.OnboardMarkerPath(root)); err != nil {
		if os.IsNotExist(err) {
			result.Status = StatusWarn
			result.Message = "onboarding has not been completed"
			result.Hint = "run `clodputer init`"
			return result
		}
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot read onboarding marker: %v", err)
		return result
	}

	result.Status = StatusOK
	result.Message = "onboarding complete"
	return result
}

// checkClockYear is a cheap system clock sanity check: it has no
// dedicated CLI surface of its own, but rides along in the suite since a
// wildly wrong system clock would otherwise silently corrupt every
// timestamp diagnostics reports elsewhere.
func checkClockYear(year int) Check {
	result := Check{Name: "clock"}
	switch {
	case year < 2020:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("system clock appears to be in the past (year %d)", year)
	case year > 2100:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("system clock appears to be far in the future (year %d)", year)
	default:
		result.Status = StatusOK
	}
	return result
}

// CheckClock runs checkClockYear against the current time.
func CheckClock() Check {
	return checkClockYear(time.Now().Year())
}
