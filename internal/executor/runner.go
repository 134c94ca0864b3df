// Package executor drives the queue end-to-end with strict one-at-a-time
// semantics. It runs inside the process that holds the executor lock (the
// caller acquires it before draining), spawns the LLM CLI, enforces the
// single-turn contract, and applies retry policy on failure.
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/clodputer/clodputer/internal/cleanup"
	"github.com/clodputer/clodputer/internal/envsettings"
	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/metrics"
	"github.com/clodputer/clodputer/internal/procutil"
	"github.com/clodputer/clodputer/internal/queue"
	"github.com/clodputer/clodputer/internal/taskconfig"
)

// transientExitCodes are child exit codes treated as infrastructure
// hiccups rather than a deliberate task failure, so they're retryable
// under the task's retry policy. 124 is the conventional timeout-wrapper
// code, 137 and 143 are 128+SIGKILL/128+SIGTERM, seen when a process is
// killed out from under the CLI rather than exiting of its own accord.
var transientExitCodes = map[int]bool{124: true, 137: true, 143: true}

// Runner wires the queue, logger, metrics store, and state-directory root
// together to execute one task at a time. It holds no package-level
// singletons: every dependency is passed in at construction so tests
// stay isolated.
type Runner struct {
	Root    string
	Queue   *queue.Queue
	Logger  *logger.Logger
	Metrics *metrics.Store

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time

	// ResourceGateEnabled turns on the optional CPU/memory check in step
	// 4. Off by default: sampling load adds latency to every dequeue.
	ResourceGateEnabled bool

	// OnInternalError receives failures that aren't a task outcome (e.g.
	// the metrics store failing to persist). Defaults to a no-op.
	OnInternalError func(error)
}

func (r *Runner) reportInternalError(err error) {
	if err == nil {
		return
	}
	if r.OnInternalError != nil {
		r.OnInternalError(err)
		return
	}
}

// RunResult summarizes what RunOne did, for the caller's own reporting
// (e.g. `clodputer run`'s exit code).
type RunResult struct {
	Idle     bool
	TaskName string
	Status   string // "success", "failure", "timeout", "disabled", "config_error", "deferred"
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// RunOne peeks one eligible item and carries it through to completion
// (or defer/skip/retry-schedule). Returns Idle=true when the queue had
// nothing eligible.
func (r *Runner) RunOne(ctx context.Context) (RunResult, error) {
	item, ok := r.Queue.Peek()
	if !ok {
		return RunResult{Idle: true}, nil
	}

	cfg, err := taskconfig.Load(r.Root, item.Name)
	if err == nil {
		cfg, err = taskconfig.SubstituteEnv(cfg)
	}
	if err != nil {
		return r.failBeforeSpawn(item, err)
	}

	if !cfg.IsEnabled() {
		if _, ferr := r.Queue.Fail(item.ID, false, queue.RetryPolicy{}); ferr != nil {
			return RunResult{}, ferr
		}
		r.Logger.Emit(logger.TaskDisabledSkipped, func(e *logger.Event) {
			e.TaskName = item.Name
			e.TaskID = item.ID
		})
		return RunResult{TaskName: item.Name, Status: "disabled"}, nil
	}

	if r.ResourceGateEnabled {
		if deferred, derr := r.checkResourceGate(ctx, item); derr != nil {
			return RunResult{}, derr
		} else if deferred {
			return RunResult{TaskName: item.Name, Status: "deferred"}, nil
		}
	}

	return r.spawnAndWait(ctx, item, cfg)
}

// failBeforeSpawn handles a config load or env-substitution failure. The
// item is still queued (never promoted), so Fail locates it there;
// ConfigInvalid/EnvironmentMissing are never retried, since a bad config
// won't fix itself on the next attempt.
func (r *Runner) failBeforeSpawn(item *queue.Item, cause error) (RunResult, error) {
	if _, err := r.Queue.Fail(item.ID, false, queue.RetryPolicy{}); err != nil {
		return RunResult{}, err
	}
	r.Logger.Emit(logger.TaskConfigError, func(e *logger.Event) {
		e.TaskName = item.Name
		e.TaskID = item.ID
		e.Error = cause.Error()
	})
	return RunResult{TaskName: item.Name, Status: "config_error"}, nil
}

// checkResourceGate implements step 4: defer (without consuming an
// attempt) when host load exceeds the configured thresholds.
func (r *Runner) checkResourceGate(ctx context.Context, item *queue.Item) (bool, error) {
	settings, err := envsettings.Load(r.Root)
	if err != nil {
		return false, nil //nolint:nilerr // settings load failure should not block execution
	}
	load, err := procutil.SampleLoad(ctx)
	if err != nil {
		return false, nil //nolint:nilerr // sampling failure should not block execution
	}
	if load.CPUPercent <= settings.ResourceGate.MaxCPUPercent && load.MemPercent <= settings.ResourceGate.MaxMemPercent {
		return false, nil
	}

	notBefore := r.now().Add(resourceGateBackoff)
	if err := r.Queue.Defer(item.ID, notBefore); err != nil {
		return false, err
	}
	r.Logger.Emit(logger.TaskDeferred, func(e *logger.Event) {
		e.TaskName = item.Name
		e.TaskID = item.ID
		e.Extra = map[string]any{
			"cpu_percent": load.CPUPercent,
			"mem_percent": load.MemPercent,
			"not_before":  notBefore,
		}
	})
	return true, nil
}

// resourceGateBackoff is how far a deferral pushes not_before. A flat
// short delay keeps a gated task from starving behind lower-priority
// work that never trips the gate.
const resourceGateBackoff = 10 * time.Second

// spawnAndWait builds the invocation, spawns the child, promotes the item
// to running, waits with a timeout, always invokes cleanup, classifies
// the outcome, and completes or fails the item accordingly.
func (r *Runner) spawnAndWait(ctx context.Context, item *queue.Item, cfg *taskconfig.Config) (RunResult, error) {
	cliPath, err := envsettings.ResolveLLMCLIPath(r.Root)
	if err != nil {
		return r.failBeforeSpawn(item, err)
	}
	inv := buildInvocation(cliPath, cfg)

	spillDir := os.TempDir()
	stdout := newBoundedCapture(spillDir, "clodputer-stdout-"+item.Name)
	stderr := newBoundedCapture(spillDir, "clodputer-stderr-"+item.Name)
	defer func() {
		_ = stdout.Close()
		_ = stderr.Close()
	}()

	cmd := exec.Command(inv.Path, inv.Args...) //nolint:gosec // LLM CLI path and args are operator-configured
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}

	startedAt := r.now()
	r.Logger.Emit(logger.TaskStarted, func(e *logger.Event) {
		e.TaskName = item.Name
		e.TaskID = item.ID
	})

	if err := cmd.Start(); err != nil {
		policy := retryPolicyFrom(cfg.Retry)
		requeued, ferr := r.Queue.Fail(item.ID, true, policy)
		if ferr != nil {
			return RunResult{}, ferr
		}
		r.Logger.Emit(logger.TaskFailed, func(e *logger.Event) {
			e.TaskName = item.Name
			e.TaskID = item.ID
			e.Error = fmt.Sprintf("spawn failed: %v", err)
		})
		if requeued {
			r.Logger.Emit(logger.RetryScheduled, func(e *logger.Event) { e.TaskName = item.Name })
		}
		return RunResult{TaskName: item.Name, Status: "failure"}, nil
	}

	pid := cmd.Process.Pid
	if err := r.Queue.PromoteRunning(item.ID, pid); err != nil {
		return RunResult{}, err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timeout := time.Duration(cfg.Task.TimeoutSeconds) * time.Second
	var waitErr error
	var timedOut bool
	var report *cleanup.Report
	select {
	case waitErr = <-done:
	case <-time.After(timeout):
		timedOut = true
		report, _ = cleanup.Cleanup(pid, startedAt)
		waitErr = <-done
	case <-ctx.Done():
		report, _ = cleanup.Cleanup(pid, startedAt)
		waitErr = <-done
	}

	duration := r.now().Sub(startedAt)

	// Cleanup runs exactly once per child: inside the select when it had
	// to kill the tree, otherwise here after a normal exit, to harvest
	// any leaked descendants. Whichever call ran, its report is the one
	// whose killed and swept PIDs get logged.
	if report == nil {
		report, _ = cleanup.Cleanup(pid, startedAt)
	}
	r.emitCleanupReport(item, report)

	exitCode := exitCodeOf(cmd, waitErr)
	status, retryable, resultErr := classifyOutcome(timedOut, exitCode, stdout.Bytes())

	if rerr := r.Metrics.RecordOutcome(item.Name, status, duration); rerr != nil {
		r.reportInternalError(rerr)
	}

	actionData := actionContext{
		TaskName:        item.Name,
		Status:          status,
		Error:           resultErr,
		DurationSeconds: duration.Seconds(),
	}

	if status == "success" {
		if err := r.Queue.Complete(item.ID, queue.Result{Status: status}); err != nil {
			return RunResult{}, err
		}
		r.Logger.Emit(logger.TaskCompleted, func(e *logger.Event) {
			e.TaskName = item.Name
			e.TaskID = item.ID
			e.DurationSeconds = duration.Seconds()
			rc := exitCode
			e.ReturnCode = &rc
			e.Status = status
		})
		runActions(r.Logger, cfg.OnSuccess, actionData)
		return RunResult{TaskName: item.Name, Status: status}, nil
	}

	policy := retryPolicyFrom(cfg.Retry)
	requeued, err := r.Queue.Fail(item.ID, retryable, policy)
	if err != nil {
		return RunResult{}, err
	}

	kind := logger.TaskFailed
	if timedOut {
		kind = logger.TaskTimeout
	}
	r.Logger.Emit(kind, func(e *logger.Event) {
		e.TaskName = item.Name
		e.TaskID = item.ID
		e.DurationSeconds = duration.Seconds()
		rc := exitCode
		e.ReturnCode = &rc
		e.Status = status
		e.Error = resultErr
		if p := stdout.SpillPath(); p != "" {
			e.Extra = map[string]any{"stdout_spill_path": p}
		}
	})
	if requeued {
		r.Logger.Emit(logger.RetryScheduled, func(e *logger.Event) {
			e.TaskName = item.Name
			e.TaskID = item.ID
		})
	}
	runActions(r.Logger, cfg.OnFailure, actionData)
	return RunResult{TaskName: item.Name, Status: status}, nil
}

func (r *Runner) emitCleanupReport(item *queue.Item, report *cleanup.Report) {
	if report == nil {
		return
	}
	if len(report.Killed) > 0 {
		r.Logger.Emit(logger.CleanupKilled, func(e *logger.Event) {
			e.TaskName = item.Name
			e.Extra = map[string]any{"pids": report.Killed}
		})
	}
	if len(report.OrphansSwept) > 0 {
		r.Logger.Emit(logger.CleanupOrphanSwept, func(e *logger.Event) {
			e.TaskName = item.Name
			e.Extra = map[string]any{"pids": report.OrphansSwept}
		})
	}
}

// classifyOutcome implements step 8 and the retryable half of step 10.
func classifyOutcome(timedOut bool, exitCode int, stdout []byte) (status string, retryable bool, errMsg string) {
	if timedOut {
		return "timeout", true, "task timed out"
	}

	env, parsed := parseOutput(stdout)
	if exitCode == 0 && !env.indicatesError() {
		return "success", false, ""
	}

	if parsed && env.indicatesError() {
		errMsg = env.Error
		if errMsg == "" {
			errMsg = "envelope reported non-success status: " + env.Status
		}
	} else {
		errMsg = fmt.Sprintf("exit code %d", exitCode)
	}
	return "failure", transientExitCodes[exitCode], errMsg
}

func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

func retryPolicyFrom(r taskconfig.Retry) queue.RetryPolicy {
	return queue.RetryPolicy{
		Enabled:             r.Enabled,
		MaxAttempts:         r.MaxAttempts,
		Backoff:             r.Backoff,
		InitialDelaySeconds: r.InitialDelaySeconds,
		MaxDelaySeconds:     r.MaxDelaySeconds,
	}
}

// RunUntilIdle implements run_until_idle(): repeat RunOne until peek()
// returns nothing. Stops early if ctx is cancelled between iterations.
func (r *Runner) RunUntilIdle(ctx context.Context) ([]RunResult, error) {
	var results []RunResult
	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.RunOne(ctx)
		if err != nil {
			return results, err
		}
		if res.Idle {
			return results, nil
		}
		results = append(results, res)
	}
}
