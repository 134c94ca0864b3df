package queue

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/clodputer/clodputer/internal/procutil"
)

// ErrLockHeld is what the *HeldError returned by Acquire unwraps to when
// another live process holds the executor lockfile.
var ErrLockHeld = errors.New("lock held")

// HeldError names the PID currently holding the lock.
type HeldError struct {
	PID int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("executor lock held by pid %d", e.PID)
}

func (e *HeldError) Unwrap() error { return ErrLockHeld }

// ExecutorLock is the PID-holding lockfile that enforces at most one
// live executor per state directory.
type ExecutorLock struct {
	path string
	held bool
}

// NewExecutorLock binds an ExecutorLock to the lockfile at path. It does
// not acquire anything; call Acquire.
func NewExecutorLock(path string) *ExecutorLock {
	return &ExecutorLock{path: path}
}

// acquireResult is the outcome of one creation attempt. Its fields stay
// zero there: a prior lockfile that named a dead PID and was cleared
// before the lock was taken is reported by Acquire itself, through its
// staleRemoved and stalePID results, so the caller can emit
// lock_stale_removed.
type acquireResult struct {
	staleRemoved bool
	stalePID     int
}

// Acquire attempts exclusive creation of the lockfile with the current
// PID. If the file already exists, the PID inside is checked for
// liveness: a dead holder's lockfile is removed (the caller is told so it
// can log lock_stale_removed) and acquisition retried once. Otherwise
// Acquire fails with *HeldError.
func (l *ExecutorLock) Acquire() (staleRemoved bool, stalePID int, err error) {
	pid := os.Getpid()
	res, err := l.acquireOnce(pid)
	if err == nil {
		l.held = true
		return res.staleRemoved, res.stalePID, nil
	}

	var held *HeldError
	if !errors.As(err, &held) {
		return false, 0, err
	}
	// An unreadable lockfile (PID -1) is never treated as stale.
	if held.PID <= 0 || procutil.IsProcessAlive(held.PID) {
		return false, 0, err
	}

	// Stale: the recorded PID is dead. Remove and retry once.
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
		return false, 0, err
	}
	_, err2 := l.acquireOnce(pid)
	if err2 != nil {
		return false, 0, err2
	}
	l.held = true
	return true, held.PID, nil
}

func (l *ExecutorLock) acquireOnce(pid int) (acquireResult, error) {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			existingPID, readErr := readLockPID(l.path)
			if readErr != nil {
				// Unreadable (race with a writer, or truly corrupt):
				// treat conservatively as held by an unknown PID so the
				// caller does not stampede past a live executor.
				return acquireResult{}, &HeldError{PID: -1}
			}
			return acquireResult{}, &HeldError{PID: existingPID}
		}
		return acquireResult{}, fmt.Errorf("create lockfile: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(strconv.Itoa(pid)); err != nil {
		_ = os.Remove(l.path)
		return acquireResult{}, fmt.Errorf("write lockfile: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = os.Remove(l.path)
		return acquireResult{}, fmt.Errorf("sync lockfile: %w", err)
	}
	return acquireResult{}, nil
}

// Release removes the lockfile iff its content matches this process's PID.
func (l *ExecutorLock) Release() error {
	if !l.held {
		return nil
	}
	pid, err := readLockPID(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.held = false
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		// Someone else's lock now; not ours to remove.
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	l.held = false
	return nil
}

// HolderPID returns the PID currently recorded in the lockfile, or an
// error if the lockfile does not exist or is unreadable.
func HolderPID(path string) (int, error) {
	return readLockPID(path)
}

func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // state-dir controlled path
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, fmt.Errorf("empty lockfile")
	}
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("corrupt lockfile content %q: %w", s, err)
	}
	return pid, nil
}
