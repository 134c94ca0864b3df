package watcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/procutil"
	"github.com/clodputer/clodputer/internal/statedir"
)

// restartDelay is how long RunForeground waits before restarting the
// fsnotify observer after a fatal error, rather than exiting outright.
const restartDelay = 2 * time.Second

// RunForeground runs w.Run in a restart loop: a fatal observation error
// is logged and retried after restartDelay; only ctx cancellation (the
// explicit stop signal) ends the loop.
func RunForeground(ctx context.Context, w *Watcher, log *logger.Logger) error {
	for {
		err := w.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		log.Emit(logger.WatcherTriggered, func(e *logger.Event) {
			e.Error = fmt.Sprintf("watcher observation failed, restarting: %v", err)
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(restartDelay):
		}
	}
}

// DaemonStatus reports whether the watcher daemon appears to be running.
type DaemonStatus struct {
	Running bool
	PID     int
}

// Status reads the watcher pidfile and checks liveness of the recorded
// PID.
func Status(root string) (DaemonStatus, error) {
	pid, err := readPID(root)
	if err != nil {
		if os.IsNotExist(err) {
			return DaemonStatus{}, nil
		}
		return DaemonStatus{}, err
	}
	if !procutil.IsProcessAlive(pid) {
		return DaemonStatus{PID: pid}, nil
	}
	return DaemonStatus{Running: true, PID: pid}, nil
}

// StartDaemon spawns a detached child running `<bin> watch --run-foreground`
// and records its PID in the watcher pidfile. Fails if a live daemon is
// already recorded.
func StartDaemon(root, bin string) (int, error) {
	st, err := Status(root)
	if err != nil {
		return 0, err
	}
	if st.Running {
		return st.PID, fmt.Errorf("watcher daemon already running (pid %d)", st.PID)
	}

	logPath := statedir.WatcherLogPath(root)
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) //nolint:gosec // state-dir controlled path
	if err != nil {
		return 0, err
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.Command(bin, "watch", "--run-foreground") //nolint:gosec // operator-configured binary path
	cmd.Env = append(os.Environ(), statedir.EnvStateDir+"="+root)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := writePID(root, pid); err != nil {
		_ = cmd.Process.Kill()
		return 0, err
	}
	// Release so the child isn't reaped as our own subprocess once this
	// process exits; the daemon is meant to outlive its launcher.
	_ = cmd.Process.Release()
	return pid, nil
}

// StopDaemon signals the watcher daemon to exit and removes the pidfile.
func StopDaemon(root string) error {
	pid, err := readPID(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if procutil.IsProcessAlive(pid) {
		if err := signalTerminate(pid); err != nil {
			return err
		}
	}
	return os.Remove(statedir.WatcherPIDPath(root))
}

func readPID(root string) (int, error) {
	data, err := os.ReadFile(statedir.WatcherPIDPath(root)) //nolint:gosec // state-dir controlled path
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("corrupt watcher pidfile content %q: %w", s, err)
	}
	return pid, nil
}

func writePID(root string, pid int) error {
	return statedir.WriteFileAtomic(statedir.WatcherPIDPath(root), []byte(strconv.Itoa(pid)), 0600)
}
