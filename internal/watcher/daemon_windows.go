//go:build windows

package watcher

import (
	"os"
	"os/exec"
)

// detach is a no-op on Windows: CREATE_NEW_PROCESS_GROUP semantics aren't
// needed for our purposes since StopDaemon uses os.Process.Kill, not a
// POSIX signal.
func detach(cmd *exec.Cmd) {}

func signalTerminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
