//go:build unix

package watcher

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it survives the parent
// process exiting (the watch daemon outlives the CLI invocation that
// started it).
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func signalTerminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
