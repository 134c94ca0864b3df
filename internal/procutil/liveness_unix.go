//go:build unix

// Package procutil provides process liveness checks and process-tree
// inspection used by the lockfile protocol and the cleanup component.
package procutil

import "syscall"

// IsProcessAlive reports whether a process with the given PID exists.
// On Unix, uses kill(pid, 0), which probes for existence without sending
// an actual signal. EPERM still means the process exists (we just can't
// signal it); ESRCH means it does not.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
