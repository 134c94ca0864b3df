//go:build windows

package procutil

import "github.com/shirou/gopsutil/v3/process"

// IsProcessAlive reports whether a process with the given PID exists.
// Unix has syscall.Kill(pid, 0) for a cheap existence probe; Windows has
// no stdlib equivalent, so this falls back to gopsutil's process table
// scan (already a dependency for process-tree cleanup).
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	if err != nil {
		return true // conservative: don't treat a probe failure as "dead"
	}
	return ok
}
