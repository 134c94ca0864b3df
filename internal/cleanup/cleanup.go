// Package cleanup terminates a spawned subprocess and all its descendants,
// including ones that re-parented before the tree snapshot was taken. It
// reads the full process tree before sending any signal, so a process
// that exits mid-sweep doesn't leave orphaned children unaccounted for.
package cleanup

import (
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/clodputer/clodputer/internal/procutil"
)

// ExternalToolPrefix is the executable-name convention used by
// externally-namespaced tools (matching taskconfig's mcp__ tool prefix),
// and is what the orphan sweep matches against.
const ExternalToolPrefix = "mcp__"

// GraceDuration is the total time Cleanup waits for graceful termination
// before escalating to force-kill.
const GraceDuration = 5 * time.Second

// pollInterval is how often liveness is rechecked during the grace period.
const pollInterval = 100 * time.Millisecond

// Report records what Cleanup actually did.
type Report struct {
	Terminated   []int32 `json:"terminated"`
	Killed       []int32 `json:"killed"`
	OrphansSwept []int32 `json:"orphans_swept"`
}

// Cleanup terminates pid and every descendant:
//  1. snapshot the tree before signaling
//  2. send graceful-terminate to root + descendants
//  3. wait up to GraceDuration, polling liveness
//  4. force-kill survivors
//  5. sweep all processes system-wide for ExternalToolPrefix-named
//     executables not already accounted for, created at or after
//     taskStartTime
//
// taskStartTime is the caller's own timestamp for when it spawned pid,
// taken before the spawn so it never postdates the process's actual
// creation time; it bounds the secondary, name-based sweep so it cannot
// reach an unrelated long-lived process that merely shares the name
// prefix. Per-process errors (permission denied, already gone) are
// swallowed; they never abort the sweep.
func Cleanup(pid int, taskStartTime time.Time) (*Report, error) {
	report := &Report{}

	root, err := process.NewProcess(int32(pid))
	rootAlive := err == nil

	descendants, _ := procutil.Descendants(int32(pid))

	tree := make([]*process.Process, 0, len(descendants)+1)
	accounted := map[int32]bool{}
	if rootAlive {
		tree = append(tree, root)
		accounted[int32(pid)] = true
	}
	for _, d := range descendants {
		tree = append(tree, d)
		accounted[d.Pid] = true
	}

	for _, p := range tree {
		_ = p.Terminate() //nolint:errcheck // per-process errors are swallowed, never abort the sweep
	}

	deadline := time.Now().Add(GraceDuration)
	survivors := tree
	for time.Now().Before(deadline) && len(survivors) > 0 {
		time.Sleep(pollInterval)
		var still []*process.Process
		for _, p := range survivors {
			if procutil.IsAlive(p) {
				still = append(still, p)
			} else {
				report.Terminated = append(report.Terminated, p.Pid)
			}
		}
		survivors = still
	}

	for _, p := range survivors {
		if procutil.IsAlive(p) {
			_ = p.Kill() //nolint:errcheck // per-process errors are swallowed, never abort the sweep
			report.Killed = append(report.Killed, p.Pid)
		} else {
			report.Terminated = append(report.Terminated, p.Pid)
		}
	}

	swept, err := sweepOrphans(accounted, taskStartTime.UnixMilli())
	if err == nil {
		report.OrphansSwept = swept
	}

	return report, nil
}

// sweepOrphans force-kills any process, anywhere on the system, whose
// executable name or argv[0] carries ExternalToolPrefix, was not already handled as
// part of the known tree, and was created no earlier than taskStartTime
// (milliseconds since epoch, per gopsutil's CreateTime). This is the
// safety net for descendants that re-parented to init before the tree
// snapshot was taken; the start-time floor keeps it from reaching out and
// killing an unrelated long-lived process that merely shares the name
// prefix.
func sweepOrphans(accounted map[int32]bool, taskStartTime int64) ([]int32, error) {
	all, err := procutil.AllProcesses()
	if err != nil {
		return nil, err
	}

	var swept []int32
	for _, p := range all {
		if accounted[p.Pid] {
			continue
		}
		name := procutil.ExecutableName(p)
		if !hasExternalToolPrefix(name) {
			// The prefix may sit in argv[0] alone (set with `exec -a`),
			// which leaves the kernel-reported name unchanged.
			args, aerr := p.CmdlineSlice()
			if aerr != nil || len(args) == 0 || !hasExternalToolPrefix(filepath.Base(args[0])) {
				continue
			}
		}
		createTime, err := p.CreateTime()
		if err != nil || createTime < taskStartTime {
			continue
		}
		if err := p.Kill(); err != nil {
			continue // gone, or permission denied: swallow and move on
		}
		swept = append(swept, p.Pid)
	}
	return swept, nil
}

func hasExternalToolPrefix(name string) bool {
	if len(name) < len(ExternalToolPrefix) {
		return false
	}
	return name[:len(ExternalToolPrefix)] == ExternalToolPrefix
}
