package procutil

import (
	"github.com/shirou/gopsutil/v3/process"
)

// Descendants returns every process in the tree rooted at pid (not
// including pid itself), by recursively walking Children(). The walk is
// taken as a point-in-time snapshot before any signaling begins.
func Descendants(pid int32) ([]*process.Process, error) {
	root, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	seen := map[int32]bool{pid: true}
	var out []*process.Process
	var walk func(p *process.Process)
	walk = func(p *process.Process) {
		children, err := p.Children()
		if err != nil {
			return // gone, or permission denied: not fatal to the walk
		}
		for _, c := range children {
			if seen[c.Pid] {
				continue
			}
			seen[c.Pid] = true
			out = append(out, c)
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

// AllProcesses returns every process currently visible on the system.
// Used by the orphan sweep, which must look system-wide rather than just
// at a known tree, to catch descendants that re-parented before the tree
// snapshot was taken.
func AllProcesses() ([]*process.Process, error) {
	return process.Processes()
}

// ExecutableName returns a best-effort executable name for p, falling
// back to the empty string if neither Name() nor Exe() succeed.
func ExecutableName(p *process.Process) string {
	if name, err := p.Name(); err == nil && name != "" {
		return name
	}
	if exe, err := p.Exe(); err == nil {
		return exe
	}
	return ""
}

// IsAlive reports whether p still refers to a live process.
func IsAlive(p *process.Process) bool {
	running, err := p.IsRunning()
	if err != nil {
		return false
	}
	return running
}
