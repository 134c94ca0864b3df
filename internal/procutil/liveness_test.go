//go:build unix

package procutil

import (
	"os"
	"os/exec"
	"testing"
)

func TestIsProcessAlive_CurrentProcess(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("IsProcessAlive(self) = false, want true")
	}
}

func TestIsProcessAlive_InvalidPID(t *testing.T) {
	if IsProcessAlive(0) {
		t.Error("IsProcessAlive(0) = true, want false")
	}
	if IsProcessAlive(-1) {
		t.Error("IsProcessAlive(-1) = true, want false")
	}
}

func TestIsProcessAlive_ExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("no `true` binary available: %v", err)
	}
	if IsProcessAlive(cmd.Process.Pid) {
		t.Error("IsProcessAlive(exited pid) = true, want false")
	}
}

func TestDescendants_NoChildren(t *testing.T) {
	descendants, err := Descendants(int32(os.Getpid()))
	if err != nil {
		t.Fatal(err)
	}
	if len(descendants) != 0 {
		t.Errorf("Descendants(self) = %d entries, want 0 (test process spawns no children)", len(descendants))
	}
}

func TestAllProcesses_IncludesSelf(t *testing.T) {
	all, err := AllProcesses()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, p := range all {
		if p.Pid == int32(os.Getpid()) {
			found = true
			break
		}
	}
	if !found {
		t.Error("AllProcesses() does not include the current process")
	}
}
