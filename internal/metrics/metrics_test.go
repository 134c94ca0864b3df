package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordOutcomeCounters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.RecordOutcome("greet", "success", 2*time.Second); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if err := s.RecordOutcome("greet", "failure", 4*time.Second); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	r := s.Get("greet")
	if r.SuccessCount != 1 || r.FailureCount != 1 {
		t.Errorf("counts = %+v, want success=1 failure=1", r)
	}
	if r.LastStatus != "failure" {
		t.Errorf("LastStatus = %q, want failure", r.LastStatus)
	}
	if r.LastDuration != 4 {
		t.Errorf("LastDuration = %v, want 4", r.LastDuration)
	}
	if r.AvgDuration != 3 {
		t.Errorf("AvgDuration = %v, want 3", r.AvgDuration)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.json")

	s, _ := Open(path)
	_ = s.RecordOutcome("greet", "success", time.Second)

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r := s2.Get("greet")
	if r.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1 after reopen", r.SuccessCount)
	}
}

func TestOpenCorruptStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(s.All()) != 0 {
		t.Errorf("expected empty store for corrupt document, got %v", s.All())
	}
}
