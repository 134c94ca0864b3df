// Package metrics persists per-task aggregate counters and rolling
// durations in a single atomic document: write-temp, fsync, rename,
// covering a map of per-task records rather than a single record.
package metrics

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/clodputer/clodputer/internal/statedir"
)

// ewmaAlpha is a fixed smoothing factor for the rolling average duration.
const ewmaAlpha = 0.3

// Record is the aggregate metrics for one task name.
type Record struct {
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	LastStatus   string    `json:"last_status,omitempty"`
	LastDuration float64   `json:"last_duration,omitempty"`
	AvgDuration  float64   `json:"avg_duration,omitempty"`
	EWMADuration float64   `json:"ewma_duration,omitempty"`
	LastRunAt    time.Time `json:"last_run_at,omitempty"`
}

// document is the on-disk shape: one Record per task name.
type document struct {
	Tasks map[string]*Record `json:"tasks"`
}

// Store holds metrics for all tasks, persisted to a single JSON file.
type Store struct {
	path string

	mu   sync.Mutex
	docs document
}

// Open loads the metrics document at path, starting empty if it doesn't
// exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, docs: document{Tasks: map[string]*Record{}}}

	data, err := os.ReadFile(path) //nolint:gosec // state-dir controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		// Metrics are an aggregate cache, not authoritative state; a
		// corrupt document is not worth a quarantine dance like the
		// queue's. Start fresh rather than fail diagnostics-critical
		// callers.
		return s, nil
	}
	if doc.Tasks == nil {
		doc.Tasks = map[string]*Record{}
	}
	s.docs = doc
	return s, nil
}

// Get returns a copy of the record for name, or the zero Record if none.
func (s *Store) Get(name string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.docs.Tasks[name]; ok {
		return *r
	}
	return Record{}
}

// All returns a copy of every task's record, keyed by task name.
func (s *Store) All() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.docs.Tasks))
	for name, r := range s.docs.Tasks {
		out[name] = *r
	}
	return out
}

// RecordOutcome updates name's counters and both the simple and
// exponentially-weighted moving average durations, then persists the
// document atomically.
func (s *Store) RecordOutcome(name, status string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.docs.Tasks[name]
	if !ok {
		r = &Record{}
		s.docs.Tasks[name] = r
	}

	switch status {
	case "success":
		r.SuccessCount++
	default:
		r.FailureCount++
	}
	r.LastStatus = status
	r.LastRunAt = time.Now()

	d := duration.Seconds()
	r.LastDuration = d

	n := float64(r.SuccessCount + r.FailureCount)
	r.AvgDuration = r.AvgDuration + (d-r.AvgDuration)/n

	if n <= 1 {
		r.EWMADuration = d
	} else {
		r.EWMADuration = ewmaAlpha*d + (1-ewmaAlpha)*r.EWMADuration
	}

	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.docs, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return statedir.WriteFileAtomic(s.path, data, 0600)
}
