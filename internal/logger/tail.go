package logger

import (
	"bufio"
	"encoding/json"
	"os"
)

// Tail returns the last n events from the active log file, oldest first.
// It does not read archives: callers that want history across a rotation
// boundary should read the relevant archive file directly.
func (l *Logger) Tail(n int) ([]Event, error) {
	f, err := os.Open(l.path) //nolint:gosec // state-dir controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(lines))
	for _, line := range lines {
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			// A malformed line is skipped rather than aborting the tail;
			// the writer guarantees well-formed lines, but readers should
			// not assume it.
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
