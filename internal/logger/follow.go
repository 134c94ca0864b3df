package logger

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"
)

// Follow returns a channel streaming events appended to the active log
// file from now on, filtered by predicate (nil matches everything). The
// channel closes when ctx is cancelled. A rotation (rename of the active
// file) is detected by comparing file identity on each poll; the follower
// transparently reopens the new active file.
func (l *Logger) Follow(ctx context.Context, predicate func(Event) bool) <-chan Event {
	out := make(chan Event, 64)
	if predicate == nil {
		predicate = func(Event) bool { return true }
	}

	go func() {
		defer close(out)

		var f *os.File
		var reader *bufio.Reader
		var curIno, curDev uint64

		openActive := func() {
			if f != nil {
				_ = f.Close()
				f = nil
			}
			nf, err := os.Open(l.path) //nolint:gosec // state-dir controlled path
			if err != nil {
				return
			}
			f = nf
			reader = bufio.NewReader(f)
			curIno, curDev = fileIdentity(f)
		}

		openActive()
		// Start at the current end so only events appended from now on
		// are streamed; a file reopened after rotation is read from its
		// start.
		if f != nil {
			_, _ = f.Seek(0, io.SeekEnd)
		}

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				if f != nil {
					_ = f.Close()
				}
				return
			case <-ticker.C:
				if f == nil {
					openActive()
					if f == nil {
						continue
					}
				}

				for {
					line, err := reader.ReadString('\n')
					if len(line) > 0 && line[len(line)-1] == '\n' {
						var e Event
						if json.Unmarshal([]byte(line[:len(line)-1]), &e) == nil && predicate(e) {
							select {
							case out <- e:
							case <-ctx.Done():
								_ = f.Close()
								return
							}
						}
					}
					if err != nil {
						break
					}
				}

				// Detect rotation: stat the path by name and compare identity.
				if info, err := os.Stat(l.path); err != nil {
					// Active file briefly absent mid-rotation; retry next tick.
				} else {
					ino, dev := statIdentity(info)
					if ino != curIno || dev != curDev {
						openActive()
					}
				}
			}
		}
	}()

	return out
}
