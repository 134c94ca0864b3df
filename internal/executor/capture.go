package executor

import (
	"bytes"
	"os"
)

// maxCaptureBytes bounds how much of a child's stdout/stderr Clodputer
// keeps in memory before spilling the rest to a temp file.
const maxCaptureBytes = 1 << 20 // 1 MiB

// boundedCapture is an io.Writer that buffers up to maxCaptureBytes in
// memory; once exceeded, it opens a temp file and mirrors every further
// write there, so an event referencing a spilled stream can still point at
// a path instead of truncating silently.
type boundedCapture struct {
	buf       bytes.Buffer
	spillFile *os.File
	spillDir  string
	prefix    string
}

func newBoundedCapture(spillDir, prefix string) *boundedCapture {
	return &boundedCapture{spillDir: spillDir, prefix: prefix}
}

func (c *boundedCapture) Write(p []byte) (int, error) {
	if c.spillFile == nil && c.buf.Len()+len(p) > maxCaptureBytes {
		f, err := os.CreateTemp(c.spillDir, c.prefix+"-*.log")
		if err == nil {
			if _, werr := f.Write(c.buf.Bytes()); werr == nil {
				c.spillFile = f
			} else {
				_ = f.Close()
			}
		}
	}
	if c.spillFile != nil {
		return c.spillFile.Write(p)
	}
	return c.buf.Write(p)
}

// Bytes returns the in-memory content: the full output if never spilled,
// or only the portion captured before the spill began.
func (c *boundedCapture) Bytes() []byte {
	return c.buf.Bytes()
}

// SpillPath returns the path output was spooled to, or "" if capture
// never exceeded the in-memory bound.
func (c *boundedCapture) SpillPath() string {
	if c.spillFile == nil {
		return ""
	}
	return c.spillFile.Name()
}

// Close releases the spill file handle, if any. The file itself is left
// on disk: it's referenced by the emitted event for later inspection.
func (c *boundedCapture) Close() error {
	if c.spillFile == nil {
		return nil
	}
	return c.spillFile.Close()
}
