//go:build unix

package logger

import (
	"os"
	"syscall"
)

func fileIdentity(f *os.File) (ino, dev uint64) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0
	}
	return statIdentity(info)
}

func statIdentity(info os.FileInfo) (ino, dev uint64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(st.Ino), uint64(st.Dev) //nolint:unconvert // Ino/Dev width varies by platform
}
