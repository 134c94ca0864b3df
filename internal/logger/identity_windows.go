//go:build windows

package logger

import "os"

// Windows file identity (volume serial + file index) requires
// GetFileInformationByHandle, which os.FileInfo.Sys() does not expose
// uniformly across Go versions. Falling back to size+modtime means a
// same-size rotation within one polling tick could be missed; in
// practice rotated files differ in size (the new active file starts
// empty), so this is an acceptable approximation on this platform.
func fileIdentity(f *os.File) (ino, dev uint64) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0
	}
	return statIdentity(info)
}

func statIdentity(info os.FileInfo) (ino, dev uint64) {
	return uint64(info.Size()), uint64(info.ModTime().UnixNano())
}
