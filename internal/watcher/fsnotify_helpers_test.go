package watcher

import "github.com/fsnotify/fsnotify"

const (
	writeOp  = fsnotify.Write
	createOp = fsnotify.Create
)

func fakeEvent(path string, op fsnotify.Op) fsnotify.Event {
	return fsnotify.Event{Name: path, Op: op}
}
