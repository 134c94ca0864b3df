// Package statedir resolves and lays out the Clodputer state directory.
package statedir

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvStateDir overrides the state directory root.
const EnvStateDir = "CLODPUTER_STATE_DIR"

// DirName is the default state directory name under the user's home.
const DirName = ".clodputer"

const (
	TasksDir   = "tasks"
	ArchiveDir = "archive"
)

const (
	QueueFile         = "queue.json"
	LockFile          = "clodputer.lock"
	ExecutionLog      = "execution.log"
	MetricsFile       = "metrics.json"
	WatcherPIDFile    = "watcher.pid"
	WatcherLogFile    = "watcher.log"
	CronLogFile       = "cron.log"
	EnvSettingsFile   = "env.json"
	OnboardMarker     = "onboarding.done"
	CrontabBackupFile = "crontab.backup"
)

// Find locates the Clodputer state directory using the following precedence:
// 1. CLODPUTER_STATE_DIR environment variable
// 2. ~/.clodputer
func Find() (string, error) {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName), nil
}

// EnsureDirs creates the state directory and its subdirectories if they
// don't already exist.
func EnsureDirs(root string) error {
	if err := os.MkdirAll(filepath.Join(root, TasksDir), 0700); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(root, ArchiveDir), 0700)
}

func TasksPath(root string) string   { return filepath.Join(root, TasksDir) }
func ArchivePath(root string) string { return filepath.Join(root, ArchiveDir) }
func QueuePath(root string) string   { return filepath.Join(root, QueueFile) }
func LockPath(root string) string    { return filepath.Join(root, LockFile) }
func LogPath(root string) string     { return filepath.Join(root, ExecutionLog) }
func MetricsPath(root string) string { return filepath.Join(root, MetricsFile) }
func WatcherPIDPath(root string) string { return filepath.Join(root, WatcherPIDFile) }
func WatcherLogPath(root string) string { return filepath.Join(root, WatcherLogFile) }
func CronLogPath(root string) string    { return filepath.Join(root, CronLogFile) }
func EnvSettingsPath(root string) string { return filepath.Join(root, EnvSettingsFile) }
func OnboardMarkerPath(root string) string { return filepath.Join(root, OnboardMarker) }
func CrontabBackupPath(root string) string { return filepath.Join(root, CrontabBackupFile) }

// QuarantinePath returns a path for quarantining a corrupt document, named
// after the original file (extension stripped) with a timestamp-derived
// suffix supplied by the caller (so the clock dependency stays at the
// call site, not here).
func QuarantinePath(root, baseName, suffix string) string {
	base := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return filepath.Join(root, base+".corrupt-"+suffix+".json")
}

// WriteFileAtomic writes data to path using write-temp + fsync + rename,
// the same durability discipline used throughout Clodputer's persisted
// documents (queue, metrics, env settings, watcher pidfile). The executor
// lockfile is not written through here: it uses exclusive creation.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	return SyncDir(path)
}

// SyncDir fsyncs the parent directory of path so that a create, rename, or
// delete of path is durably recorded in the directory entry.
func SyncDir(path string) error {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()
	return dir.Sync()
}
