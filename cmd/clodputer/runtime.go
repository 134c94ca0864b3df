package main

import (
	"fmt"
	"os"

	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/metrics"
	"github.com/clodputer/clodputer/internal/queue"
	"github.com/clodputer/clodputer/internal/statedir"
)

// env bundles the state-directory handles every command needs, so each
// cmd* function doesn't repeat the open-root/open-logger/open-queue
// boilerplate. Nothing here is a package-level singleton: each command
// constructs its own env and passes it down.
type env struct {
	root string
	log  *logger.Logger
}

func newEnv() (*env, error) {
	root, err := statedir.Find()
	if err != nil {
		return nil, fmt.Errorf("locate state directory: %w", err)
	}
	if err := statedir.EnsureDirs(root); err != nil {
		return nil, fmt.Errorf("prepare state directory: %w", err)
	}
	log := logger.New(statedir.LogPath(root), statedir.ArchivePath(root), func(err error) {
		fmt.Fprintf(os.Stderr, "warning: logger: %v\n", err)
	})
	return &env{root: root, log: log}, nil
}

// openQueue opens the queue document, emitting queue_recovered_from_corruption
// if Open had to quarantine a corrupt one.
func (e *env) openQueue() (*queue.Queue, error) {
	path := statedir.QueuePath(e.root)
	return queue.Open(path, func(quarantinePath string) {
		e.log.Emit(logger.QueueRecoveredFromCorrupt, func(ev *logger.Event) {
			ev.Extra = map[string]any{"quarantine_path": quarantinePath}
		})
	})
}

func (e *env) openMetrics() (*metrics.Store, error) {
	return metrics.Open(statedir.MetricsPath(e.root))
}

// clodputerBin returns the path to this running binary, used to embed a
// concrete invocation in generated cron lines and the watcher daemon's
// self-exec.
func clodputerBin() string {
	if bin, err := os.Executable(); err == nil {
		return bin
	}
	return "clodputer"
}
