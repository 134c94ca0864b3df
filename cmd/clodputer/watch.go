package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/taskconfig"
	"github.com/clodputer/clodputer/internal/watcher"
)

func cmdWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	daemon := fs.Bool("daemon", false, "start the watcher as a background daemon")
	stop := fs.Bool("stop", false, "stop the background watcher daemon")
	status := fs.Bool("status", false, "show watcher daemon status")
	runForeground := fs.Bool("run-foreground", false, "internal: run in the foreground (used by the daemon's self-exec)")
	_ = fs.Parse(args)

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	switch {
	case *stop:
		if err := watcher.StopDaemon(e.root); err != nil {
			fmt.Fprintf(os.Stderr, "error: stopping watcher daemon: %v\n", err)
			return ExitError
		}
		fmt.Println("watcher daemon stopped")
		return ExitOK

	case *status:
		st, err := watcher.Status(e.root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: reading watcher status: %v\n", err)
			return ExitError
		}
		if st.Running {
			fmt.Printf("watcher daemon running (pid %d)\n", st.PID)
		} else {
			fmt.Println("watcher daemon not running")
		}
		return ExitOK

	case *daemon:
		pid, err := watcher.StartDaemon(e.root, clodputerBin())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: starting watcher daemon: %v\n", err)
			return ExitError
		}
		fmt.Printf("watcher daemon started (pid %d)\n", pid)
		return ExitOK

	default:
		_ = runForeground // foreground run is the default regardless of how it was invoked
		return runWatcherForeground(e)
	}
}

func runWatcherForeground(e *env) int {
	cfgs, errs := taskconfig.LoadAll(e.root)
	for _, ferr := range errs {
		fmt.Fprintf(os.Stderr, "warning: skipping invalid task: %v\n", ferr)
	}

	q, err := e.openQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening queue: %v\n", err)
		return ExitError
	}

	enqueue := func(taskName string, metadata map[string]string) error {
		id, err := q.Enqueue(taskName, taskconfig.PriorityNormal, metadata)
		if err != nil {
			return err
		}
		e.log.Emit(logger.TaskEnqueued, func(ev *logger.Event) {
			ev.TaskName = taskName
			ev.TaskID = id
		})
		return nil
	}

	w := watcher.New(cfgs, enqueue, e.log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := watcher.RunForeground(ctx, w, e.log); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}
	return ExitOK
}
