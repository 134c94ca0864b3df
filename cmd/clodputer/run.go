package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/clodputer/clodputer/internal/executor"
	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/queue"
	"github.com/clodputer/clodputer/internal/statedir"
	"github.com/clodputer/clodputer/internal/taskconfig"
)

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	priority := fs.String("priority", "normal", "queue priority: normal or high")
	enqueueOnly := fs.Bool("enqueue-only", false, "enqueue and exit without draining the queue")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: clodputer run [--priority normal|high] [--enqueue-only] <task>")
		return ExitUsage
	}
	name := fs.Arg(0)

	var pri taskconfig.Priority
	switch *priority {
	case "normal":
		pri = taskconfig.PriorityNormal
	case "high":
		pri = taskconfig.PriorityHigh
	default:
		fmt.Fprintf(os.Stderr, "error: --priority must be normal or high, got %q\n", *priority)
		return ExitUsage
	}

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	if _, err := taskconfig.Load(e.root, name); errors.Is(err, taskconfig.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	q, err := e.openQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening queue: %v\n", err)
		return ExitError
	}

	id, err := q.Enqueue(name, pri, map[string]string{"trigger": "manual"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: enqueue: %v\n", err)
		return ExitError
	}
	e.log.Emit(logger.TaskEnqueued, func(ev *logger.Event) {
		ev.TaskName = name
		ev.TaskID = id
	})
	fmt.Printf("enqueued %q (id %s, priority %s)\n", name, id, pri)

	if *enqueueOnly {
		return ExitOK
	}

	return drainQueue(e, q)
}

// drainQueue implements "the trigger acquires the lock first, or enqueues
// and exits immediately": if another executor already holds the lock,
// this invocation leaves its work queued for that executor and exits
// without draining. The enqueue itself succeeded, but lock contention is
// still reported with a distinct non-zero code naming the live PID.
func drainQueue(e *env, q *queue.Queue) int {
	lock := queue.NewExecutorLock(statedir.LockPath(e.root))
	staleRemoved, stalePID, err := lock.Acquire()
	if err != nil {
		var held *queue.HeldError
		if errors.As(err, &held) {
			fmt.Fprintf(os.Stderr, "executor lock held by pid %d; task left queued for it\n", held.PID)
			return ExitLockHeld
		}
		fmt.Fprintf(os.Stderr, "error: acquiring executor lock: %v\n", err)
		return ExitError
	}
	if staleRemoved {
		e.log.Emit(logger.LockStaleRemoved, func(ev *logger.Event) {
			ev.Extra = map[string]any{"pid": stalePID}
		})
	}
	e.log.Emit(logger.LockAcquired, func(ev *logger.Event) {
		ev.Extra = map[string]any{"pid": os.Getpid()}
	})
	defer func() {
		_ = lock.Release()
		e.log.Emit(logger.LockReleased, func(ev *logger.Event) {
			ev.Extra = map[string]any{"pid": os.Getpid()}
		})
	}()

	met, err := e.openMetrics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening metrics: %v\n", err)
		return ExitError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := &executor.Runner{
		Root:    e.root,
		Queue:   q,
		Logger:  e.log,
		Metrics: met,
		OnInternalError: func(err error) {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		},
	}

	results, err := runner.RunUntilIdle(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	ok := true
	for _, r := range results {
		fmt.Printf("%-20s %s\n", r.TaskName, r.Status)
		if r.Status != "success" && r.Status != "disabled" {
			ok = false
		}
	}
	if !ok {
		return ExitError
	}
	return ExitOK
}
