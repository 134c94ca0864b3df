package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/clodputer/clodputer/internal/logger"
)

func cmdQueue(args []string) int {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	clear := fs.Bool("clear", false, "remove all queued (not running) items")
	_ = fs.Parse(args)

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	q, err := e.openQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening queue: %v\n", err)
		return ExitError
	}

	if *clear {
		if err := q.Clear(); err != nil {
			fmt.Fprintf(os.Stderr, "error: clearing queue: %v\n", err)
			return ExitError
		}
		e.log.Emit(logger.QueueCleared, nil)
		fmt.Println("queued items cleared (running item, if any, is untouched)")
		return ExitOK
	}

	snap := q.Snapshot()
	if snap.Running != nil {
		r := snap.Running
		fmt.Printf("running: id=%s name=%s priority=%s pid=%d enqueued_at=%s\n",
			r.ID, r.Name, r.Priority, r.PID, r.EnqueuedAt.Format(time.RFC3339))
	} else {
		fmt.Println("running: (none)")
	}

	fmt.Printf("queued: %d item(s)\n", len(snap.Queued))
	for _, item := range snap.Queued {
		fmt.Printf("  id=%s name=%s priority=%s attempt=%d enqueued_at=%s not_before=%s metadata=%v\n",
			item.ID, item.Name, item.Priority, item.AttemptCount,
			item.EnqueuedAt.Format(time.RFC3339), item.NotBefore.Format(time.RFC3339), item.Metadata)
	}
	return ExitOK
}
