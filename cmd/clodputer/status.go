package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/clodputer/clodputer/internal/logger"
)

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
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
	snap := q.Snapshot()

	fmt.Println("Running:")
	if snap.Running == nil {
		fmt.Println("  (idle)")
	} else {
		elapsed := "unknown"
		if snap.Running.StartedAt != nil {
			elapsed = time.Since(*snap.Running.StartedAt).Truncate(time.Second).String()
		}
		fmt.Printf("  %s (pid %d, priority %s, elapsed %s)\n", snap.Running.Name, snap.Running.PID, snap.Running.Priority, elapsed)
	}

	fmt.Printf("\nQueued (%d):\n", len(snap.Queued))
	if len(snap.Queued) == 0 {
		fmt.Println("  (empty)")
	}
	for _, item := range snap.Queued {
		fmt.Printf("  %-20s priority=%-6s attempt=%d not_before=%s\n",
			item.Name, item.Priority, item.AttemptCount, item.NotBefore.Format(time.RFC3339))
	}

	met, err := e.openMetrics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening metrics: %v\n", err)
		return ExitError
	}
	all := met.All()
	fmt.Println("\nLifetime counts by task:")
	if len(all) == 0 {
		fmt.Println("  (no completed runs yet)")
	}
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		r := all[n]
		fmt.Printf("  %-20s success=%-4d failure=%-4d last=%-10s avg=%.1fs ewma=%.1fs\n",
			n, r.SuccessCount, r.FailureCount, r.LastStatus, r.AvgDuration, r.EWMADuration)
	}

	recent, err := e.log.Tail(200)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: reading recent log events: %v\n", err)
	}

	var todaySuccess, todayFailure int
	today := time.Now().Format("2006-01-02")
	for _, ev := range recent {
		if ev.Timestamp.Format("2006-01-02") != today {
			continue
		}
		switch ev.Event {
		case logger.TaskCompleted:
			todaySuccess++
		case logger.TaskFailed, logger.TaskTimeout:
			todayFailure++
		}
	}
	fmt.Printf("\nToday: %d succeeded, %d failed\n", todaySuccess, todayFailure)

	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	fmt.Println("\nRecent events:")
	if len(recent) == 0 {
		fmt.Println("  (none)")
	}
	for _, ev := range recent {
		printEventLine(ev)
	}
	return ExitOK
}

func printEventLine(ev logger.Event) {
	fmt.Printf("  %s %-28s", ev.Timestamp.Format(time.RFC3339), ev.Event)
	if ev.TaskName != "" {
		fmt.Printf(" task=%s", ev.TaskName)
	}
	if ev.Status != "" {
		fmt.Printf(" status=%s", ev.Status)
	}
	if ev.Error != "" {
		fmt.Printf(" error=%q", ev.Error)
	}
	fmt.Println()
}
