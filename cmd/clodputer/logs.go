package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/clodputer/clodputer/internal/logger"
)

func cmdLogs(args []string) int {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	tailN := fs.Int("tail", 20, "show the last N events")
	follow := fs.Bool("follow", false, "stream new events as they are written")
	task := fs.String("task", "", "filter to one task name")
	asJSON := fs.Bool("json", false, "raw JSON lines instead of formatted output")
	_ = fs.Parse(args)

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	matches := func(ev logger.Event) bool {
		return *task == "" || ev.TaskName == *task
	}

	events, err := e.log.Tail(*tailN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reading log: %v\n", err)
		return ExitError
	}
	for _, ev := range events {
		if !matches(ev) {
			continue
		}
		printLogEvent(ev, *asJSON)
	}

	if !*follow {
		return ExitOK
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	for ev := range e.log.Follow(ctx, matches) {
		printLogEvent(ev, *asJSON)
	}
	return ExitOK
}

func printLogEvent(ev logger.Event, asJSON bool) {
	if asJSON {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Println(string(data))
		return
	}
	printEventLine(ev)
}
