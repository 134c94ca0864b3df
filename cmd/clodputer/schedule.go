package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/clodputer/clodputer/internal/croninstall"
	"github.com/clodputer/clodputer/internal/taskconfig"
)

func cmdSchedulePreview(args []string) int {
	fs := flag.NewFlagSet("schedule-preview", flag.ExitOnError)
	count := fs.Int("count", 5, "number of fire times to show")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: clodputer schedule-preview [--count N] <task>")
		return ExitUsage
	}
	name := fs.Arg(0)

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	cfg, err := taskconfig.Load(e.root, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}
	if cfg.Trigger.Type != taskconfig.TriggerCron {
		fmt.Fprintf(os.Stderr, "error: task %q does not have a cron trigger\n", name)
		return ExitError
	}

	runs, err := croninstall.NextRuns(cfg.Trigger.Expression, cfg.Trigger.Timezone, *count, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}
	for _, t := range runs {
		fmt.Println(t.Format(time.RFC3339))
	}
	return ExitOK
}
