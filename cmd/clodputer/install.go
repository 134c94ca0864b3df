package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/clodputer/clodputer/internal/croninstall"
	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/taskconfig"
)

func cmdInstall(args []string) int {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "print the resulting crontab without installing")
	_ = fs.Parse(args)

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	cfgs, errs := taskconfig.LoadAll(e.root)
	for _, ferr := range errs {
		fmt.Fprintf(os.Stderr, "warning: skipping invalid task: %v\n", ferr)
	}
	entries := croninstall.EntriesFromConfigs(cfgs)

	io := croninstall.SystemCrontab{}
	bin := clodputerBin()

	if *dryRun {
		preview, err := croninstall.Preview(io, e.root, bin, entries)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: rendering preview: %v\n", err)
			return ExitError
		}
		fmt.Println(preview)
		return ExitOK
	}

	if err := croninstall.Install(io, e.root, bin, entries); err != nil {
		fmt.Fprintf(os.Stderr, "error: installing cron block: %v\n", err)
		return ExitError
	}
	e.log.Emit(logger.CronInstalled, func(ev *logger.Event) {
		ev.Extra = map[string]any{"entries": len(entries)}
	})
	fmt.Printf("installed %d cron entries\n", len(entries))
	return ExitOK
}

func cmdUninstall(args []string) int {
	fs := flag.NewFlagSet("uninstall", flag.ExitOnError)
	_ = fs.Parse(args)

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	io := croninstall.SystemCrontab{}
	if err := croninstall.Uninstall(io, e.root); err != nil {
		fmt.Fprintf(os.Stderr, "error: uninstalling cron block: %v\n", err)
		return ExitError
	}
	e.log.Emit(logger.CronUninstalled, nil)
	fmt.Println("removed the managed cron block")
	return ExitOK
}
