package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/clodputer/clodputer/internal/taskconfig"
)

func cmdList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	_ = fs.Parse(args)

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	cfgs, errs := taskconfig.LoadAll(e.root)
	if len(cfgs) == 0 && len(errs) == 0 {
		fmt.Println("no tasks configured")
		return ExitOK
	}

	fmt.Printf("%-20s %-8s %-9s %-8s %s\n", "NAME", "ENABLED", "PRIORITY", "TRIGGER", "SCHEDULE/PATTERN")
	for _, c := range cfgs {
		fmt.Printf("%-20s %-8v %-9s %-8s %s\n",
			c.Name, c.IsEnabled(), c.EffectivePriority(), c.Trigger.Type, triggerDetail(c.Trigger))
	}
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "error: %v\n", e)
	}
	if len(errs) > 0 {
		return ExitError
	}
	return ExitOK
}

func triggerDetail(t taskconfig.Trigger) string {
	switch t.Type {
	case taskconfig.TriggerCron:
		if t.Timezone != "" {
			return fmt.Sprintf("%s (%s)", t.Expression, t.Timezone)
		}
		return t.Expression
	case taskconfig.TriggerFileWatch:
		return fmt.Sprintf("%s matching %s on %s", t.Path, t.Pattern, t.Event)
	default:
		return "-"
	}
}
