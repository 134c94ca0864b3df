package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/clodputer/clodputer/internal/diagnostics"
)

func cmdDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "output in JSON format")
	_ = fs.Parse(args)

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	checks := diagnostics.RunChecks(e.root, e.log)
	overall := diagnostics.Overall(checks)

	if *asJSON {
		data, _ := json.MarshalIndent(struct {
			Root    string                `json:"root"`
			Checks  []diagnostics.Check   `json:"checks"`
			Overall diagnostics.Status    `json:"overall"`
		}{Root: e.root, Checks: checks, Overall: overall}, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Println("clodputer doctor")
		fmt.Println()
		fmt.Printf("state directory: %s\n", e.root)
		fmt.Println()
		for _, c := range checks {
			printCheck(c)
		}
		fmt.Println()
		fmt.Printf("overall: %s\n", overall)
	}

	if overall == diagnostics.StatusError {
		return ExitError
	}
	return ExitOK
}

func printCheck(c diagnostics.Check) {
	symbol := "ok  "
	switch c.Status {
	case diagnostics.StatusWarn:
		symbol = "warn"
	case diagnostics.StatusError:
		symbol = "FAIL"
	}
	fmt.Printf("[%s] %-20s %s\n", symbol, c.Name, c.Message)
	if c.Hint != "" {
		fmt.Printf("       hint: %s\n", c.Hint)
	}
}
