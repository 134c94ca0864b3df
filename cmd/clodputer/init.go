package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/clodputer/clodputer/internal/statedir"
)

// cmdInit creates the state directory layout and drops the onboarding
// marker diagnostics looks for. It deliberately does not touch
// onboarding/documentation content: it is the minimal mechanical
// directory creation a fresh machine needs before any other command, or
// `doctor`'s onboarding check, can do anything useful.
func cmdInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	_ = fs.Parse(args)

	root, err := statedir.Find()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}
	if err := statedir.EnsureDirs(root); err != nil {
		fmt.Fprintf(os.Stderr, "error: creating state directory: %v\n", err)
		return ExitError
	}
	if err := statedir.WriteFileAtomic(statedir.OnboardMarkerPath(root), []byte("ok\n"), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "error: writing onboarding marker: %v\n", err)
		return ExitError
	}

	fmt.Printf("initialized state directory at %s\n", root)
	return ExitOK
}
