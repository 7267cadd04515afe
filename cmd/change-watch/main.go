// Package main provides the change-watch CLI. It compares each input batch
// of normalized records with the last stored snapshot of its source and
// reports what was added, removed or changed.
//
// Modes:
//   - run       : one pass over every source of the data directory
//   - analyze   : one cycle for one source, report printed to stdout
//   - watch     : initial pass, then a cycle whenever an input file changes
//   - schedule  : a pass on every cron tick
//   - snapshots : inspect or prune stored snapshots
//
// Exit codes: 0 success, 1 failure, 2 usage error.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// usageError marks errors caused by how the command was invoked.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		return exitUsage
	}
	return exitError
}
