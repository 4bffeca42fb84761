// Package main is the simjudge command line. It runs pipeline stages one at
// a time or end to end, queries results, serves the HTTP API and hosts the
// Temporal worker.
//
// Every command prints JSON on stdout. A failure prints {"error": "..."}
// and exits with status 1.
//
// Configuration comes from the file named by --config (or SIMJUDGE_CONFIG),
// then SIMJUDGE_* environment variables. Provider keys are read from
// ANTHROPIC_API_KEY and OPENAI_API_KEY unless the file names other
// variables.
package main

import (
	"io"
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	c := newCLI(stderr)
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		c.logger().Error("command failed", "error", err)
		writeError(stdout, err)
		return 1
	}
	return 0
}
