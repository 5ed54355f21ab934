// Package main implements the flowtrace CLI. It renders the control flow
// graph of a JavaScript function, with each node marked feasible or not
// under a set of argument values, as a flowchart.js diagram.
package main

import (
	"os"

	"github.com/amitmag/flowtrace/cmd/flowtrace/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	commands.BuildTime = buildTime
	commands.RootCmd.SetVersionTemplate(`flowtrace version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
