// Package main implements the go-flow-query CLI (gfq).
// It analyzes C and C++ sources and reports call graphs, points-to sets and
// diagnostics.
package main

import (
	"os"

	"github.com/l3aro/go-flow-query/cmd/gfq/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (built " + buildTime + ")"
	}
	commands.RootCmd.SetVersionTemplate(`gfq version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
