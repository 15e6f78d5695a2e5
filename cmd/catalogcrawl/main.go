// Package main is the entry point for the catalogcrawl CLI.
package main

import (
	"os"

	"github.com/jmylchreest/catalogcrawl/cmd/catalogcrawl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
