// Package main is the entry point for the kichoctl maintenance CLI.
package main

import (
	"os"

	"kicho/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
