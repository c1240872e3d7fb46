// Package main provides the entry point for the whytcard CLI.
package main

import (
	"os"

	"github.com/whytcard/cortex/cmd/whytcard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
