// Package cmd provides the CLI commands for whytcard.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/whytcard/cortex/pkg/version"
)

// NewRootCmd creates the root command for the whytcard CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whytcard",
		Short: "Local-first cognitive memory and retrieval runtime",
		Long: `whytcard is a local-first cognitive memory and retrieval runtime for AI
coding assistants: a triple memory system (semantic, episodic, procedural),
a RAG pipeline over your codebase, and a CORTEX cognitive engine, all
exposed as typed tools over the tool-dispatch protocol.

It runs entirely locally with zero configuration required. Run
'whytcard serve' from your project directory to start the tool server.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("whytcard version {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
