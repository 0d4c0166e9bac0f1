// Package cmd wires the CLI: an interactive chat REPL, one-shot
// questions, thread inspection, document ingestion, and the HTTP server.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ara",
	Short: "Ara - a research assistant with controlled tool usage",
	Long: `Ara is a conversational research assistant. It answers with the help
of web search, news search, stock quotes, and documents you attach to a
conversation, and it keeps every conversation resumable by ID.

Running ara without a subcommand starts the interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
