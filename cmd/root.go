// Package cmd implements the docent command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docent",
	Short: "Docent - retrieval-augmented answer server",
	Long: `Docent answers questions grounded in an indexed document corpus.

It serves a JSON chat API with SSE streaming, backed by a pgvector passage
index, a confidence-gated retrieval pipeline and a tool-calling agent that
can consult the knowledge base or the web before answering.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
