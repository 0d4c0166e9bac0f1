package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var ingestThreadID string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Add a document to a thread's knowledge base",
	Long: `Ingest reads a text file, splits it into chunks, embeds each chunk and
stores the vectors scoped to the given thread. Ingested content becomes
searchable through the rag_search tool in that thread's conversations.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestThreadID, "thread", "", "thread ID to attach the document to (required)")
	_ = ingestCmd.MarkFlagRequired("thread")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	source := filepath.Base(path)
	stats, err := a.knowledge.Ingest(ctx, ingestThreadID, source, string(content))
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", source, err)
	}

	fmt.Printf("Ingested %s into thread %s: %d chunks embedded.\n", source, ingestThreadID, stats.Chunks)
	return nil
}
